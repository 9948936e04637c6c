package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/models"
)

func sampleRecord(id string, winner models.Winner, ended time.Time) models.GameRecord {
	return models.GameRecord{
		ID:       id,
		RoomCode: "ABCD",
		Winner:   winner,
		Rounds:   2,
		Players: []models.GameRecordPlayer{
			{ID: "host", Name: "Host", Role: models.RoleCitizen, IsAlive: true, IsHost: true},
			{ID: "p1", Name: "P1", Role: models.RoleMafia, IsAlive: false},
		},
		StartedAt: ended.Add(-5 * time.Minute),
		EndedAt:   ended,
	}
}

func TestSQLite_SaveAndQuery(t *testing.T) {
	db, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.SaveGameRecord(sampleRecord("r1", models.WinnerCitizens, now.Add(-time.Hour))))
	require.NoError(t, db.SaveGameRecord(sampleRecord("r2", models.WinnerMafia, now)))
	require.NoError(t, db.SaveGameRecord(sampleRecord("r3", models.WinnerCitizens, now.Add(-2*time.Hour))))

	rec, err := db.GetGameRecord("r2")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerMafia, rec.Winner)
	assert.Equal(t, 2, rec.Rounds)
	require.Len(t, rec.Players, 2)
	assert.Equal(t, models.RoleMafia, rec.Players[1].Role)
	assert.True(t, rec.EndedAt.Equal(now))

	list, err := db.ListGameRecords(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.Equal(t, "r1", list[1].ID)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, models.RecordStats{TotalGames: 3, MafiaWins: 1, CitizensWins: 2}, stats)
}

func TestSQLite_NotFoundAndDuplicate(t *testing.T) {
	db, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetGameRecord("missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	rec := sampleRecord("dup", models.WinnerMafia, time.Now())
	require.NoError(t, db.SaveGameRecord(rec))
	assert.Error(t, db.SaveGameRecord(rec))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGames)
}

func TestOpen_Drivers(t *testing.T) {
	db, err := Open(config.DatabaseConfig{})
	assert.NoError(t, err)
	assert.Nil(t, db)

	_, err = Open(config.DatabaseConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	path := filepath.Join(t.TempDir(), "data", "mafia.db")
	db, err = Open(config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: path}})
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, db.Close())
}
