package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wfunc/mafiaserver/models"
)

const queryTimeout = 5 * time.Second

// sqlRecords holds the database/sql queries shared by the lib/pq and sqlite
// backends. placeholder renders the n-th (1-based) bind parameter.
type sqlRecords struct {
	db          *sql.DB
	placeholder func(n int) string
}

func (s *sqlRecords) SaveGameRecord(record models.GameRecord) error {
	players, err := encodePlayers(record.Players)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
        INSERT INTO game_records (record_id, room_code, winner, rounds, players, started_at, ended_at)
        VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7))

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.RoomCode, string(record.Winner), record.Rounds,
		players, record.StartedAt.UTC(), record.EndedAt.UTC())
	return err
}

func (s *sqlRecords) GetGameRecord(id string) (models.GameRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `SELECT record_id, room_code, winner, rounds, players, started_at, ended_at
        FROM game_records WHERE record_id = ` + s.placeholder(1)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return models.GameRecord{}, ErrRecordNotFound
	}
	return rec, err
}

// ListGameRecords returns the newest records first.
func (s *sqlRecords) ListGameRecords(limit int) ([]models.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `SELECT record_id, room_code, winner, rounds, players, started_at, ended_at
        FROM game_records ORDER BY ended_at DESC, id DESC LIMIT ` + s.placeholder(1)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.GameRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqlRecords) GetStats() (models.RecordStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var stats models.RecordStats
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN winner = 'MAFIA' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN winner = 'CITIZENS' THEN 1 ELSE 0 END), 0)
        FROM game_records`).Scan(&stats.TotalGames, &stats.MafiaWins, &stats.CitizensWins)
	return stats, err
}

func (s *sqlRecords) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.GameRecord, error) {
	var (
		rec     models.GameRecord
		winner  string
		players string
	)
	if err := row.Scan(&rec.ID, &rec.RoomCode, &winner, &rec.Rounds, &players, &rec.StartedAt, &rec.EndedAt); err != nil {
		return models.GameRecord{}, err
	}
	rec.Winner = models.Winner(winner)
	decoded, err := decodePlayers(players)
	if err != nil {
		return models.GameRecord{}, err
	}
	rec.Players = decoded
	return rec, nil
}
