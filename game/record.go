package game

import (
	"github.com/google/uuid"

	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

// BuildRecord snapshots a finished room. Caller holds r.Mu.
func BuildRecord(r *room.Room) models.GameRecord {
	rec := models.GameRecord{
		ID:        uuid.NewString(),
		RoomCode:  r.Code,
		Winner:    r.Winner,
		Rounds:    r.Round,
		Players:   make([]models.GameRecordPlayer, 0, len(r.Players)),
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
	for _, p := range r.Players {
		rec.Players = append(rec.Players, models.GameRecordPlayer{
			ID:      p.ID,
			Name:    p.Name,
			Role:    p.Role,
			IsAlive: p.IsAlive,
			IsHost:  p.IsHost,
		})
	}
	return rec
}
