// models/gorm_models.go
package models

import (
	"time"
)

// GormGameRecord 对局记录表
type GormGameRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RecordID  string `gorm:"uniqueIndex;not null"`
	RoomCode  string `gorm:"index;not null"`
	Winner    string `gorm:"index;not null"`
	Rounds    int    `gorm:"default:0"`
	Players   string `gorm:"type:jsonb;not null"`
	StartedAt time.Time
	EndedAt   time.Time
	CreatedAt time.Time
}

func (GormGameRecord) TableName() string {
	return "game_records"
}
