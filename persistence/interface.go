// persistence/interface.go
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/models"
)

// Database 对局记录存储接口
type Database interface {
	SaveGameRecord(record models.GameRecord) error
	GetGameRecord(id string) (models.GameRecord, error)
	ListGameRecords(limit int) ([]models.GameRecord, error)
	GetStats() (models.RecordStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrUnknownDriver  = fmt.Errorf("unknown database driver")
)

// Open picks the implementation named by cfg.Driver. An empty driver
// returns (nil, nil): records are simply not kept.
func Open(cfg config.DatabaseConfig) (Database, error) {
	pg := cfg.Postgres
	var (
		db  Database
		err error
	)
	switch cfg.Driver {
	case "":
		return nil, nil
	case "gorm":
		var g *GormPostgreSQL
		if g, err = NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName); err == nil {
			db = g
		}
	case "postgres":
		var p *PostgreSQL
		if p, err = NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName); err == nil {
			db = p
		}
	case "sqlite":
		var s *SQLite
		if s, err = NewSQLite(cfg.SQLite.Path); err == nil {
			db = s
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func encodePlayers(players []models.GameRecordPlayer) (string, error) {
	if players == nil {
		players = []models.GameRecordPlayer{}
	}
	data, err := json.Marshal(players)
	return string(data), err
}

func decodePlayers(data string) ([]models.GameRecordPlayer, error) {
	var players []models.GameRecordPlayer
	if data == "" {
		return players, nil
	}
	err := json.Unmarshal([]byte(data), &players)
	return players, err
}
