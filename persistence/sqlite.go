package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite 单机部署用的本地存储
type SQLite struct {
	sqlRecords
}

// NewSQLite opens (and creates if needed) the database at path. ":memory:"
// gives a throwaway database.
func NewSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := initSQLiteTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{sqlRecords{db: db, placeholder: func(int) string { return "?" }}}, nil
}

func initSQLiteTables(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS game_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  record_id TEXT NOT NULL UNIQUE,
  room_code TEXT NOT NULL,
  winner TEXT NOT NULL,
  rounds INTEGER NOT NULL DEFAULT 0,
  players TEXT NOT NULL,
  started_at DATETIME NOT NULL,
  ended_at DATETIME NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
CREATE INDEX IF NOT EXISTS idx_game_records_ended_at ON game_records(ended_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}
