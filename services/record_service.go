// services/record_service.go
package services

import (
	"errors"
	"sync"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/persistence"
)

var ErrNoDatabase = errors.New("game records are not stored")

// RecordService 保存结束的对局
//
// Saves run in the background because they are triggered with a room lock
// held. Close waits for pending saves.
type RecordService struct {
	db persistence.Database
	wg sync.WaitGroup

	mutex  sync.Mutex
	closed bool

	// OnSaved, when set, runs after each attempted save.
	OnSaved func(record models.GameRecord, err error)
}

// NewRecordService accepts a nil database; records are then only logged.
func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

func (s *RecordService) Enabled() bool {
	return s.db != nil
}

// Record stores a finished game asynchronously.
func (s *RecordService) Record(record models.GameRecord) {
	logger.Log.Infow("game record", "id", record.ID, "room", record.RoomCode, "winner", record.Winner, "rounds", record.Rounds)
	if s.db == nil {
		return
	}
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		logger.Log.Warnw("record service closed, dropping game record", "id", record.ID, "room", record.RoomCode)
		return
	}
	s.wg.Add(1)
	s.mutex.Unlock()
	go func() {
		defer s.wg.Done()
		err := s.db.SaveGameRecord(record)
		if err != nil {
			logger.Log.Errorw("failed to save game record", "id", record.ID, "room", record.RoomCode, "error", err)
		}
		if s.OnSaved != nil {
			s.OnSaved(record, err)
		}
	}()
}

func (s *RecordService) Recent(limit int) ([]models.GameRecord, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	return s.db.ListGameRecords(limit)
}

func (s *RecordService) Get(id string) (models.GameRecord, error) {
	if s.db == nil {
		return models.GameRecord{}, ErrNoDatabase
	}
	return s.db.GetGameRecord(id)
}

func (s *RecordService) Stats() (models.RecordStats, error) {
	if s.db == nil {
		return models.RecordStats{}, ErrNoDatabase
	}
	return s.db.GetStats()
}

// Close waits for in-flight saves, then closes the database.
// Records arriving after Close are dropped.
func (s *RecordService) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	s.wg.Wait()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
