package room

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/mafiaserver/models"
)

// ErrCodeSpaceExhausted is returned when no free room code could be found.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")

const maxCodeAttempts = 64

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms      map[string]*Room
	codeLength int
	mutex      sync.RWMutex

	// OnRemove runs after a room leaves the registry, without the manager lock.
	OnRemove func(*Room)
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(codeLength int) *Manager {
	if codeLength <= 0 {
		codeLength = 4
	}
	return &Manager{
		rooms:      make(map[string]*Room),
		codeLength: codeLength,
	}
}

// NormalizeCode 统一房间码格式
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom reserves a unique code and registers the room built for it.
// build runs under the manager lock and must not call back into the manager.
func (m *Manager) CreateRoom(build func(code string) *Room) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode(m.codeLength)
		if err != nil {
			return nil, err
		}
		if _, taken := m.rooms[code]; taken {
			continue
		}
		room := build(code)
		m.rooms[code] = room
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(code string) bool {
	m.mutex.Lock()
	room, exists := m.rooms[NormalizeCode(code)]
	if exists {
		delete(m.rooms, room.Code)
	}
	m.mutex.Unlock()

	if !exists {
		return false
	}
	room.Mu.Lock()
	room.Close()
	room.Mu.Unlock()
	if m.OnRemove != nil {
		m.OnRemove(room)
	}
	return true
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[NormalizeCode(code)]
	return room, exists
}

// Count 返回当前房间数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// List returns a snapshot of the registered rooms.
func (m *Manager) List() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Reap removes rooms that finished more than finishedTTL ago, and rooms
// nobody has been connected to for idleTTL. It returns the removed codes.
func (m *Manager) Reap(now time.Time, idleTTL, finishedTTL time.Duration) []string {
	var expired []string
	for _, r := range m.List() {
		r.Mu.Lock()
		finished := r.Phase() == models.PhaseGameOver && finishedTTL > 0 && now.Sub(r.EndedAt) >= finishedTTL
		idle := r.ConnectedCount() == 0 && idleTTL > 0 && now.Sub(r.LastActive) >= idleTTL
		r.Mu.Unlock()
		if finished || idle {
			expired = append(expired, r.Code)
		}
	}

	removed := expired[:0]
	for _, code := range expired {
		if m.RemoveRoom(code) {
			removed = append(removed, code)
		}
	}
	return removed
}
