// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/mafiaserver/network"
)

// Session 一个客户端连接，加入房间后绑定到某个座位
type Session struct {
	ID         string // transport id
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time

	roomCode string
	playerID string
	mutex    sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Binding returns the room and player this session is seated as.
func (s *Session) Binding() (roomCode, playerID string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomCode, s.playerID
}

func (s *Session) bind(roomCode, playerID string) {
	s.mutex.Lock()
	s.roomCode, s.playerID = roomCode, playerID
	s.mutex.Unlock()
}

// Unbind detaches the session from its seat without closing it.
func (s *Session) Unbind() {
	s.bind("", "")
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) Send(event string, payload any) error {
	return s.Conn.Send(event, payload)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every live session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// Bind seats s as playerID in roomCode. Any other session holding the same
// seat is unbound and returned, so only the newest connection speaks for it.
func (m *Manager) Bind(s *Session, roomCode, playerID string) []*Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var displaced []*Session
	for _, other := range m.sessions {
		if other == s {
			continue
		}
		code, pid := other.Binding()
		if code == roomCode && pid == playerID {
			other.Unbind()
			displaced = append(displaced, other)
		}
	}
	s.bind(roomCode, playerID)
	return displaced
}

// GetByRoom returns every session seated in roomCode.
func (m *Manager) GetByRoom(roomCode string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if code, _ := session.Binding(); code == roomCode {
			result = append(result, session)
		}
	}
	return result
}

// GetByPlayer returns the sessions seated as playerID in roomCode.
func (m *Manager) GetByPlayer(roomCode, playerID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if code, pid := session.Binding(); code == roomCode && pid == playerID {
			result = append(result, session)
		}
	}
	return result
}
