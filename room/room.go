// room/room.go
package room

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/state"
)

var (
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrMissingName        = errors.New("player name is required")
	ErrMissingID          = errors.New("player id is required")
	ErrPlayerNotFound     = errors.New("player not found")
)

// Player 房间内的玩家
type Player struct {
	ID           string // client-supplied stable id, survives reconnects
	TransportID  string // current connection, changes on every reconnect
	Name         string
	IsHost       bool
	Role         models.Role
	IsAlive      bool
	Avatar       string
	SelfHealUsed bool
	Connected    bool
}

// NightState 当夜的行动记录，每个夜晚开始时清空
type NightState struct {
	MafiaTarget    string
	NurseTarget    string
	MafiaActed     bool
	NurseActed     bool
	DetectiveActed bool
	Resolved       bool
}

// Room 是游戏房间的核心结构
//
// Every field is guarded by Mu. Methods documented with "Caller holds Mu"
// do not lock.
type Room struct {
	Code       string
	HostID     string
	Players    []*Player // join order, never reordered
	Night      NightState
	Machine    *state.BaseStateMachine
	States     map[models.Phase]state.State
	PrevPhase  models.Phase
	Winner     models.Winner
	Round      int
	DayDecided bool
	CreatedAt  time.Time
	StartedAt  time.Time
	EndedAt    time.Time
	LastActive time.Time
	Mu         sync.Mutex

	timers map[int64]struct{}
	closed bool
}

// NewRoom 创建一个新房间，host 为第一个玩家
func NewRoom(code string, host *Player, now time.Time) *Room {
	host.IsHost = true
	host.Role = models.RolePending
	host.IsAlive = true
	return &Room{
		Code:       code,
		HostID:     host.ID,
		Players:    []*Player{host},
		PrevPhase:  models.PhaseLobby,
		CreatedAt:  now,
		LastActive: now,
		timers:     make(map[int64]struct{}),
	}
}

// Phase returns the current phase; LOBBY until a machine is attached.
func (r *Room) Phase() models.Phase {
	if r.Machine == nil {
		return models.PhaseLobby
	}
	return r.Machine.Phase()
}

// FindPlayer looks a player up by stable id. Caller holds Mu.
func (r *Room) FindPlayer(id string) *Player {
	if id == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindPlayerByName matches the exact display name. Caller holds Mu.
func (r *Room) FindPlayerByName(name string) *Player {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Host returns the host player. Caller holds Mu.
func (r *Room) Host() *Player {
	return r.FindPlayer(r.HostID)
}

// IsHost verifies actorID against the authoritative roster. Caller holds Mu.
func (r *Room) IsHost(actorID string) bool {
	p := r.FindPlayer(actorID)
	return p != nil && p.IsHost && p.ID == r.HostID
}

// RemovePlayer deletes a player from the roster entirely. Caller holds Mu.
func (r *Room) RemovePlayer(id string) (*Player, bool) {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			if r.Night.MafiaTarget == id {
				r.Night.MafiaTarget = ""
			}
			if r.Night.NurseTarget == id {
				r.Night.NurseTarget = ""
			}
			return p, true
		}
	}
	return nil, false
}

// CountAlive returns the living MAFIA and non-MAFIA counts. Caller holds Mu.
func (r *Room) CountAlive() (mafia, others int) {
	for _, p := range r.Players {
		if !p.IsAlive {
			continue
		}
		if p.Role == models.RoleMafia {
			mafia++
		} else {
			others++
		}
	}
	return mafia, others
}

// AliveWithRole reports whether any living player holds role. Caller holds Mu.
func (r *Room) AliveWithRole(role models.Role) bool {
	for _, p := range r.Players {
		if p.IsAlive && p.Role == role {
			return true
		}
	}
	return false
}

// ConnectedCount returns how many players have a live connection. Caller holds Mu.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// ReleaseTransport detaches every seat other than keep that is still held by
// transportID. One connection speaks for at most one seat. Caller holds Mu.
func (r *Room) ReleaseTransport(transportID string, keep *Player) bool {
	if transportID == "" {
		return false
	}
	released := false
	for _, p := range r.Players {
		if p != keep && p.TransportID == transportID {
			p.TransportID = ""
			p.Connected = false
			released = true
		}
	}
	return released
}

// Touch records activity. Caller holds Mu.
func (r *Room) Touch(now time.Time) {
	r.LastActive = now
}

// Views renders the roster for one viewer. Roles are visible to their owner,
// among MAFIA members, and to everyone once revealAll is set.
func (r *Room) Views(viewerID string, revealAll bool) []models.PlayerView {
	viewer := r.FindPlayer(viewerID)
	viewerIsMafia := viewer != nil && viewer.Role == models.RoleMafia

	views := make([]models.PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		role := p.Role
		visible := revealAll || p.Role == models.RolePending || p.ID == viewerID ||
			(viewerIsMafia && p.Role == models.RoleMafia)
		if !visible {
			role = models.RoleUnknown
		}
		views = append(views, models.PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			IsHost:    p.IsHost,
			Role:      role,
			IsAlive:   p.IsAlive,
			Avatar:    p.Avatar,
			Connected: p.Connected,
		})
	}
	return views
}

// TrackTimer remembers a pending timer so it can be cancelled. Caller holds Mu.
func (r *Room) TrackTimer(id int64) {
	r.timers[id] = struct{}{}
}

// UntrackTimer forgets a timer that fired. Caller holds Mu.
func (r *Room) UntrackTimer(id int64) {
	delete(r.timers, id)
}

// TakeTimers returns and forgets every pending timer. Caller holds Mu.
func (r *Room) TakeTimers() []int64 {
	ids := make([]int64, 0, len(r.timers))
	for id := range r.timers {
		ids = append(ids, id)
	}
	r.timers = make(map[int64]struct{})
	return ids
}

// Close marks the room as reclaimed. Caller holds Mu.
func (r *Room) Close() {
	r.closed = true
}

// Closed reports whether the room was reclaimed. Caller holds Mu.
func (r *Room) Closed() bool {
	return r.closed
}
