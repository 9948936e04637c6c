package room

import (
	"strings"

	"github.com/wfunc/mafiaserver/models"
)

// Resolution 描述玩家是如何被识别的
type Resolution int

const (
	ResolvedNew Resolution = iota
	ResolvedByToken
	ResolvedByStableID
	ResolvedByName
)

func (r Resolution) String() string {
	switch r {
	case ResolvedByToken:
		return "token"
	case ResolvedByStableID:
		return "stable_id"
	case ResolvedByName:
		return "name"
	default:
		return "new"
	}
}

// Identity carries everything a join or reconnect knows about the caller.
type Identity struct {
	StableID    string
	Name        string
	TransportID string
	// TokenPlayerID is the stable id proven by a verified seat token, if any.
	TokenPlayerID string
}

// ResolveOrCreatePlayer binds a connection to a seat. Lookup order is token,
// stable id, then display name when allowNameRecovery is set. A brand new
// player is only admitted while the room is in LOBBY. Caller holds Mu.
func (r *Room) ResolveOrCreatePlayer(id Identity, allowNameRecovery bool, avatar string) (*Player, Resolution, error) {
	name := strings.TrimSpace(id.Name)

	if p := r.FindPlayer(id.TokenPlayerID); p != nil {
		if id.StableID != "" && id.StableID != p.ID && r.FindPlayer(id.StableID) == nil {
			r.rebind(p, id.StableID)
		}
		r.attach(p, id.TransportID, name)
		return p, ResolvedByToken, nil
	}

	if p := r.FindPlayer(id.StableID); p != nil {
		r.attach(p, id.TransportID, name)
		return p, ResolvedByStableID, nil
	}

	if allowNameRecovery {
		if p := r.FindPlayerByName(name); p != nil {
			if id.StableID != "" {
				r.rebind(p, id.StableID)
			}
			r.attach(p, id.TransportID, "")
			return p, ResolvedByName, nil
		}
	}

	if r.Phase() != models.PhaseLobby {
		return nil, ResolvedNew, ErrGameAlreadyStarted
	}
	if name == "" {
		return nil, ResolvedNew, ErrMissingName
	}
	// 令牌没能对上座位时，新座位必须有自己的 id
	if id.StableID == "" {
		return nil, ResolvedNew, ErrMissingID
	}

	p := &Player{
		ID:          id.StableID,
		TransportID: id.TransportID,
		Name:        name,
		Role:        models.RolePending,
		IsAlive:     true,
		Avatar:      avatar,
		Connected:   true,
	}
	r.Players = append(r.Players, p)
	return p, ResolvedNew, nil
}

func (r *Room) attach(p *Player, transportID, name string) {
	p.TransportID = transportID
	p.Connected = true
	if name != "" && r.Phase() == models.PhaseLobby {
		if other := r.FindPlayerByName(name); other == nil || other == p {
			p.Name = name
		}
	}
}

// rebind moves a seat to a new stable id, keeping every reference in sync.
func (r *Room) rebind(p *Player, newID string) {
	old := p.ID
	p.ID = newID
	if r.HostID == old {
		r.HostID = newID
	}
	if r.Night.MafiaTarget == old {
		r.Night.MafiaTarget = newID
	}
	if r.Night.NurseTarget == old {
		r.Night.NurseTarget = newID
	}
}

// Detach marks the player owning transportID as disconnected. The seat stays.
// Caller holds Mu.
func (r *Room) Detach(playerID, transportID string) bool {
	p := r.FindPlayer(playerID)
	if p == nil || p.TransportID != transportID {
		return false
	}
	p.Connected = false
	return true
}
