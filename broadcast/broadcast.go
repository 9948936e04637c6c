// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/session"
)

// 基于房间的广播器
//
// RoomBroadcaster satisfies game.Notifier. Sends are non-blocking, so it is
// safe to call with a room lock held.
type RoomBroadcaster struct {
	sessionManager *session.Manager

	// Observe, when set, is told about every delivered event.
	Observe func(event string, recipients int)
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(code, event string, payload any) {
	sessions := b.sessionManager.GetByRoom(code)
	b.deliver(sessions, event, func(*session.Session) any { return payload })
}

func (b *RoomBroadcaster) BroadcastEach(code, event string, render func(playerID string) any) {
	sessions := b.sessionManager.GetByRoom(code)
	b.deliver(sessions, event, func(s *session.Session) any {
		_, pid := s.Binding()
		return render(pid)
	})
}

func (b *RoomBroadcaster) SendToPlayer(code, playerID, event string, payload any) {
	sessions := b.sessionManager.GetByPlayer(code, playerID)
	b.deliver(sessions, event, func(*session.Session) any { return payload })
}

// Evict tells the player's connections they were removed, then unbinds them.
// The connections stay open so the client can show the reason.
func (b *RoomBroadcaster) Evict(code, playerID, reason string) {
	sessions := b.sessionManager.GetByPlayer(code, playerID)
	b.deliver(sessions, models.EventForceDisconnect, func(*session.Session) any {
		return models.ForceDisconnectPayload{Reason: reason}
	})
	for _, s := range sessions {
		s.Unbind()
	}
}

func (b *RoomBroadcaster) deliver(sessions []*session.Session, event string, payload func(*session.Session) any) {
	delivered := 0
	for _, s := range sessions {
		if err := s.Send(event, payload(s)); err != nil {
			// 发送失败的连接由读循环负责清理
			logger.Log.Debugw("send failed", "session", s.ID, "event", event, "error", err)
			continue
		}
		delivered++
	}
	if b.Observe != nil {
		b.Observe(event, delivered)
	}
}
