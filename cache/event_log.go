package cache

import (
	"github.com/wfunc/mafiaserver/game"
)

// EventLog forwards every notification to Next and mirrors room-wide events
// into the publisher. Private sends (investigation results) are not logged,
// and per-viewer payloads are logged as a spectator would see them.
type EventLog struct {
	Next      game.Notifier
	Publisher *Publisher
}

var _ game.Notifier = (*EventLog)(nil)

func (l *EventLog) BroadcastToRoom(code, event string, payload any) {
	l.Next.BroadcastToRoom(code, event, payload)
	l.Publisher.Publish(code, event, payload)
}

func (l *EventLog) BroadcastEach(code, event string, render func(playerID string) any) {
	l.Next.BroadcastEach(code, event, render)
	l.Publisher.Publish(code, event, render(""))
}

func (l *EventLog) SendToPlayer(code, playerID, event string, payload any) {
	l.Next.SendToPlayer(code, playerID, event, payload)
}

func (l *EventLog) Evict(code, playerID, reason string) {
	l.Next.Evict(code, playerID, reason)
	l.Publisher.Publish(code, "player_ejected", map[string]string{"playerId": playerID, "reason": reason})
}
