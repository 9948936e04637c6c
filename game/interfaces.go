package game

import (
	"time"

	"github.com/wfunc/mafiaserver/models"
)

// Scheduler runs delayed callbacks. timer.TimerManager satisfies it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64) bool
}

// Notifier 是状态机的输出端
//
// Every method is called with the room lock held and must not block.
type Notifier interface {
	BroadcastToRoom(code, event string, payload any)
	// BroadcastEach renders a separate payload for every player bound to the room.
	BroadcastEach(code, event string, render func(playerID string) any)
	SendToPlayer(code, playerID, event string, payload any)
	// Evict sends force_disconnect to the player's connection and unbinds it.
	Evict(code, playerID, reason string)
}

// Hooks observe the engine. Each hook runs under the room lock.
type Hooks struct {
	OnRoomCreated func(code string)
	OnRoomClosed  func(code string)
	OnTransition  func(code string, from, to models.Phase)
	OnGameOver    func(record models.GameRecord)
}
