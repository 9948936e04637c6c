package game

import (
	"fmt"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

// StartGame deals roles and starts the first night. Host only, LOBBY only.
func (e *Engine) StartGame(code, actorID string) error {
	r, err := e.lookup(code)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()

	if !r.IsHost(actorID) {
		return fmt.Errorf("%w: %q is not the host", ErrUnauthorized, actorID)
	}
	if r.Phase() != models.PhaseLobby {
		return ErrIgnored
	}
	if e.cfg.MinPlayers > 0 && len(r.Players) < e.cfg.MinPlayers {
		return fmt.Errorf("%w: need at least %d players", ErrTooFewPlayers, e.cfg.MinPlayers)
	}

	e.rngMu.Lock()
	AssignRoles(r.Players, e.rng)
	e.rngMu.Unlock()
	r.Winner = models.WinnerNone
	r.Round = 0
	r.StartedAt = e.now()

	logger.Log.Infow("game started", "room", r.Code, "players", len(r.Players))
	e.notify.BroadcastEach(r.Code, models.EventGameStarted, func(viewer string) any {
		return models.PlayersPayload{Players: r.Views(viewer, false)}
	})
	e.transition(r, models.PhaseNightSleep)
	return nil
}

// HostDayAction applies the host's verdict for the day. Only the first
// verdict of a day counts.
func (e *Engine) HostDayAction(code, actorID string, action models.DayAction, targetID string) error {
	r, err := e.lookup(code)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()

	if !r.IsHost(actorID) {
		return fmt.Errorf("%w: %q is not the host", ErrUnauthorized, actorID)
	}
	if r.Phase() != models.PhaseDayDiscussion || r.DayDecided {
		return ErrIgnored
	}

	switch action {
	case models.DaySkip:
		r.DayDecided = true
		logger.Log.Infow("day skipped", "room", r.Code, "round", r.Round)
		e.message(r, msgSkip)
		e.broadcastPlayers(r)
		e.transition(r, models.PhaseNightSleep)
		return nil

	case models.DayKick:
		target := r.FindPlayer(targetID)
		if target == nil || !target.IsAlive {
			return ErrIgnored
		}
		r.DayDecided = true
		target.IsAlive = false
		logger.Log.Infow("player voted out", "room", r.Code, "player", target.ID, "round", r.Round)
		e.message(r, fmt.Sprintf(msgKickTemplate, target.Name))
		e.broadcastPlayers(r)
		if e.checkWin(r) != models.WinnerNone {
			return nil
		}
		e.after(r, e.cfg.KickDelay, func() {
			e.transition(r, models.PhaseNightSleep)
		})
		return nil
	}
	return fmt.Errorf("%w: unknown day action %q", ErrInvalidInput, action)
}

// AdminKick ejects a player from the room entirely. Works in every phase.
func (e *Engine) AdminKick(code, actorID, targetID string) error {
	r, err := e.lookup(code)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()

	if !r.IsHost(actorID) {
		return fmt.Errorf("%w: %q is not the host", ErrUnauthorized, actorID)
	}
	if targetID == actorID {
		return fmt.Errorf("%w: the host cannot remove themself", ErrInvalidInput)
	}
	target, ok := r.RemovePlayer(targetID)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidInput, room.ErrPlayerNotFound)
	}

	logger.Log.Infow("player ejected", "room", r.Code, "player", target.ID, "phase", r.Phase())
	e.notify.Evict(r.Code, target.ID, "removed by host")
	e.message(r, fmt.Sprintf(msgEjectedTemplate, target.Name))
	e.broadcastPlayers(r)

	if r.Phase().InProgress() {
		if e.checkWin(r) == models.WinnerNone {
			e.skipIfAbsent(r)
		}
	}
	return nil
}
