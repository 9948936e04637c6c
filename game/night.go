package game

import (
	"fmt"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

const (
	msgSafeNight       = "The night was quiet. Nobody died."
	msgDiscussionSoon  = "Discussion starts in a few seconds."
	msgVictimTemplate  = "%s was killed during the night."
	msgKickTemplate    = "%s was voted out by the town."
	msgSkip            = "The host decided nobody leaves today."
	msgEjectedTemplate = "%s was removed from the room by the host."
)

// NightVictim returns the player id killed by this night's actions, or "".
func NightVictim(n room.NightState) string {
	if n.MafiaTarget == "" || n.MafiaTarget == n.NurseTarget {
		return ""
	}
	return n.MafiaTarget
}

// resolveNight applies the night's outcome and wakes the town. A second call
// in the same night is a no-op. Caller holds r.Mu.
func (e *Engine) resolveNight(r *room.Room) {
	if r.Night.Resolved {
		return
	}
	if !e.transition(r, models.PhaseDayWake) {
		return
	}
	r.Night.Resolved = true

	msg := msgSafeNight
	cue := models.CueKillFail
	if victim := r.FindPlayer(NightVictim(r.Night)); victim != nil && victim.IsAlive {
		victim.IsAlive = false
		msg = fmt.Sprintf(msgVictimTemplate, victim.Name)
		cue = models.CueKillSuccess
		logger.Log.Infow("night kill", "room", r.Code, "victim", victim.ID)
	}

	reveal := e.revealAll(r)
	e.notify.BroadcastEach(r.Code, models.EventDayResult, func(viewer string) any {
		return models.DayResultPayload{Msg: msg, Players: r.Views(viewer, reveal)}
	})
	e.message(r, msg)
	e.cue(r, cue)

	if e.checkWin(r) != models.WinnerNone {
		return
	}
	e.after(r, e.cfg.WakeDelay, func() {
		e.message(r, msgDiscussionSoon)
		e.after(r, e.cfg.DiscussionDelay, func() {
			e.transition(r, models.PhaseDayDiscussion)
		})
	})
}
