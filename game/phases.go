package game

import (
	"time"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
	"github.com/wfunc/mafiaserver/state"
)

// phaseCues 每个夜晚阶段对应的音效
var phaseCues = map[models.Phase]string{
	models.PhaseNightSleep:     models.CueEveryoneSleep,
	models.PhaseNightMafia:     models.CueMafiaWake,
	models.PhaseNightNurse:     models.CueNurseWake,
	models.PhaseNightDetective: models.CueDetectiveWake,
	models.PhaseDayWake:        models.CueEveryoneWake,
}

// CueFor returns the audio cue that accompanies entering p, if any.
func CueFor(p models.Phase) (string, bool) {
	cue, ok := phaseCues[p]
	return cue, ok
}

// attachMachine builds the per-room phase machine and its transition table.
func (e *Engine) attachMachine(r *room.Room) {
	enter := map[models.Phase]func(*room.Room){
		models.PhaseNightSleep:     e.enterNightSleep,
		models.PhaseNightMafia:     nil,
		models.PhaseNightNurse:     e.enterNightNurse,
		models.PhaseNightDetective: e.enterNightDetective,
		models.PhaseDayWake:        nil,
		models.PhaseDayDiscussion:  nil,
		models.PhaseGameOver:       e.enterGameOver,
	}

	states := make(map[models.Phase]state.State, len(enter)+1)
	states[models.PhaseLobby] = state.NewFuncState(models.PhaseLobby, nil, nil)
	for phase, fn := range enter {
		phase, fn := phase, fn
		states[phase] = state.NewFuncState(phase, func() {
			e.announce(r, phase)
			if fn != nil {
				fn(r)
			}
		}, nil)
	}

	m := state.NewBaseStateMachine(states[models.PhaseLobby])
	for _, t := range [][2]models.Phase{
		{models.PhaseLobby, models.PhaseNightSleep},
		{models.PhaseNightSleep, models.PhaseNightMafia},
		{models.PhaseNightMafia, models.PhaseNightNurse},
		{models.PhaseNightNurse, models.PhaseNightDetective},
		{models.PhaseNightDetective, models.PhaseDayWake},
		{models.PhaseDayWake, models.PhaseDayDiscussion},
		{models.PhaseDayDiscussion, models.PhaseNightSleep},
	} {
		_ = m.AddTransition(t[0], t[1], nil)
	}
	// 游戏进行中的任何阶段都可能结束
	for phase := range enter {
		if phase != models.PhaseGameOver {
			_ = m.AddTransition(phase, models.PhaseGameOver, nil)
		}
	}

	r.Machine = m
	r.States = states
}

// transition moves r to phase `to`, cancelling whatever the previous phase had
// scheduled. Caller holds r.Mu.
func (e *Engine) transition(r *room.Room, to models.Phase) bool {
	from := r.Phase()
	next, ok := r.States[to]
	if !ok {
		return false
	}
	if !r.Machine.CanTransition(to) {
		logger.Log.Debugw("transition rejected", "room", r.Code, "from", from, "to", to)
		return false
	}
	e.cancelTimers(r)
	if err := r.Machine.ChangeState(next); err != nil {
		logger.Log.Debugw("transition rejected", "room", r.Code, "from", from, "to", to, "error", err)
		return false
	}
	return true
}

// announce runs first in every OnEnter: phase_change, then the matching cue.
func (e *Engine) announce(r *room.Room, phase models.Phase) {
	logger.Log.Infow("phase changed", "room", r.Code, "phase", phase, "epoch", r.Machine.Epoch(), "round", r.Round)
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(r.Code, r.PrevPhase, phase)
	}
	r.PrevPhase = phase
	e.notify.BroadcastToRoom(r.Code, models.EventPhaseChange, models.PhasePayload{Phase: phase})
	if cue, ok := phaseCues[phase]; ok {
		e.cue(r, cue)
	}
}

// after schedules fn on r. fn runs under r.Mu and is dropped if the room moved
// to another phase (epoch changed) or was closed in the meantime. Caller holds r.Mu.
func (e *Engine) after(r *room.Room, d time.Duration, fn func()) {
	epoch := r.Machine.Epoch()
	phase := r.Phase()
	var id int64
	id = e.sched.AddTimer(d, 0, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		r.UntrackTimer(id)
		if r.Closed() || r.Machine.Epoch() != epoch {
			logger.Log.Debugw("stale timer dropped", "room", r.Code, "scheduled_in", phase, "now", r.Phase())
			return
		}
		fn()
	})
	r.TrackTimer(id)
}

func (e *Engine) cancelTimers(r *room.Room) {
	for _, id := range r.TakeTimers() {
		e.sched.RemoveTimer(id)
	}
}

// --- 阶段进入逻辑 ---

func (e *Engine) enterNightSleep(r *room.Room) {
	r.Night = room.NightState{}
	r.DayDecided = false
	r.Round++
	e.after(r, e.cfg.SleepDelay, func() {
		e.transition(r, models.PhaseNightMafia)
	})
}

func (e *Engine) enterNightNurse(r *room.Room) {
	e.skipIfAbsent(r)
}

func (e *Engine) enterNightDetective(r *room.Room) {
	e.skipIfAbsent(r)
}

// skipIfAbsent keeps the night moving when the role the current phase waits
// for has nobody alive to play it. Caller holds r.Mu.
func (e *Engine) skipIfAbsent(r *room.Room) {
	switch r.Phase() {
	case models.PhaseNightNurse:
		if !r.Night.NurseActed && !r.AliveWithRole(models.RoleDoctor) {
			e.after(r, e.cfg.AbsentRoleDelay, func() {
				e.transition(r, models.PhaseNightDetective)
			})
		}
	case models.PhaseNightDetective:
		if !r.Night.DetectiveActed && !r.AliveWithRole(models.RoleDetective) {
			e.after(r, e.cfg.AbsentRoleDelay, func() {
				e.resolveNight(r)
			})
		}
	}
}

func (e *Engine) enterGameOver(r *room.Room) {
	r.EndedAt = e.now()
	logger.Log.Infow("game over", "room", r.Code, "winner", r.Winner, "rounds", r.Round)
	e.notify.BroadcastToRoom(r.Code, models.EventGameOver, models.GameOverPayload{Winner: r.Winner})
	e.broadcastPlayers(r)
	if e.hooks.OnGameOver != nil {
		e.hooks.OnGameOver(BuildRecord(r))
	}
}
