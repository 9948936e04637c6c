package game

import (
	"fmt"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

// requiredRole 每个夜晚阶段允许行动的身份
var requiredRole = map[models.Phase]models.Role{
	models.PhaseNightMafia:     models.RoleMafia,
	models.PhaseNightNurse:     models.RoleDoctor,
	models.PhaseNightDetective: models.RoleDetective,
}

// SubmitAction records the acting player's night action. Anything that does
// not match the (phase, role) table is ignored without telling the client.
func (e *Engine) SubmitAction(code, actorID, targetID string) error {
	r, err := e.lookup(code)
	if err != nil {
		return err
	}
	defer r.Mu.Unlock()

	phase := r.Phase()
	actor := r.FindPlayer(actorID)
	if actor == nil || !actor.IsAlive {
		return fmt.Errorf("%w: actor %q cannot act", ErrUnauthorized, actorID)
	}
	role, ok := requiredRole[phase]
	if !ok || actor.Role != role {
		return fmt.Errorf("%w: %s cannot act during %s", ErrUnauthorized, actor.Role, phase)
	}
	target := r.FindPlayer(targetID)
	if target == nil || !target.IsAlive {
		logger.Log.Debugw("action on invalid target ignored", "room", r.Code, "actor", actorID, "target", targetID)
		return ErrIgnored
	}

	switch phase {
	case models.PhaseNightMafia:
		return e.mafiaAction(r, target)
	case models.PhaseNightNurse:
		return e.nurseAction(r, actor, target)
	default:
		return e.detectiveAction(r, actor, target)
	}
}

func (e *Engine) mafiaAction(r *room.Room, target *room.Player) error {
	if r.Night.MafiaActed {
		if e.cfg.MafiaVotePolicy == VoteLatest {
			r.Night.MafiaTarget = target.ID
			return nil
		}
		return ErrIgnored
	}
	r.Night.MafiaActed = true
	r.Night.MafiaTarget = target.ID
	logger.Log.Debugw("mafia chose target", "room", r.Code, "target", target.ID)
	e.after(r, e.cfg.ActionDelay, func() {
		e.transition(r, models.PhaseNightNurse)
	})
	return nil
}

func (e *Engine) nurseAction(r *room.Room, doctor, target *room.Player) error {
	if r.Night.NurseActed {
		return ErrIgnored
	}
	if target.ID == doctor.ID {
		if doctor.SelfHealUsed {
			return ErrSelfHealExhausted
		}
		doctor.SelfHealUsed = true
	}
	r.Night.NurseActed = true
	r.Night.NurseTarget = target.ID
	e.after(r, e.cfg.ActionDelay, func() {
		e.transition(r, models.PhaseNightDetective)
	})
	return nil
}

func (e *Engine) detectiveAction(r *room.Room, detective, target *room.Player) error {
	if r.Night.DetectiveActed {
		return ErrIgnored
	}
	r.Night.DetectiveActed = true
	e.notify.SendToPlayer(r.Code, detective.ID, models.EventInvestigationResult, models.InvestigationPayload{
		TargetID: target.ID,
		Result:   target.Role == models.RoleMafia,
	})
	e.after(r, e.cfg.ActionDelay, func() {
		e.resolveNight(r)
	})
	return nil
}
