package game

import (
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

// EvaluateWin applies the faction count rule to the living players.
func EvaluateWin(players []*room.Player) models.Winner {
	var mafia, others int
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		if p.Role == models.RoleMafia {
			mafia++
		} else {
			others++
		}
	}
	switch {
	case mafia == 0:
		return models.WinnerCitizens
	case mafia >= others:
		return models.WinnerMafia
	}
	return models.WinnerNone
}

// checkWin ends the game when a faction has won. Caller holds r.Mu.
func (e *Engine) checkWin(r *room.Room) models.Winner {
	if !r.Phase().InProgress() {
		return r.Winner
	}
	w := EvaluateWin(r.Players)
	if w == models.WinnerNone {
		return w
	}
	r.Winner = w
	e.transition(r, models.PhaseGameOver)
	return w
}
