package game

import (
	"math/rand"

	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

// MafiaCount 根据人数决定黑手党数量
func MafiaCount(n int) int {
	if n >= 8 {
		return 2
	}
	return 1
}

// RoleQuota returns the role multiset for n players before shuffling.
// For tiny rooms the list [MAFIA.., DOCTOR, DETECTIVE] is cut to n first,
// so DETECTIVE and then DOCTOR are the ones dropped.
func RoleQuota(n int) []models.Role {
	if n <= 0 {
		return nil
	}
	quota := make([]models.Role, 0, n+3)
	for i := 0; i < MafiaCount(n); i++ {
		quota = append(quota, models.RoleMafia)
	}
	quota = append(quota, models.RoleDoctor, models.RoleDetective)
	if len(quota) > n {
		quota = quota[:n]
	}
	for len(quota) < n {
		quota = append(quota, models.RoleCitizen)
	}
	return quota
}

// AssignRoles shuffles the quota (Fisher-Yates) and deals it to players in
// join order, resetting per-game state.
func AssignRoles(players []*room.Player, rng *rand.Rand) {
	quota := RoleQuota(len(players))
	for i := len(quota) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		quota[i], quota[j] = quota[j], quota[i]
	}
	for i, p := range players {
		p.Role = quota[i]
		p.IsAlive = true
		p.SelfHealUsed = false
	}
}
