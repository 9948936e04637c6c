// models/models.go
package models

import (
	"time"
)

// Role 玩家身份
type Role string

const (
	RolePending   Role = "PENDING"
	RoleMafia     Role = "MAFIA"
	RoleDoctor    Role = "DOCTOR"
	RoleDetective Role = "DETECTIVE"
	RoleCitizen   Role = "CITIZEN"
	// RoleUnknown masks a role the viewer is not allowed to see.
	RoleUnknown Role = "UNKNOWN"
)

// Phase 房间所处的游戏阶段
type Phase string

const (
	PhaseLobby          Phase = "LOBBY"
	PhaseNightSleep     Phase = "NIGHT_SLEEP"
	PhaseNightMafia     Phase = "NIGHT_MAFIA"
	PhaseNightNurse     Phase = "NIGHT_NURSE"
	PhaseNightDetective Phase = "NIGHT_DETECTIVE"
	PhaseDayWake        Phase = "DAY_WAKE"
	PhaseDayDiscussion  Phase = "DAY_DISCUSSION"
	PhaseGameOver       Phase = "GAME_OVER"
)

func (p Phase) String() string {
	return string(p)
}

// IsNight reports whether p belongs to the night cycle.
func (p Phase) IsNight() bool {
	switch p {
	case PhaseNightSleep, PhaseNightMafia, PhaseNightNurse, PhaseNightDetective:
		return true
	}
	return false
}

// InProgress is true between start_game and GAME_OVER.
func (p Phase) InProgress() bool {
	return p != PhaseLobby && p != PhaseGameOver && p != ""
}

// Winner 胜利阵营
type Winner string

const (
	WinnerNone     Winner = ""
	WinnerMafia    Winner = "MAFIA"
	WinnerCitizens Winner = "CITIZENS"
)

// DayAction 白天房主的裁决
type DayAction string

const (
	DaySkip DayAction = "SKIP"
	DayKick DayAction = "KICK"
)

// Audio cue keys. Each accompanies exactly one transition or outcome.
const (
	CueEveryoneSleep = "everyone_sleep"
	CueMafiaWake     = "mafia_wake"
	CueNurseWake     = "nurse_wake"
	CueDetectiveWake = "detective_wake"
	CueEveryoneWake  = "everyone_wake"
	CueKillSuccess   = "kill_success"
	CueKillFail      = "kill_fail"
)

// Avatars 玩家头像
var Avatars = []string{"👨", "👩", "🕵️", "🤠", "🧙", "🧛", "🤖", "👽", "🤡", "👹", "👮", "👑"}

// PlayerView 下发给客户端的玩家信息
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Role      Role   `json:"role"`
	IsAlive   bool   `json:"isAlive"`
	Avatar    string `json:"avatar"`
	Connected bool   `json:"connected"`
}

// GameRecord 对局记录
type GameRecord struct {
	ID        string             `json:"id"`
	RoomCode  string             `json:"room_code"`
	Winner    Winner             `json:"winner"`
	Rounds    int                `json:"rounds"`
	Players   []GameRecordPlayer `json:"players"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
}

// GameRecordPlayer 对局记录中的玩家
type GameRecordPlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	IsAlive bool   `json:"is_alive"`
	IsHost  bool   `json:"is_host"`
}

// RecordStats 对局统计
type RecordStats struct {
	TotalGames   int `json:"total_games"`
	MafiaWins    int `json:"mafia_wins"`
	CitizensWins int `json:"citizens_wins"`
}
