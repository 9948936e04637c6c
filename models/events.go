package models

// Client -> server events.
const (
	EventCreateRoom      = "create_room"
	EventJoinRoom        = "join_room"
	EventReconnectUser   = "reconnect_user"
	EventStartGame       = "start_game"
	EventPlayerAction    = "player_action"
	EventHostActionDay   = "host_action_day"
	EventAdminKickPlayer = "admin_kick_player"
	EventHeartbeat       = "heartbeat"
)

// Server -> client events.
const (
	EventRoomJoined          = "room_joined"
	EventUpdatePlayers       = "update_players"
	EventError               = "error"
	EventGameStarted         = "game_started"
	EventInvestigationResult = "investigation_result"
	EventGameMessage         = "game_message"
	EventForceDisconnect     = "force_disconnect"
	EventPhaseChange         = "phase_change"
	EventPlayAudio           = "play_audio"
	EventDayResult           = "day_result"
	EventGameOver            = "game_over"
)

// CreateRoomRequest create_room
type CreateRoomRequest struct {
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
}

// JoinRoomRequest join_room / reconnect_user
type JoinRoomRequest struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
	Token      string `json:"token,omitempty"`
}

// RoomRequest start_game
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// PlayerActionRequest player_action
type PlayerActionRequest struct {
	RoomID   string `json:"roomId"`
	Action   string `json:"action,omitempty"`
	TargetID string `json:"targetId"`
}

// HostDayRequest host_action_day
type HostDayRequest struct {
	RoomID   string    `json:"roomId"`
	Action   DayAction `json:"action"`
	TargetID string    `json:"targetId,omitempty"`
}

// AdminKickRequest admin_kick_player
type AdminKickRequest struct {
	RoomID   string `json:"roomId"`
	TargetID string `json:"targetId"`
}

type RoomJoinedPayload struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerView `json:"players"`
	Phase   Phase        `json:"phase"`
	You     string       `json:"you"`
	Token   string       `json:"token,omitempty"`
}

type PlayersPayload struct {
	Players []PlayerView `json:"players"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PhasePayload struct {
	Phase Phase `json:"phase"`
}

type AudioPayload struct {
	CueKey string `json:"cueKey"`
}

type MessagePayload struct {
	Text string `json:"text"`
}

type DayResultPayload struct {
	Msg     string       `json:"msg"`
	Players []PlayerView `json:"players"`
}

type InvestigationPayload struct {
	TargetID string `json:"targetId"`
	Result   bool   `json:"result"`
}

type GameOverPayload struct {
	Winner Winner `json:"winner"`
}

type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}
