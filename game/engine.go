package game

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

const (
	VoteFirst  = config.VotePolicyFirst
	VoteLatest = config.VotePolicyLatest
)

// Engine 驱动所有房间的游戏流程
//
// The engine itself is stateless apart from its collaborators; all game state
// lives on room.Room and is mutated under room.Mu.
type Engine struct {
	rooms  *room.Manager
	sched  Scheduler
	notify Notifier
	cfg    config.GameConfig
	hooks  Hooks
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Engine)

// WithRand fixes the source used for role shuffles and avatars.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

func NewEngine(rooms *room.Manager, sched Scheduler, notify Notifier, cfg config.GameConfig, opts ...Option) *Engine {
	e := &Engine{
		rooms:  rooms,
		sched:  sched,
		notify: notify,
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	rooms.OnRemove = e.release
	return e
}

// Rooms exposes the registry the engine operates on.
func (e *Engine) Rooms() *room.Manager {
	return e.rooms
}

// JoinResult is what a connection learns about its seat after create/join.
type JoinResult struct {
	Code       string
	Phase      models.Phase
	You        models.PlayerView
	Players    []models.PlayerView
	Resolution room.Resolution
	// PreviousID is the seat's stable id before this join moved it, if it did.
	PreviousID string
}

// BindFunc attaches the caller's connection to the resolved seat. It runs under
// the room lock, before the roster broadcast.
type BindFunc func(JoinResult)

// CreateRoom registers a new room with the caller as host.
func (e *Engine) CreateRoom(name, stableID, transportID string, bind BindFunc) (JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" || stableID == "" {
		return JoinResult{}, fmt.Errorf("%w: name and player id are required", ErrInvalidInput)
	}

	now := e.now()
	r, err := e.rooms.CreateRoom(func(code string) *room.Room {
		host := &room.Player{
			ID:          stableID,
			TransportID: transportID,
			Name:        name,
			Avatar:      e.pickAvatar(),
			Connected:   true,
		}
		r := room.NewRoom(code, host, now)
		e.attachMachine(r)
		return r
	})
	if err != nil {
		return JoinResult{}, err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	logger.Log.Infow("room created", "room", r.Code, "host", stableID)
	if e.hooks.OnRoomCreated != nil {
		e.hooks.OnRoomCreated(r.Code)
	}
	res := e.joinResult(r, r.Host(), room.ResolvedNew)
	if bind != nil {
		bind(res)
	}
	e.broadcastPlayers(r)
	return res, nil
}

// Join resolves the caller to a seat in an existing room, creating one while
// the room is still in LOBBY.
func (e *Engine) Join(code string, id room.Identity, bind BindFunc) (JoinResult, error) {
	if id.StableID == "" && id.TokenPlayerID == "" {
		return JoinResult{}, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	r, ok := e.rooms.GetRoom(code)
	if !ok {
		return JoinResult{}, ErrNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.Closed() {
		return JoinResult{}, ErrNotFound
	}

	before := make(map[*room.Player]string, len(r.Players))
	for _, p := range r.Players {
		before[p] = p.ID
	}
	p, how, err := r.ResolveOrCreatePlayer(id, e.cfg.AllowNameRecovery, e.pickAvatar())
	switch {
	case err == room.ErrMissingName, err == room.ErrMissingID:
		return JoinResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		return JoinResult{}, err
	}
	if r.ReleaseTransport(id.TransportID, p) {
		logger.Log.Infow("connection moved to another seat", "room", r.Code, "player", p.ID)
	}
	r.Touch(e.now())

	logger.Log.Infow("player joined", "room", r.Code, "player", p.ID, "via", how.String(), "phase", r.Phase())
	res := e.joinResult(r, p, how)
	if prev, ok := before[p]; ok && prev != p.ID {
		res.PreviousID = prev
	}
	if bind != nil {
		bind(res)
	}
	e.broadcastPlayers(r)
	return res, nil
}

// Disconnect flags a seat as offline. The seat itself is kept.
func (e *Engine) Disconnect(code, playerID, transportID string) {
	r, ok := e.rooms.GetRoom(code)
	if !ok {
		return
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Closed() || !r.Detach(playerID, transportID) {
		return
	}
	r.Touch(e.now())
	logger.Log.Infow("player disconnected", "room", r.Code, "player", playerID)
	e.broadcastPlayers(r)
}

func (e *Engine) joinResult(r *room.Room, p *room.Player, how room.Resolution) JoinResult {
	reveal := e.revealAll(r)
	res := JoinResult{
		Code:       r.Code,
		Phase:      r.Phase(),
		Players:    r.Views(p.ID, reveal),
		Resolution: how,
	}
	for _, v := range res.Players {
		if v.ID == p.ID {
			res.You = v
		}
	}
	return res
}

func (e *Engine) revealAll(r *room.Room) bool {
	return e.cfg.RevealRolesOnGameOver && r.Phase() == models.PhaseGameOver
}

func (e *Engine) broadcastPlayers(r *room.Room) {
	reveal := e.revealAll(r)
	e.notify.BroadcastEach(r.Code, models.EventUpdatePlayers, func(viewer string) any {
		return models.PlayersPayload{Players: r.Views(viewer, reveal)}
	})
}

func (e *Engine) message(r *room.Room, text string) {
	e.notify.BroadcastToRoom(r.Code, models.EventGameMessage, models.MessagePayload{Text: text})
}

func (e *Engine) cue(r *room.Room, key string) {
	e.notify.BroadcastToRoom(r.Code, models.EventPlayAudio, models.AudioPayload{CueKey: key})
}

func (e *Engine) pickAvatar() string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return models.Avatars[e.rng.Intn(len(models.Avatars))]
}

// lookup fetches a live room and locks it. The caller must unlock.
func (e *Engine) lookup(code string) (*room.Room, error) {
	r, ok := e.rooms.GetRoom(code)
	if !ok {
		return nil, ErrNotFound
	}
	r.Mu.Lock()
	if r.Closed() {
		r.Mu.Unlock()
		return nil, ErrNotFound
	}
	r.Touch(e.now())
	return r, nil
}

// release cancels everything a reaped room still has scheduled.
func (e *Engine) release(r *room.Room) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	e.cancelTimers(r)
	logger.Log.Infow("room closed", "room", r.Code)
	if e.hooks.OnRoomClosed != nil {
		e.hooks.OnRoomClosed(r.Code)
	}
}
