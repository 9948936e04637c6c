package game

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	m.Run()
}

// manualScheduler is a virtual clock. Callbacks only run from Advance.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	next  int64
	tasks map[int64]*manualTask
}

type manualTask struct {
	id int64
	at time.Duration
	fn func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[int64]*manualTask)}
}

func (s *manualScheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.tasks[s.next] = &manualTask{id: s.next, at: s.now + delay, fn: callback}
	return s.next
}

func (s *manualScheduler) RemoveTimer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	return ok
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance runs every task due within d, earliest first.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var due []*manualTask
		for _, t := range s.tasks {
			if t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].id < due[j].id
			}
			return due[i].at < due[j].at
		})
		t := due[0]
		delete(s.tasks, t.id)
		s.now = t.at
		s.mu.Unlock()
		t.fn()
	}
}

type sentEvent struct {
	Kind    string // room, each, player, evict
	Code    string
	Player  string
	Event   string
	Payload any
}

// recordingNotifier keeps every outgoing event. Per-viewer payloads are
// rendered for a spectator ("").
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) add(ev sentEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) BroadcastToRoom(code, event string, payload any) {
	n.add(sentEvent{Kind: "room", Code: code, Event: event, Payload: payload})
}

func (n *recordingNotifier) BroadcastEach(code, event string, render func(playerID string) any) {
	n.add(sentEvent{Kind: "each", Code: code, Event: event, Payload: render("")})
}

func (n *recordingNotifier) SendToPlayer(code, playerID, event string, payload any) {
	n.add(sentEvent{Kind: "player", Code: code, Player: playerID, Event: event, Payload: payload})
}

func (n *recordingNotifier) Evict(code, playerID, reason string) {
	n.add(sentEvent{Kind: "evict", Code: code, Player: playerID, Event: models.EventForceDisconnect, Payload: reason})
}

func (n *recordingNotifier) all() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentEvent, len(n.events))
	copy(out, n.events)
	return out
}

func (n *recordingNotifier) named(event string) []sentEvent {
	var out []sentEvent
	for _, ev := range n.all() {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) phases() []models.Phase {
	var out []models.Phase
	for _, ev := range n.named(models.EventPhaseChange) {
		out = append(out, ev.Payload.(models.PhasePayload).Phase)
	}
	return out
}

func (n *recordingNotifier) messages() []string {
	var out []string
	for _, ev := range n.named(models.EventGameMessage) {
		out = append(out, ev.Payload.(models.MessagePayload).Text)
	}
	return out
}

type harness struct {
	t        *testing.T
	engine   *Engine
	sched    *manualScheduler
	note     *recordingNotifier
	cfg      config.GameConfig
	code     string
	records  []models.GameRecord
	recordMu sync.Mutex
}

// newHarness creates a room whose host is "host" and adds players p1..p(n-1).
func newHarness(t *testing.T, n int, tweak ...func(*config.GameConfig)) *harness {
	t.Helper()
	cfg := config.Default().Game
	for _, fn := range tweak {
		fn(&cfg)
	}
	h := &harness{t: t, sched: newManualScheduler(), note: &recordingNotifier{}, cfg: cfg}
	h.engine = NewEngine(room.NewRoomManager(4), h.sched, h.note, cfg,
		WithRand(rand.New(rand.NewSource(7))),
		WithHooks(Hooks{OnGameOver: func(rec models.GameRecord) {
			h.recordMu.Lock()
			h.records = append(h.records, rec)
			h.recordMu.Unlock()
		}}),
	)

	res, err := h.engine.CreateRoom("Host", "host", "t-host", nil)
	require.NoError(t, err)
	h.code = res.Code
	for i := 1; i < n; i++ {
		id := "p" + string(rune('0'+i))
		_, err := h.engine.Join(h.code, room.Identity{StableID: id, Name: "P" + string(rune('0'+i)), TransportID: "t-" + id}, nil)
		require.NoError(t, err)
	}
	return h
}

func (h *harness) room() *room.Room {
	r, ok := h.engine.Rooms().GetRoom(h.code)
	require.True(h.t, ok)
	return r
}

func (h *harness) phase() models.Phase {
	r := h.room()
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.Phase()
}

func (h *harness) withRole(role models.Role) []*room.Player {
	r := h.room()
	r.Mu.Lock()
	defer r.Mu.Unlock()
	var out []*room.Player
	for _, p := range r.Players {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

func (h *harness) one(role models.Role) *room.Player {
	ps := h.withRole(role)
	require.Len(h.t, ps, 1, "expected exactly one %s", role)
	return ps[0]
}

func (h *harness) start() {
	require.NoError(h.t, h.engine.StartGame(h.code, "host"))
}

// toMafiaPhase starts the game and lets the sleep cue play out.
func (h *harness) toMafiaPhase() {
	h.start()
	h.sched.Advance(h.cfg.SleepDelay)
	require.Equal(h.t, models.PhaseNightMafia, h.phase())
}

// playNight runs mafia, doctor and detective actions and waits for the day.
func (h *harness) playNight(kill, heal, inspect string) {
	require.Equal(h.t, models.PhaseNightMafia, h.phase())
	require.NoError(h.t, h.engine.SubmitAction(h.code, h.withRole(models.RoleMafia)[0].ID, kill))
	h.sched.Advance(h.cfg.ActionDelay)
	require.Equal(h.t, models.PhaseNightNurse, h.phase())
	require.NoError(h.t, h.engine.SubmitAction(h.code, h.one(models.RoleDoctor).ID, heal))
	h.sched.Advance(h.cfg.ActionDelay)
	require.Equal(h.t, models.PhaseNightDetective, h.phase())
	require.NoError(h.t, h.engine.SubmitAction(h.code, h.one(models.RoleDetective).ID, inspect))
	h.sched.Advance(h.cfg.ActionDelay)
}

// setRoles overrides the dealt roles so scenarios are deterministic.
func (h *harness) setRoles(roles map[string]models.Role) {
	r := h.room()
	r.Mu.Lock()
	defer r.Mu.Unlock()
	for _, p := range r.Players {
		if role, ok := roles[p.ID]; ok {
			p.Role = role
		}
	}
}

func (h *harness) player(id string) room.Player {
	r := h.room()
	r.Mu.Lock()
	defer r.Mu.Unlock()
	p := r.FindPlayer(id)
	require.NotNil(h.t, p, "player %s", id)
	return *p
}

// fourPlayerRoles: host is a plain citizen.
var fourPlayerRoles = map[string]models.Role{
	"host": models.RoleCitizen,
	"p1":   models.RoleMafia,
	"p2":   models.RoleDoctor,
	"p3":   models.RoleDetective,
}
