package server

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/mafiaserver/auth"
	"github.com/wfunc/mafiaserver/broadcast"
	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/game"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/monitor"
	"github.com/wfunc/mafiaserver/network"
	"github.com/wfunc/mafiaserver/room"
	"github.com/wfunc/mafiaserver/session"
	"github.com/wfunc/mafiaserver/timer"
)

const waitFor = 3 * time.Second

func TestMain(m *testing.M) {
	logger.InitNop()
	m.Run()
}

func fastGame() config.GameConfig {
	const step = 20 * time.Millisecond
	return config.GameConfig{
		SleepDelay:            step,
		ActionDelay:           step,
		WakeDelay:             step,
		DiscussionDelay:       step,
		KickDelay:             step,
		AbsentRoleDelay:       step,
		MafiaVotePolicy:       game.VoteFirst,
		AllowNameRecovery:     true,
		RevealRolesOnGameOver: true,
	}
}

type testEnv struct {
	server *GameServer
	http   *httptest.Server
	wsURL  string
}

func newTestEnv(t *testing.T, tweak func(*config.ServerConfig)) *testEnv {
	t.Helper()

	cfg := config.Default().Server
	cfg.RateLimit = 0
	cfg.Heartbeat = 0
	cfg.PublicURL = "https://mafia.example"
	if tweak != nil {
		tweak(&cfg)
	}

	tm := timer.NewTimerManagerWithTick(5 * time.Millisecond)
	sessions := session.NewManager()
	engine := game.NewEngine(room.NewRoomManager(4), tm, broadcast.NewRoomBroadcaster(sessions), fastGame())
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	srv := NewGameServer(cfg, engine, sessions, issuer, monitor.NewMonitor("test"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		tm.Stop()
	})
	return &testEnv{
		server: srv,
		http:   ts,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	events chan *network.Envelope
	you    string
	token  string
	seen   []string
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL, nil)
	require.NoError(t, err)

	c := &testClient{t: t, conn: conn, events: make(chan *network.Envelope, 256)}
	go func() {
		defer close(c.events)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := network.Decode(data)
			if err != nil {
				continue
			}
			c.events <- env
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *testClient) send(event string, payload any) {
	c.t.Helper()
	frame, err := network.Encode(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

// expect skips frames until one matches event and accept.
func (c *testClient) expect(event string, accept func(*network.Envelope) bool) *network.Envelope {
	c.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case env, ok := <-c.events:
			require.True(c.t, ok, "connection closed while waiting for %s", event)
			c.seen = append(c.seen, env.Event)
			if env.Event == event && (accept == nil || accept(env)) {
				return env
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", event)
			return nil
		}
	}
}

func (c *testClient) expectPhase(phase models.Phase) {
	c.t.Helper()
	c.expect(models.EventPhaseChange, func(env *network.Envelope) bool {
		var p models.PhasePayload
		return env.Bind(&p) == nil && p.Phase == phase
	})
}

func (c *testClient) joined() models.RoomJoinedPayload {
	c.t.Helper()
	var p models.RoomJoinedPayload
	require.NoError(c.t, c.expect(models.EventRoomJoined, nil).Bind(&p))
	c.you, c.token = p.You, p.Token
	return p
}

func TestServer_FullGame(t *testing.T) {
	env := newTestEnv(t, nil)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	created := host.joined()
	require.Len(t, created.RoomID, 4)
	assert.Equal(t, models.PhaseLobby, created.Phase)
	assert.Equal(t, "host-id", created.You)
	assert.NotEmpty(t, created.Token)
	code := created.RoomID

	clients := []*testClient{host}
	for _, name := range []string{"Ann", "Bob", "Cat"} {
		c := env.dial(t)
		c.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: strings.ToLower(code), PlayerName: name, PlayerID: name + "-id"})
		p := c.joined()
		assert.Equal(t, code, p.RoomID)
		clients = append(clients, c)
	}

	host.send(models.EventStartGame, models.RoomRequest{RoomID: code})

	roles := make(map[models.Role]*testClient)
	for _, c := range clients {
		var p models.PlayersPayload
		require.NoError(t, c.expect(models.EventGameStarted, nil).Bind(&p))
		require.Len(t, p.Players, 4)
		for _, v := range p.Players {
			if v.ID == c.you {
				roles[v.Role] = c
				continue
			}
			assert.Equal(t, models.RoleUnknown, v.Role, "%s must not see %s's role", c.you, v.ID)
		}
	}
	require.Len(t, roles, 4)
	mafia, doctor, detective, citizen := roles[models.RoleMafia], roles[models.RoleDoctor], roles[models.RoleDetective], roles[models.RoleCitizen]

	mafia.expectPhase(models.PhaseNightMafia)
	mafia.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: citizen.you})

	doctor.expectPhase(models.PhaseNightNurse)
	doctor.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: doctor.you})

	detective.expectPhase(models.PhaseNightDetective)
	detective.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: mafia.you})
	var inv models.InvestigationPayload
	require.NoError(t, detective.expect(models.EventInvestigationResult, nil).Bind(&inv))
	assert.Equal(t, mafia.you, inv.TargetID)
	assert.True(t, inv.Result)

	var day models.DayResultPayload
	require.NoError(t, host.expect(models.EventDayResult, nil).Bind(&day))
	assert.Contains(t, day.Msg, "was killed during the night")
	for _, v := range day.Players {
		if v.ID == citizen.you {
			assert.False(t, v.IsAlive)
		}
	}

	host.expectPhase(models.PhaseDayDiscussion)
	host.send(models.EventHostActionDay, models.HostDayRequest{RoomID: code, Action: models.DayKick, TargetID: mafia.you})

	for _, c := range clients {
		var over models.GameOverPayload
		require.NoError(t, c.expect(models.EventGameOver, nil).Bind(&over))
		assert.Equal(t, models.WinnerCitizens, over.Winner)
	}
}

func TestServer_InvestigationIsPrivate(t *testing.T) {
	env := newTestEnv(t, nil)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	code := host.joined().RoomID
	clients := []*testClient{host}
	for _, name := range []string{"Ann", "Bob", "Cat"} {
		c := env.dial(t)
		c.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: code, PlayerName: name, PlayerID: name + "-id"})
		c.joined()
		clients = append(clients, c)
	}
	host.send(models.EventStartGame, models.RoomRequest{RoomID: code})

	roles := make(map[models.Role]*testClient)
	for _, c := range clients {
		var p models.PlayersPayload
		require.NoError(t, c.expect(models.EventGameStarted, nil).Bind(&p))
		for _, v := range p.Players {
			if v.ID == c.you {
				roles[v.Role] = c
			}
		}
	}
	mafia, doctor, detective := roles[models.RoleMafia], roles[models.RoleDoctor], roles[models.RoleDetective]

	mafia.expectPhase(models.PhaseNightMafia)
	mafia.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: doctor.you})
	doctor.expectPhase(models.PhaseNightNurse)
	doctor.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: doctor.you})
	detective.expectPhase(models.PhaseNightDetective)
	detective.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: code, TargetID: doctor.you})
	detective.expect(models.EventInvestigationResult, nil)

	// 其他人直到 day_result 都不应收到调查结果
	for _, c := range clients {
		c.expect(models.EventDayResult, nil)
		if c != detective {
			assert.NotContains(t, c.seen, models.EventInvestigationResult)
		}
	}
	assert.Contains(t, detective.seen, models.EventInvestigationResult)
}

func TestServer_JoinErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)

	c.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: "ZZZZ", PlayerName: "Ann", PlayerID: "ann"})
	var p models.ErrorPayload
	require.NoError(t, c.expect(models.EventError, nil).Bind(&p))
	assert.Equal(t, "Room not found.", p.Message)

	c.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "  ", PlayerID: "ann"})
	require.NoError(t, c.expect(models.EventError, nil).Bind(&p))
	assert.Equal(t, "Name and player id are required.", p.Message)
}

func TestServer_JoinAfterStartRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	code := host.joined().RoomID
	host.send(models.EventStartGame, models.RoomRequest{RoomID: code})
	host.expect(models.EventGameStarted, nil)

	late := env.dial(t)
	late.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: code, PlayerName: "Late", PlayerID: "late"})
	var p models.ErrorPayload
	require.NoError(t, late.expect(models.EventError, nil).Bind(&p))
	assert.Equal(t, "The game has already started.", p.Message)
}

func TestServer_ReconnectWithToken(t *testing.T) {
	env := newTestEnv(t, nil)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	first := host.joined()

	// 换了 playerId 也能凭令牌找回座位，旧连接会被踢下线
	again := env.dial(t)
	again.send(models.EventReconnectUser, models.JoinRoomRequest{
		RoomID:     first.RoomID,
		PlayerName: "Someone",
		PlayerID:   "lost-id",
		Token:      first.Token,
	})
	p := again.joined()
	assert.Equal(t, "lost-id", p.You, "the seat moves to the new stable id")
	require.Len(t, p.Players, 1)
	assert.True(t, p.Players[0].IsHost)

	host.expect(models.EventForceDisconnect, nil)

	// the displaced connection no longer speaks for the seat
	host.send(models.EventStartGame, models.RoomRequest{RoomID: first.RoomID})
	again.send(models.EventStartGame, models.RoomRequest{RoomID: first.RoomID})
	again.expect(models.EventGameStarted, nil)
}

func TestServer_UnboundActionsAreSilent(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)

	c.send(models.EventStartGame, models.RoomRequest{RoomID: "ABCD"})
	c.send(models.EventPlayerAction, models.PlayerActionRequest{RoomID: "ABCD", TargetID: "x"})
	c.send(models.EventHeartbeat, nil)
	c.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: "ZZZZ", PlayerName: "Ann", PlayerID: "ann"})

	// the join error is the only frame sent back
	var p models.ErrorPayload
	require.NoError(t, c.expect(models.EventError, nil).Bind(&p))
	assert.Equal(t, "Room not found.", p.Message)
	assert.Equal(t, []string{models.EventError}, c.seen)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])
}

func TestServer_QRCode(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/rooms/ABCD/qr.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	code := host.joined().RoomID

	resp, err = http.Get(env.http.URL + "/rooms/" + strings.ToLower(code) + "/qr.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, qrSize, img.Bounds().Dx())
}

func TestServer_OriginAllowList(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.ServerConfig) {
		cfg.AllowedOrigins = []string{"https://mafia.example"}
	})

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL, http.Header{"Origin": {"https://mafia.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestServer_DisconnectMarksSeatOffline(t *testing.T) {
	env := newTestEnv(t, nil)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	code := host.joined().RoomID

	guest := env.dial(t)
	guest.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: code, PlayerName: "Ann", PlayerID: "ann"})
	guest.joined()
	require.NoError(t, guest.conn.Close())

	host.expect(models.EventUpdatePlayers, func(env *network.Envelope) bool {
		var p models.PlayersPayload
		if env.Bind(&p) != nil {
			return false
		}
		for _, v := range p.Players {
			if v.ID == "ann" {
				return !v.Connected
			}
		}
		return false
	})

	r, ok := env.server.engine.Rooms().GetRoom(code)
	require.True(t, ok)
	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Len(t, r.Players, 2, "disconnecting never removes the seat")
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t, "Room not found.", friendlyMessage(game.ErrNotFound))
	assert.Equal(t, "Invalid input.", friendlyMessage(game.ErrInvalidInput))
	assert.Equal(t, "Something went wrong.", friendlyMessage(assert.AnError))
}

func TestServer_RateLimitDropsFrames(t *testing.T) {
	env := newTestEnv(t, func(c *config.ServerConfig) {
		c.RateLimit = 0.01
		c.RateBurst = 1
	})
	c := env.dial(t)

	for i := 0; i < 3; i++ {
		c.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: "ZZZZ", PlayerName: "Ann", PlayerID: "ann"})
	}
	c.expect(models.EventError, nil)

	dropped := env.server.monitor.Metrics().MessagesDropped
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(dropped) == 2
	}, waitFor, 10*time.Millisecond)

	select {
	case e, ok := <-c.events:
		if ok {
			t.Fatalf("dropped frame was answered with %s", e.Event)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_SwitchingSeatInRoomReleasesOldSeat(t *testing.T) {
	env := newTestEnv(t, nil)

	host := env.dial(t)
	host.send(models.EventCreateRoom, models.CreateRoomRequest{PlayerName: "Host", PlayerID: "host-id"})
	code := host.joined().RoomID

	ann := env.dial(t)
	ann.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: code, PlayerName: "Ann", PlayerID: "ann"})
	ann.joined()

	// 同一连接换一个身份重新加入同一房间
	ann.send(models.EventJoinRoom, models.JoinRoomRequest{RoomID: code, PlayerName: "Anna", PlayerID: "anna"})
	assert.Equal(t, "anna", ann.joined().You)

	host.expect(models.EventUpdatePlayers, func(e *network.Envelope) bool {
		var p models.PlayersPayload
		if e.Bind(&p) != nil || len(p.Players) != 3 {
			return false
		}
		for _, v := range p.Players {
			switch v.ID {
			case "ann":
				if v.Connected {
					return false
				}
			case "anna", "host-id":
				if !v.Connected {
					return false
				}
			}
		}
		return true
	})
}
