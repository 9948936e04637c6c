package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/wfunc/mafiaserver/auth"
	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/game"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/monitor"
	"github.com/wfunc/mafiaserver/network"
	"github.com/wfunc/mafiaserver/room"
	"github.com/wfunc/mafiaserver/session"
)

const qrSize = 256

// GameServer 负责 websocket 接入、事件分发以及少量 HTTP 端点
type GameServer struct {
	cfg            config.ServerConfig
	engine         *game.Engine
	sessionManager *session.Manager
	issuer         *auth.Issuer
	monitor        *monitor.Monitor
	upgrader       websocket.Upgrader
	httpServer     *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(cfg config.ServerConfig, engine *game.Engine, sessions *session.Manager, issuer *auth.Issuer, mon *monitor.Monitor) *GameServer {
	if mon == nil {
		mon = monitor.NewMonitor("mafia")
	}
	s := &GameServer{
		cfg:            cfg,
		engine:         engine,
		sessionManager: sessions,
		issuer:         issuer,
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP routes served by the game server.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /rooms/{code}/qr.png", s.handleQR)
	return mux
}

// Start blocks serving HTTP until Shutdown is called.
func (s *GameServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every live session.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, sess := range s.sessionManager.All() {
		_ = sess.Close()
	}
	return err
}

// 空白名单表示允许所有来源；没有 Origin 头的非浏览器客户端也放行
func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	logger.Log.Warnw("rejected websocket origin", "origin", origin)
	return false
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"rooms":    s.engine.Rooms().Count(),
		"sessions": s.sessionManager.Count(),
		"uptime":   s.monitor.Uptime().Round(time.Second).String(),
	})
}

// handleQR renders a PNG pointing players at the client with the room prefilled.
func (s *GameServer) handleQR(w http.ResponseWriter, r *http.Request) {
	code := room.NormalizeCode(r.PathValue("code"))
	if _, ok := s.engine.Rooms().GetRoom(code); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/?room=" + url.QueryEscape(code)
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		logger.Log.Errorw("qr generation failed", "room", code, "error", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.cfg.ReadLimit)
	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infow("connection opened", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())

	defer func() {
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr().String(), "session", sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		if code, pid := sess.Binding(); code != "" {
			s.engine.Disconnect(code, pid, sess.GetID())
		}
		_ = wsConn.Close()
	}()

	limiter := newLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		env, err := wsConn.ReadEnvelope()
		if errors.Is(err, network.ErrMalformedFrame) {
			logger.Log.Debugw("dropping malformed frame", "session", sess.GetID(), "error", err)
			continue
		}
		if err != nil {
			return
		}
		if limiter != nil && !limiter.Allow() {
			logger.Log.Debugw("rate limited", "session", sess.GetID(), "event", env.Event)
			s.monitor.IncRateLimited()
			continue
		}
		sess.Touch()
		s.monitor.IncMessagesReceived(metricLabel(env.Event))

		start := time.Now()
		s.dispatch(sess, env)
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

var knownEvents = map[string]bool{
	models.EventCreateRoom:      true,
	models.EventJoinRoom:        true,
	models.EventReconnectUser:   true,
	models.EventStartGame:       true,
	models.EventPlayerAction:    true,
	models.EventHostActionDay:   true,
	models.EventAdminKickPlayer: true,
	models.EventHeartbeat:       true,
}

func metricLabel(event string) string {
	if knownEvents[event] {
		return event
	}
	return "unknown"
}

// dispatch 单条消息的处理，panic 只影响这一条消息
func (s *GameServer) dispatch(sess *session.Session, env *network.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorw("panic while handling event", "session", sess.GetID(), "event", env.Event, "panic", rec)
		}
	}()

	var err error
	switch env.Event {
	case models.EventHeartbeat:
		return
	case models.EventCreateRoom:
		err = s.handleCreateRoom(sess, env)
	case models.EventJoinRoom, models.EventReconnectUser:
		err = s.handleJoinRoom(sess, env)
	case models.EventStartGame:
		err = s.handleStartGame(sess, env)
	case models.EventPlayerAction:
		err = s.handlePlayerAction(sess, env)
	case models.EventHostActionDay:
		err = s.handleHostDay(sess, env)
	case models.EventAdminKickPlayer:
		err = s.handleAdminKick(sess, env)
	default:
		logger.Log.Debugw("unknown event", "session", sess.GetID(), "event", env.Event)
		return
	}
	s.reply(sess, env.Event, err)
}

func (s *GameServer) reply(sess *session.Session, event string, err error) {
	if err == nil || game.IsSilent(err) {
		return
	}
	logger.Log.Infow("event rejected", "session", sess.GetID(), "event", event, "error", err)
	_ = sess.Send(models.EventError, models.ErrorPayload{Message: friendlyMessage(err)})
}

// friendlyMessage 面向玩家的错误文案
func friendlyMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return "Room not found."
	case errors.Is(err, game.ErrGameAlreadyStarted):
		return "The game has already started."
	case errors.Is(err, game.ErrSelfHealExhausted):
		return "You have already healed yourself once this game."
	case errors.Is(err, game.ErrTooFewPlayers):
		return "Not enough players to start the game."
	case errors.Is(err, game.ErrInvalidInput):
		if msg := strings.TrimPrefix(err.Error(), game.ErrInvalidInput.Error()+": "); msg != "" {
			return strings.ToUpper(msg[:1]) + msg[1:] + "."
		}
		return "Invalid request."
	case errors.Is(err, room.ErrCodeSpaceExhausted):
		return "No free room codes right now, try again shortly."
	default:
		return "Something went wrong."
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, env *network.Envelope) error {
	var req models.CreateRoomRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	s.leaveCurrent(sess, "")
	_, err := s.engine.CreateRoom(req.PlayerName, req.PlayerID, sess.GetID(), s.binder(sess))
	return err
}

func (s *GameServer) handleJoinRoom(sess *session.Session, env *network.Envelope) error {
	var req models.JoinRoomRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	code := room.NormalizeCode(req.RoomID)
	if code == "" {
		return game.ErrNotFound
	}

	id := room.Identity{
		StableID:    req.PlayerID,
		Name:        req.PlayerName,
		TransportID: sess.GetID(),
	}
	if req.Token != "" {
		pid, err := s.issuer.Verify(req.Token, code)
		if err != nil {
			logger.Log.Debugw("ignoring seat token", "room", code, "session", sess.GetID(), "error", err)
		} else {
			id.TokenPlayerID = pid
		}
	}

	s.leaveCurrent(sess, code)
	_, err := s.engine.Join(code, id, s.binder(sess))
	return err
}

// leaveCurrent marks the session's previous seat offline before it moves to
// another room. A seat switch inside the same room is released by the engine.
func (s *GameServer) leaveCurrent(sess *session.Session, nextCode string) {
	code, pid := sess.Binding()
	if code == "" || code == nextCode {
		return
	}
	s.engine.Disconnect(code, pid, sess.GetID())
	sess.Unbind()
}

// binder seats the session, evicts older connections for the same seat, and
// answers with room_joined. It runs under the room lock.
func (s *GameServer) binder(sess *session.Session) game.BindFunc {
	return func(res game.JoinResult) {
		displaced := s.sessionManager.Bind(sess, res.Code, res.You.ID)
		if res.PreviousID != "" {
			// 座位换了 id，旧 id 上的连接同样让位
			for _, old := range s.sessionManager.GetByPlayer(res.Code, res.PreviousID) {
				old.Unbind()
				displaced = append(displaced, old)
			}
		}
		for _, old := range displaced {
			_ = old.Send(models.EventForceDisconnect, models.ForceDisconnectPayload{
				Reason: "You joined from another connection.",
			})
		}

		token, err := s.issuer.Issue(res.Code, res.You.ID, time.Now())
		if err != nil {
			logger.Log.Errorw("issue seat token failed", "room", res.Code, "player", res.You.ID, "error", err)
		}
		_ = sess.Send(models.EventRoomJoined, models.RoomJoinedPayload{
			RoomID:  res.Code,
			Players: res.Players,
			Phase:   res.Phase,
			You:     res.You.ID,
			Token:   token,
		})
	}
}

// actor returns the seat this session speaks for in roomID. A request for a
// room the session is not seated in is unauthorized.
func actor(sess *session.Session, roomID string) (code, playerID string, err error) {
	code, playerID = sess.Binding()
	if code == "" || (roomID != "" && room.NormalizeCode(roomID) != code) {
		return "", "", game.ErrUnauthorized
	}
	return code, playerID, nil
}

func (s *GameServer) handleStartGame(sess *session.Session, env *network.Envelope) error {
	var req models.RoomRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	code, pid, err := actor(sess, req.RoomID)
	if err != nil {
		return err
	}
	return s.engine.StartGame(code, pid)
}

func (s *GameServer) handlePlayerAction(sess *session.Session, env *network.Envelope) error {
	var req models.PlayerActionRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	code, pid, err := actor(sess, req.RoomID)
	if err != nil {
		return err
	}
	return s.engine.SubmitAction(code, pid, req.TargetID)
}

func (s *GameServer) handleHostDay(sess *session.Session, env *network.Envelope) error {
	var req models.HostDayRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	code, pid, err := actor(sess, req.RoomID)
	if err != nil {
		return err
	}
	return s.engine.HostDayAction(code, pid, req.Action, req.TargetID)
}

func (s *GameServer) handleAdminKick(sess *session.Session, env *network.Envelope) error {
	var req models.AdminKickRequest
	if err := env.Bind(&req); err != nil {
		return game.ErrInvalidInput
	}
	code, pid, err := actor(sess, req.RoomID)
	if err != nil {
		return err
	}
	return s.engine.AdminKick(code, pid, req.TargetID)
}
