package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/wfunc/mafiaserver/auth"
	"github.com/wfunc/mafiaserver/broadcast"
	"github.com/wfunc/mafiaserver/cache"
	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/game"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/monitor"
	"github.com/wfunc/mafiaserver/persistence"
	"github.com/wfunc/mafiaserver/room"
	"github.com/wfunc/mafiaserver/rpc"
	"github.com/wfunc/mafiaserver/server"
	"github.com/wfunc/mafiaserver/services"
	"github.com/wfunc/mafiaserver/session"
	"github.com/wfunc/mafiaserver/timer"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	mon := monitor.NewMonitor("mafia")
	timers := timer.NewTimerManager()

	rooms := room.NewRoomManager(cfg.Rooms.CodeLength)
	sessions := session.NewManager()

	broadcaster := broadcast.NewRoomBroadcaster(sessions)
	broadcaster.Observe = mon.AddMessagesSent
	var notifier game.Notifier = broadcaster

	// Optional redis event log
	var publisher *cache.Publisher
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(cfg.Redis)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		publisher = cache.NewPublisher(rdb, cfg.Redis.Queue)
		defer publisher.Close()
		notifier = &cache.EventLog{Next: broadcaster, Publisher: publisher}
		logger.Log.Infof("Publishing room events to redis list %q", cfg.Redis.Queue)
	}

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	if db != nil {
		logger.Log.Infow("Database connection successful.", "driver", cfg.Database.Driver)
	}
	records := services.NewRecordService(db)

	hooks := game.Hooks{
		OnRoomCreated: func(code string) {
			mon.SetActiveRooms(rooms.Count())
		},
		OnRoomClosed: func(code string) {
			mon.SetActiveRooms(rooms.Count())
			if publisher != nil {
				publisher.Forget(code)
			}
		},
		OnTransition: func(code string, from, to models.Phase) {
			mon.ObservePhase(to)
		},
		OnGameOver: func(record models.GameRecord) {
			mon.ObserveGameOver(record.Winner)
			records.Record(record)
		},
	}
	engine := game.NewEngine(rooms, timers, notifier, cfg.Game, game.WithHooks(hooks))

	// 定期回收结束或无人的房间
	if cfg.Rooms.ReapInterval > 0 {
		timers.AddTimer(cfg.Rooms.ReapInterval, cfg.Rooms.ReapInterval, func() {
			removed := rooms.Reap(time.Now(), cfg.Rooms.IdleTTL, cfg.Rooms.FinishedTTL)
			if len(removed) > 0 {
				logger.Log.Infow("reaped rooms", "rooms", removed)
			}
			mon.SetActiveRooms(rooms.Count())
		})
	}

	issuer, err := auth.NewIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Log.Fatalf("Failed to create token issuer: %v", err)
	}

	// Admin RPC and health endpoints
	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		rpcServer, err = rpc.NewServer(cfg.Server.RPCAddress, rpc.NewAdminService(rooms, records))
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		go rpcServer.Start()
	}
	var grpcServer *rpc.GRPCServer
	if cfg.Server.GRPCAddress != "" {
		grpcServer, err = rpc.NewGRPCServer(cfg.Server.GRPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to create gRPC server: %v", err)
		}
		go grpcServer.Start()
	}
	if cfg.Server.MetricsAddress != "" {
		metricsServer := mon.StartServer(cfg.Server.MetricsAddress)
		defer metricsServer.Close()
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg.Server, engine, sessions, issuer, mon)
	errChan := make(chan error, 1)
	go func() {
		errChan <- gameServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down", sig)
	case err := <-errChan:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Warnf("Game server shutdown: %v", err)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if rpcServer != nil {
		rpcServer.Stop()
	}

	// 先停掉定时器，不再有对局结束，再等待记录落库
	timers.Stop()
	if err := records.Close(); err != nil {
		logger.Log.Warnf("Closing game records: %v", err)
	}
	logger.Log.Info("Server stopped.")
}
