package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/soccerserver/broadcast"
	"github.com/wfunc/soccerserver/config"
	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/monitor"
	"github.com/wfunc/soccerserver/network"
	"github.com/wfunc/soccerserver/persistence"
	"github.com/wfunc/soccerserver/room"
	"github.com/wfunc/soccerserver/rpc"
	"github.com/wfunc/soccerserver/scheduler"
	"github.com/wfunc/soccerserver/server"
	"github.com/wfunc/soccerserver/services"
	"github.com/wfunc/soccerserver/session"
)

const (
	mirrorQueueSize = 1024
	mirrorTimeout   = 3 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize Database
	db, err := openDatabase(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infof("Database (%s) connection successful.", cfg.Database.Driver)

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	mon := monitor.NewMonitor(metrics)
	mon.StartServer(cfg.Server.MetricsAddress)

	mirror, closeMirror := openMirror(cfg, db, metrics)

	codec, err := network.CodecByName(cfg.Server.StateCodec)
	if err != nil {
		logger.Log.Fatalf("Invalid state codec: %v", err)
	}

	sessions := session.NewManager()
	publishers := broadcast.Multi{broadcast.NewRoomBroadcaster(sessions, codec)}
	if cfg.NATS.Enabled {
		nats, err := broadcast.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nats.Close()
		publishers = append(publishers, nats)
	}

	registry := room.NewRegistry(cfg.GameSettings())
	playerService := services.NewPlayerService(db)
	authService := services.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost)

	sched := scheduler.New(registry, publishers, metrics, scheduler.Options{
		TickInterval:   cfg.TickInterval(),
		BroadcastEvery: cfg.Game.BroadcastEvery,
		IdleTimeout:    cfg.Game.IdleRoomTimeout,
		MirrorInterval: cfg.Game.MirrorInterval,
	})
	sched.SetMirror(mirror)
	sched.SetRecorder(playerService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched.Start(ctx)

	// RPC
	rpcServer := rpc.NewServer(cfg.Server.RPCAddress)
	if err := rpcServer.Register(rpc.DirectoryServiceName, rpc.NewDirectoryService(registry, playerService)); err != nil {
		logger.Log.Fatalf("Failed to register RPC service: %v", err)
	}
	if err := rpcServer.Listen(); err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()

	health := rpc.NewHealthServer()
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	go func() {
		if err := health.Serve(grpcLis); err != nil {
			logger.Log.Errorf("gRPC health server: %v", err)
		}
	}()

	// Initialize Game Server
	gameServer := server.NewGameServer(server.Options{
		Addr:          cfg.Server.HTTPAddress,
		PublicURL:     cfg.Server.PublicURL,
		Heartbeat:     cfg.Server.Heartbeat,
		SendQueueSize: cfg.Server.SendQueueSize,
	}, registry, sessions, sched)
	gameServer.SetMirror(mirror)
	gameServer.SetAuth(authService)
	gameServer.SetPlayerService(playerService)
	gameServer.SetMetrics(metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()
	health.SetServing(true)

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Game server shutdown: %v", err)
	}
	sched.Stop()
	rpcServer.Stop()
	health.Stop()
	closeMirror(shutdownCtx)
	if err := mon.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Metrics server shutdown: %v", err)
	}
	logger.Log.Info("Game server stopped")
}

func openDatabase(cfg *config.Config) (persistence.Database, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return persistence.NewMemoryStore(), nil
	case "sqlite":
		return persistence.NewSQLStore(persistence.DialectSQLite, cfg.Database.SQLite.Path)
	case "postgres":
		return persistence.NewSQLStore(persistence.DialectPostgres, cfg.PostgresDSN())
	case "gorm":
		return persistence.NewGormPostgreSQL(cfg.PostgresDSN())
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openMirror puts the database, and redis when enabled, behind one asynchronous queue.
func openMirror(cfg *config.Config, db persistence.Database, metrics *monitor.Metrics) (persistence.Mirror, func(context.Context)) {
	targets := persistence.MultiMirror{db}
	var redisMirror *persistence.RedisMirror
	if cfg.Redis.Enabled {
		var err error
		redisMirror, err = persistence.NewRedisMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Log.Warnf("Redis mirror disabled: %v", err)
		} else {
			targets = append(targets, redisMirror)
		}
	}

	async := persistence.NewAsyncMirror(targets, mirrorQueueSize, mirrorTimeout)
	async.OnDrop = func(name string) {
		metrics.MirrorDropped.Inc()
		logger.Log.Debugf("mirror queue full, dropped %s", name)
	}
	return async, func(ctx context.Context) {
		if err := async.Close(ctx); err != nil {
			logger.Log.Warnf("Mirror flush: %v", err)
		}
		if redisMirror != nil {
			redisMirror.Close()
		}
	}
}
