// Package main runs the tepache session orchestration server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/config"
	"github.com/cory-johannsen/tepache/internal/game/capture"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/game/facade"
	"github.com/cory-johannsen/tepache/internal/game/session"
	"github.com/cory-johannsen/tepache/internal/identity"
	"github.com/cory-johannsen/tepache/internal/observability"
	"github.com/cory-johannsen/tepache/internal/pubsub"
	"github.com/cory-johannsen/tepache/internal/server"
	"github.com/cory-johannsen/tepache/internal/storage/memory"
	"github.com/cory-johannsen/tepache/internal/storage/postgres"
	"github.com/cory-johannsen/tepache/internal/transport/health"
	"github.com/cory-johannsen/tepache/internal/transport/httpapi"
)

// store is everything the session components persist.
type store interface {
	session.GameSessionStore
	session.PlayerSessionStore
	capture.Store
	audit.Store
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tepache: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (empty = defaults + environment)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "tepache")
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	lifecycle := server.NewLifecycle(logger)

	st, closeStore, err := openStore(ctx, cfg, logger, lifecycle)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, err := openBroker(ctx, cfg.Broker)
	if err != nil {
		return err
	}
	defer func() { _ = broker.Close() }()

	var producer audit.Producer
	if kp := audit.NewKafkaProducer(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic); kp != nil {
		producer = kp
		defer func() { _ = kp.Close() }()
		logger.Info("mirroring log entries to kafka", zap.String("topic", cfg.Events.KafkaTopic))
	}

	senders, err := capture.NewSenderIdentity(cfg.SMS.IdentityKey)
	if err != nil {
		return fmt.Errorf("configuring sms identity: %w", err)
	}

	notifier := change.NewPublisher(broker)
	logs := audit.NewWriter(st, producer, logger)
	games := session.NewGameSessionManager(st, notifier, logger)
	players := session.NewManager(st, games, session.NewNameCounter(cfg.Names.Max), notifier, logs, cfg.Presence.StaleAfter, logger)
	pipeline := capture.NewPipeline(st, games, players, senders, notifier, logs, logger)
	coord := facade.NewCoordinator(broker, logs, cfg.Facade.BufferSize, logger)

	// A panic anywhere below must not leak the coordinator's subscriptions.
	defer func() {
		if p := recover(); p != nil {
			logger.Error("unhandled panic, unsubscribing", zap.Any("panic", p))
			coord.Unsubscribe()
			_ = logger.Sync()
			os.Exit(1)
		}
	}()

	if err := coord.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribing to changes: %w", err)
	}

	var resolver identity.Resolver = identity.HeaderResolver{}
	if cfg.Auth.JWTSecret != "" {
		resolver = identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	} else {
		logger.Warn("auth.jwt_secret is empty, trusting the " + identity.HeaderUID + " header")
	}

	api := httpapi.NewServer(cfg.HTTP, cfg.Facade.WriteTimeout, httpapi.Deps{
		Games:    games,
		Players:  players,
		Captures: pipeline,
		Hub:      coord,
		Resolver: resolver,
		Logger:   logger,
	})
	healthSrv := health.NewServer(cfg.Health.Addr(), coord, logger)

	lifecycle.Add("facade", coord)
	lifecycle.Add("health", healthSrv)
	lifecycle.Add("http", api)

	logger.Info("tepache initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("health_addr", cfg.Health.Addr()),
		zap.String("store", cfg.Store.Driver),
		zap.String("broker", cfg.Broker.Driver),
	)

	if err := lifecycle.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// openStore connects the configured store. The postgres pool also gets a
// periodic health probe registered with lifecycle.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, lifecycle *server.Lifecycle) (store, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using the in-memory store; data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	stop := make(chan struct{})
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() { close(stop) },
	})
	return pool.Store(), pool.Close, nil
}

func openBroker(ctx context.Context, cfg config.BrokerConfig) (pubsub.Broker, error) {
	if cfg.Driver == "memory" {
		return pubsub.NewMemoryBroker(0), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return pubsub.NewRedisBroker(client, cfg.ChannelPrefix, 0), nil
}
