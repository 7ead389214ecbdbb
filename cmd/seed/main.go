// Package main loads game session fixtures into the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/config"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/game/session"
	"github.com/cory-johannsen/tepache/internal/observability"
	"github.com/cory-johannsen/tepache/internal/seed"
	"github.com/cory-johannsen/tepache/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (empty = defaults + environment)")
	fixturePath := flag.String("fixture", "", "path to the YAML fixture (required)")
	flag.Parse()

	if *fixturePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		log.Fatalf("seeding requires store.driver postgres, got %q", cfg.Store.Driver)
	}

	logger, err := observability.NewLogger(cfg.Logging, "tepache-seed")
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	fixture, err := seed.LoadFile(*fixturePath)
	if err != nil {
		log.Fatalf("loading fixture: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	// Seeding happens before any server runs, so there is nobody to notify.
	store := pool.Store()
	games := session.NewGameSessionManager(store, change.Discard{}, logger)
	players := session.NewManager(store, games, session.NewNameCounter(cfg.Names.Max), change.Discard{},
		audit.NewWriter(store, nil, logger), cfg.Presence.StaleAfter, logger)

	res, err := seed.Apply(ctx, fixture, games, players)
	if err != nil {
		logger.Error("seeding stopped", zap.Int("games_created", len(res.Games)), zap.Error(err))
		os.Exit(1)
	}

	for _, g := range res.Games {
		fmt.Fprintf(os.Stdout, "%s %s\n", g.URN, g.Status)
	}
	fmt.Fprintf(os.Stdout, "seeded %d games, %d players [%s]\n", len(res.Games), len(res.Players), time.Since(start))
}
