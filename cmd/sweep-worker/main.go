package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carebridge/scheduling/internal/config"
	"github.com/carebridge/scheduling/internal/db"
	"github.com/carebridge/scheduling/internal/logging"
	"github.com/carebridge/scheduling/internal/slot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("sweep-worker", "dev")
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("sweep-worker", cfg.Env)
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	holds := slot.NewHoldManager(slot.NewPgRepository(pgPool), cfg.HoldTTL)

	// Blocks until shutdown; runs one sweep immediately, then ticks.
	holds.Run(rootCtx, cfg.SweepInterval)

	log.Info().Msg("sweep-worker stopped")
}
