package main

import (
	"context"
	"flag"
	"time"

	"github.com/TannerHolle/budget/internal/config"
	"github.com/TannerHolle/budget/internal/infra/postgres"
	"github.com/TannerHolle/budget/internal/logger"
)

// Applies the embedded schema migrations and exits. The API server runs the
// same migrations at startup; this exists for deploy pipelines that migrate
// before rolling the new binary.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	log := logger.New("info", true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migrations applied")
}
