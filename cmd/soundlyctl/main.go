// soundlyctl runs exchange ledger and feed maintenance against the configured database.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/services"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	db, err := models.InitDB(cfg)
	if err != nil {
		logger.Fatal("failed to initialize database", "err", err)
	}
	if err := models.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", "err", err)
	}

	ledger := matching.NewLedger(db)
	users := services.NewUserService(db, cfg)
	audit := services.NewAuditService(db, logger)
	admin := services.NewAdminService(db, cfg, ledger, audit, users, logger)
	admin.AttachActivityService(services.NewActivityService(db, logger))

	runner := NewRunner(RunnerOpts{
		Admin:        admin,
		Logger:       logger,
		DefaultAdmin: cfg.AdminUsername,
	})

	app := &cli.Command{
		Name:     "soundlyctl",
		Usage:    "Maintain the song exchange ledger",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("command failed", "err", err)
	}
}
