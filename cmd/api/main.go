package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/handlers"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/services"
	"github.com/soundly/backend/internal/spotify"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.New()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	db, err := models.InitDB(cfg)
	if err != nil {
		logger.Fatal("failed to initialize database", "err", err)
	}
	if err := models.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", "err", err)
	}

	redisClient := models.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := matching.ParseMode(cfg.MatchDefaultMode)
	if err != nil {
		logger.Fatal("invalid MATCH_DEFAULT_MODE", "err", err)
	}
	if !cfg.SpotifyEnabled() {
		logger.Warn("spotify credentials missing, uploads need explicit title and artist")
	}

	// Initialize services
	engine := matching.NewEngine(db, matching.WithLogger(logger.WithPrefix("matching")))
	ledger := matching.NewLedger(db)
	resolver := spotify.NewResolver(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret, logger.WithPrefix("spotify"))

	authService := services.NewAuthService(db, redisClient, cfg, logger)
	userService := services.NewUserService(db, cfg)
	activityService := services.NewActivityService(db, logger)
	notificationService := services.NewNotificationService(db, redisClient, logger)
	songService := services.NewSongService(db, resolver, engine, activityService, notificationService, mode, logger)
	exchangeService := services.NewExchangeService(db, ledger)
	auditService := services.NewAuditService(db, logger)
	adminService := services.NewAdminService(db, cfg, ledger, auditService, userService, logger)
	adminService.AttachActivityService(activityService)

	if err := adminService.CreateDefaultAdmin(ctx); err != nil {
		logger.Error("failed to create default admin", "err", err)
	}

	if violations, err := adminService.CheckConsistency(ctx); err != nil {
		logger.Error("startup consistency check failed", "err", err)
	} else if len(violations) > 0 {
		logger.Warn("run `soundlyctl exchanges dedup` to repair the exchange ledger", "violations", len(violations))
	}

	// Periodic cleanup of expired refresh tokens
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := authService.CleanupExpiredTokens(ctx)
				if err != nil {
					logger.Error("refresh token cleanup failed", "err", err)
				} else if n > 0 {
					logger.Info("expired refresh tokens removed", "count", n)
				}
			}
		}
	}()

	router := handlers.NewRouter(cfg, redisClient, handlers.Services{
		Auth:          authService,
		Users:         userService,
		Songs:         songService,
		Exchanges:     exchangeService,
		Activities:    activityService,
		Notifications: notificationService,
		Admin:         adminService,
		Audit:         auditService,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env, "match_mode", mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "err", err)
	}

	logger.Info("server exited")
}
