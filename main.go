// Package main is the entry point for the campus navigator Telegram bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/yelinaung/navigator-bot/internal/bot"
	"gitlab.com/yelinaung/navigator-bot/internal/config"
	"gitlab.com/yelinaung/navigator-bot/internal/database"
	"gitlab.com/yelinaung/navigator-bot/internal/gemini"
	"gitlab.com/yelinaung/navigator-bot/internal/i18n"
	"gitlab.com/yelinaung/navigator-bot/internal/locations"
	"gitlab.com/yelinaung/navigator-bot/internal/logger"
	"gitlab.com/yelinaung/navigator-bot/internal/points"
	"gitlab.com/yelinaung/navigator-bot/internal/repository"
	"gitlab.com/yelinaung/navigator-bot/internal/state"
	"gitlab.com/yelinaung/navigator-bot/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("navigator-bot %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.SetLevel(cfg.LogLevel)
	logger.SetFormat(cfg.LogFormat)
	logger.InitHashSalt()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Exporter:    cfg.TelemetryExporter,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to set up telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create metrics")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if err := database.SeedLocations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to seed locations")
	}

	stored, err := repository.NewLocationRepository(pool).GetAll(ctx)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load locations")
	}
	if missing := locations.MissingFrom(stored); len(missing) > 0 {
		logger.Log.Warn().Strs("locations", missing).Msg("Catalog locations missing from database")
	}

	logger.Log.Info().Int("locations", len(stored)).Msg("Database initialized successfully")

	userRepo := repository.NewUserRepository(pool)
	pointRepo := repository.NewPointRepository(pool)
	requestRepo := repository.NewLocationRequestRepository(pool)
	states := state.NewManager(repository.NewStateRepository(pool), cfg.StateTTL)

	translator, err := i18n.New(cfg.DefaultLanguage)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load translations")
	}

	app, err := bot.New(cfg, bot.WithUserRegistrar(userRepo), bot.WithMetrics(metrics))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create bot")
	}

	deps := bot.NavigatorDeps{
		Config:     cfg,
		Translator: translator,
		States:     states,
		Points:     points.NewCachedLister(pointRepo, cfg.PointsCacheTTL),
		PointByID:  pointRepo,
		Requests:   requestRepo,
		Users:      userRepo,
	}

	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, telemetry.HTTPClient())
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Gemini unavailable, location suggestions disabled")
		} else {
			deps.Suggester = client
			logger.Log.Info().Msg("Location suggestions enabled")
		}
	}

	bot.NewNavigator(app, deps).Register()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gctx)
	})
	g.Go(func() error {
		states.RunJanitor(gctx, cfg.StateTTL/2)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error().Err(err).Msg("Bot stopped with error")
		return
	}
	logger.Log.Info().Msg("Shutting down...")
}
