package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"learnhub/internal/appinfo"
	"learnhub/internal/cache"
	"learnhub/internal/config"
	"learnhub/internal/database"
	"learnhub/internal/events"
	"learnhub/internal/models"
	"learnhub/internal/repositories"
	"learnhub/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, cleanup, err := newCommandLine(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize progression engine", zap.Error(err))
		os.Exit(1)
	}
	err = cli.run(ctx, os.Args)
	cleanup()
	if err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error("Command failed", zap.Error(err))
		}
		os.Exit(1)
	}
}

// newCommandLine wires the store, locker, event bus and services selected
// by cfg. The returned cleanup releases all of them.
func newCommandLine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*commandLine, func(), error) {
	var (
		store   repositories.Store
		manager *database.Manager
		err     error
	)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		manager, err = database.Connect(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err = repositories.NewPostgresStore(manager, logger)
		if err != nil {
			manager.Close()
			return nil, nil, err
		}
	default:
		store = repositories.NewMemoryStore(logger)
	}

	locker, err := cache.NewLocker(cache.ConfigFrom(cfg.Redis, cfg.Progression), logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	bus := events.NewEventBus(nil, logger)
	if err := bus.Subscribe(events.EventTypeBadgeAwarded, events.NewTypedEventHandler("badge-log", func(ctx context.Context, e *events.BadgeAwardedEvent) error {
		logger.Info("Badge awarded",
			zap.String("user_id", e.GetUserID()),
			zap.String("badge_id", e.Badge.ID),
			zap.Int64("xp_reward", e.XPReward),
		)
		return nil
	})); err != nil {
		locker.Close()
		store.Close()
		return nil, nil, err
	}

	progression := services.NewProgressionService(store, locker, bus, models.DefaultBadgeCatalog(), &cfg.Progression, logger)
	activity, err := services.NewActivityService(progression, &cfg.Progression, logger)
	if err != nil {
		locker.Close()
		store.Close()
		return nil, nil, err
	}

	loc, err := cfg.Progression.Location()
	if err != nil {
		locker.Close()
		store.Close()
		return nil, nil, err
	}

	cli := &commandLine{
		progression: progression,
		activity:    activity,
		out:         os.Stdout,
		location:    loc,
		info:        appinfo.Current(cfg.App.Name, cfg.App.Environment),
	}
	if manager != nil {
		cli.migrateFunc = func(ctx context.Context) (uint, error) {
			return database.RunMigrations(ctx, manager, cfg.Database.MigrationsPath, logger)
		}
	}

	cleanup := func() {
		if err := locker.Close(); err != nil {
			logger.Warn("Failed to close locker", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	return cli, cleanup, nil
}
