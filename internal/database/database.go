package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"learnhub/internal/config"
)

// Connect creates the manager and, when configured, runs migrations.
// Both steps are retried with exponential backoff while the database
// comes up.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Manager, error) {
	logger.Info("Connecting to progression database",
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	var manager *Manager
	connect := func() error {
		m, err := NewManager(ctx, cfg, logger)
		if err != nil {
			return err
		}
		manager = m
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying",
			zap.Error(err),
			zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(connect, startupBackoff(ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	if cfg.MigrateOnStart {
		if _, err := RunMigrations(ctx, manager, cfg.MigrationsPath, logger); err != nil {
			manager.Close()
			return nil, err
		}
	}

	return manager, nil
}

// RunMigrations applies pending migrations, retrying transient failures.
// A dirty database is not retried.
func RunMigrations(ctx context.Context, manager *Manager, path string, logger *zap.Logger) (uint, error) {
	migrationsPath := determineMigrationsPath(path)

	var version uint
	attempt := 0
	op := func() error {
		attempt++
		logger.Info("Running database migrations",
			zap.String("path", migrationsPath),
			zap.Int("attempt", attempt))
		v, err := manager.Migrate(migrationsPath)
		if err != nil {
			if errors.Is(err, ErrDirtyMigration) {
				return backoff.Permanent(err)
			}
			return err
		}
		version = v
		return nil
	}

	b := backoff.WithMaxRetries(startupBackoff(ctx), 3)
	if err := backoff.Retry(op, b); err != nil {
		return 0, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return version, nil
}

func startupBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// determineMigrationsPath resolves the configured path, falling back to
// the migrations directory next to the executable.
func determineMigrationsPath(configPath string) string {
	if configPath == "" {
		configPath = "migrations"
	}
	if _, err := os.Stat(configPath); err == nil {
		if abs, err := filepath.Abs(configPath); err == nil {
			return abs
		}
		return configPath
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "migrations")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return configPath
}
