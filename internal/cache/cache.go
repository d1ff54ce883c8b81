package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"learnhub/internal/config"
)

// ===============================
// LOCKER INTERFACE
// ===============================

// ErrLockTimeout is returned when a lock could not be acquired before the
// wait timeout or the caller's context expired.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker serializes work per key. Progression uses one key per user so
// that a user's activity events apply one at a time.
type Locker interface {
	// Acquire blocks until the lock for key is held. The returned release
	// func is safe to call more than once.
	Acquire(ctx context.Context, key string) (func(), error)
	Close() error
}

// WithLock runs fn while holding the lock for key.
func WithLock(ctx context.Context, locker Locker, key string, fn func(ctx context.Context) error) error {
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// ===============================
// LOCKER CONFIGURATION
// ===============================

// Config holds locker configuration
type Config struct {
	Provider    string        // "memory", "redis"
	TTL         time.Duration // Redis key expiry, bounds how long a crashed holder blocks others
	WaitTimeout time.Duration // Max time Acquire waits
	KeyPrefix   string

	RedisURL      string
	RedisDB       int
	RedisPassword string
	PoolSize      int
}

// DefaultConfig returns a default locker configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:    "memory",
		TTL:         10 * time.Second,
		WaitTimeout: 3 * time.Second,
		KeyPrefix:   "progression",
		PoolSize:    10,
	}
}

// ConfigFrom builds the locker configuration from application config.
func ConfigFrom(redisCfg config.RedisConfig, progression config.ProgressionConfig) *Config {
	cfg := DefaultConfig()
	if redisCfg.Enabled {
		cfg.Provider = "redis"
	}
	if progression.LockTTL > 0 {
		cfg.TTL = progression.LockTTL
	}
	if progression.LockWaitTimeout > 0 {
		cfg.WaitTimeout = progression.LockWaitTimeout
	}
	if redisCfg.KeyPrefix != "" {
		cfg.KeyPrefix = redisCfg.KeyPrefix
	}
	cfg.RedisURL = redisCfg.URL
	cfg.RedisDB = redisCfg.DB
	cfg.RedisPassword = redisCfg.Password
	if redisCfg.PoolSize > 0 {
		cfg.PoolSize = redisCfg.PoolSize
	}
	return cfg
}

// NewLocker creates the locker selected by config.Provider
func NewLocker(config *Config, logger *zap.Logger) (Locker, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(config.Provider) {
	case "redis":
		client, err := newRedisClient(config)
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis locker", zap.String("addr", client.Options().Addr))
		return NewRedisLocker(client, config, logger), nil
	case "memory", "":
		logger.Info("Using in-process locker")
		return NewMemoryLocker(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported locker provider: %s", config.Provider)
	}
}

func newRedisClient(config *Config) (*redis.Client, error) {
	var options *redis.Options
	if strings.Contains(config.RedisURL, "://") {
		var err error
		options, err = redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
	} else {
		addr := config.RedisURL
		if addr == "" {
			addr = "localhost:6379"
		}
		options = &redis.Options{
			Addr:     addr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}
	}

	if config.PoolSize > 0 {
		options.PoolSize = config.PoolSize
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func lockKey(prefix, key string) string {
	if prefix == "" {
		return "lock:" + key
	}
	return prefix + ":lock:" + key
}
