package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the progression engine
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Progression ProgressionConfig
	Logging     LoggingConfig
}

// AppConfig holds process-level settings
type AppConfig struct {
	Name        string
	Environment string
}

// Storage drivers understood by DatabaseConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds the progression store settings
type DatabaseConfig struct {
	Driver             string
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
	MigrationsPath     string
	MigrateOnStart     bool
}

// RedisConfig holds the distributed lock backend settings
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
	// KeyPrefix namespaces lock keys.
	KeyPrefix string
}

// ProgressionConfig tunes RecordActivity and the activity recorders.
type ProgressionConfig struct {
	// OperationTimeout bounds one RecordActivity call including retries.
	OperationTimeout time.Duration
	// MaxRetries is the number of retries after an optimistic concurrency
	// conflict before the call fails with a persistence error.
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	LockTTL              time.Duration
	LockWaitTimeout      time.Duration
	// Timezone is used to classify completion times as early bird or
	// night owl.
	Timezone        string
	RoadmapXPReward int64
}

// LoggingConfig holds zap settings
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultProgressionConfig returns the progression defaults.
func DefaultProgressionConfig() *ProgressionConfig {
	return &ProgressionConfig{
		OperationTimeout:     5 * time.Second,
		MaxRetries:           5,
		RetryInitialInterval: 20 * time.Millisecond,
		RetryMaxInterval:     500 * time.Millisecond,
		LockTTL:              10 * time.Second,
		LockWaitTimeout:      3 * time.Second,
		Timezone:             "UTC",
		RoadmapXPReward:      500,
	}
}

// Location resolves the configured timezone.
func (p *ProgressionConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid progression timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from the environment. Outside production a
// .env.<GO_ENV> file (or .env) is loaded first.
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load()
		}
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "learnhub-progression"),
			Environment: env,
		},
		Database:    loadDatabaseConfig(env),
		Redis:       loadRedisConfig(),
		Progression: loadProgressionConfig(),
	}
	config.Logging = loadLoggingConfig(config.IsProduction())

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadDatabaseConfig(env string) DatabaseConfig {
	config := DatabaseConfig{
		Driver:             strings.ToLower(getEnv("DB_DRIVER", DriverMemory)),
		URL:                getEnv("DATABASE_URL", ""),
		MaxOpenConns:       getIntEnv("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:       getIntEnv("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:    getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime:    getDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		SlowQueryThreshold: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
		MigrationsPath:     getEnv("DB_MIGRATIONS_PATH", "migrations"),
		MigrateOnStart:     getBoolEnv("DB_MIGRATE_ON_START", env != "production"),
	}

	if env == "production" {
		if config.MaxOpenConns < 25 {
			config.MaxOpenConns = 25
		}
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		config.MaxIdleConns = config.MaxOpenConns
	}
	return config
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:   getBoolEnv("REDIS_ENABLED", false),
		URL:       getEnv("REDIS_URL", "localhost:6379"),
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        getIntEnv("REDIS_DB", 0),
		PoolSize:  getIntEnv("REDIS_POOL_SIZE", 10),
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "progression"),
	}
}

func loadProgressionConfig() ProgressionConfig {
	d := DefaultProgressionConfig()
	return ProgressionConfig{
		OperationTimeout:     getDurationEnv("PROGRESSION_OPERATION_TIMEOUT", d.OperationTimeout),
		MaxRetries:           getIntEnv("PROGRESSION_MAX_RETRIES", d.MaxRetries),
		RetryInitialInterval: getDurationEnv("PROGRESSION_RETRY_INITIAL_INTERVAL", d.RetryInitialInterval),
		RetryMaxInterval:     getDurationEnv("PROGRESSION_RETRY_MAX_INTERVAL", d.RetryMaxInterval),
		LockTTL:              getDurationEnv("PROGRESSION_LOCK_TTL", d.LockTTL),
		LockWaitTimeout:      getDurationEnv("PROGRESSION_LOCK_WAIT_TIMEOUT", d.LockWaitTimeout),
		Timezone:             getEnv("PROGRESSION_TIMEZONE", d.Timezone),
		RoadmapXPReward:      getInt64Env("PROGRESSION_ROADMAP_XP", d.RoadmapXPReward),
	}
}

// loadLoggingConfig defaults to info level JSON in production and debug
// level console output elsewhere.
func loadLoggingConfig(production bool) LoggingConfig {
	level, format := "debug", "console"
	if production {
		level, format = "info", "json"
	}
	return LoggingConfig{
		Level:  getEnv("LOG_LEVEL", level),
		Format: getEnv("LOG_FORMAT", format),
	}
}

// ===============================
// VALIDATION
// ===============================

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	if err := c.Progression.Validate(); err != nil {
		return fmt.Errorf("progression config: %w", err)
	}
	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverMemory:
	case DriverPostgres:
		if d.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		if d.MaxOpenConns <= 0 {
			return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", d.Driver)
	}
	return nil
}

// Validate validates redis configuration
func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.URL == "" {
		return fmt.Errorf("REDIS_URL is required when redis is enabled")
	}
	if r.PoolSize <= 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must be positive")
	}
	return nil
}

// Validate validates progression configuration
func (p *ProgressionConfig) Validate() error {
	if p.OperationTimeout <= 0 {
		return fmt.Errorf("PROGRESSION_OPERATION_TIMEOUT must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("PROGRESSION_MAX_RETRIES must not be negative")
	}
	if p.RetryInitialInterval <= 0 {
		return fmt.Errorf("PROGRESSION_RETRY_INITIAL_INTERVAL must be positive")
	}
	if p.LockTTL <= 0 {
		return fmt.Errorf("PROGRESSION_LOCK_TTL must be positive")
	}
	if p.RoadmapXPReward < 0 {
		return fmt.Errorf("PROGRESSION_ROADMAP_XP must not be negative")
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// ===============================
// ENV HELPERS
// ===============================

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

