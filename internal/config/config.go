package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the eventpredict server.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Jobs     JobsConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	MaxUploadBytes  int64
	RateLimitPerMin int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Path      string
	ChunkSize int
}

// JobsConfig bounds the dispatcher. MaxNum caps concurrent execution units,
// Check is the admission poll interval, ResultGrace is how long a terminated
// unit gets to deliver its result, and MaxRuntime (0 = unbounded) kills units
// that run too long.
type JobsConfig struct {
	MaxNum      int
	Check       time.Duration
	ResultGrace time.Duration
	MaxRuntime  time.Duration
	StatusTTL   time.Duration
}

type PipelineConfig struct {
	Name string
}

// DatabaseConfig is optional; an empty URL disables the outcome archive.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig is optional; an empty URL disables the status mirror.
type RedisConfig struct {
	URL string
}

var validPipelines = map[string]bool{
	"logistic":  true,
	"threshold": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("EVENTPREDICT_PORT", 8080),
			Env:             envString("EVENTPREDICT_ENV", "development"),
			MaxUploadBytes:  int64(envInt("MAX_UPLOAD_BYTES", 512<<20)),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Storage: StorageConfig{
			Path:      envString("STORAGE_PATH", "/tmp/eventpredict"),
			ChunkSize: envInt("STORAGE_CHUNK_SIZE", 4096),
		},
		Jobs: JobsConfig{
			MaxNum:      envInt("JOBS_MAX_NUM", 2),
			Check:       envDuration("JOBS_CHECK", time.Second),
			ResultGrace: envDuration("JOBS_RESULT_GRACE", 5*time.Second),
			MaxRuntime:  envDurationSecs("JOBS_MAX_RUNTIME_SECS", 0),
			StatusTTL:   envDuration("JOBS_STATUS_TTL", 30*time.Minute),
		},
		Pipeline: PipelineConfig{
			Name: envString("PIPELINE", "logistic"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  envString("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("EVENTPREDICT_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.ChunkSize <= 0 {
		return fmt.Errorf("STORAGE_CHUNK_SIZE must be positive, got %d", c.Storage.ChunkSize)
	}

	if c.Jobs.MaxNum < 1 {
		return fmt.Errorf("JOBS_MAX_NUM must be at least 1, got %d", c.Jobs.MaxNum)
	}
	if c.Jobs.Check <= 0 {
		return fmt.Errorf("JOBS_CHECK must be positive")
	}
	if c.Jobs.ResultGrace <= 0 {
		return fmt.Errorf("JOBS_RESULT_GRACE must be positive")
	}
	if c.Jobs.MaxRuntime < 0 {
		return fmt.Errorf("JOBS_MAX_RUNTIME_SECS must not be negative")
	}

	if !validPipelines[c.Pipeline.Name] {
		return fmt.Errorf("PIPELINE must be one of logistic, threshold; got %q", c.Pipeline.Name)
	}

	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}
	if c.Redis.URL != "" &&
		!strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
