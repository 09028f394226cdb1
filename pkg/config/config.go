// Package config loads service configuration from environment variables with
// sensible defaults. A .env file in the working directory is honored when
// present.
//
// Environment variables:
//   - FLOWLINE_PORT: HTTP listen port (default: 8080)
//   - FLOWLINE_DB_PATH: SQLite database file (default: ./flowline.db)
//   - FLOWLINE_WORKDIR: run workspace root (default: ./work)
//   - FLOWLINE_LOG_LEVEL: zap level, debug|info|warn|error (default: info)
//   - FLOWLINE_STAGE_TIMEOUT: default per-stage timeout (default: 10m)
//   - FLOWLINE_DEFAULT_BRANCH: branch push/PR triggers fire on (default: main)
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DBPath        string
	Workdir       string
	LogLevel      string
	StageTimeout  time.Duration
	DefaultBranch string

	// timeoutErr keeps a malformed FLOWLINE_STAGE_TIMEOUT visible: Load falls
	// back to the default, Validate reports the typo.
	timeoutErr error
}

// Load reads configuration from the environment, after loading .env if one
// exists.
func Load() *Config {
	_ = godotenv.Load()

	timeout, timeoutErr := getDuration("FLOWLINE_STAGE_TIMEOUT", 10*time.Minute)
	return &Config{
		Port:          getEnv("FLOWLINE_PORT", "8080"),
		DBPath:        getEnv("FLOWLINE_DB_PATH", "./flowline.db"),
		Workdir:       getEnv("FLOWLINE_WORKDIR", "./work"),
		LogLevel:      getEnv("FLOWLINE_LOG_LEVEL", "info"),
		StageTimeout:  timeout,
		DefaultBranch: getEnv("FLOWLINE_DEFAULT_BRANCH", "main"),
		timeoutErr:    timeoutErr,
	}
}

func (c *Config) Validate() error {
	if c.timeoutErr != nil {
		return c.timeoutErr
	}
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive, got %s", c.StageTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
