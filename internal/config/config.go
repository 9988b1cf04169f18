// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment on top of the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported values for enumerated keys.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	FormatText = "text"
	FormatJSON = "json"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver selects the SQL backend: sqlite or postgres.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is passed to the selected driver.
	DBDSN string `koanf:"db_dsn"`

	// SlotWidthMinutes is the width of a community event timeslot.
	SlotWidthMinutes int `koanf:"slot_width_minutes"`

	// AwardThreshold is the share of a slot a user must play to score.
	AwardThreshold float64 `koanf:"award_threshold"`

	// PollInterval is how often the scheduler checks for a crossed boundary.
	PollInterval time.Duration `koanf:"poll_interval"`

	// NotifyQueueSize bounds the in-memory queue of score batches.
	NotifyQueueSize int `koanf:"notify_queue_size"`

	// NotifyWorkerCount sets the number of workers publishing batches.
	NotifyWorkerCount int `koanf:"notify_worker_count"`

	// RedisURL enables the Redis sink when set, e.g. redis://localhost:6379/0.
	RedisURL string `koanf:"redis_url"`

	// RedisChannel is the channel score batches are published on.
	RedisChannel string `koanf:"redis_channel"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           FormatText,
		Addr:                ":9080",
		DBDriver:            DriverSQLite,
		DBDSN:               "lanscore.db",
		SlotWidthMinutes:    10,
		AwardThreshold:      0.5,
		PollInterval:        10 * time.Second,
		NotifyQueueSize:     1024,
		NotifyWorkerCount:   runtime.NumCPU(),
		RedisChannel:        "lanscore:scores",
		MaxLeaderboardLimit: 100,
	}
}

// SlotWidth returns the slot width as a duration.
func (c *Config) SlotWidth() time.Duration {
	return time.Duration(c.SlotWidthMinutes) * time.Minute
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w %q", ErrUnknownDriver, c.DBDriver)
	case strings.TrimSpace(c.DBDSN) == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.SlotWidthMinutes <= 0:
		return fmt.Errorf("%w: slot_width_minutes must be positive, got %d", ErrInvalidConfig, c.SlotWidthMinutes)
	case c.AwardThreshold <= 0 || c.AwardThreshold > 1:
		return fmt.Errorf("%w: award_threshold must be in (0,1], got %g", ErrInvalidConfig, c.AwardThreshold)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	case c.NotifyQueueSize <= 0:
		return fmt.Errorf("%w: notify_queue_size must be positive, got %d", ErrInvalidConfig, c.NotifyQueueSize)
	case c.NotifyWorkerCount <= 0:
		return fmt.Errorf("%w: notify_worker_count must be positive, got %d", ErrInvalidConfig, c.NotifyWorkerCount)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive, got %d", ErrInvalidConfig, c.MaxLeaderboardLimit)
	case c.LogFormat != FormatText && c.LogFormat != FormatJSON:
		return fmt.Errorf("%w %q", ErrUnknownLogFormat, c.LogFormat)
	}
	return nil
}
