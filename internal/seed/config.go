package seed

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/internal/reconcile"
)

// ErrInvalidConfig is returned for seed settings that cannot produce data.
var ErrInvalidConfig = errors.New("invalid seed config")

// ErrMismatch is returned when the service leaderboard differs from the
// locally computed one.
var ErrMismatch = errors.New("leaderboard mismatch")

// Config holds configuration for a seed run
type Config struct {
	Driver          string        // Database driver (sqlite or postgres)
	DSN             string        // Database DSN
	BaseURL         string        // Service URL; verification is skipped when empty
	Attendees       int           // Number of users attending the LAN
	SessionsPerUser int           // Play sessions generated per attendee
	GameID          int64         // Game linked to the event
	Points          int           // Points per awarded timeslot
	EventMinutes    int           // Event duration
	SlotWidth       time.Duration // Timeslot width the service is configured with
	Threshold       float64       // Award threshold the service is configured with
	Timeout         time.Duration // HTTP request timeout
	OutputFile      string        // Optional JSON dump of the generated data
	Verbose         bool          // Log every generated session
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Attendees < 1:
		return fmt.Errorf("%w: attendees must be positive", ErrInvalidConfig)
	case c.SessionsPerUser < 1:
		return fmt.Errorf("%w: sessions per user must be positive", ErrInvalidConfig)
	case c.GameID < 1:
		return fmt.Errorf("%w: game id must be positive", ErrInvalidConfig)
	case c.Points < 1:
		return fmt.Errorf("%w: points must be positive", ErrInvalidConfig)
	case c.SlotWidth < time.Minute:
		return fmt.Errorf("%w: slot width must be at least a minute", ErrInvalidConfig)
	case c.EventMinutes < int(c.SlotWidth/time.Minute):
		return fmt.Errorf("%w: event must span at least one timeslot", ErrInvalidConfig)
	case c.Threshold <= 0 || c.Threshold > 1:
		return fmt.Errorf("%w: threshold must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Session is a generated play session
type Session struct {
	UserID    int64      `json:"user_id"`
	GameID    int64      `json:"game_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Dataset is everything one seed run wrote
type Dataset struct {
	LanID     int64         `json:"lan_id"`
	LanName   string        `json:"lan_name"`
	EventID   int64         `json:"event_id"`
	GameID    int64         `json:"game_id"`
	Start     time.Time     `json:"start"`
	Minutes   int           `json:"minutes"`
	Points    int           `json:"points"`
	Attendees []int64       `json:"attendees"`
	Sessions  []Session     `json:"sessions"`
	Expected  []types.Entry `json:"expected"`
}

// Stats holds run statistics
type Stats struct {
	SessionsWritten    int
	ExpectedEntries    int
	Pass               *reconcile.Result
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
