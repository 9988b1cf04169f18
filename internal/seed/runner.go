// Package seed writes demo community-event data into the lanscore database
// and checks that the running service scores it as expected.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/lanscore/internal/adapters/repository"
	"github.com/okian/lanscore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run seeds the configured database and, when a service URL is set,
// triggers a pass and verifies the resulting leaderboard.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("seed")

	log.Info(ctx, "starting lanscore seed",
		logger.String("driver", cfg.Driver),
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("attendees", cfg.Attendees),
		logger.Int("sessionsPerUser", cfg.SessionsPerUser),
		logger.Int("eventMinutes", cfg.EventMinutes),
		logger.Duration("slotWidth", cfg.SlotWidth),
	)

	var client *HTTPClient
	if cfg.BaseURL != "" {
		client = NewHTTPClient(cfg.BaseURL, cfg.Timeout)
		if err := client.Health(ctx); err != nil {
			return nil, fmt.Errorf("service health check failed: %w", err)
		}
	}

	store, err := repository.New(ctx, repository.WithDriver(cfg.Driver), repository.WithDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ds, err := Seed(ctx, store, cfg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("seeding failed: %w", err)
	}
	stats.SessionsWritten = len(ds.Sessions)
	stats.ExpectedEntries = len(ds.Expected)

	if cfg.OutputFile != "" {
		if err := saveDataset(cfg.OutputFile, ds); err != nil {
			log.Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}

	if client != nil {
		if err := verifyRemote(ctx, client, ds, stats); err != nil {
			return stats, err
		}
	} else {
		log.Info(ctx, "no service URL; expected leaderboard only")
		displayLeaderboard(ctx, ds.Expected)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "seed finished",
		logger.Int64("lan_id", ds.LanID),
		logger.Int("sessions", stats.SessionsWritten),
		logger.Int("expected", stats.ExpectedEntries),
		logger.Int("leaderboard", stats.LeaderboardEntries),
		logger.Duration("took", stats.Duration),
	)
	return stats, nil
}

// verifyRemote triggers a pass on the service and compares the leaderboard
// of the seeded LAN with the locally computed one.
func verifyRemote(ctx context.Context, client *HTTPClient, ds *Dataset, stats *Stats) error {
	res, err := client.TriggerReconcile(ctx)
	if err != nil {
		return fmt.Errorf("triggering reconciliation: %w", err)
	}
	stats.Pass = res

	limit := max(1, len(ds.Expected))
	got, err := client.Leaderboard(ctx, ds.LanID, limit)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(got)

	displayLeaderboard(ctx, got)
	if err := verifyLeaderboard(ds.Expected, got); err != nil {
		return err
	}
	logger.Get().Named("seed").Info(ctx, "leaderboard verified", logger.String("pass_id", res.PassID))
	return nil
}

// saveDataset writes ds as indented JSON, creating parent directories.
func saveDataset(path string, ds *Dataset) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return os.WriteFile(path, data, filePermission)
}
