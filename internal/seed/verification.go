package seed

import (
	"context"
	"fmt"

	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/pkg/logger"
)

// maxDisplayedEntries bounds the leaderboard lines logged after a run.
const maxDisplayedEntries = 10

// verifyLeaderboard compares the service leaderboard with the expected one,
// entry by entry.
func verifyLeaderboard(expected, got []types.Entry) error {
	if len(got) != len(expected) {
		return fmt.Errorf("%w: got %d entries, want %d", ErrMismatch, len(got), len(expected))
	}
	for i := range expected {
		if got[i] != expected[i] {
			return fmt.Errorf("%w: rank %d is user %d with %d points, want user %d with %d points",
				ErrMismatch, expected[i].Rank, got[i].UserID, got[i].Points, expected[i].UserID, expected[i].Points)
		}
	}
	return nil
}

// displayLeaderboard logs the top of a leaderboard.
func displayLeaderboard(ctx context.Context, entries []types.Entry) {
	log := logger.Get().Named("seed")
	for i, e := range entries {
		if i == maxDisplayedEntries {
			log.Info(ctx, "leaderboard truncated", logger.Int("remaining", len(entries)-i))
			return
		}
		log.Info(ctx, "leaderboard entry",
			logger.Int("rank", e.Rank),
			logger.Int64("user_id", e.UserID),
			logger.Int64("points", e.Points),
		)
	}
}
