package seed

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lanscore/internal/domain/interval"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/scoring"
	"github.com/okian/lanscore/internal/domain/timeslot"
	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/pkg/logger"
)

// Constants for session generation.
const (
	userIDSpace       = 1_000_000
	otherGameOneIn    = 5 // every fifth session on average plays another game
	maxSlotsPerPlay   = 2 // sessions last up to this many slot widths
	outsiderUserCount = 1
)

// Writer is the subset of the repository a seed run writes through.
type Writer interface {
	CreateLan(ctx context.Context, lan *model.Lan) error
	AddAttendee(ctx context.Context, lanID, userID int64) error
	CreateEvent(ctx context.Context, event *model.Event) error
	RecordActivity(ctx context.Context, act *model.GameActivity) error
}

// randInt64 returns a random value in [0, n) using crypto/rand.
func randInt64(n int64) int64 {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// generateSessions creates play sessions for the attendees and for users
// outside the LAN. The event window is [start, start+minutes).
func generateSessions(cfg *Config, attendees, outsiders []int64, start time.Time, now time.Time) []Session {
	widthMin := int64(cfg.SlotWidth / time.Minute)
	users := append(append([]int64(nil), attendees...), outsiders...)

	sessions := make([]Session, 0, len(users)*cfg.SessionsPerUser)
	for i, user := range users {
		for j := 0; j < cfg.SessionsPerUser; j++ {
			// sessions may begin up to one slot before the event
			offset := randInt64(int64(cfg.EventMinutes)+widthMin) - widthMin
			length := 1 + randInt64(widthMin*maxSlotsPerPlay)
			began := start.Add(time.Duration(offset) * time.Minute)
			ended := began.Add(time.Duration(length) * time.Minute)

			game := cfg.GameID
			if randInt64(otherGameOneIn) == 0 {
				game = cfg.GameID + 1
			}

			s := Session{UserID: user, GameID: game, StartedAt: began}
			// the first user keeps the last session running
			running := i == 0 && j == cfg.SessionsPerUser-1 && began.Before(now)
			if !running {
				s.EndedAt = &ended
			}
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Seed writes a LAN with attendees, a finished community event and
// synthetic play sessions, and returns what it wrote together with the
// leaderboard a correct reconciliation must produce.
func Seed(ctx context.Context, w Writer, cfg *Config, now time.Time) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("seed")
	now = now.UTC()

	lan := &model.Lan{Name: "seed-" + uuid.NewString()[:8], Active: true}
	if err := w.CreateLan(ctx, lan); err != nil {
		return nil, fmt.Errorf("creating lan: %w", err)
	}

	base := 1 + randInt64(userIDSpace)*int64(cfg.Attendees+outsiderUserCount+1)
	attendees := make([]int64, cfg.Attendees)
	for i := range attendees {
		attendees[i] = base + int64(i)
		if err := w.AddAttendee(ctx, lan.ID, attendees[i]); err != nil {
			return nil, fmt.Errorf("adding attendee %d: %w", attendees[i], err)
		}
	}
	outsiders := make([]int64, outsiderUserCount)
	for i := range outsiders {
		outsiders[i] = base + int64(cfg.Attendees+i)
	}

	duration := time.Duration(cfg.EventMinutes) * time.Minute
	start := now.Truncate(time.Minute).Add(-duration)
	game := cfg.GameID
	event := &model.Event{
		LanID:           lan.ID,
		Name:            "community " + lan.Name,
		GameID:          &game,
		StartTime:       start,
		DurationMinutes: cfg.EventMinutes,
		Points:          cfg.Points,
	}
	if err := w.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}

	sessions := generateSessions(cfg, attendees, outsiders, start, now)
	for _, s := range sessions {
		act := &model.GameActivity{UserID: s.UserID, GameID: s.GameID, StartedAt: s.StartedAt, EndedAt: s.EndedAt}
		if err := w.RecordActivity(ctx, act); err != nil {
			return nil, fmt.Errorf("recording session of user %d: %w", s.UserID, err)
		}
		if cfg.Verbose {
			log.Debug(ctx, "session written",
				logger.Int64("user_id", s.UserID),
				logger.Int64("game_id", s.GameID),
				logger.Time("started_at", s.StartedAt),
			)
		}
	}

	ds := &Dataset{
		LanID:     lan.ID,
		LanName:   lan.Name,
		EventID:   event.ID,
		GameID:    game,
		Start:     start,
		Minutes:   cfg.EventMinutes,
		Points:    cfg.Points,
		Attendees: attendees,
		Sessions:  sessions,
	}
	ds.Expected = ExpectedLeaderboard(ds, cfg.SlotWidth, cfg.Threshold, now)

	log.Info(ctx, "seed data written",
		logger.Int64("lan_id", ds.LanID),
		logger.Int64("event_id", ds.EventID),
		logger.Int("attendees", len(attendees)),
		logger.Int("sessions", len(sessions)),
		logger.Int("expected_entries", len(ds.Expected)),
	)
	return ds, nil
}

// ExpectedLeaderboard scores ds the way a reconciliation pass at now would,
// without a database.
func ExpectedLeaderboard(ds *Dataset, width time.Duration, threshold float64, now time.Time) []types.Entry {
	game := ds.GameID
	event := &model.Event{StartTime: ds.Start, DurationMinutes: ds.Minutes, GameID: &game}
	agg := scoring.NewAggregator(scoring.WithSlotWidth(width), scoring.WithThreshold(threshold))

	attending := make(map[int64]bool, len(ds.Attendees))
	for _, u := range ds.Attendees {
		attending[u] = true
	}

	points := make(map[int64]int64)
	count := timeslot.ExpectedSlotCount(event, now, width)
	for _, at := range timeslot.ExpectedSlotTimes(event, count, width) {
		slotEnd := interval.SlotEnd(at, width)
		var acts []model.GameActivity
		for _, s := range ds.Sessions {
			if !attending[s.UserID] || s.GameID != game {
				continue
			}
			if !s.StartedAt.Before(slotEnd) || (s.EndedAt != nil && !s.EndedAt.After(at)) {
				continue
			}
			acts = append(acts, model.GameActivity{UserID: s.UserID, GameID: s.GameID, StartedAt: s.StartedAt, EndedAt: s.EndedAt})
		}
		for _, award := range agg.Aggregate(model.Timeslot{Time: at}, acts, now).Awards {
			points[award.UserID] += int64(ds.Points)
		}
	}

	entries := make([]types.Entry, 0, len(points))
	for user, p := range points {
		entries = append(entries, types.Entry{UserID: user, Points: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
