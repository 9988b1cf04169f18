// Package repository provides the transactional storage used by the
// reconciliation engine and the read models used by the ops API.
package repository

import (
	"context"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/types"
)

// Repository is the storage surface consumed by a reconciliation pass.
type Repository interface {
	// ActiveLans returns the LANs whose events are reconciled.
	ActiveLans(ctx context.Context) ([]model.Lan, error)

	// ListIncompleteCommunityEvents returns the events of a LAN that are
	// linked to a game, worth points, already started, not processed and
	// with fewer processed timeslots than their full slot count. Each event
	// carries its timeslots ordered by time.
	ListIncompleteCommunityEvents(ctx context.Context, lanID int64, width time.Duration, now time.Time) ([]model.Event, error)

	// WithinTx runs fn in a single transaction. The transaction is committed
	// when fn returns nil and rolled back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx holds the operations that must share one transaction per event.
type Tx interface {
	// InsertTimeslots creates timeslots for an event and returns them with IDs.
	InsertTimeslots(ctx context.Context, eventID int64, times []time.Time) ([]model.Timeslot, error)

	// TimeslotActivities returns the activities of attendees of lanID for the
	// event's game that intersect [slot.Time, slotEnd), including running ones.
	TimeslotActivities(ctx context.Context, lanID int64, event *model.Event, slot model.Timeslot, slotEnd time.Time) ([]model.GameActivity, error)

	// InsertScoresIgnoreConflict inserts scores and returns only the rows that
	// were actually created. Rows conflicting on (timeslot, user) are skipped.
	InsertScoresIgnoreConflict(ctx context.Context, rows []model.Score) ([]model.Score, error)

	// MarkTimeslotsProcessed flags the given timeslots of an event as processed.
	MarkTimeslotsProcessed(ctx context.Context, eventID int64, ids []int64) error

	// MarkEventProcessed flags an event as processed. It is never reset.
	MarkEventProcessed(ctx context.Context, eventID int64) error
}

// Leaderboard reads community point totals.
type Leaderboard interface {
	// Leaderboard returns the top-N users of a LAN by community points.
	Leaderboard(ctx context.Context, lanID int64, limit int) ([]types.Entry, error)
}
