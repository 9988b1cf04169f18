// Package scoring decides which users earn community points for a timeslot
// from their observed game activity.
package scoring

import (
	"errors"
	"sort"
	"time"

	"github.com/okian/lanscore/internal/domain/interval"
	"github.com/okian/lanscore/internal/domain/model"
)

// Default scoring configuration constants.
const (
	DefaultSlotWidth = 10 * time.Minute
	DefaultThreshold = 0.5
)

// ErrNoGame marks an event without a game reaching the aggregator. The
// eligibility filter must prevent this, so seeing it means a bug.
var ErrNoGame = errors.New("event has no game reference")

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithSlotWidth sets the timeslot width.
func WithSlotWidth(width time.Duration) Option {
	return func(a *Aggregator) {
		if width > 0 {
			a.width = width
		}
	}
}

// WithThreshold sets the fraction of the slot a user must exceed to earn
// points. Values outside (0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// Award is a user that crossed the threshold for a timeslot.
type Award struct {
	UserID   int64
	Timeslot model.Timeslot
	Minutes  float64
}

// Result holds the per-user totals and awards for one timeslot.
type Result struct {
	Minutes map[int64]float64
	Awards  []Award
}

// Aggregator sums activity overlap per user for a timeslot.
type Aggregator struct {
	width     time.Duration
	threshold float64
}

// NewAggregator creates an Aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		width:     DefaultSlotWidth,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SlotWidth returns the configured timeslot width.
func (a *Aggregator) SlotWidth() time.Duration { return a.width }

// Threshold returns the configured award fraction.
func (a *Aggregator) Threshold() float64 { return a.threshold }

// RequiredMinutes is the overlap a user must strictly exceed to be awarded.
func (a *Aggregator) RequiredMinutes() float64 {
	return a.width.Minutes() * a.threshold
}

// Aggregate sums, per user, the minutes each activity overlaps the slot and
// returns the users whose total strictly exceeds RequiredMinutes. Open-ended
// activities are treated as ending at now. Overlapping sessions of the same
// user are summed as they are, without merging.
func (a *Aggregator) Aggregate(slot model.Timeslot, activities []model.GameActivity, now time.Time) Result {
	slotEnd := interval.SlotEnd(slot.Time, a.width)
	res := Result{Minutes: make(map[int64]float64)}
	for _, act := range activities {
		end := interval.ResolveEnd(act.EndedAt, now)
		res.Minutes[act.UserID] += interval.OverlapMinutes(act.StartedAt, end, slot.Time, slotEnd)
	}

	required := a.RequiredMinutes()
	for userID, minutes := range res.Minutes {
		if minutes > required {
			res.Awards = append(res.Awards, Award{UserID: userID, Timeslot: slot, Minutes: minutes})
		}
	}
	sort.Slice(res.Awards, func(i, j int) bool { return res.Awards[i].UserID < res.Awards[j].UserID })
	return res
}
