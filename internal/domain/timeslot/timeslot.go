// Package timeslot derives the expected fixed-width timeslot grid of an event
// and compares it with the timeslots already persisted.
package timeslot

import (
	"math"
	"time"

	"github.com/okian/lanscore/internal/domain/interval"
	"github.com/okian/lanscore/internal/domain/model"
)

// ExpectedSlotCount returns how many complete slots of the given width fit
// between the event start and min(now, scheduled end, cancellation).
// It never decreases as now advances and is constant once the event has
// ended or been cancelled.
func ExpectedSlotCount(event *model.Event, now time.Time, width time.Duration) int {
	if width <= 0 {
		return 0
	}
	cappedEnd := interval.MinTime(now, event.End())
	if event.CancelledAt != nil {
		cappedEnd = interval.MinTime(cappedEnd, *event.CancelledAt)
	}
	elapsed := interval.ElapsedMinutes(event.StartTime, cappedEnd)
	count := int(math.Floor(elapsed / width.Minutes()))
	if count < 0 {
		return 0
	}
	return count
}

// FullSlotCount returns the number of slots covering the whole scheduled
// duration of the event.
func FullSlotCount(event *model.Event, width time.Duration) int {
	if width <= 0 {
		return 0
	}
	return int(event.Duration() / width)
}

// ExpectedSlotTimes returns the first count grid instants of the event:
// start, start+width, start+2*width, ...
func ExpectedSlotTimes(event *model.Event, count int, width time.Duration) []time.Time {
	if count <= 0 {
		return nil
	}
	times := make([]time.Time, count)
	for i := range times {
		times[i] = event.StartTime.Add(time.Duration(i) * width)
	}
	return times
}

// DiffResult is the outcome of comparing the expected grid with the stored
// timeslots of an event.
type DiffResult struct {
	// Missing holds expected instants that have no stored timeslot.
	Missing []time.Time
	// Present holds stored timeslots that sit on the expected grid.
	Present []model.Timeslot
	// Anomalies holds stored timeslots that do not match the grid.
	Anomalies []model.Timeslot
}

// Diff walks expected and existing (both sorted ascending) in a single
// merge pass. An existing slot earlier than the current expected instant is
// an anomaly and is skipped without consuming the expected instant; an equal
// one is present; otherwise the expected instant is missing. Existing slots
// left over once expected is exhausted are anomalies too.
func Diff(expected []time.Time, existing []model.Timeslot) DiffResult {
	var res DiffResult
	j := 0
	for _, want := range expected {
		for j < len(existing) && existing[j].Time.Before(want) {
			res.Anomalies = append(res.Anomalies, existing[j])
			j++
		}
		if j < len(existing) && existing[j].Time.Equal(want) {
			res.Present = append(res.Present, existing[j])
			j++
			continue
		}
		res.Missing = append(res.Missing, want)
	}
	res.Anomalies = append(res.Anomalies, existing[j:]...)
	return res
}

// Plan is the reconciliation view of a single event at a point in time.
type Plan struct {
	ExpectedCount int
	DiffResult
}

// NewPlan computes the expected grid for event at now and diffs it against
// event.Timeslots, which must be sorted by time.
func NewPlan(event *model.Event, now time.Time, width time.Duration) Plan {
	count := ExpectedSlotCount(event, now, width)
	return Plan{
		ExpectedCount: count,
		DiffResult:    Diff(ExpectedSlotTimes(event, count, width), event.Timeslots),
	}
}

// Unprocessed merges the present and newly inserted timeslots, keeps the
// ones not yet processed and returns them ordered by time.
func Unprocessed(present, inserted []model.Timeslot) []model.Timeslot {
	out := make([]model.Timeslot, 0, len(present)+len(inserted))
	i, j := 0, 0
	for i < len(present) || j < len(inserted) {
		var next model.Timeslot
		if j >= len(inserted) || (i < len(present) && !inserted[j].Time.Before(present[i].Time)) {
			next = present[i]
			i++
		} else {
			next = inserted[j]
			j++
		}
		if !next.IsProcessed {
			out = append(out, next)
		}
	}
	return out
}
