// Package interval provides pure time-grid arithmetic used by timeslot
// generation and activity aggregation.
package interval

import "time"

const millisPerMinute = 60_000.0

// SlotEnd returns the exclusive end of a slot starting at slotStart.
func SlotEnd(slotStart time.Time, width time.Duration) time.Time {
	return slotStart.Add(width)
}

// OverlapMinutes returns the length in minutes of the intersection of
// [activityStart, activityEnd) and [slotStart, slotEnd), at millisecond
// precision. Disjoint intervals yield 0.
func OverlapMinutes(activityStart, activityEnd, slotStart, slotEnd time.Time) float64 {
	from := MaxTime(activityStart, slotStart)
	to := MinTime(activityEnd, slotEnd)
	ms := to.Sub(from).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(ms) / millisPerMinute
}

// ElapsedMinutes returns end - start in minutes. The result is negative when
// end precedes start; callers clamp as needed.
func ElapsedMinutes(start, end time.Time) float64 {
	return float64(end.Sub(start).Milliseconds()) / millisPerMinute
}

// RoundUpToGrid returns the smallest instant >= t that is an exact multiple
// of width counted from the Unix epoch.
func RoundUpToGrid(t time.Time, width time.Duration) time.Time {
	if width <= 0 {
		return t
	}
	// time.Truncate counts from the zero time, not the epoch.
	n := t.UnixNano()
	w := int64(width)
	r := n % w
	if r < 0 {
		r += w
	}
	if r == 0 {
		return t
	}
	return time.Unix(0, n-r+w).In(t.Location())
}

// ResolveEnd returns the concrete end of a possibly open-ended interval.
// A nil end means the interval is still running, so it ends now.
func ResolveEnd(end *time.Time, now time.Time) time.Time {
	if end == nil {
		return now
	}
	return *end
}

// MinTime returns the earliest of the given instants.
func MinTime(first time.Time, rest ...time.Time) time.Time {
	m := first
	for _, t := range rest {
		if t.Before(m) {
			m = t
		}
	}
	return m
}

// MaxTime returns the latest of the given instants.
func MaxTime(first time.Time, rest ...time.Time) time.Time {
	m := first
	for _, t := range rest {
		if t.After(m) {
			m = t
		}
	}
	return m
}
