package scoring_test

import (
	"testing"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	scoring "github.com/okian/lanscore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var slotStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func clock(hh, mm, ss int) time.Time {
	return time.Date(2026, 3, 14, hh, mm, ss, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestAggregator_Options(t *testing.T) {
	Convey("Given a new aggregator with default options", t, func() {
		agg := scoring.NewAggregator()

		Convey("Then it should use a ten minute slot and half threshold", func() {
			So(agg.SlotWidth(), ShouldEqual, 10*time.Minute)
			So(agg.Threshold(), ShouldEqual, 0.5)
			So(agg.RequiredMinutes(), ShouldEqual, 5.0)
		})
	})

	Convey("Given invalid options", t, func() {
		agg := scoring.NewAggregator(scoring.WithSlotWidth(-time.Minute), scoring.WithThreshold(1.5))

		Convey("Then the defaults are kept", func() {
			So(agg.SlotWidth(), ShouldEqual, scoring.DefaultSlotWidth)
			So(agg.Threshold(), ShouldEqual, scoring.DefaultThreshold)
		})
	})

	Convey("Given custom options", t, func() {
		agg := scoring.NewAggregator(scoring.WithSlotWidth(15*time.Minute), scoring.WithThreshold(0.8))

		Convey("Then the required minutes follow them", func() {
			So(agg.RequiredMinutes(), ShouldAlmostEqual, 12.0, 1e-9)
		})
	})
}

func TestAggregator_Aggregate(t *testing.T) {
	Convey("Given the slot [10:00, 10:10) and a half-slot threshold", t, func() {
		agg := scoring.NewAggregator()
		slot := model.Timeslot{ID: 11, EventID: 1, Time: slotStart}
		now := clock(10, 30, 0)

		Convey("When a user played from 10:03 to 10:08", func() {
			acts := []model.GameActivity{{UserID: 1, StartedAt: clock(10, 3, 0), EndedAt: ptr(clock(10, 8, 0))}}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then exactly half the slot is not enough", func() {
				So(res.Minutes[1], ShouldEqual, 5.0)
				So(res.Awards, ShouldBeEmpty)
			})
		})

		Convey("When the same session ends at 10:08:01", func() {
			acts := []model.GameActivity{{UserID: 1, StartedAt: clock(10, 3, 0), EndedAt: ptr(clock(10, 8, 1))}}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then the user is awarded", func() {
				So(res.Awards, ShouldHaveLength, 1)
				So(res.Awards[0].UserID, ShouldEqual, 1)
				So(res.Awards[0].Timeslot.ID, ShouldEqual, 11)
			})
		})

		Convey("When a user has threshold plus 0.01 minutes", func() {
			end := clock(10, 5, 0).Add(600 * time.Millisecond)
			acts := []model.GameActivity{{UserID: 2, StartedAt: slotStart, EndedAt: &end}}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then the user is awarded", func() {
				So(res.Minutes[2], ShouldAlmostEqual, 5.01, 1e-9)
				So(res.Awards, ShouldHaveLength, 1)
			})
		})

		Convey("When a user has two disjoint sessions inside the slot", func() {
			acts := []model.GameActivity{
				{UserID: 3, StartedAt: clock(10, 0, 0), EndedAt: ptr(clock(10, 3, 0))},
				{UserID: 3, StartedAt: clock(10, 6, 0), EndedAt: ptr(clock(10, 9, 0))},
			}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then the sessions are summed", func() {
				So(res.Minutes[3], ShouldEqual, 6.0)
				So(res.Awards, ShouldHaveLength, 1)
			})
		})

		Convey("When a user has two simultaneous sessions", func() {
			acts := []model.GameActivity{
				{UserID: 4, StartedAt: clock(10, 0, 0), EndedAt: ptr(clock(10, 3, 0))},
				{UserID: 4, StartedAt: clock(10, 0, 0), EndedAt: ptr(clock(10, 3, 0))},
			}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then the overlap is counted twice", func() {
				So(res.Minutes[4], ShouldEqual, 6.0)
				So(res.Awards, ShouldHaveLength, 1)
			})
		})

		Convey("When an open-ended session is evaluated inside the slot", func() {
			acts := []model.GameActivity{{UserID: 5, StartedAt: clock(9, 55, 0)}}
			res := agg.Aggregate(slot, acts, clock(10, 7, 0))

			Convey("Then it is clamped to now", func() {
				So(res.Minutes[5], ShouldEqual, 7.0)
				So(res.Awards, ShouldHaveLength, 1)
			})
		})

		Convey("When an open-ended session is evaluated after the slot", func() {
			acts := []model.GameActivity{{UserID: 6, StartedAt: clock(9, 55, 0)}}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then it is clamped to the slot end", func() {
				So(res.Minutes[6], ShouldEqual, 10.0)
			})
		})

		Convey("When several users qualify", func() {
			acts := []model.GameActivity{
				{UserID: 9, StartedAt: clock(9, 0, 0), EndedAt: ptr(clock(11, 0, 0))},
				{UserID: 7, StartedAt: clock(9, 0, 0), EndedAt: ptr(clock(11, 0, 0))},
				{UserID: 8, StartedAt: clock(10, 9, 0), EndedAt: ptr(clock(11, 0, 0))},
			}
			res := agg.Aggregate(slot, acts, now)

			Convey("Then the awards are ordered by user", func() {
				So(res.Awards, ShouldHaveLength, 2)
				So(res.Awards[0].UserID, ShouldEqual, 7)
				So(res.Awards[1].UserID, ShouldEqual, 9)
			})
		})
	})
}
