package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/scoring"
	"github.com/okian/lanscore/internal/reconcile"
	"github.com/okian/lanscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const game = int64(730)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func at(minutes, seconds int) time.Time {
	return t0.Add(time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second)
}

func ptr[T any](v T) *T { return &v }

func communityEvent(lanID int64) model.Event {
	return model.Event{
		LanID:           lanID,
		Name:            "community match",
		GameID:          ptr(game),
		StartTime:       t0,
		DurationMinutes: 60,
		Points:          5,
	}
}

// fixture is a LAN with one community event and a movable clock.
type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	lanID    int64
	eventID  int64
	now      time.Time
	engine   *reconcile.Engine
}

func newFixture() *fixture {
	_ = logger.Init()
	f := &fixture{repo: newMemRepo(), notifier: &recordingNotifier{}}
	f.lanID = f.repo.addLan(true)
	f.eventID = f.repo.addEvent(communityEvent(f.lanID))
	f.engine = reconcile.New(f.repo,
		reconcile.WithNotifier(f.notifier),
		reconcile.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) runAt(now time.Time) reconcile.Result {
	f.now = now
	res, err := f.engine.Run(context.Background())
	So(err, ShouldBeNil)
	return res
}

func TestEngine_ConcreteScenario(t *testing.T) {
	Convey("Given two attendees playing the event's game in the first slot", t, func() {
		f := newFixture()
		f.repo.attend(f.lanID, 1, 2)
		f.repo.play(1, game, at(3, 0), ptr(at(8, 0)))
		f.repo.play(2, game, at(3, 0), ptr(at(8, 1)))

		Convey("When a pass runs at 10:10:30", func() {
			res := f.runAt(at(10, 30))

			Convey("Then one slot is created and only the user above half a slot scores", func() {
				So(res.TimeslotsCreated, ShouldEqual, 1)
				So(res.TimeslotsProcessed, ShouldEqual, 1)
				So(res.ScoresAwarded, ShouldEqual, 1)

				scores := f.repo.scores(f.eventID)
				So(scores, ShouldHaveLength, 1)
				So(scores[0].UserID, ShouldEqual, 2)
				So(scores[0].Points, ShouldEqual, 5)
				So(scores[0].LanID, ShouldEqual, f.lanID)
				So(scores[0].Type, ShouldEqual, model.ScoreTypeCommunityGame)
				So(scores[0].CreatedAt, ShouldEqual, t0)
			})

			Convey("And the slot is processed but the event is not", func() {
				ev := f.repo.event(f.eventID)
				So(ev.Timeslots, ShouldHaveLength, 1)
				So(ev.Timeslots[0].IsProcessed, ShouldBeTrue)
				So(ev.IsProcessed, ShouldBeFalse)
			})

			Convey("And the notifier receives the new score once with the pass ID", func() {
				So(f.notifier.calls, ShouldHaveLength, 1)
				So(f.notifier.calls[0], ShouldHaveLength, 1)
				So(f.notifier.ids[0], ShouldEqual, res.PassID)
			})
		})
	})
}

func TestEngine_Idempotence(t *testing.T) {
	Convey("Given a pass that already reconciled the elapsed slots", t, func() {
		f := newFixture()
		f.repo.attend(f.lanID, 1)
		f.repo.play(1, game, at(-30, 0), nil)
		first := f.runAt(at(25, 0))

		Convey("When a second pass runs at the same instant", func() {
			second := f.runAt(at(25, 0))

			Convey("Then nothing new is created or notified", func() {
				So(first.TimeslotsCreated, ShouldEqual, 2)
				So(first.ScoresAwarded, ShouldEqual, 2)
				So(second.TimeslotsCreated, ShouldEqual, 0)
				So(second.TimeslotsProcessed, ShouldEqual, 0)
				So(second.ScoresAwarded, ShouldEqual, 0)
				So(f.repo.scores(f.eventID), ShouldHaveLength, 2)
				So(f.notifier.calls, ShouldHaveLength, 1)
			})
		})

		Convey("When the clock moves past the scheduled end", func() {
			res := f.runAt(at(61, 0))

			Convey("Then the remaining slots are scored and the event completes", func() {
				So(res.TimeslotsCreated, ShouldEqual, 4)
				So(res.EventsCompleted, ShouldEqual, 1)
				So(f.repo.scores(f.eventID), ShouldHaveLength, 6)
				So(f.repo.event(f.eventID).IsProcessed, ShouldBeTrue)
			})

			Convey("And a later pass no longer sees the event", func() {
				later := f.runAt(at(90, 0))
				So(later.EventsScanned, ShouldEqual, 0)
			})
		})
	})
}

func TestEngine_SlotCountProgression(t *testing.T) {
	Convey("Given an event without any activity", t, func() {
		f := newFixture()

		Convey("When passes run at start + N*width + epsilon", func() {
			for n := 0; n <= 6; n++ {
				f.runAt(at(10*n, 1))
				So(f.repo.event(f.eventID).Timeslots, ShouldHaveLength, n)
			}

			Convey("Then no score is awarded and no notification is sent", func() {
				So(f.repo.scores(f.eventID), ShouldBeEmpty)
				So(f.notifier.calls, ShouldBeEmpty)
			})
		})

		Convey("When the first pass happens long after the end", func() {
			f.runAt(at(300, 0))

			Convey("Then exactly the full slot count exists", func() {
				So(f.repo.event(f.eventID).Timeslots, ShouldHaveLength, 6)
				So(f.repo.event(f.eventID).IsProcessed, ShouldBeTrue)
			})
		})
	})
}

func TestEngine_Cancellation(t *testing.T) {
	Convey("Given an event cancelled at 10:25", t, func() {
		f := newFixture()
		ev := communityEvent(f.lanID)
		ev.CancelledAt = ptr(at(25, 0))
		cancelled := f.repo.addEvent(ev)

		Convey("When a pass runs after the scheduled end", func() {
			f.runAt(at(75, 0))

			Convey("Then slots stop at the cancellation and the event is completed", func() {
				stored := f.repo.event(cancelled)
				So(stored.Timeslots, ShouldHaveLength, 2)
				So(stored.IsProcessed, ShouldBeTrue)
			})
		})

		Convey("When a pass runs after cancellation but before the scheduled end", func() {
			f.runAt(at(45, 0))

			Convey("Then the event stays open", func() {
				stored := f.repo.event(cancelled)
				So(stored.Timeslots, ShouldHaveLength, 2)
				So(stored.IsProcessed, ShouldBeFalse)
			})
		})
	})
}

func TestEngine_FailureIsolation(t *testing.T) {
	Convey("Given two events where score insertion fails for the first", t, func() {
		f := newFixture()
		second := f.repo.addEvent(communityEvent(f.lanID))
		f.repo.attend(f.lanID, 1)
		f.repo.play(1, game, at(-5, 0), ptr(at(30, 0)))
		f.repo.failScoresFor[f.eventID] = errors.New("database is locked")

		Convey("When a pass runs", func() {
			res := f.runAt(at(21, 0))

			Convey("Then the failing event is rolled back entirely", func() {
				So(res.EventsScanned, ShouldEqual, 2)
				So(res.EventsFailed, ShouldEqual, 1)
				So(f.repo.event(f.eventID).Timeslots, ShouldBeEmpty)
				So(f.repo.scores(f.eventID), ShouldBeEmpty)
			})

			Convey("And the other event is committed and notified", func() {
				So(f.repo.scores(second), ShouldHaveLength, 2)
				So(f.notifier.calls, ShouldHaveLength, 1)
				So(f.notifier.calls[0], ShouldHaveLength, 2)
			})

			Convey("And the next pass recovers the failed event", func() {
				delete(f.repo.failScoresFor, f.eventID)
				next := f.runAt(at(21, 0))
				So(next.EventsFailed, ShouldEqual, 0)
				So(f.repo.scores(f.eventID), ShouldHaveLength, 2)
			})
		})
	})
}

func TestEngine_SingleNotificationPerPass(t *testing.T) {
	Convey("Given scoring events on two LANs", t, func() {
		f := newFixture()
		otherLan := f.repo.addLan(true)
		f.repo.addEvent(communityEvent(otherLan))
		f.repo.attend(f.lanID, 1)
		f.repo.attend(otherLan, 2)
		f.repo.play(1, game, at(0, 0), ptr(at(10, 0)))
		f.repo.play(2, game, at(0, 0), ptr(at(10, 0)))

		Convey("When a pass runs", func() {
			res := f.runAt(at(12, 0))

			Convey("Then all new scores arrive in one call", func() {
				So(res.Lans, ShouldEqual, 2)
				So(f.notifier.calls, ShouldHaveLength, 1)
				So(f.notifier.calls[0], ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given a notifier that fails", t, func() {
		f := newFixture()
		f.notifier.err = errors.New("queue full")
		f.repo.attend(f.lanID, 1)
		f.repo.play(1, game, at(0, 0), ptr(at(10, 0)))

		Convey("Then the pass still succeeds", func() {
			res := f.runAt(at(12, 0))
			So(res.ScoresAwarded, ShouldEqual, 1)
		})
	})
}

func TestEngine_Anomalies(t *testing.T) {
	Convey("Given a stored timeslot that is off the grid", t, func() {
		f := newFixture()
		anomaly := f.repo.addSlot(f.eventID, at(5, 0), false)
		f.repo.attend(f.lanID, 1)
		f.repo.play(1, game, at(0, 0), ptr(at(20, 0)))

		Convey("When a pass runs", func() {
			res := f.runAt(at(21, 0))

			Convey("Then it is reported but on-grid slots are still processed", func() {
				So(res.Anomalies, ShouldEqual, 1)
				So(res.EventsFailed, ShouldEqual, 0)
				So(res.TimeslotsCreated, ShouldEqual, 2)
				So(f.repo.scores(f.eventID), ShouldHaveLength, 2)
			})

			Convey("And the anomaly is neither scored nor processed", func() {
				for _, s := range f.repo.event(f.eventID).Timeslots {
					if s.ID == anomaly {
						So(s.IsProcessed, ShouldBeFalse)
					}
				}
				for _, s := range f.repo.scores(f.eventID) {
					So(s.TimeslotID, ShouldNotEqual, anomaly)
				}
			})
		})
	})
}

func TestEngine_AttendeeAndGameFilter(t *testing.T) {
	Convey("Given players who do not qualify", t, func() {
		f := newFixture()
		f.repo.attend(f.lanID, 1)
		f.repo.play(1, 570, at(0, 0), ptr(at(10, 0)))   // another game
		f.repo.play(99, game, at(0, 0), ptr(at(10, 0))) // not attending

		Convey("When a pass runs", func() {
			res := f.runAt(at(10, 0))

			Convey("Then the slot is processed without scores", func() {
				So(res.TimeslotsProcessed, ShouldEqual, 1)
				So(res.ScoresAwarded, ShouldEqual, 0)
			})
		})
	})
}

func TestEngine_Errors(t *testing.T) {
	Convey("Given a repository that cannot list LANs", t, func() {
		f := newFixture()
		f.repo.lanErr = errors.New("connection refused")

		Convey("Then the pass fails", func() {
			f.now = at(30, 0)
			_, err := f.engine.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "connection refused")
		})
	})

	Convey("Given a repository that cannot list events", t, func() {
		f := newFixture()
		f.repo.listErr = errors.New("timeout")

		Convey("Then the pass fails without touching any event", func() {
			f.now = at(30, 0)
			_, err := f.engine.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(f.repo.transactions, ShouldEqual, 0)
		})
	})

	Convey("Given an incomplete event without a game", t, func() {
		f := newFixture()
		f.repo.includeNoGame = true
		ev := communityEvent(f.lanID)
		ev.GameID = nil
		f.repo.addEvent(ev)

		Convey("Then the pass panics with ErrNoGame", func() {
			f.now = at(30, 0)
			var recovered any
			func() {
				defer func() { recovered = recover() }()
				_, _ = f.engine.Run(context.Background())
			}()
			err, ok := recovered.(error)
			So(ok, ShouldBeTrue)
			So(errors.Is(err, scoring.ErrNoGame), ShouldBeTrue)
		})
	})

	Convey("Given an engine without a repository", t, func() {
		_ = logger.Init()
		_, err := reconcile.New(nil).Run(context.Background())

		Convey("Then Run reports it", func() {
			So(errors.Is(err, reconcile.ErrNoRepository), ShouldBeTrue)
		})
	})
}
