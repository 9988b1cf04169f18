package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	repository "github.com/okian/lanscore/internal/adapters/repository"
	service "github.com/okian/lanscore/internal/app"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/internal/scheduler"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func clockAt(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

// movableClock is a clock the test can move forward.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func endAt(minutes int) *time.Time {
	t := clockAt(minutes)
	return &t
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a LAN with a community event and recorded play", t, func() {
		ctx := context.Background()
		cfg := testConfig()

		store, err := repository.New(ctx, repository.WithDSN(cfg.DBDSN))
		So(err, ShouldBeNil)
		defer func() { _ = store.Close() }()

		lan := &model.Lan{Name: "spring lan", Active: true}
		So(store.CreateLan(ctx, lan), ShouldBeNil)
		for _, user := range []int64{1, 2} {
			So(store.AddAttendee(ctx, lan.ID, user), ShouldBeNil)
		}
		game := int64(730)
		event := &model.Event{LanID: lan.ID, Name: "community cs", GameID: &game, StartTime: base, DurationMinutes: 30, Points: 5}
		So(store.CreateEvent(ctx, event), ShouldBeNil)

		// user 1 plays 8 of the first 10 minutes, user 2 only 3
		So(store.RecordActivity(ctx, &model.GameActivity{UserID: 1, GameID: game, StartedAt: clockAt(0), EndedAt: endAt(8)}), ShouldBeNil)
		So(store.RecordActivity(ctx, &model.GameActivity{UserID: 2, GameID: game, StartedAt: clockAt(0), EndedAt: endAt(3)}), ShouldBeNil)
		// user 2 plays through the second slot
		So(store.RecordActivity(ctx, &model.GameActivity{UserID: 2, GameID: game, StartedAt: clockAt(10), EndedAt: endAt(20)}), ShouldBeNil)

		clock := &movableClock{now: clockAt(12)}
		sink := &captureSink{}
		svc := service.New(cfg,
			service.WithStore(store),
			service.WithClock(clock.Now),
			service.WithSinks(sink),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the start-up pass has run", func() {
			So(eventually(func() bool { return sink.count() == 1 }), ShouldBeTrue)
			So(eventually(func() bool { return lastResult(svc) != nil }), ShouldBeTrue)

			Convey("Then only the user above the threshold scored the first slot", func() {
				batch := sink.last()
				So(batch.PassID, ShouldNotBeEmpty)
				So(batch.Scores, ShouldHaveLength, 1)
				So(batch.Scores[0].UserID, ShouldEqual, 1)
				So(batch.Scores[0].Points, ShouldEqual, 5)
				So(batch.Scores[0].CreatedAt.Equal(clockAt(0)), ShouldBeTrue)

				board, err := svc.Leaderboard(ctx, lan.ID, 10)
				So(err, ShouldBeNil)
				So(board, ShouldResemble, []types.Entry{{Rank: 1, UserID: 1, Points: 5}})
			})

			Convey("Then a manual pass in the same slot awards nothing new", func() {
				res, err := svc.Trigger(ctx)
				So(err, ShouldBeNil)
				So(res.ScoresAwarded, ShouldEqual, 0)
				So(res.TimeslotsCreated, ShouldEqual, 0)
				So(sink.count(), ShouldEqual, 1)
			})

			Convey("Then a viewer connected to the live stream sees the next slot", func() {
				srv := httptest.NewServer(svc.LiveHandler())
				defer srv.Close()
				conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
				So(err, ShouldBeNil)
				defer conn.Close()
				So(eventually(func() bool { return svc.GetStats()["liveClients"] == 1 }), ShouldBeTrue)

				clock.Set(clockAt(21))
				res, err := svc.Trigger(ctx)
				So(err, ShouldBeNil)
				So(res.TimeslotsCreated, ShouldEqual, 1)
				So(res.ScoresAwarded, ShouldEqual, 1)

				_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				_, data, err := conn.ReadMessage()
				So(err, ShouldBeNil)

				var batch model.ScoreBatch
				So(json.Unmarshal(data, &batch), ShouldBeNil)
				So(batch.PassID, ShouldEqual, res.PassID)
				So(batch.Scores, ShouldHaveLength, 1)
				So(batch.Scores[0].UserID, ShouldEqual, 2)

				board, err := svc.Leaderboard(ctx, lan.ID, 10)
				So(err, ShouldBeNil)
				So(board, ShouldResemble, []types.Entry{
					{Rank: 1, UserID: 1, Points: 5},
					{Rank: 2, UserID: 2, Points: 5},
				})
			})

			Convey("Then the event completes once it is over", func() {
				clock.Set(clockAt(31))
				res, err := svc.Trigger(ctx)
				So(err, ShouldBeNil)
				So(res.EventsCompleted, ShouldEqual, 1)

				stored, err := store.GetEvent(ctx, event.ID)
				So(err, ShouldBeNil)
				So(stored.IsProcessed, ShouldBeTrue)
				So(stored.Timeslots, ShouldHaveLength, 3)

				res, err = svc.Trigger(ctx)
				So(err, ShouldBeNil)
				So(res.EventsScanned, ShouldEqual, 0)
			})

			Convey("Then the scheduler waits for the next grid boundary", func() {
				status := func() scheduler.Status {
					st, _ := svc.GetStats()["scheduler"].(scheduler.Status)
					return st
				}
				So(eventually(func() bool { return !status().NextBoundary.IsZero() }), ShouldBeTrue)
				So(status().NextBoundary.Equal(clockAt(20)), ShouldBeTrue)
				So(status().LastError, ShouldBeEmpty)
			})
		})

		Convey("When stopped, manual passes are refused", func() {
			So(eventually(func() bool { return lastResult(svc) != nil }), ShouldBeTrue)
			svc.Stop()
			_, err := svc.Trigger(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			// the injected store stays open for its owner
			So(store.Ping(ctx), ShouldBeNil)
		})
	})
}
