// Package reconcile turns game activity into community scores.
//
// A pass walks every active LAN, materializes the timeslots that have
// elapsed for each incomplete community event, awards points to attendees
// who played the event's game for long enough in a slot and marks the work
// as done. Each event is reconciled in its own transaction so a failure
// only delays that event until the next pass.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lanscore/internal/adapters/repository"
	"github.com/okian/lanscore/internal/domain/interval"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/scoring"
	"github.com/okian/lanscore/internal/domain/timeslot"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
)

// Notifier receives the scores committed by a pass. It is called at most
// once per pass, after every transaction of the pass has finished.
type Notifier interface {
	NotifyNewScores(ctx context.Context, scores []model.Score) error
}

// Result summarizes a pass.
type Result struct {
	PassID             string        `json:"pass_id"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	Lans               int           `json:"lans"`
	EventsScanned      int           `json:"events_scanned"`
	EventsFailed       int           `json:"events_failed"`
	EventsCompleted    int           `json:"events_completed"`
	TimeslotsCreated   int           `json:"timeslots_created"`
	TimeslotsProcessed int           `json:"timeslots_processed"`
	Anomalies          int           `json:"anomalies"`
	ScoresAwarded      int           `json:"scores_awarded"`
}

// Engine runs reconciliation passes.
type Engine struct {
	repo       repository.Repository
	aggregator *scoring.Aggregator
	notifier   Notifier
	now        func() time.Time
	logger     logger.Logger
}

// New constructs an Engine over repo.
func New(repo repository.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		aggregator: scoring.NewAggregator(),
		now:        time.Now,
		logger:     logger.Get().Named("reconcile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SlotWidth returns the width of the timeslot grid.
func (e *Engine) SlotWidth() time.Duration { return e.aggregator.SlotWidth() }

type passIDKey struct{}

// PassID returns the ID of the pass that ctx belongs to, or "".
func PassID(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}

// eventOutcome is what one committed event transaction produced.
type eventOutcome struct {
	timeslotsCreated   int
	timeslotsProcessed int
	scoresSkipped      int
	completed          bool
	scores             []model.Score
}

// Run performs one reconciliation pass.
//
// Failing to list LANs or events aborts the pass with an error. A failure
// inside an event transaction is rolled back, logged and counted, and the
// pass moves on to the next event. Scores that were committed before an
// abort are still handed to the notifier.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.repo == nil {
		return Result{}, ErrNoRepository
	}

	began := time.Now()
	passID := uuid.NewString()
	ctx = context.WithValue(ctx, passIDKey{}, passID)
	now := e.now().UTC()
	log := e.logger.With(logger.String("pass_id", passID))

	res := Result{PassID: passID, StartedAt: now}
	var created []model.Score

	err := e.runLans(ctx, log, now, &res, &created)

	if len(created) > 0 && e.notifier != nil {
		if nerr := e.notifier.NotifyNewScores(ctx, created); nerr != nil {
			log.Warn(ctx, "score notification failed", logger.Int("scores", len(created)), logger.Error(nerr))
			metrics.RecordErrorByComponent("reconcile", "notify")
		}
	}

	res.Duration = time.Since(began)
	if err != nil {
		metrics.RecordPass(metrics.OutcomeFailed, float64(res.Duration.Milliseconds()))
		return res, err
	}
	metrics.RecordPass(metrics.OutcomeOK, float64(res.Duration.Milliseconds()))

	log.Info(ctx, "reconciliation pass finished",
		logger.Int("lans", res.Lans),
		logger.Int("events", res.EventsScanned),
		logger.Int("failed", res.EventsFailed),
		logger.Int("timeslots", res.TimeslotsProcessed),
		logger.Int("scores", res.ScoresAwarded),
		logger.Duration("took", res.Duration),
	)
	return res, nil
}

func (e *Engine) runLans(ctx context.Context, log logger.Logger, now time.Time, res *Result, created *[]model.Score) error {
	lans, err := e.repo.ActiveLans(ctx)
	if err != nil {
		return fmt.Errorf("loading active lans: %w", err)
	}
	res.Lans = len(lans)

	width := e.aggregator.SlotWidth()
	for _, lan := range lans {
		events, err := e.repo.ListIncompleteCommunityEvents(ctx, lan.ID, width, now)
		if err != nil {
			return fmt.Errorf("loading events of lan %d: %w", lan.ID, err)
		}

		for i := range events {
			event := &events[i]
			res.EventsScanned++
			evLog := log.With(logger.Int64("lan_id", lan.ID), logger.Int64("event_id", event.ID))

			plan := timeslot.NewPlan(event, now, width)
			if len(plan.Anomalies) > 0 {
				res.Anomalies += len(plan.Anomalies)
				metrics.RecordTimeslotAnomalies(len(plan.Anomalies))
				for _, a := range plan.Anomalies {
					evLog.Warn(ctx, "timeslot off the event grid",
						logger.Int64("timeslot_id", a.ID),
						logger.Time("time", a.Time),
					)
				}
			}

			start := time.Now()
			out, err := e.reconcileEvent(ctx, lan.ID, event, plan, now)
			if err != nil {
				res.EventsFailed++
				metrics.RecordEventFailure()
				metrics.RecordErrorByComponent("reconcile", "event_rollback")
				metrics.RecordErrorLatency("reconcile", "event_rollback", float64(time.Since(start).Milliseconds()))
				evLog.Error(ctx, "event reconciliation rolled back", logger.Error(err))
				continue
			}

			metrics.RecordEventReconciled()
			metrics.RecordTimeslotsCreated(out.timeslotsCreated)
			metrics.RecordTimeslotsProcessed(out.timeslotsProcessed)
			metrics.RecordScoresAwarded(len(out.scores))
			metrics.RecordScoresDuplicate(out.scoresSkipped)
			res.TimeslotsCreated += out.timeslotsCreated
			res.TimeslotsProcessed += out.timeslotsProcessed
			res.ScoresAwarded += len(out.scores)
			if out.completed {
				res.EventsCompleted++
				metrics.RecordEventCompleted()
			}
			*created = append(*created, out.scores...)

			if out.timeslotsProcessed > 0 {
				evLog.Debug(ctx, "event reconciled",
					logger.Int("timeslots", out.timeslotsProcessed),
					logger.Int("scores", len(out.scores)),
					logger.Bool("completed", out.completed),
				)
			}
		}
	}
	return nil
}

// reconcileEvent applies plan to event inside one transaction.
func (e *Engine) reconcileEvent(ctx context.Context, lanID int64, event *model.Event, plan timeslot.Plan, now time.Time) (eventOutcome, error) {
	if !event.HasGame() {
		panic(fmt.Errorf("reconciling event %d: %w", event.ID, scoring.ErrNoGame))
	}

	width := e.aggregator.SlotWidth()
	var out eventOutcome
	err := e.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = eventOutcome{}

		inserted, err := tx.InsertTimeslots(ctx, event.ID, plan.Missing)
		if err != nil {
			return err
		}
		out.timeslotsCreated = len(inserted)

		pending := timeslot.Unprocessed(plan.Present, inserted)
		ids := make([]int64, 0, len(pending))
		var rows []model.Score
		for _, slot := range pending {
			acts, err := tx.TimeslotActivities(ctx, lanID, event, slot, interval.SlotEnd(slot.Time, width))
			if err != nil {
				return err
			}
			for _, award := range e.aggregator.Aggregate(slot, acts, now).Awards {
				rows = append(rows, model.Score{
					EventID:    event.ID,
					TimeslotID: slot.ID,
					UserID:     award.UserID,
					LanID:      lanID,
					Points:     event.Points,
					Type:       model.ScoreTypeCommunityGame,
					CreatedAt:  slot.Time,
				})
			}
			ids = append(ids, slot.ID)
		}

		scores, err := tx.InsertScoresIgnoreConflict(ctx, rows)
		if err != nil {
			return err
		}
		out.scores = scores
		out.scoresSkipped = len(rows) - len(scores)

		if err := tx.MarkTimeslotsProcessed(ctx, event.ID, ids); err != nil {
			return err
		}
		out.timeslotsProcessed = len(ids)

		if now.After(event.End()) {
			if err := tx.MarkEventProcessed(ctx, event.ID); err != nil {
				return err
			}
			out.completed = true
		}
		return nil
	})
	if err != nil {
		return eventOutcome{}, err
	}
	return out, nil
}
