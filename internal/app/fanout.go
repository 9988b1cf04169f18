package service

import (
	"context"
	"time"

	"github.com/okian/lanscore/internal/adapters/mq/queue"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/reconcile"
	"github.com/okian/lanscore/pkg/logger"
)

// batchQueue is the part of the queue the fan-out writes to.
type batchQueue interface {
	Enqueue(ctx context.Context, b queue.Batch) bool
	IsClosed() bool
}

// ScoreFanout hands the scores of a pass to the publishing workers. It never
// blocks the pass: when the queue is full or closed the batch is dropped.
type ScoreFanout struct {
	queue  batchQueue
	now    func() time.Time
	logger logger.Logger
}

// NewScoreFanout creates a fan-out writing to q.
func NewScoreFanout(q batchQueue, now func() time.Time) *ScoreFanout {
	if now == nil {
		now = time.Now
	}
	return &ScoreFanout{
		queue:  q,
		now:    now,
		logger: logger.Get().Named("fanout"),
	}
}

// NotifyNewScores implements reconcile.Notifier.
func (f *ScoreFanout) NotifyNewScores(ctx context.Context, scores []model.Score) error {
	b := queue.Batch{
		PassID: reconcile.PassID(ctx),
		Scores: scores,
		SentAt: f.now().UTC(),
	}
	if f.queue.Enqueue(ctx, b) {
		return nil
	}
	if f.queue.IsClosed() {
		return queue.ErrClosed
	}
	f.logger.Warn(ctx, "score batch dropped",
		logger.String("pass_id", b.PassID),
		logger.Int("scores", len(scores)),
	)
	return queue.ErrFull
}
