// Package scheduler drives reconciliation passes on the slot grid.
//
// The loop polls the clock and starts a pass whenever a grid boundary has
// been crossed. Passes never overlap: a pass requested while another one is
// running is rejected with ErrBusy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lanscore/internal/domain/interval"
	"github.com/okian/lanscore/internal/reconcile"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
)

// Default loop configuration constants.
const (
	defaultPollInterval = 10 * time.Second
	defaultSlotWidth    = 10 * time.Minute
)

// Runner performs a single reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

// Status is a snapshot of the loop state.
type Status struct {
	Running      bool              `json:"running"`
	NextBoundary time.Time         `json:"next_boundary"`
	LastRunAt    time.Time         `json:"last_run_at,omitempty"`
	LastResult   *reconcile.Result `json:"last_result,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

// Loop owns the periodic reconciliation schedule.
type Loop struct {
	runner   Runner
	interval time.Duration
	width    time.Duration
	now      func() time.Time
	logger   logger.Logger

	running atomic.Bool
	passes  sync.WaitGroup

	mu           sync.Mutex
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	done         chan struct{}
	nextBoundary time.Time
	lastRunAt    time.Time
	lastResult   *reconcile.Result
	lastErr      error
}

// New constructs a Loop that runs passes with runner.
func New(runner Runner, opts ...Option) *Loop {
	l := &Loop{
		runner:   runner,
		interval: defaultPollInterval,
		width:    defaultSlotWidth,
		now:      time.Now,
		logger:   logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs a pass immediately and then keeps polling until Stop is called
// or ctx is cancelled. It returns without waiting for the first pass.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}
	if l.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true

	go l.loop(loopCtx)

	l.logger.Info(ctx, "scheduler started",
		logger.Duration("poll_interval", l.interval),
		logger.Duration("slot_width", l.width),
	)
	return nil
}

// Stop halts the ticker and waits for an in-flight pass to finish. It is
// safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	l.passes.Wait()
	l.logger.Info(context.Background(), "scheduler stopped")
}

// Trigger runs a pass now unless one is already running.
func (l *Loop) Trigger(ctx context.Context) (reconcile.Result, error) {
	return l.runPass(ctx)
}

// NextBoundary returns the grid instant after which the next scheduled pass
// starts. It is zero until the first pass of Start has finished.
func (l *Loop) NextBoundary() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextBoundary
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		Running:      l.running.Load(),
		NextBoundary: l.nextBoundary,
		LastRunAt:    l.lastRunAt,
		LastResult:   l.lastResult,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	return st
}

func (l *Loop) loop(ctx context.Context) {
	defer close(l.done)

	l.runLogged(ctx)

	l.mu.Lock()
	l.nextBoundary = interval.RoundUpToGrid(l.now(), l.width)
	l.mu.Unlock()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick starts a pass when the clock has passed the next boundary.
func (l *Loop) tick(ctx context.Context) bool {
	now := l.now()

	l.mu.Lock()
	due := now.After(l.nextBoundary)
	if due {
		l.nextBoundary = interval.RoundUpToGrid(now, l.width)
	}
	l.mu.Unlock()

	if due {
		l.runLogged(ctx)
	}
	return due
}

func (l *Loop) runLogged(ctx context.Context) {
	if _, err := l.runPass(ctx); err != nil {
		switch {
		case errors.Is(err, ErrBusy):
			l.logger.Debug(ctx, "skipping tick, pass still running")
		case errors.Is(err, ErrStopped):
			// shutting down
		default:
			l.logger.Error(ctx, "reconciliation pass failed", logger.Error(err))
		}
	}
}

// runPass runs one pass under the running guard. The pass context is
// detached from cancellation so shutdown never interrupts a transaction.
func (l *Loop) runPass(ctx context.Context) (res reconcile.Result, err error) {
	if !l.running.CompareAndSwap(false, true) {
		metrics.RecordSchedulerBusy()
		return reconcile.Result{}, ErrBusy
	}
	defer l.running.Store(false)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return reconcile.Result{}, ErrStopped
	}
	l.passes.Add(1)
	l.mu.Unlock()
	defer l.passes.Done()

	passCtx := context.WithoutCancel(ctx)
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", ErrPanicked, perr)
			} else {
				err = fmt.Errorf("%w: %v", ErrPanicked, r)
			}
			metrics.RecordPass(metrics.OutcomePanicked, float64(time.Since(started).Milliseconds()))
			metrics.RecordErrorByType("panic", "critical")
			l.logger.Error(passCtx, "reconciliation pass panicked", logger.Any("panic", r))
		}
		l.record(res, err)
	}()

	return l.runner.Run(passCtx)
}

func (l *Loop) record(res reconcile.Result, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRunAt = l.now()
	l.lastErr = err
	if err == nil {
		l.lastResult = &res
	}
}
