package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

// DesiredSource produces the validated ranges the firewall should allow.
type DesiredSource interface {
	Desired(ctx context.Context) (cidr.State, error)
}

// Recorder observes completed cycles. err is the cycle's unrecoverable
// error, if any; res carries whatever counts were accumulated before it.
type Recorder interface {
	RecordCycle(res Result, err error)
}

// Loop drives the Reconciler on a single timeline: each cycle completes before
// the next one is scheduled.
type Loop struct {
	source     DesiredSource
	reconciler *Reconciler
	cfg        Config
	logger     *slog.Logger
	recorders  []Recorder
	triggerCh  chan struct{}
}

// NewLoop creates a Loop. Config defaults are applied automatically.
func NewLoop(source DesiredSource, r *Reconciler, cfg Config, logger *slog.Logger) *Loop {
	cfg.ApplyDefaults()
	return &Loop{
		source:     source,
		reconciler: r,
		cfg:        cfg,
		logger:     logger.With("component", "reconcile"),
		triggerCh:  make(chan struct{}, 1),
	}
}

// AddRecorder attaches a cycle observer. Recorders are called in the order
// they were added. AddRecorder must be called before Run or RunOnce; it is not
// safe for concurrent use.
func (l *Loop) AddRecorder(rec Recorder) {
	l.recorders = append(l.recorders, rec)
}

// TriggerSync requests an immediate cycle.
// Multiple rapid calls are coalesced; only one extra cycle runs.
func (l *Loop) TriggerSync() {
	select {
	case l.triggerCh <- struct{}{}:
	default:
	}
}

// RunOnce fetches the desired ranges and reconciles against them once.
// Recorders are notified of the outcome.
func (l *Loop) RunOnce(ctx context.Context) (Result, error) {
	res, err := l.safeCycle(ctx)
	l.notify(res, err)
	return res, err
}

// Run starts the sync loop. It blocks until ctx is cancelled and returns
// ctx.Err(). The first cycle runs immediately. After a cycle that failed
// with an unrecoverable error the loop waits RetryBackoff, otherwise
// Interval.
func (l *Loop) Run(ctx context.Context) error {
	if l.source == nil || l.reconciler == nil {
		return errors.New("reconcile: loop is missing source or reconciler")
	}

	l.logger.Info("sync loop started",
		"interval", l.cfg.Interval,
		"retry_backoff", l.cfg.RetryBackoff,
	)

	timer := time.NewTimer(l.runCycle(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sync loop stopped")
			return ctx.Err()

		case <-timer.C:

		case <-l.triggerCh:
			l.logger.Info("sync triggered")
			timer.Stop()
		}
		timer.Reset(l.runCycle(ctx))
	}
}

// runCycle runs one cycle and returns how long to wait before the next.
func (l *Loop) runCycle(ctx context.Context) time.Duration {
	_, err := l.RunOnce(ctx)
	if err == nil {
		return l.cfg.Interval
	}
	if ctx.Err() != nil {
		return l.cfg.Interval
	}
	l.logger.Error("sync cycle failed, retrying",
		"error", err,
		"retry_in", l.cfg.RetryBackoff,
	)
	return l.cfg.RetryBackoff
}

// safeCycle performs fetch then reconcile with panic recovery.
func (l *Loop) safeCycle(ctx context.Context) (res Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("reconcile: cycle panicked: %v\n%s", v, debug.Stack())
		}
	}()

	desired, err := l.source.Desired(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: fetch desired ranges: %w", err)
	}
	return l.reconciler.Reconcile(ctx, desired)
}

func (l *Loop) notify(res Result, err error) {
	for i, rec := range l.recorders {
		func() {
			defer func() {
				if v := recover(); v != nil {
					l.logger.Error("recorder panicked", "recorder_index", i, "panic", v)
				}
			}()
			rec.RecordCycle(res, err)
		}()
	}
}
