// Package worker runs the periodic reminder jobs: firing due notifications
// and resyncing the schedule against the subscription store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"subtrack/internal/log"
	"subtrack/internal/notify"
	"subtrack/internal/services"
)

const (
	DefaultDispatchSchedule = "@every 1m"
	DefaultResyncSchedule   = "@every 1h"
	defaultJobTimeout       = 2 * time.Minute
)

type Dispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (notify.DispatchReport, error)
}

type Resyncer interface {
	Resync(ctx context.Context) services.ResyncResult
}

// ReminderWorker owns a cron engine with two jobs. Each job is skipped
// while its previous run is still in progress.
type ReminderWorker struct {
	engine       *cron.Cron
	dispatcher   Dispatcher
	resyncer     Resyncer
	dispatchSpec string
	resyncSpec   string
	loc          *time.Location
	now          func() time.Time
	jobTimeout   time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

type Option func(*ReminderWorker)

func WithDispatchSchedule(spec string) Option {
	return func(w *ReminderWorker) { w.dispatchSpec = spec }
}

// WithResyncSchedule sets the resync spec. An empty spec disables the job.
func WithResyncSchedule(spec string) Option {
	return func(w *ReminderWorker) { w.resyncSpec = spec }
}

func WithLocation(loc *time.Location) Option {
	return func(w *ReminderWorker) {
		if loc != nil {
			w.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *ReminderWorker) { w.now = now }
}

func WithJobTimeout(d time.Duration) Option {
	return func(w *ReminderWorker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// NewReminderWorker builds a worker. resyncer may be nil when only
// dispatching is wanted.
func NewReminderWorker(dispatcher Dispatcher, resyncer Resyncer, opts ...Option) *ReminderWorker {
	w := &ReminderWorker{
		dispatcher:   dispatcher,
		resyncer:     resyncer,
		dispatchSpec: DefaultDispatchSchedule,
		resyncSpec:   DefaultResyncSchedule,
		loc:          time.Local,
		now:          time.Now,
		jobTimeout:   defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}

	logger := cronLogger{}
	w.engine = cron.New(
		cron.WithLocation(w.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return w
}

// Start registers the jobs and starts the engine. Jobs run with contexts
// derived from ctx; cancelling it aborts in-flight runs.
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if _, err := w.engine.AddFunc(w.dispatchSpec, func() { _, _ = w.RunDispatch(w.ctx) }); err != nil {
		w.cancel()
		return fmt.Errorf("add dispatch job %q: %w", w.dispatchSpec, err)
	}
	if w.resyncer != nil && w.resyncSpec != "" {
		if _, err := w.engine.AddFunc(w.resyncSpec, func() { w.RunResync(w.ctx) }); err != nil {
			w.cancel()
			return fmt.Errorf("add resync job %q: %w", w.resyncSpec, err)
		}
	}

	w.engine.Start()
	slog.InfoContext(ctx, "Reminder worker started",
		log.FieldComponent, log.ComponentWorker,
		"dispatch_schedule", w.dispatchSpec,
		"resync_schedule", w.resyncSpec,
		"jobs", len(w.engine.Entries()))
	return nil
}

// Stop halts the engine and waits for running jobs.
func (w *ReminderWorker) Stop(ctx context.Context) {
	if w.cancel != nil {
		defer w.cancel()
	}
	stopped := w.engine.Stop()
	select {
	case <-stopped.Done():
		slog.InfoContext(ctx, "Reminder worker stopped", log.FieldComponent, log.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reminder worker stop timed out", log.FieldComponent, log.ComponentWorker)
	}
}

// RunDispatch fires every notification due now.
func (w *ReminderWorker) RunDispatch(ctx context.Context) (notify.DispatchReport, error) {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := time.Now()
	report, err := w.dispatcher.Dispatch(ctx, w.now())
	args := []any{
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpDispatch,
		"due", report.Due,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"skipped", report.Skipped,
		log.FieldDuration, time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "Dispatch run failed", append(args, log.FieldError, err)...)
	case report.Due > 0:
		slog.InfoContext(ctx, "Dispatch run complete", args...)
	default:
		slog.DebugContext(ctx, "Dispatch run complete", args...)
	}
	return report, err
}

// RunResync reschedules every reminder from the store.
func (w *ReminderWorker) RunResync(ctx context.Context) services.ResyncResult {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result := w.resyncer.Resync(ctx)
	slog.InfoContext(ctx, "Resync run complete",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpResync,
		"total", result.Total,
		"scheduled", result.Scheduled,
		"past_due", result.PastDue,
		"failed", result.Failed,
		"pruned", result.Pruned,
		"degraded", result.Degraded)
	return result
}

// cronLogger routes cron's internal logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, append([]any{log.FieldComponent, log.ComponentWorker}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]any{log.FieldComponent, log.ComponentWorker, log.FieldError, err}, keysAndValues...)...)
}
