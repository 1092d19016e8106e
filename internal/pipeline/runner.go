package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/observability"
)

// PeriodProcessor processes one period end to end.
type PeriodProcessor interface {
	ProcessPeriod(ctx context.Context, p domain.Period) (domain.PeriodResult, error)
}

// Recorder persists completed periods, e.g. to the manifest.
type Recorder interface {
	RecordPeriod(ctx context.Context, r domain.PeriodResult) error
}

// Notifier announces completed periods, e.g. on Kafka.
type Notifier interface {
	NotifyPeriod(ctx context.Context, r domain.PeriodResult) error
}

// Runner drives an Engine over a list of periods.
type Runner struct {
	engine   PeriodProcessor
	recorder Recorder
	notifier Notifier
	workers  int
	logger   *slog.Logger
	metrics  *observability.Metrics
	done     atomic.Int64
}

// NewRunner creates a Runner. recorder and notifier may be nil. workers <= 1
// processes periods sequentially in order.
func NewRunner(engine PeriodProcessor, recorder Recorder, notifier Notifier, workers int, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		engine:   engine,
		recorder: recorder,
		notifier: notifier,
		workers:  workers,
		logger:   logger,
		metrics:  metrics,
	}
}

// Completed returns the number of periods completed since the runner was created.
func (r *Runner) Completed() int64 { return r.done.Load() }

// Run processes every period. A failed period does not stop the run; all
// failures are joined into the returned error. Results hold completed
// periods in input order.
func (r *Runner) Run(ctx context.Context, periods []domain.Period) ([]domain.PeriodResult, error) {
	r.logger.Info("extraction run started", "periods", len(periods), "workers", r.workers)
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	results := make([]*domain.PeriodResult, len(periods))
	errs := make([]error, len(periods))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, p := range periods {
		if ctx.Err() != nil {
			errs[i] = fmt.Errorf("period %s: %w", p, ctx.Err())
			continue
		}
		g.Go(func() error {
			res, err := r.runPeriod(ctx, p)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.PeriodResult, 0, len(periods))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	err := errors.Join(errs...)
	r.logger.Info("extraction run finished", "completed", len(out), "failed", len(periods)-len(out))
	return out, err
}

func (r *Runner) runPeriod(ctx context.Context, p domain.Period) (domain.PeriodResult, error) {
	start := time.Now()
	res, err := r.engine.ProcessPeriod(ctx, p)
	if err != nil {
		r.metrics.PeriodsFailed.WithLabelValues(failureReason(err)).Inc()
		r.logger.Error("period failed", "period", p.String(), "error", err)
		return res, err
	}
	r.metrics.PeriodDuration.Observe(time.Since(start).Seconds())
	r.metrics.PeriodsProcessed.Inc()
	r.done.Add(1)

	if r.recorder != nil {
		if err := r.recorder.RecordPeriod(ctx, res); err != nil {
			return res, fmt.Errorf("record period %s: %w", p, err)
		}
	}
	if r.notifier != nil {
		// artifacts are already durable; a lost notification is not a failed period
		if err := r.notifier.NotifyPeriod(ctx, res); err != nil {
			r.logger.Warn("notify period failed", "period", p.String(), "error", err)
		}
	}
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingSource):
		return "missing_source"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
