package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
	"github.com/couchcryptid/era5-city-etl/internal/observability"
)

// PathResolver maps periods, variables and locations to storage keys.
type PathResolver interface {
	SourcePath(ctx context.Context, p domain.Period, variable string) (string, error)
	OutputPath(ctx context.Context, p domain.Period, loc domain.Location) (string, error)
}

// Codec opens source datasets and encodes artifacts.
type Codec interface {
	OpenDataset(ctx context.Context, key string) (domain.Dataset, error)
	EncodeSeries(s domain.Series) ([]byte, error)
}

// ArtifactWriter persists encoded artifacts, replacing existing ones.
type ArtifactWriter interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Progress is emitted every Options.ProgressEvery locations.
type Progress struct {
	Period domain.Period
	Count  int
	Total  int
	At     time.Time
}

// Options tunes an Engine.
type Options struct {
	Variables     []string
	Mode          grid.Mode
	Resolution    float64
	ProgressEvery int
	OnProgress    func(Progress)

	// WriteAttempts bounds retries of a failed artifact write.
	WriteAttempts int
	RetryBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Resolution <= 0 {
		o.Resolution = grid.DefaultResolution
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 1000
	}
	if o.WriteAttempts <= 0 {
		o.WriteAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	return o
}

// Engine extracts per-location series for one period at a time:
// open every source, iterate the catalog, persist, release.
type Engine struct {
	resolver  PathResolver
	codec     Codec
	writer    ArtifactWriter
	locations []domain.Location
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates an Engine over the given catalog locations, which are
// processed in the order given.
func NewEngine(r PathResolver, c Codec, w ArtifactWriter, locations []domain.Location, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		resolver:  r,
		codec:     c,
		writer:    w,
		locations: locations,
		opts:      opts.withDefaults(),
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessPeriod runs one period. A missing source fails the period before
// any artifact is written. Per-location failures are skipped and counted.
// Datasets are closed on every return path, including cancellation.
func (e *Engine) ProcessPeriod(ctx context.Context, p domain.Period) (domain.PeriodResult, error) {
	result := domain.PeriodResult{Period: p, StartedAt: domain.Now()}
	if len(e.opts.Variables) == 0 {
		return result, errors.New("no variables configured")
	}

	keys := make([]string, 0, len(e.opts.Variables))
	for _, v := range e.opts.Variables {
		key, err := e.resolver.SourcePath(ctx, p, v)
		if err != nil {
			return result, err
		}
		keys = append(keys, key)
	}

	samplers := make([]*sampler, 0, len(keys))
	defer func() {
		for _, s := range samplers {
			if err := s.ds.Close(); err != nil {
				e.logger.Warn("close dataset failed", "period", p.String(), "error", err)
			}
		}
	}()
	for _, key := range keys {
		ds, err := e.codec.OpenDataset(ctx, key)
		if err != nil {
			return result, fmt.Errorf("open source %s: %w", key, err)
		}
		s, err := newSampler(ds, e.opts.Resolution, e.opts.Mode)
		if err != nil {
			samplers = append(samplers, &sampler{ds: ds})
			return result, fmt.Errorf("source %s: %w", key, err)
		}
		samplers = append(samplers, s)
	}
	timeUnits := samplers[0].ds.TimeUnits()

	e.logger.Info("period started",
		"period", p.String(),
		"variables", len(samplers),
		"locations", len(e.locations),
		"mode", e.opts.Mode.String(),
	)

	written := make(map[string]domain.Location)
	for i, loc := range e.locations {
		if i%e.opts.ProgressEvery == 0 {
			e.progress(p, i)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		series, err := extract(loc, p, timeUnits, samplers)
		if err != nil {
			e.skip(&result, loc, err)
			continue
		}
		data, err := e.codec.EncodeSeries(series)
		if err != nil {
			e.skip(&result, loc, err)
			continue
		}

		key, err := e.resolver.OutputPath(ctx, p, loc)
		if err != nil {
			return result, fmt.Errorf("resolve output for %s: %w", loc, err)
		}
		if err := e.write(ctx, key, data); err != nil {
			return result, err
		}
		// rows sharing country code and name map to one output id; last one wins
		if prev, dup := written[key]; dup {
			e.logger.Warn("output id collision, artifact overwritten",
				"period", p.String(), "key", key, "previous", prev.String(), "location", loc.String())
			continue
		}
		written[key] = loc
		result.Artifacts = append(result.Artifacts, key)
		e.metrics.LocationsExtracted.Inc()
		e.metrics.ArtifactsWritten.Inc()
	}

	result.CompletedAt = domain.Now()
	e.logger.Info("period complete",
		"period", p.String(),
		"written", result.Written(),
		"skipped", result.Skipped,
		"empty_selections", result.EmptySelections,
	)
	return result, nil
}

func (e *Engine) progress(p domain.Period, count int) {
	pr := Progress{Period: p, Count: count, Total: len(e.locations), At: domain.Now()}
	e.logger.Info("extraction progress",
		"period", p.String(),
		"count", pr.Count,
		"total", pr.Total,
		"at", pr.At.Format(time.RFC3339),
	)
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(pr)
	}
}

func (e *Engine) skip(result *domain.PeriodResult, loc domain.Location, err error) {
	result.Skipped++
	if errors.Is(err, domain.ErrEmptySelection) {
		result.EmptySelections++
		e.metrics.LocationsSkipped.WithLabelValues("empty_selection").Inc()
		e.logger.Debug("empty selection, skipping location", "period", result.Period.String(), "location", loc.String(), "error", err)
		return
	}
	e.metrics.LocationsSkipped.WithLabelValues("error").Inc()
	e.logger.Warn("extract failed, skipping location", "period", result.Period.String(), "location", loc.String(), "error", err)
}

// write retries transient store failures with exponential backoff.
func (e *Engine) write(ctx context.Context, key string, data []byte) error {
	backoff := e.opts.RetryBackoff
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= e.opts.WriteAttempts; attempt++ {
		if err = e.writer.Write(ctx, key, data); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == e.opts.WriteAttempts {
			break
		}
		e.logger.Warn("write artifact failed, retrying", "key", key, "attempt", attempt, "error", err)
		if !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("write artifact %s: %w", key, err)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
