package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/observability"
	"github.com/couchcryptid/era5-city-etl/internal/pipeline"
)

// --- mocks ---

type mockEngine struct {
	missing  map[domain.Period]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockEngine) ProcessPeriod(ctx context.Context, p domain.Period) (domain.PeriodResult, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := ctx.Err(); err != nil {
		return domain.PeriodResult{Period: p}, err
	}
	if m.missing[p] {
		return domain.PeriodResult{Period: p}, &domain.MissingSourceError{Period: p, ID: "2017/x.nc"}
	}
	return domain.PeriodResult{Period: p, Artifacts: []string{"processed/" + p.String()}}, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	recorded []domain.Period
	err      error
}

func (m *mockRecorder) RecordPeriod(_ context.Context, r domain.PeriodResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, r.Period)
	return nil
}

type mockNotifier struct {
	calls atomic.Int32
	err   error
}

func (m *mockNotifier) NotifyPeriod(context.Context, domain.PeriodResult) error {
	m.calls.Add(1)
	return m.err
}

func periods(t *testing.T, first, last int) []domain.Period {
	t.Helper()
	ps, err := domain.PeriodsInRange(2017, first, last)
	require.NoError(t, err)
	return ps
}

// --- tests ---

func TestRunner_ContinuesAfterMissingSource(t *testing.T) {
	engine := &mockEngine{missing: map[domain.Period]bool{{Year: 2017, Month: 2}: true}}
	rec := &mockRecorder{}
	notif := &mockNotifier{}
	metrics := observability.NewMetricsForTesting()

	r := pipeline.NewRunner(engine, rec, notif, 1, discardLogger(), metrics)
	results, err := r.Run(context.Background(), periods(t, 1, 3))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingSource)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Period.Month)
	assert.Equal(t, 3, results[1].Period.Month)

	want := []domain.Period{{Year: 2017, Month: 1}, {Year: 2017, Month: 3}}
	if diff := cmp.Diff(want, rec.recorded); diff != "" {
		t.Errorf("recorded periods mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int32(2), notif.calls.Load())
	assert.Equal(t, int64(2), r.Completed())
}

func TestRunner_WorkersBoundConcurrency(t *testing.T) {
	engine := &mockEngine{delay: 20 * time.Millisecond}
	r := pipeline.NewRunner(engine, nil, nil, 3, discardLogger(), observability.NewMetricsForTesting())

	results, err := r.Run(context.Background(), periods(t, 1, 12))
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, res := range results {
		assert.Equal(t, i+1, res.Period.Month, "results keep input order")
	}
	assert.LessOrEqual(t, engine.maxSeen.Load(), int32(3))
	assert.Greater(t, engine.maxSeen.Load(), int32(1))
}

func TestRunner_SequentialByDefault(t *testing.T) {
	engine := &mockEngine{delay: 5 * time.Millisecond}
	r := pipeline.NewRunner(engine, nil, nil, 0, discardLogger(), observability.NewMetricsForTesting())

	_, err := r.Run(context.Background(), periods(t, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, int32(1), engine.maxSeen.Load())
}

func TestRunner_NotifierFailureDoesNotFailPeriod(t *testing.T) {
	notif := &mockNotifier{err: errors.New("broker down")}
	r := pipeline.NewRunner(&mockEngine{}, nil, notif, 1, discardLogger(), observability.NewMetricsForTesting())

	results, err := r.Run(context.Background(), periods(t, 6, 6))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRunner_RecorderFailureFailsPeriod(t *testing.T) {
	rec := &mockRecorder{err: errors.New("database is locked")}
	r := pipeline.NewRunner(&mockEngine{}, rec, nil, 1, discardLogger(), observability.NewMetricsForTesting())

	results, err := r.Run(context.Background(), periods(t, 6, 6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, results)
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := pipeline.NewRunner(&mockEngine{}, nil, nil, 2, discardLogger(), observability.NewMetricsForTesting())
	results, err := r.Run(ctx, periods(t, 1, 3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
