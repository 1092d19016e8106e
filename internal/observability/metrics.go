package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "era5_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the extraction service.
type Metrics struct {
	PeriodsProcessed   prometheus.Counter
	PeriodsFailed      *prometheus.CounterVec // labels: reason={missing_source,cancelled,error}
	LocationsExtracted prometheus.Counter
	LocationsSkipped   *prometheus.CounterVec // labels: reason={empty_selection,error}
	ArtifactsWritten   prometheus.Counter
	PipelineRunning    prometheus.Gauge

	PeriodDuration prometheus.Histogram

	// Read path.
	SeriesRequests *prometheus.CounterVec // labels: outcome={success,bad_request,not_found,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PeriodsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_processed_total",
			Help:      "Periods whose artifacts were all written.",
		}),
		PeriodsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_failed_total",
			Help:      "Periods that did not complete, by reason.",
		}, []string{"reason"}),
		LocationsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_extracted_total",
			Help:      "Locations sampled and persisted.",
		}),
		LocationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_skipped_total",
			Help:      "Locations skipped within a period, by reason.",
		}, []string{"reason"}),
		ArtifactsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Per-location artifacts written to storage.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an extraction run is active, 0 otherwise.",
		}),
		PeriodDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "period_duration_seconds",
			Help:      "Wall time to process one period.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		SeriesRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_requests_total",
			Help:      "Series lookups served by outcome.",
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding fallback is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PeriodsProcessed,
		m.PeriodsFailed,
		m.LocationsExtracted,
		m.LocationsSkipped,
		m.ArtifactsWritten,
		m.PipelineRunning,
		m.PeriodDuration,
		m.SeriesRequests,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
