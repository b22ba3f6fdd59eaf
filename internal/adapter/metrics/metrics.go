package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "detection_feed"

// Metrics holds all Prometheus metrics for the detection feed service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScansTotal         *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	ScansSkipped       prometheus.Counter
	EventsCreated      *prometheus.CounterVec
	TimestampFallbacks *prometheus.CounterVec
	UploadsTotal       *prometheus.CounterVec
	LookupCacheHits    prometheus.Counter
	LookupCacheMisses  prometheus.Counter
	PublishFailures    *prometheus.CounterVec
	WALActive          prometheus.Gauge
}

// New initializes the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of directory scans by status.",
		}, []string{"status"}), // status: ok, error
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of directory scans.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 10, 30},
		}),
		ScansSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "skipped_total",
			Help:      "Scan triggers skipped because a previous scan was still running.",
		}),
		EventsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "created_total",
			Help:      "Total number of events created by source.",
		}, []string{"source"}),
		TimestampFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "timestamp_fallbacks_total",
			Help:      "Filenames whose timestamp could not be parsed and fell back to the current time.",
		}, []string{"reason"}), // reason: no_match, invalid_date
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of upload requests by status.",
		}, []string{"status"}), // status: created, no_file, too_large, bad_request, rate_limited, error
		LookupCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lookup_cache_hits_total",
			Help:      "Total number of filename lookup cache hits.",
		}),
		LookupCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lookup_cache_misses_total",
			Help:      "Total number of filename lookup cache misses.",
		}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Events that could not be handed to a notification sink.",
		}, []string{"sink"}),
		WALActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "wal_active_gauge",
			Help:      "Indicates if the Write-Ahead Log is currently active (1 for active, 0 for inactive).",
		}),
	}
}

// ObserveScan records the outcome of one scan.
func (m *Metrics) ObserveScan(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

func (m *Metrics) ScanSkipped() {
	if m == nil {
		return
	}
	m.ScansSkipped.Inc()
}

func (m *Metrics) EventCreated(source string) {
	if m == nil {
		return
	}
	m.EventsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) TimestampFallback(reason string) {
	if m == nil {
		return
	}
	m.TimestampFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Upload(status string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) LookupCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.LookupCacheHits.Inc()
		return
	}
	m.LookupCacheMisses.Inc()
}

func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetWALActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.WALActive.Set(1)
		return
	}
	m.WALActive.Set(0)
}
