package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the audit recorder. A nil *Metrics records nothing.
type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	EntriesDropped  prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
	QueueDepth      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_audit_entries_total",
			Help: "Audit entries persisted, by action",
		}, []string{"action"}),
		EntriesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_audit_entries_dropped_total",
			Help: "Audit entries dropped because the buffer was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_audit_persist_failures_total",
			Help: "Audit entries that could not be written to the store",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskhub_audit_persist_duration_seconds",
			Help:    "Time taken to write one audit entry",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskhub_audit_queue_depth",
			Help: "Entries waiting in the async buffer",
		}),
	}
}

func (m *Metrics) ObservePersist(action string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.PersistFailures.Inc()
		return
	}
	m.EntriesRecorded.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementDropped() {
	if m == nil {
		return
	}
	m.EntriesDropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
