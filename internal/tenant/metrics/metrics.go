package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers tenant lifecycle and provisioning. A nil *Metrics records nothing.
type Metrics struct {
	TenantsCreated       prometheus.Counter
	TenantsDeleted       prometheus.Counter
	StatusChanges        *prometheus.CounterVec
	ProvisioningFailures *prometheus.CounterVec
	ProvisioningDuration prometheus.Histogram
	CompensationResidue  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TenantsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_tenants_created_total",
			Help: "Tenants provisioned successfully",
		}),
		TenantsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_tenants_deleted_total",
			Help: "Tenants deleted",
		}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_tenant_status_changes_total",
			Help: "Tenant status transitions by target status",
		}, []string{"status"}),
		ProvisioningFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_provisioning_failures_total",
			Help: "Failed provisioning runs by failing step",
		}, []string{"step"}),
		ProvisioningDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskhub_provisioning_duration_seconds",
			Help:    "Wall time of a provisioning run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CompensationResidue: f.NewCounter(prometheus.CounterOpts{
			Name: "taskhub_provisioning_residue_total",
			Help: "Provisioning failures whose compensation left resources behind",
		}),
	}
}

func (m *Metrics) IncrementTenantCreated() {
	if m == nil {
		return
	}
	m.TenantsCreated.Inc()
}

func (m *Metrics) IncrementTenantDeleted() {
	if m == nil {
		return
	}
	m.TenantsDeleted.Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveProvisioning(start time.Time, failedStep string, residue bool) {
	if m == nil {
		return
	}
	m.ProvisioningDuration.Observe(time.Since(start).Seconds())
	if failedStep != "" {
		m.ProvisioningFailures.WithLabelValues(failedStep).Inc()
	}
	if residue {
		m.CompensationResidue.Inc()
	}
}
