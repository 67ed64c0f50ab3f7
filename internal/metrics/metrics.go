// Package metrics holds the registry's prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	FlowsTotal       *prometheus.CounterVec
	FlowDuration     *prometheus.HistogramVec
	BillingEvents    *prometheus.CounterVec
	BilledAmount     *prometheus.CounterVec
	DNSEnqueueErrors prometheus.Counter
	TxRetries        prometheus.Counter
	LoginFailures    prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FlowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_flows_total",
			Help: "Domain flows executed, by flow and outcome",
		}, []string{"flow", "outcome"}),
		FlowDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_flow_duration_seconds",
			Help:    "Wall time of domain flows including store retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
		BillingEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_billing_events_total",
			Help: "One-time billing events committed, by reason",
		}, []string{"reason"}),
		BilledAmount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_billed_amount_total",
			Help: "Sum of committed one-time charges, by currency",
		}, []string{"currency"}),
		DNSEnqueueErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_dns_enqueue_errors_total",
			Help: "DNS refresh signals that could not be enqueued",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_tx_retries_total",
			Help: "Store transactions retried after a conflict",
		}),
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_login_failures_total",
			Help: "Failed registrar logins",
		}),
	}
}

func (m *Metrics) ObserveFlow(flow, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
	m.FlowDuration.WithLabelValues(flow).Observe(d.Seconds())
}

func (m *Metrics) ObserveCharge(reason, currency string, amount float64) {
	if m == nil {
		return
	}
	m.BillingEvents.WithLabelValues(reason).Inc()
	if amount > 0 {
		m.BilledAmount.WithLabelValues(currency).Add(amount)
	}
}

func (m *Metrics) IncrementDNSEnqueueErrors() {
	if m == nil {
		return
	}
	m.DNSEnqueueErrors.Inc()
}

func (m *Metrics) IncrementTxRetries() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

func (m *Metrics) IncrementLoginFailures() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}
