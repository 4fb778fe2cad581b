package withdrawal

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricWithdrawalsTotal  = "withdrawd_withdrawals_total"
	MetricSubmitDuration    = "withdrawd_withdrawal_submit_duration_seconds"
	MetricAuditSinkDegraded = "withdrawd_audit_sink_degraded"
	MetricRateLimitChecks   = "withdrawd_rate_limit_checks_total"

	labelOutcome = "outcome"
	labelAllowed = "allowed"
)

// Outcome labels of the withdrawals counter.
const (
	OutcomeCompleted       = "completed"
	OutcomeFailed          = "failed"
	OutcomeUnknown         = "unknown_outcome"
	OutcomeRejected        = "rejected"
	OutcomeRateLimited     = "rate_limited"
	OutcomeVelocityBlocked = "velocity_blocked"
	OutcomeReplayed        = "replayed"
	OutcomeDuplicate       = "duplicate"
)

// Metrics holds the prometheus collectors of the orchestrator. Collectors
// are not registered until Register is called.
type Metrics struct {
	withdrawals     *prometheus.CounterVec
	submitDuration  prometheus.Histogram
	auditDegraded   prometheus.Gauge
	rateLimitChecks *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWithdrawalsTotal,
				Help: "Withdrawal requests processed by outcome",
			},
			[]string{labelOutcome},
		),
		submitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSubmitDuration,
				Help:    "Time spent waiting for the wallet to submit a withdrawal",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		auditDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricAuditSinkDegraded,
				Help: "1 while audit events are buffered because the sink is failing",
			},
		),
		rateLimitChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRateLimitChecks,
				Help: "Rate limit checks by result",
			},
			[]string{labelAllowed},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.withdrawals, m.submitDuration, m.auditDegraded, m.rateLimitChecks,
	}
}

func (m *Metrics) incWithdrawals(outcome string) {
	m.withdrawals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSubmitDuration(seconds float64) {
	m.submitDuration.Observe(seconds)
}

func (m *Metrics) setAuditDegraded(degraded bool) {
	if degraded {
		m.auditDegraded.Set(1)
		return
	}
	m.auditDegraded.Set(0)
}

func (m *Metrics) incRateLimitChecks(allowed bool) {
	label := "false"
	if allowed {
		label = "true"
	}
	m.rateLimitChecks.WithLabelValues(label).Inc()
}
