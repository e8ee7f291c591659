// Package metrics holds the prometheus collectors of the decision pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinel"

type Metrics struct {
	decisions       *prometheus.CounterVec
	riskScore       prometheus.Histogram
	strikesApplied  *prometheus.CounterVec
	strikesReversed *prometheus.CounterVec
	strikesExpired  prometheus.Counter
	claims          *prometheus.CounterVec
	royaltyAccrued  prometheus.Counter
	royaltyPaid     prometheus.Counter
	detectorErrors  *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_transitions_total",
			Help:      "moderation records entering each status",
		}, []string{"status"}),
		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "moderation_risk_score",
			Help:      "risk score computed on each detection pass",
			Buckets:   []float64{0, 20, 40, 60, 80, 100},
		}),
		strikesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_applied_total",
			Help:      "ledger entries appended",
		}, []string{"action", "source"}),
		strikesReversed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_reversed_total",
			Help:      "ledger entries reversed on appeal",
		}, []string{"source"}),
		strikesExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_expired_total",
			Help:      "temporary actions that lapsed",
		}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rights_claims_total",
			Help:      "claims filed by action",
		}, []string{"action", "automated"}),
		royaltyAccrued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalty_accrued_minor_units_total",
			Help:      "royalties credited to rights holders in minor currency units",
		}),
		royaltyPaid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalty_paid_minor_units_total",
			Help:      "royalties paid out in minor currency units",
		}),
		detectorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_errors_total",
			Help:      "failed or short-circuited detector calls",
		}, []string{"provider"}),
		conflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "optimistic concurrency retries",
		}, []string{"operation"}),
	}
}

func (m *Metrics) Transition(status string) {
	if m != nil {
		m.decisions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RiskScore(score int) {
	if m != nil {
		m.riskScore.Observe(float64(score))
	}
}

func (m *Metrics) StrikeApplied(action, source string) {
	if m != nil {
		m.strikesApplied.WithLabelValues(action, source).Inc()
	}
}

func (m *Metrics) StrikeReversed(source string) {
	if m != nil {
		m.strikesReversed.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) StrikeExpired() {
	if m != nil {
		m.strikesExpired.Inc()
	}
}

func (m *Metrics) ClaimFiled(action string, automated bool) {
	if m == nil {
		return
	}
	label := "false"
	if automated {
		label = "true"
	}
	m.claims.WithLabelValues(action, label).Inc()
}

func (m *Metrics) RoyaltyAccrued(amount int64) {
	if m != nil && amount > 0 {
		m.royaltyAccrued.Add(float64(amount))
	}
}

func (m *Metrics) RoyaltyPaid(amount int64) {
	if m != nil && amount > 0 {
		m.royaltyPaid.Add(float64(amount))
	}
}

func (m *Metrics) DetectorError(provider string) {
	if m != nil {
		m.detectorErrors.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) ConflictRetry(operation string) {
	if m != nil {
		m.conflictRetries.WithLabelValues(operation).Inc()
	}
}
