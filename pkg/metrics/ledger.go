package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "creatorvault"

// Unlock outcomes.
const (
	OutcomeCompleted       = "completed"
	OutcomeAlreadyUnlocked = "already_unlocked"
	OutcomePaymentFailed   = "payment_failed"
	OutcomeRejected        = "rejected"
	OutcomeError           = "error"
)

// LedgerMetrics records unlock, gateway and payout activity.
type LedgerMetrics struct {
	unlocks *prometheus.CounterVec
	charge  *prometheus.HistogramVec
	payouts *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg. A nil registerer
// yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	unlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unlock_attempts_total",
		Help:      "Purchase attempts by transaction type and outcome.",
	}, []string{"type", "outcome"})
	charge := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_charge_seconds",
		Help:      "Latency of payment gateway charges.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_transitions_total",
		Help:      "Payout request state transitions by target state.",
	}, []string{"to"})
	reg.MustRegister(unlocks, charge, payouts)
	return &LedgerMetrics{unlocks: unlocks, charge: charge, payouts: payouts}
}

// IncUnlock counts one purchase attempt.
func (m *LedgerMetrics) IncUnlock(txnType, outcome string) {
	if m == nil || m.unlocks == nil {
		return
	}
	m.unlocks.WithLabelValues(label(txnType), label(outcome)).Inc()
}

// ObserveCharge records how long the gateway took to answer.
func (m *LedgerMetrics) ObserveCharge(outcome string, d time.Duration) {
	if m == nil || m.charge == nil {
		return
	}
	m.charge.WithLabelValues(label(outcome)).Observe(d.Seconds())
}

// IncPayoutTransition counts a payout request entering status to.
func (m *LedgerMetrics) IncPayoutTransition(to string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(label(to)).Inc()
}
