package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsExportsUnlockAndPayoutCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.IncUnlock("content_unlock", OutcomeCompleted)
	m.IncUnlock("content_unlock", OutcomeCompleted)
	m.IncUnlock("content_unlock", OutcomeAlreadyUnlocked)
	m.ObserveCharge(OutcomeCompleted, 400*time.Millisecond)
	m.IncPayoutTransition("processed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "creatorvault_unlock_attempts_total", "outcome", OutcomeCompleted); err != nil {
		t.Fatalf("fetch unlocks: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 completed unlocks, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "creatorvault_unlock_attempts_total", "outcome", OutcomeAlreadyUnlocked); err != nil {
		t.Fatalf("fetch duplicates: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 duplicate, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "creatorvault_payout_transitions_total", "to", "processed"); err != nil {
		t.Fatalf("fetch payouts: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 processed transition, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "creatorvault_gateway_charge_seconds", "outcome", OutcomeCompleted); err != nil {
		t.Fatalf("fetch charge latency: %v", err)
	} else if got < 0.39 || got > 0.41 {
		t.Fatalf("expected charge sum ~0.4, got %f", got)
	}
}

func TestOutboxMetricsBacklogGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.SetBacklog(7)
	m.IncPublish("ledger", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "creatorvault_outbox_backlog")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("backlog gauge not exported")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Fatalf("expected backlog 7, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "creatorvault_outbox_publish_total", "result", "ok"); err != nil || got != 1 {
		t.Fatalf("expected one ok publish, got %f err=%v", got, err)
	}
}
