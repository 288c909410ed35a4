package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics records publisher throughput and backlog.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	backlog   prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_total",
		Help:      "Outbox publish attempts by topic and result.",
	}, []string{"topic", "result"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "backlog",
		Help:      "Unpublished outbox rows still eligible for delivery.",
	})
	reg.MustRegister(published, backlog)
	return &OutboxMetrics{published: published, backlog: backlog}
}

func (m *OutboxMetrics) IncPublish(topic, result string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(label(topic), label(result)).Inc()
}

func (m *OutboxMetrics) SetBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
