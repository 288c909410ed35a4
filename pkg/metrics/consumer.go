package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Consumer outcomes. Only ConsumeFailed leads to a redelivery.
const (
	ConsumeRecorded    = "recorded"
	ConsumeDuplicate   = "duplicate"
	ConsumeMalformed   = "malformed"
	ConsumeUnsupported = "unsupported"
	ConsumeFailed      = "failed"
)

// ConsumerMetrics counts Pub/Sub deliveries handled by one consumer.
type ConsumerMetrics struct {
	consumer string
	handled  *prometheus.CounterVec
	latency  prometheus.Observer
}

// NewConsumerMetrics registers on reg. A nil registerer yields a no-op
// recorder.
func NewConsumerMetrics(reg prometheus.Registerer, consumer string) *ConsumerMetrics {
	if reg == nil {
		return nil
	}
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Delivered messages by consumer, event type and outcome.",
	}, []string{"consumer", "event_type", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "handle_seconds",
		Help:      "Time from delivery to ack or nack.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"consumer"})
	reg.MustRegister(handled, latency)
	return &ConsumerMetrics{
		consumer: label(consumer),
		handled:  handled,
		latency:  latency.WithLabelValues(label(consumer)),
	}
}

// Observe records one handled delivery.
func (m *ConsumerMetrics) Observe(eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(m.consumer, label(eventType), label(outcome)).Inc()
	m.latency.Observe(elapsed.Seconds())
}
