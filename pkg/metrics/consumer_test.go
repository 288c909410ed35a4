package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsumerMetrics(reg, "analytics")

	m.Observe("transaction_completed", ConsumeRecorded, 40*time.Millisecond)
	m.Observe("transaction_completed", ConsumeDuplicate, time.Millisecond)
	m.Observe("", ConsumeMalformed, time.Millisecond)

	expected := `
# HELP creatorvault_consumer_messages_total Delivered messages by consumer, event type and outcome.
# TYPE creatorvault_consumer_messages_total counter
creatorvault_consumer_messages_total{consumer="analytics",event_type="transaction_completed",outcome="duplicate"} 1
creatorvault_consumer_messages_total{consumer="analytics",event_type="transaction_completed",outcome="recorded"} 1
creatorvault_consumer_messages_total{consumer="analytics",event_type="unknown",outcome="malformed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "creatorvault_consumer_messages_total"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "creatorvault_consumer_handle_seconds", "consumer", "analytics")
	require.NoError(t, err)
	assert.InDelta(t, 0.042, sum, 1e-9)
}

func TestConsumerMetricsNilIsNoop(t *testing.T) {
	m := NewConsumerMetrics(nil, "analytics")
	assert.Nil(t, m)
	assert.NotPanics(t, func() { m.Observe("x", ConsumeFailed, time.Second) })
}
