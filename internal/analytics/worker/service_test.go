package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/router"
	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/idempotency"
)

type stubHandler struct {
	calls    int
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.calls++
	h.envelope = envelope
	return h.err
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "cv:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type fakeReceiver struct {
	messages []*gcppubsub.Message
}

func (f *fakeReceiver) Receive(ctx context.Context, fn func(context.Context, *gcppubsub.Message)) error {
	for _, msg := range f.messages {
		fn(ctx, msg)
	}
	return nil
}

type harness struct {
	svc     *Service
	handler *stubHandler
	store   *memoryStore
	reg     *prometheus.Registry
}

func newHarness(t *testing.T, messages ...*gcppubsub.Message) *harness {
	t.Helper()
	h := &harness{handler: &stubHandler{}, store: newMemoryStore(), reg: prometheus.NewRegistry()}
	manager, err := idempotency.NewManager(h.store, time.Hour)
	require.NoError(t, err)
	h.svc, err = NewService(ServiceParams{
		Subscription: &fakeReceiver{messages: messages},
		Handler:      h.handler,
		Guard:        manager,
		Logger:       logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
		Metrics:      metrics.NewConsumerMetrics(h.reg, ConsumerName),
	})
	require.NoError(t, err)
	return h
}

func ledgerMessage(t *testing.T, eventID string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"status":"completed"}`),
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: data,
		Attributes: map[string]string{
			outbox.AttrEventType:     string(enums.EventTransactionCompleted),
			outbox.AttrAggregateType: string(enums.AggregateTransaction),
			outbox.AttrAggregateID:   uuid.NewString(),
		},
	}
}

func TestProcessRecordsOnce(t *testing.T) {
	h := newHarness(t)
	msg := ledgerMessage(t, uuid.NewString())

	assert.Equal(t, metrics.ConsumeRecorded, h.svc.process(context.Background(), msg))
	assert.Equal(t, metrics.ConsumeDuplicate, h.svc.process(context.Background(), msg))
	assert.Equal(t, 1, h.handler.calls)
	assert.Equal(t, enums.EventTransactionCompleted, h.handler.envelope.EventType)
}

func TestProcessHandlerErrorAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.handler.err = errors.New("bigquery unavailable")
	msg := ledgerMessage(t, uuid.NewString())

	assert.Equal(t, metrics.ConsumeFailed, h.svc.process(context.Background(), msg))
	assert.Empty(t, h.store.values, "marker should be released")

	h.handler.err = nil
	assert.Equal(t, metrics.ConsumeRecorded, h.svc.process(context.Background(), msg))
	assert.Equal(t, 2, h.handler.calls)
}

func TestProcessIdempotencyFailureNacks(t *testing.T) {
	h := newHarness(t)
	h.store.setErr = errors.New("redis down")

	assert.Equal(t, metrics.ConsumeFailed, h.svc.process(context.Background(), ledgerMessage(t, uuid.NewString())))
	assert.Zero(t, h.handler.calls)
}

func TestProcessDropsUnprocessableMessages(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, metrics.ConsumeMalformed, h.svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}))
	assert.Equal(t, metrics.ConsumeMalformed, h.svc.process(context.Background(), ledgerMessage(t, "evt-1")))

	h.handler.err = fmt.Errorf("route: %w", router.ErrUnsupportedEventType)
	assert.Equal(t, metrics.ConsumeUnsupported, h.svc.process(context.Background(), ledgerMessage(t, uuid.NewString())))
	assert.Equal(t, 1, h.handler.calls)
}

func TestRunRecordsOutcomeMetrics(t *testing.T) {
	duplicate := ledgerMessage(t, uuid.NewString())
	h := newHarness(t, duplicate, duplicate, &gcppubsub.Message{Data: []byte("{")})

	require.NoError(t, h.svc.Run(context.Background()))
	assert.Equal(t, 1, h.handler.calls)

	expected := `
# HELP creatorvault_consumer_messages_total Delivered messages by consumer, event type and outcome.
# TYPE creatorvault_consumer_messages_total counter
creatorvault_consumer_messages_total{consumer="analytics",event_type="transaction_completed",outcome="duplicate"} 1
creatorvault_consumer_messages_total{consumer="analytics",event_type="transaction_completed",outcome="recorded"} 1
creatorvault_consumer_messages_total{consumer="analytics",event_type="unknown",outcome="malformed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "creatorvault_consumer_messages_total"))
}

func TestNewServiceValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
	manager, err := idempotency.NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	valid := ServiceParams{Subscription: &fakeReceiver{}, Handler: &stubHandler{}, Guard: manager, Logger: logg}

	_, err = NewService(valid)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*ServiceParams){
		"subscription": func(p *ServiceParams) { p.Subscription = nil },
		"handler":      func(p *ServiceParams) { p.Handler = nil },
		"guard":        func(p *ServiceParams) { p.Guard = nil },
		"logger":       func(p *ServiceParams) { p.Logger = nil },
	} {
		t.Run(name, func(t *testing.T) {
			params := valid
			mutate(&params)
			_, err := NewService(params)
			assert.Error(t, err)
		})
	}
}
