// Package registry decides where each outbox event is published and checks
// that a row is publishable before it leaves the database.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

// EventDescriptor is where one event type goes and which aggregate it
// belongs to.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a row that passed Resolve.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks failures that republishing cannot fix.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

type entry struct {
	EventDescriptor
	decode func(json.RawMessage) (any, error)
}

// decodeAs decodes the envelope data into a fresh T.
func decodeAs[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventRegistry maps event types to their descriptors.
type EventRegistry struct {
	entries map[enums.OutboxEventType]entry
}

// NewEventRegistry routes ledger events to the ledger topic, read by
// analytics and finance, and payout transitions to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var errs error
	if cfg.LedgerTopic == "" {
		errs = multierr.Append(errs, errors.New("ledger topic is required"))
	}
	if cfg.NotificationTopic == "" {
		errs = multierr.Append(errs, errors.New("notification topic is required"))
	}
	if errs != nil {
		return nil, errs
	}

	r := &EventRegistry{entries: map[enums.OutboxEventType]entry{}}
	r.route(enums.AggregateTransaction, cfg.LedgerTopic, decodeAs[payloads.TransactionEvent],
		enums.EventTransactionCompleted,
		enums.EventTransactionFailed,
		enums.EventTransactionRefunded,
		enums.EventTransactionDisputed,
		enums.EventUnlockReconciliationRequired,
	)
	r.route(enums.AggregateTransaction, cfg.LedgerTopic, decodeAs[payloads.RefundReconciliationEvent],
		enums.EventRefundReconciliationRequired,
	)
	r.route(enums.AggregatePayoutRequest, cfg.NotificationTopic, decodeAs[payloads.PayoutEvent],
		enums.EventPayoutRequested,
		enums.EventPayoutApproved,
		enums.EventPayoutRejected,
		enums.EventPayoutProcessed,
		enums.EventPayoutCancelled,
	)
	return r, nil
}

func (r *EventRegistry) route(aggregate enums.OutboxAggregateType, topic string, decode func(json.RawMessage) (any, error), events ...enums.OutboxEventType) {
	for _, eventType := range events {
		r.entries[eventType] = entry{
			EventDescriptor: EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic},
			decode:          decode,
		}
	}
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, 2)
	for _, e := range r.entries {
		topics = append(topics, e.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Descriptor returns the routing for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	e, ok := r.entries[eventType]
	return e.EventDescriptor, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row will not change on its own.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	e, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", row.EventType)
	case e.AggregateType != row.AggregateType:
		return nil, rejectf("aggregate mismatch: expected %s got %s", e.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, rejectf("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, rejectf("decode envelope: %w", err)
	}
	if envelope.Version > outbox.EnvelopeVersion {
		return nil, rejectf("envelope version %d is newer than %d", envelope.Version, outbox.EnvelopeVersion)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, rejectf("payload missing for %s", row.EventType)
	}
	payload, err := e.decode(envelope.Data)
	if err != nil {
		return nil, rejectf("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: e.EventDescriptor, Envelope: envelope, Payload: payload}, nil
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
