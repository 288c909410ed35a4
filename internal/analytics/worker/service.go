// Package worker consumes ledger events from Pub/Sub and hands each one to
// the analytics router at most once.
package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/router"
	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/idempotency"
)

// ConsumerName scopes idempotency markers and metrics.
const ConsumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type ServiceParams struct {
	Subscription receiver
	Handler      Handler
	Guard        *idempotency.Manager
	Logger       *logger.Logger
	Metrics      *metrics.ConsumerMetrics
}

// Service acks everything it can never process and nacks only failures a
// redelivery may fix.
type Service struct {
	subscription receiver
	handler      Handler
	guard        *idempotency.Manager
	logg         *logger.Logger
	metrics      *metrics.ConsumerMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case params.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case params.Guard == nil:
		return nil, errors.New("idempotency manager is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: params.Subscription,
		handler:      params.Handler,
		guard:        params.Guard,
		logg:         params.Logger,
		metrics:      params.Metrics,
		now:          time.Now,
	}, nil
}

// Run consumes until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == metrics.ConsumeFailed {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process handles one delivery and returns its outcome.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) (outcome string) {
	started := s.now()
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)
	var eventType string
	defer func() { s.metrics.Observe(eventType, outcome, s.now().Sub(started)) }()

	envelope, err := types.DecodeEnvelope(msg.Data, msg.Attributes)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping malformed ledger event")
		return metrics.ConsumeMalformed
	}
	eventType = string(envelope.EventType)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID.String(),
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID.String(),
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	ran, err := s.guard.Process(logCtx, ConsumerName, envelope.EventID, func(handlerCtx context.Context) error {
		return s.handler.Handle(handlerCtx, envelope)
	})
	switch {
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(logCtx, "no analytics projection for event type")
		return metrics.ConsumeUnsupported
	case err != nil && !ran:
		s.logg.Error(logCtx, "idempotency check failed", err)
		return metrics.ConsumeFailed
	case err != nil:
		s.logg.Error(logCtx, "analytics handler failed", err)
		return metrics.ConsumeFailed
	case !ran:
		s.logg.Debug(logCtx, "event already processed")
		return metrics.ConsumeDuplicate
	}
	s.logg.Info(logCtx, "analytics event recorded")
	return metrics.ConsumeRecorded
}
