// Package router maps ledger events onto rows of the ledger_events
// BigQuery table.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows.
type Writer interface {
	InsertLedger(ctx context.Context, row types.LedgerEventRow) error
}

// projection turns an envelope into the row to insert.
type projection func(envelope types.Envelope) (types.LedgerEventRow, error)

// decoded adapts a typed projection: the payload is decoded into a fresh T
// before project sees it.
func decoded[T any](project func(types.Envelope, *T) (types.LedgerEventRow, error)) projection {
	return func(envelope types.Envelope) (types.LedgerEventRow, error) {
		event := new(T)
		if err := json.Unmarshal(envelope.Payload, event); err != nil {
			return types.LedgerEventRow{}, fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
		}
		return project(envelope, event)
	}
}

// Router dispatches ledger envelopes by event type.
type Router struct {
	writer      Writer
	logg        *logger.Logger
	projections map[enums.OutboxEventType]projection
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	switch {
	case writer == nil:
		return nil, errors.New("writer is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}

	transaction := decoded[payloads.TransactionEvent](transactionRow)
	payout := decoded[payloads.PayoutEvent](payoutRow)
	return &Router{
		writer: writer,
		logg:   logg,
		projections: map[enums.OutboxEventType]projection{
			enums.EventTransactionCompleted:         transaction,
			enums.EventTransactionFailed:            transaction,
			enums.EventTransactionRefunded:          transaction,
			enums.EventTransactionDisputed:          transaction,
			enums.EventUnlockReconciliationRequired: transaction,
			enums.EventRefundReconciliationRequired: decoded[payloads.RefundReconciliationEvent](reconciliationRow),
			enums.EventPayoutRequested:              payout,
			enums.EventPayoutApproved:               payout,
			enums.EventPayoutRejected:               payout,
			enums.EventPayoutProcessed:              payout,
			enums.EventPayoutCancelled:              payout,
		},
	}, nil
}

// EventTypes lists the routed event types in sorted order.
func (r *Router) EventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.projections))
	for eventType := range r.projections {
		out = append(out, eventType)
	}
	slices.Sort(out)
	return out
}

// Handle projects the envelope and inserts the resulting row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	project, ok := r.projections[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}

	row, err := project(envelope)
	logCtx := r.logg.WithFields(ctx, rowFields(envelope, row))
	if err != nil {
		r.logg.Error(logCtx, "failed to build ledger row", err)
		return err
	}
	if err := r.writer.InsertLedger(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert ledger row", err)
		return err
	}
	if envelope.EventType == enums.EventRefundReconciliationRequired {
		r.logg.Warn(logCtx, "refund of paid-out transaction recorded")
	}
	return nil
}

func rowFields(envelope types.Envelope, row types.LedgerEventRow) map[string]any {
	fields := map[string]any{
		"event_id":   envelope.EventID.String(),
		"event_type": envelope.EventType,
	}
	if row.CreatorID != "" {
		fields[logger.FieldCreatorID] = row.CreatorID
	}
	if row.TransactionID != nil {
		fields[logger.FieldTransactionID] = *row.TransactionID
	}
	if row.PayoutRequestID != nil {
		fields[logger.FieldPayoutRequestID] = *row.PayoutRequestID
	}
	if row.Status != "" {
		fields["status"] = row.Status
	}
	return fields
}
