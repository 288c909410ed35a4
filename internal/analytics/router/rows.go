package router

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	"github.com/angelmondragon/creatorvault-backend/internal/analytics/writer"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

func transactionRow(envelope types.Envelope, event *payloads.TransactionEvent) (types.LedgerEventRow, error) {
	row, err := baseRow(envelope, event.CreatorID, string(event.Status), event)
	if err != nil {
		return row, err
	}
	row.TransactionID = idPtr(event.TransactionID)
	row.MemberID = idPtr(event.MemberID)
	row.TransactionType = textPtr(string(event.Type))
	row.Amount = event.Amount.Rat()
	row.CreatorEarnings = event.CreatorEarnings.Rat()
	row.Currency = textPtr(event.Currency)
	row.Reason = textPtr(event.Reason)
	return row, nil
}

// reconciliationRow stores the clawback policy as the status so finance can
// tell out-of-band refunds from netted ones.
func reconciliationRow(envelope types.Envelope, event *payloads.RefundReconciliationEvent) (types.LedgerEventRow, error) {
	row, err := baseRow(envelope, event.CreatorID, string(event.ClawbackPolicy), event)
	if err != nil {
		return row, err
	}
	row.TransactionID = idPtr(event.TransactionID)
	if event.PayoutRequestID != nil {
		row.PayoutRequestID = idPtr(*event.PayoutRequestID)
	}
	row.Amount = event.Amount.Rat()
	row.CreatorEarnings = event.CreatorEarnings.Rat()
	return row, nil
}

// payoutRow leaves creator_earnings NULL: a payout is not an earning.
func payoutRow(envelope types.Envelope, event *payloads.PayoutEvent) (types.LedgerEventRow, error) {
	row, err := baseRow(envelope, event.CreatorID, string(event.Status), event)
	if err != nil {
		return row, err
	}
	row.PayoutRequestID = idPtr(event.PayoutRequestID)
	row.Amount = event.PayoutAmount.Rat()
	row.Reason = textPtr(event.Reason)
	return row, nil
}

func baseRow(envelope types.Envelope, creatorID uuid.UUID, status string, raw any) (types.LedgerEventRow, error) {
	row := types.LedgerEventRow{
		EventID:    envelope.EventID.String(),
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		CreatorID:  creatorID.String(),
		Status:     status,
	}
	payload, err := writer.EncodeJSON(raw)
	if err != nil {
		return row, err
	}
	row.Payload = payload
	return row, nil
}

func textPtr(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}

func idPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return textPtr(id.String())
}
