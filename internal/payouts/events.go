package payouts

import (
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

func payloadFor(r *models.PayoutRequest, reason string) payloads.PayoutEvent {
	event := payloads.PayoutEvent{
		PayoutRequestID:  r.ID,
		CreatorID:        r.CreatorID,
		Status:           r.Status,
		RequestedAmount:  r.RequestedAmount,
		AvailableAmount:  r.AvailableAmount,
		PayoutAmount:     r.PayoutAmount,
		TransactionCount: len(r.Transactions),
		ReviewedBy:       r.ReviewedBy,
		Reason:           reason,
	}
	if r.PaymentReference != nil {
		event.PaymentReference = *r.PaymentReference
	}
	return event
}
