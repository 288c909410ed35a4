package ledger

import (
	"time"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

// TransactionEvent builds the outbox event describing txn's current state.
func TransactionEvent(eventType enums.OutboxEventType, txn *models.Transaction, actor *outbox.ActorRef, reason string, at time.Time) outbox.DomainEvent {
	data := payloads.TransactionEvent{
		TransactionID:   txn.ID,
		MemberID:        txn.MemberID,
		CreatorID:       txn.CreatorID,
		Type:            txn.Type,
		ContentID:       txn.ContentID,
		BundleID:        txn.BundleID,
		Amount:          txn.Amount,
		CreatorEarnings: txn.CreatorEarnings,
		PlatformFeeRate: txn.PlatformFeeRate,
		Currency:        txn.Currency,
		Status:          txn.Status,
		Reason:          reason,
		OccurredAt:      at,
	}
	if txn.ExternalRef != nil {
		data.ExternalRef = *txn.ExternalRef
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Version:       1,
		Actor:         actor,
		OccurredAt:    at,
		Data:          data,
	}
}
