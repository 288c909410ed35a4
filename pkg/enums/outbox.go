package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransaction   OutboxAggregateType = "transaction"
	AggregatePayoutRequest OutboxAggregateType = "payout_request"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransaction,
	AggregatePayoutRequest,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransactionCompleted         OutboxEventType = "transaction_completed"
	EventTransactionFailed            OutboxEventType = "transaction_failed"
	EventTransactionRefunded          OutboxEventType = "transaction_refunded"
	EventTransactionDisputed          OutboxEventType = "transaction_disputed"
	EventRefundReconciliationRequired OutboxEventType = "refund_reconciliation_required"
	EventUnlockReconciliationRequired OutboxEventType = "unlock_reconciliation_required"
	EventPayoutRequested              OutboxEventType = "payout_requested"
	EventPayoutApproved               OutboxEventType = "payout_approved"
	EventPayoutRejected               OutboxEventType = "payout_rejected"
	EventPayoutProcessed              OutboxEventType = "payout_processed"
	EventPayoutCancelled              OutboxEventType = "payout_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransactionCompleted,
	EventTransactionFailed,
	EventTransactionRefunded,
	EventTransactionDisputed,
	EventRefundReconciliationRequired,
	EventUnlockReconciliationRequired,
	EventPayoutRequested,
	EventPayoutApproved,
	EventPayoutRejected,
	EventPayoutProcessed,
	EventPayoutCancelled,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
