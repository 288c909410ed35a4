package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// TransactionEvent describes a ledger row at the moment it changed status.
// Shared by completed, failed, refunded, disputed and unlock reconciliation events.
type TransactionEvent struct {
	TransactionID   uuid.UUID               `json:"transaction_id"`
	MemberID        uuid.UUID               `json:"member_id"`
	CreatorID       uuid.UUID               `json:"creator_id"`
	Type            enums.TransactionType   `json:"type"`
	ContentID       *uuid.UUID              `json:"content_id,omitempty"`
	BundleID        *uuid.UUID              `json:"bundle_id,omitempty"`
	Amount          decimal.Decimal         `json:"amount"`
	CreatorEarnings decimal.Decimal         `json:"creator_earnings"`
	PlatformFeeRate decimal.Decimal         `json:"platform_fee_rate"`
	Currency        string                  `json:"currency"`
	Status          enums.TransactionStatus `json:"status"`
	ExternalRef     string                  `json:"external_ref,omitempty"`
	Reason          string                  `json:"reason,omitempty"`
	OccurredAt      time.Time               `json:"occurred_at"`
}

// RefundReconciliationEvent flags a refund of money that a processed payout already paid out.
type RefundReconciliationEvent struct {
	TransactionID         uuid.UUID            `json:"transaction_id"`
	CreatorID             uuid.UUID            `json:"creator_id"`
	PayoutRequestID       *uuid.UUID           `json:"payout_request_id,omitempty"`
	Amount                decimal.Decimal      `json:"amount"`
	CreatorEarnings       decimal.Decimal      `json:"creator_earnings"`
	ClawbackPolicy        enums.RefundClawback `json:"clawback_policy"`
	ReversalTransactionID *uuid.UUID           `json:"reversal_transaction_id,omitempty"`
}

// PayoutEvent describes a payout request transition.
type PayoutEvent struct {
	PayoutRequestID  uuid.UUID          `json:"payout_request_id"`
	CreatorID        uuid.UUID          `json:"creator_id"`
	Status           enums.PayoutStatus `json:"status"`
	RequestedAmount  decimal.Decimal    `json:"requested_amount"`
	AvailableAmount  decimal.Decimal    `json:"available_amount"`
	PayoutAmount     decimal.Decimal    `json:"payout_amount"`
	TransactionCount int                `json:"transaction_count"`
	ReviewedBy       *uuid.UUID         `json:"reviewed_by,omitempty"`
	Reason           string             `json:"reason,omitempty"`
	PaymentReference string             `json:"payment_reference,omitempty"`
}
