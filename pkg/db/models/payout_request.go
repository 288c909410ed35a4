package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// PayoutRequest is a creator's withdrawal request over a fixed snapshot of
// completed, unclaimed transactions.
type PayoutRequest struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID        uuid.UUID          `gorm:"column:creator_id;type:uuid;not null"`
	RequestedAmount  decimal.Decimal    `gorm:"column:requested_amount;type:numeric(12,2);not null"`
	AvailableAmount  decimal.Decimal    `gorm:"column:available_amount;type:numeric(12,2);not null"`
	PayoutAmount     decimal.Decimal    `gorm:"column:payout_amount;type:numeric(12,2);not null"`
	Currency         string             `gorm:"column:currency;not null;default:USD"`
	Status           enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null"`
	PaypalEmail      string             `gorm:"column:paypal_email"`
	ReviewedBy       *uuid.UUID         `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt       *time.Time         `gorm:"column:reviewed_at"`
	RejectionReason  *string            `gorm:"column:rejection_reason"`
	ProcessedAt      *time.Time         `gorm:"column:processed_at"`
	PaymentReference *string            `gorm:"column:payment_reference"`
	CancelledAt      *time.Time         `gorm:"column:cancelled_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Transactions []PayoutRequestTransaction `gorm:"foreignKey:PayoutRequestID;references:ID"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

// TransactionIDs returns the snapshotted transaction ids in insertion order.
func (p PayoutRequest) TransactionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Transactions))
	for _, link := range p.Transactions {
		ids = append(ids, link.TransactionID)
	}
	return ids
}

// PayoutRequestTransaction links a payout request to one snapshotted transaction.
type PayoutRequestTransaction struct {
	PayoutRequestID uuid.UUID       `gorm:"column:payout_request_id;type:uuid;primaryKey"`
	TransactionID   uuid.UUID       `gorm:"column:transaction_id;type:uuid;primaryKey"`
	Earnings        decimal.Decimal `gorm:"column:earnings;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PayoutRequestTransaction) TableName() string { return "payout_request_transactions" }
