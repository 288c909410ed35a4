package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/creatorvault-backend/pkg/db/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// Transaction is the canonical ledger record for a monetary event between a
// member and a creator.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	MemberID         uuid.UUID               `gorm:"column:member_id;type:uuid;not null"`
	CreatorID        uuid.UUID               `gorm:"column:creator_id;type:uuid;not null"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type_enum;not null"`
	ContentID        *uuid.UUID              `gorm:"column:content_id;type:uuid"`
	BundleID         *uuid.UUID              `gorm:"column:bundle_id;type:uuid"`
	OfferID          *uuid.UUID              `gorm:"column:offer_id;type:uuid"`
	BundleContentIDs dbtypes.UUIDArray       `gorm:"column:bundle_content_ids;type:uuid[]"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	OriginalPrice    *decimal.Decimal        `gorm:"column:original_price;type:numeric(12,2)"`
	DiscountPercent  *decimal.Decimal        `gorm:"column:discount_percent;type:numeric(5,2)"`
	PlatformFeeRate  decimal.Decimal         `gorm:"column:platform_fee_rate;type:numeric(5,4);not null"`
	CreatorEarnings  decimal.Decimal         `gorm:"column:creator_earnings;type:numeric(12,2);not null;default:0"`
	Currency         string                  `gorm:"column:currency;not null;default:USD"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null"`
	PaymentMethodRef string                  `gorm:"column:payment_method_ref"`
	IdempotencyKey   *string                 `gorm:"column:idempotency_key"`
	ExternalRef      *string                 `gorm:"column:external_ref"`
	FailureReason    *string                 `gorm:"column:failure_reason"`
	PayoutProcessed  bool                    `gorm:"column:payout_processed;not null;default:false"`
	PayoutRequestID  *uuid.UUID              `gorm:"column:payout_request_id;type:uuid"`
	ReversalOf       *uuid.UUID              `gorm:"column:reversal_of;type:uuid"`
	CompletedAt      *time.Time              `gorm:"column:completed_at"`
	RefundedAt       *time.Time              `gorm:"column:refunded_at"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	StatusHistory []TransactionStatusChange `gorm:"foreignKey:TransactionID;references:ID"`
}

func (Transaction) TableName() string { return "transactions" }

// TargetID returns the purchase target the row was charged for.
func (t Transaction) TargetID() uuid.UUID {
	switch {
	case t.ContentID != nil && t.Type == enums.TransactionTypeContentUnlock:
		return *t.ContentID
	case t.BundleID != nil && t.Type == enums.TransactionTypeBundleUnlock:
		return *t.BundleID
	default:
		return t.CreatorID
	}
}

// CoversContent reports whether a completed row of this shape entitles its
// member to contentID.
func (t Transaction) CoversContent(contentID uuid.UUID) bool {
	if t.Status != enums.TransactionStatusCompleted {
		return false
	}
	switch t.Type {
	case enums.TransactionTypeContentUnlock:
		return t.ContentID != nil && *t.ContentID == contentID
	case enums.TransactionTypeBundleUnlock, enums.TransactionTypeProfileUnlock:
		return t.BundleContentIDs.Contains(contentID)
	}
	return false
}

// TransactionStatusChange is one append-only entry in a transaction's status log.
type TransactionStatusChange struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID                `gorm:"column:transaction_id;type:uuid;not null"`
	FromStatus    *enums.TransactionStatus `gorm:"column:from_status;type:transaction_status_enum"`
	ToStatus      enums.TransactionStatus  `gorm:"column:to_status;type:transaction_status_enum;not null"`
	Reason        string                   `gorm:"column:reason"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (TransactionStatusChange) TableName() string { return "transaction_status_history" }
