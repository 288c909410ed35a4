package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/creatorvault-backend/pkg/db/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// Content is a single priced item a member can unlock.
type Content struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID       uuid.UUID           `gorm:"column:creator_id;type:uuid;not null"`
	Title           string              `gorm:"column:title;not null"`
	Price           decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountPercent *decimal.Decimal    `gorm:"column:discount_percent;type:numeric(5,2)"`
	OriginalPrice   *decimal.Decimal    `gorm:"column:original_price;type:numeric(12,2)"`
	Status          enums.ContentStatus `gorm:"column:status;type:content_status_enum;not null"`
	UnlockCount     int64               `gorm:"column:unlock_count;not null;default:0"`
	ViewCount       int64               `gorm:"column:view_count;not null;default:0"`
	RevenueTotal    decimal.Decimal     `gorm:"column:revenue_total;type:numeric(12,2);not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Content) TableName() string { return "contents" }

// Bundle groups content items sold together at one price.
type Bundle struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID       uuid.UUID           `gorm:"column:creator_id;type:uuid;not null"`
	Title           string              `gorm:"column:title;not null"`
	Price           decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountPercent *decimal.Decimal    `gorm:"column:discount_percent;type:numeric(5,2)"`
	ContentIDs      dbtypes.UUIDArray   `gorm:"column:content_ids;type:uuid[];not null"`
	Status          enums.ContentStatus `gorm:"column:status;type:content_status_enum;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Bundle) TableName() string { return "bundles" }

// CreatorPayoutSettings carries per-creator payout preferences.
type CreatorPayoutSettings struct {
	CreatorID          uuid.UUID        `gorm:"column:creator_id;type:uuid;primaryKey"`
	MinimumPayout      *decimal.Decimal `gorm:"column:minimum_payout;type:numeric(12,2)"`
	PaypalEmail        string           `gorm:"column:paypal_email"`
	ProfileUnlockPrice *decimal.Decimal `gorm:"column:profile_unlock_price;type:numeric(12,2)"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (CreatorPayoutSettings) TableName() string { return "creator_payout_settings" }
