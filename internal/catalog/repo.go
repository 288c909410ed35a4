package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// Repository reads the content-serving collaborator's catalog tables and
// maintains its best-effort counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	FindBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error)
	FindCreatorSettings(ctx context.Context, creatorID uuid.UUID) (*models.CreatorPayoutSettings, error)
	ListCreatorContentIDs(ctx context.Context, creatorID uuid.UUID) ([]uuid.UUID, error)
	IncrementUnlockStats(ctx context.Context, contentIDs []uuid.UUID, revenue decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	var content models.Content
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&content).Error; err != nil {
		return nil, err
	}
	return &content, nil
}

func (r *repository) FindBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bundle).Error; err != nil {
		return nil, err
	}
	return &bundle, nil
}

// FindCreatorSettings returns gorm.ErrRecordNotFound when the creator never saved settings.
func (r *repository) FindCreatorSettings(ctx context.Context, creatorID uuid.UUID) (*models.CreatorPayoutSettings, error) {
	var settings models.CreatorPayoutSettings
	if err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// ListCreatorContentIDs returns the creator's published content, oldest first.
func (r *repository) ListCreatorContentIDs(ctx context.Context, creatorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Content{}).
		Where("creator_id = ? AND status = ?", creatorID, enums.ContentStatusPublished).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// IncrementUnlockStats bumps unlock_count on every item and spreads revenue
// evenly across them. The counters are display-only.
func (r *repository) IncrementUnlockStats(ctx context.Context, contentIDs []uuid.UUID, revenue decimal.Decimal) error {
	if len(contentIDs) == 0 {
		return nil
	}
	share := revenue.Div(decimal.NewFromInt(int64(len(contentIDs)))).Round(2)
	var errs []error
	for _, id := range contentIDs {
		res := r.db.WithContext(ctx).
			Model(&models.Content{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"unlock_count":  gorm.Expr("unlock_count + 1"),
				"revenue_total": gorm.Expr("revenue_total + ?", share),
			})
		if res.Error != nil {
			errs = append(errs, fmt.Errorf("content %s: %w", id, res.Error))
		}
	}
	return errors.Join(errs...)
}
