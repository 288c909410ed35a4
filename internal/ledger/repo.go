package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
)

// Repository manages persistence for ledger transactions and their status log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction, reason string) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindActiveUnlock(ctx context.Context, memberID uuid.UUID, kind enums.TransactionType, targetID uuid.UUID) (*models.Transaction, error)
	CountAttempts(ctx context.Context, memberID uuid.UUID, kind enums.TransactionType, targetID uuid.UUID) (int64, error)
	Transition(ctx context.Context, txn *models.Transaction, to enums.TransactionStatus, reason string, updates map[string]any) (bool, error)
	ListCompletedUnlocks(ctx context.Context, memberID uuid.UUID, types []enums.TransactionType) ([]models.Transaction, error)
	ListStale(ctx context.Context, status enums.TransactionStatus, before time.Time, limit int) ([]models.Transaction, error)
	IsHeldByOpenPayout(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts txn and its first status log entry.
func (r *repository) Create(ctx context.Context, txn *models.Transaction, reason string) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit("StatusHistory").Create(txn).Error; err != nil {
		return err
	}
	return r.appendHistory(ctx, txn.ID, nil, txn.Status, reason)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindActiveUnlock returns the row holding the member's unlock slot for target,
// or gorm.ErrRecordNotFound.
func (r *repository) FindActiveUnlock(ctx context.Context, memberID uuid.UUID, kind enums.TransactionType, targetID uuid.UUID) (*models.Transaction, error) {
	column, err := targetColumn(kind)
	if err != nil {
		return nil, err
	}
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("member_id = ? AND type = ? AND "+column+" = ?", memberID, kind, targetID).
		Where("status IN ?", enums.LiveUnlockStatuses).
		Order("created_at DESC").
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// CountAttempts counts every row ever written for the member and target,
// whatever its status.
func (r *repository) CountAttempts(ctx context.Context, memberID uuid.UUID, kind enums.TransactionType, targetID uuid.UUID) (int64, error) {
	column, err := targetColumn(kind)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("member_id = ? AND type = ? AND "+column+" = ?", memberID, kind, targetID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Transition moves txn from its current status to `to` with a conditional
// update and logs the change. It reports false when another writer moved the
// row first. txn is updated in place on success.
func (r *repository) Transition(ctx context.Context, txn *models.Transaction, to enums.TransactionStatus, reason string, updates map[string]any) (bool, error) {
	from := txn.Status
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("transaction %s: %s -> %s not allowed", txn.ID, from, to)
	}
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := r.appendHistory(ctx, txn.ID, &from, to, reason); err != nil {
		return false, err
	}
	txn.Status = to
	return true, nil
}

func (r *repository) ListCompletedUnlocks(ctx context.Context, memberID uuid.UUID, types []enums.TransactionType) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ? AND type IN ?", memberID, enums.TransactionStatusCompleted, types).
		Order("completed_at ASC, id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListStale returns rows stuck in status since before `before`, oldest first.
func (r *repository) ListStale(ctx context.Context, status enums.TransactionStatus, before time.Time, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// IsHeldByOpenPayout reports whether a pending or approved payout request has
// the transaction in its snapshot.
func (r *repository) IsHeldByOpenPayout(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutRequestTransaction{}).
		Joins("JOIN payout_requests ON payout_requests.id = payout_request_transactions.payout_request_id").
		Where("payout_request_transactions.transaction_id = ?", id).
		Where("payout_requests.status IN ?", []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusApproved}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) appendHistory(ctx context.Context, id uuid.UUID, from *enums.TransactionStatus, to enums.TransactionStatus, reason string) error {
	entry := models.TransactionStatusChange{
		ID:            uuid.New(),
		TransactionID: id,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        reason,
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

func targetColumn(kind enums.TransactionType) (string, error) {
	switch kind {
	case enums.TransactionTypeContentUnlock:
		return "content_id", nil
	case enums.TransactionTypeBundleUnlock:
		return "bundle_id", nil
	case enums.TransactionTypeProfileUnlock, enums.TransactionTypeTip:
		return "creator_id", nil
	default:
		return "", fmt.Errorf("transaction type %q has no purchase target", kind)
	}
}
