package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/pagination"
)

// Repository persists payout requests, their snapshots and the final claim.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListEligible(ctx context.Context, creatorID uuid.UUID) ([]models.Transaction, error)
	Create(ctx context.Context, request *models.PayoutRequest, links []models.PayoutRequestTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	FindPendingByCreator(ctx context.Context, creatorID uuid.UUID) (*models.PayoutRequest, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID, limit int, after *pagination.Cursor) ([]models.PayoutRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error)
	ClaimTransactions(ctx context.Context, requestID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListEligible returns the creator's completed, unclaimed rows that are not
// already promised to an approved request, oldest first.
func (r *repository) ListEligible(ctx context.Context, creatorID uuid.UUID) ([]models.Transaction, error) {
	held := r.db.
		Model(&models.PayoutRequestTransaction{}).
		Select("payout_request_transactions.transaction_id").
		Joins("JOIN payout_requests ON payout_requests.id = payout_request_transactions.payout_request_id").
		Where("payout_requests.status = ?", enums.PayoutStatusApproved)

	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("creator_id = ? AND status = ? AND payout_processed = ?", creatorID, enums.TransactionStatusCompleted, false).
		Where("id NOT IN (?)", held).
		Order("created_at ASC, id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) Create(ctx context.Context, request *models.PayoutRequest, links []models.PayoutRequestTransaction) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit("Transactions").Create(request).Error; err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	for i := range links {
		links[i].PayoutRequestID = request.ID
	}
	if err := r.db.WithContext(ctx).Create(&links).Error; err != nil {
		return err
	}
	request.Transactions = links
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	if err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, transaction_id ASC")
		}).
		Where("id = ?", id).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindPendingByCreator(ctx context.Context, creatorID uuid.UUID) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	if err := r.db.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, enums.PayoutStatusPending).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByCreator pages newest first. after is the last row of the previous
// page; nil starts from the top.
func (r *repository) ListByCreator(ctx context.Context, creatorID uuid.UUID, limit int, after *pagination.Cursor) ([]models.PayoutRequest, error) {
	var requests []models.PayoutRequest
	q := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Scopes(pagination.Keyset("created_at", after))
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// UpdateStatus moves the request from `from` to `to` only if it is still in
// `from`, and reports whether it did.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimTransactions flags the snapshot rows as paid out by requestID in one
// statement. Rows already claimed or no longer completed are skipped, so the
// returned count is below len(ids) when the snapshot drifted.
func (r *repository) ClaimTransactions(ctx context.Context, requestID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id IN ? AND status = ? AND payout_processed = ?", ids, enums.TransactionStatusCompleted, false).
		Updates(map[string]any{
			"payout_processed":  true,
			"payout_request_id": requestID,
		})
	return res.RowsAffected, res.Error
}
