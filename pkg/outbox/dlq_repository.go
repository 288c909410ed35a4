package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

// DLQRepository stores events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

// DeadLetterPage is one newest-first page of dead letters.
type DeadLetterPage struct {
	Entries    []models.OutboxDLQ `json:"entries"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records entry inside tx, the same transaction that marks the
// source event terminal.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("dead letter insert requires a transaction")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		clipped := clipUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// Get returns the dead letter for eventID.
func (r *DLQRepository) Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter")
	}
	return &entry, nil
}

// List pages dead letters by (failed_at, id), newest first. A non-empty
// reason narrows the page to that failure class.
func (r *DLQRepository) List(ctx context.Context, reason enums.OutboxDLQErrorReason, page pagination.Params) (DeadLetterPage, error) {
	if reason != "" && !reason.IsValid() {
		return DeadLetterPage{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown dead letter reason")
	}
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return DeadLetterPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := r.db.WithContext(ctx).
		Scopes(pagination.Keyset("failed_at", after)).
		Limit(pagination.LimitWithBuffer(page.Limit))
	if reason != "" {
		q = q.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	if err := q.Find(&rows).Error; err != nil {
		return DeadLetterPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	rows, next := pagination.Trim(rows, page.Limit, func(e models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{At: e.FailedAt, ID: e.ID}
	})
	return DeadLetterPage{Entries: rows, NextCursor: next}, nil
}

// PruneBefore deletes up to limit dead letters that failed before cutoff.
func (r *DLQRepository) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	batch := tx.Model(&models.OutboxDLQ{}).Select("id").Where("failed_at < ?", cutoff).Order("failed_at ASC").Limit(limit)
	res := tx.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// clipUTF8 shortens s to at most limit bytes without splitting a rune.
func clipUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
