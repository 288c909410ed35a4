package ledger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
)

type harness struct {
	client *db.Client
	repo   Repository
	outbox *outbox.Service
	logg   *logger.Logger
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "ledger-test", Output: io.Discard})
	return harness{
		client: client,
		repo:   NewRepository(client.DB()),
		outbox: outbox.NewService(outbox.NewRepository(client.DB()), logg),
		logg:   logg,
	}
}

func (h harness) seedCompleted(t *testing.T, member, creator uuid.UUID, amount, earnings string) *models.Transaction {
	t.Helper()
	contentID := uuid.New()
	now := time.Now().UTC()
	ref := "pay_" + uuid.NewString()[:8]
	txn := &models.Transaction{
		MemberID:        member,
		CreatorID:       creator,
		Type:            enums.TransactionTypeContentUnlock,
		ContentID:       &contentID,
		Amount:          decimal.RequireFromString(amount),
		PlatformFeeRate: decimal.RequireFromString("0.20"),
		CreatorEarnings: decimal.RequireFromString(earnings),
		Currency:        "USD",
		Status:          enums.TransactionStatusCompleted,
		ExternalRef:     &ref,
		CompletedAt:     &now,
	}
	require.NoError(t, h.repo.Create(context.Background(), txn, "seeded"))
	return txn
}

func (h harness) holdInPayout(t *testing.T, txn *models.Transaction, status enums.PayoutStatus) uuid.UUID {
	t.Helper()
	request := models.PayoutRequest{
		ID:              uuid.New(),
		CreatorID:       txn.CreatorID,
		RequestedAmount: txn.CreatorEarnings,
		AvailableAmount: txn.CreatorEarnings,
		PayoutAmount:    txn.CreatorEarnings,
		Currency:        "USD",
		Status:          status,
	}
	conn := h.client.DB()
	require.NoError(t, conn.Omit("Transactions").Create(&request).Error)
	require.NoError(t, conn.Create(&models.PayoutRequestTransaction{
		PayoutRequestID: request.ID,
		TransactionID:   txn.ID,
		Earnings:        txn.CreatorEarnings,
	}).Error)
	return request.ID
}

func (h harness) markPaidOut(t *testing.T, txn *models.Transaction, requestID uuid.UUID) {
	t.Helper()
	require.NoError(t, h.client.DB().Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{"payout_processed": true, "payout_request_id": requestID}).Error)
}

func (h harness) events(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.client.DB().Where("aggregate_id = ?", aggregateID).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return io.ErrClosedPipe
}
