package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/internal/app"
	"github.com/angelmondragon/creatorvault-backend/internal/unlocks"
	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/redis"
)

type fixture struct {
	app     *app.App
	creator uuid.UUID
	member  uuid.UUID
	content uuid.UUID
	txnID   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	services, err := app.New(app.Params{
		Config: &config.Config{
			Ledger: config.LedgerConfig{
				PlatformFeeRate:      "0.20",
				DefaultMinimumPayout: "1.00",
				Currency:             "USD",
				RefundClawback:       "out_of_band",
			},
			Gateway: config.GatewayConfig{Provider: config.GatewayProviderNoop, ChargeTimeout: time.Second},
		},
		Logger:     logger.New(logger.Options{ServiceName: "ledgerctl-test", Output: io.Discard}),
		DB:         client,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	f := fixture{app: services, creator: uuid.New(), member: uuid.New(), content: uuid.New()}
	require.NoError(t, client.DB().Create(&models.Content{
		ID:        f.content,
		CreatorID: f.creator,
		Title:     "clip",
		Price:     decimal.RequireFromString("10.00"),
		Status:    enums.ContentStatusPublished,
	}).Error)

	txn, err := services.Unlocks.Unlock(context.Background(), unlocks.UnlockInput{MemberID: f.member, ContentID: f.content, PaymentMethodRef: "cnon:card"})
	require.NoError(t, err)
	f.txnID = txn.ID
	return f
}

func runJSON(t *testing.T, a *app.App, out any, args ...string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), a, args, &buf))
	require.NoError(t, json.Unmarshal(buf.Bytes(), out))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), nil, []string{"explode"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payout-approve")

	err = run(context.Background(), nil, nil, io.Discard)
	assert.ErrorIs(t, err, errUsage)
}

func TestRunRejectsMalformedIDs(t *testing.T) {
	err := run(context.Background(), nil, []string{"balance", "-creator", "nope"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-creator")
}

func TestPayoutWorkflowCommands(t *testing.T) {
	f := newFixture(t)
	admin := uuid.New().String()

	var bal struct{ Amount decimal.Decimal }
	runJSON(t, f.app, &bal, "balance", "-creator", f.creator.String())
	assert.Equal(t, "8.00", bal.Amount.StringFixed(2))

	var request models.PayoutRequest
	runJSON(t, f.app, &request, "payout-request", "-creator", f.creator.String(), "-amount", "8.00", "-email", "c@example.com")
	assert.Equal(t, enums.PayoutStatusPending, request.Status)

	runJSON(t, f.app, &request, "payout-approve", "-id", request.ID.String(), "-admin", admin)
	assert.Equal(t, enums.PayoutStatusApproved, request.Status)

	runJSON(t, f.app, &request, "payout-complete", "-id", request.ID.String(), "-admin", admin, "-ref", "PP-42")
	assert.Equal(t, enums.PayoutStatusProcessed, request.Status)

	var listed struct {
		Requests   []models.PayoutRequest
		NextCursor string
	}
	runJSON(t, f.app, &listed, "payouts", "-creator", f.creator.String())
	require.Len(t, listed.Requests, 1)
	assert.Empty(t, listed.NextCursor)

	runJSON(t, f.app, &bal, "balance", "-creator", f.creator.String())
	assert.True(t, bal.Amount.IsZero())
}

func TestRefundCommandRevokesAccess(t *testing.T) {
	f := newFixture(t)

	var grant struct{ Granted bool }
	runJSON(t, f.app, &grant, "access", "-member", f.member.String(), "-content", f.content.String())
	assert.True(t, grant.Granted)

	var txn models.Transaction
	runJSON(t, f.app, &txn, "refund", "-id", f.txnID.String(), "-reason", "requested by member")
	assert.Equal(t, enums.TransactionStatusRefunded, txn.Status)

	runJSON(t, f.app, &grant, "access", "-member", f.member.String(), "-content", f.content.String())
	assert.False(t, grant.Granted)

	err := run(context.Background(), f.app, []string{"dispute", "-id", f.txnID.String()}, io.Discard)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
}

func TestDeadLetterCommands(t *testing.T) {
	f := newFixture(t)

	var page struct {
		Entries    []models.OutboxDLQ
		NextCursor string
	}
	runJSON(t, f.app, &page, "dead-letters")
	assert.Empty(t, page.Entries)

	err := run(context.Background(), f.app, []string{"dead-letters", "-reason", "timeout"}, io.Discard)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = run(context.Background(), f.app, []string{"dead-letter", "-event", uuid.NewString()}, io.Discard)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

type fixedStats struct{ stats redis.CreatorStats }

func (f fixedStats) CreatorStats(context.Context, string) (redis.CreatorStats, error) {
	return f.stats, nil
}

func TestCreatorStatsCommand(t *testing.T) {
	f := newFixture(t)

	err := run(context.Background(), f.app, []string{"creator-stats", "-creator", f.creator.String()}, io.Discard)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))

	f.app.Stats = fixedStats{stats: redis.CreatorStats{Unlocks: 3, Earnings: decimal.RequireFromString("7.17")}}
	var out struct {
		CreatorID uuid.UUID       `json:"creator_id"`
		Unlocks   int64           `json:"unlocks"`
		Earnings  decimal.Decimal `json:"earnings"`
	}
	runJSON(t, f.app, &out, "creator-stats", "-creator", f.creator.String())
	assert.Equal(t, f.creator, out.CreatorID)
	assert.Equal(t, int64(3), out.Unlocks)
	assert.Equal(t, "7.17", out.Earnings.StringFixed(2))
}
