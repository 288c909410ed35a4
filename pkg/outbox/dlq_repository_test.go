package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/pagination"
)

func deadLetter(reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventTransactionCompleted,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		ErrorReason:   reason,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQRepositoryInsertClipsMessage(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())

	msg := strings.Repeat("é", maxDLQErrorLen)
	entry := deadLetter(enums.OutboxDLQReasonNonRetryable, time.Now().UTC())
	entry.ErrorMessage = &msg
	require.NoError(t, repo.InsertTx(client.DB(), entry))
	assert.Error(t, repo.InsertTx(nil, entry))

	got, err := repo.Get(context.Background(), entry.EventID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.LessOrEqual(t, len(*got.ErrorMessage), maxDLQErrorLen)
	assert.True(t, strings.HasPrefix(msg, *got.ErrorMessage))

	_, err = repo.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestDLQRepositoryListPagesNewestFirst(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i, reason := range []enums.OutboxDLQErrorReason{
		enums.OutboxDLQReasonMaxAttempts,
		enums.OutboxDLQReasonNonRetryable,
		enums.OutboxDLQReasonMaxAttempts,
	} {
		entry := deadLetter(reason, base.Add(time.Duration(i)*time.Minute))
		entry.ID = uuid.New()
		require.NoError(t, repo.InsertTx(client.DB(), entry))
		ids = append(ids, entry.ID)
	}

	first, err := repo.List(ctx, "", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, ids[2], first.Entries[0].ID)
	assert.Equal(t, ids[1], first.Entries[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.List(ctx, "", pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, ids[0], second.Entries[0].ID)
	assert.Empty(t, second.NextCursor)

	exhausted, err := repo.List(ctx, enums.OutboxDLQReasonMaxAttempts, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, exhausted.Entries, 2)

	_, err = repo.List(ctx, "bogus", pagination.Params{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = repo.List(ctx, "", pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestClipUTF8(t *testing.T) {
	assert.Equal(t, "abc", clipUTF8("abc", 10))
	assert.Equal(t, "ab", clipUTF8("abé", 3))
}
