package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/creatorvault-backend/pkg/bigquery"
)

type fakeSink struct {
	responses []error
	inserts   [][]any
	ensured   []pkgbigquery.TableSpec
	ensureErr error
}

func (f *fakeSink) EnsureTable(_ context.Context, spec pkgbigquery.TableSpec) error {
	f.ensured = append(f.ensured, spec)
	return f.ensureErr
}

func (f *fakeSink) InsertRows(_ context.Context, _ string, rows []any) error {
	f.inserts = append(f.inserts, rows)
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newTestWriter(t *testing.T, responses ...error) (*BigQueryWriter, *fakeSink) {
	t.Helper()
	sink := &fakeSink{responses: responses}
	w, err := newWriter(sink, Config{
		LedgerTable: "ledger_events",
		RetryPolicy: RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return w, sink
}

func TestNewWriterDefaults(t *testing.T) {
	_, err := New(context.Background(), nil, Config{LedgerTable: "ledger_events"})
	assert.Error(t, err)
	_, err = newWriter(&fakeSink{}, Config{LedgerTable: " "})
	assert.Error(t, err)

	w, err := newWriter(&fakeSink{}, Config{
		LedgerTable: "ledger_events",
		RetryPolicy: RetryPolicy{InitialBackoff: time.Second, MaximumBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Second, w.retry.MaximumBackoff, "cap is raised to the initial backoff")
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, defaultBatchSize, w.batchSize)
}

func TestNewEnsuresPartitionedLedgerTable(t *testing.T) {
	sink := &fakeSink{}
	w, err := New(context.Background(), sink, Config{LedgerTable: " ledger_events "})
	require.NoError(t, err)
	assert.Equal(t, "ledger_events", w.ledgerTable)
	require.Len(t, sink.ensured, 1)
	spec := sink.ensured[0]
	assert.Equal(t, "occurred_at", spec.PartitionField)
	assert.Equal(t, []string{"creator_id", "event_type"}, spec.ClusterBy)
	assert.Len(t, spec.Schema, len(types.LedgerEventSchema))

	_, err = New(context.Background(), &fakeSink{ensureErr: errors.New("permission denied")}, Config{LedgerTable: "ledger_events"})
	assert.Error(t, err)
}

func TestRowsCarryEventIDAsInsertID(t *testing.T) {
	w, sink := newTestWriter(t)
	require.NoError(t, w.InsertLedger(context.Background(), types.LedgerEventRow{EventID: "evt-1"}))

	require.Len(t, sink.inserts, 1)
	saver, ok := sink.inserts[0][0].(*cbigquery.StructSaver)
	require.True(t, ok)
	assert.Equal(t, "evt-1", saver.InsertID)
}

func TestInsertRetriesTransientErrors(t *testing.T) {
	w, sink := newTestWriter(t, &googleapi.Error{Code: http.StatusServiceUnavailable}, nil)

	require.NoError(t, w.InsertLedger(context.Background(), types.LedgerEventRow{EventID: "1"}))
	assert.Len(t, sink.inserts, 2)
	assert.Empty(t, w.buffer)
}

func TestInsertStopsOnPermanentError(t *testing.T) {
	w, sink := newTestWriter(t, &googleapi.Error{Code: http.StatusBadRequest})

	assert.Error(t, w.InsertLedger(context.Background(), types.LedgerEventRow{EventID: "1"}))
	assert.Len(t, sink.inserts, 1)
	assert.Len(t, w.buffer, 1, "failed rows stay buffered")
}

func TestInsertGivesUpAfterMaxAttempts(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "try later")
	w, sink := newTestWriter(t, unavailable, unavailable, unavailable, nil)

	assert.Error(t, w.InsertLedger(context.Background(), types.LedgerEventRow{EventID: "1"}))
	assert.Len(t, sink.inserts, defaultMaxAttempts)
}

func TestBatchingAndFlush(t *testing.T) {
	w, sink := newTestWriter(t)
	w.batchSize = 2
	ctx := context.Background()

	require.NoError(t, w.InsertLedger(ctx, types.LedgerEventRow{EventID: "1"}))
	assert.Empty(t, sink.inserts)
	require.NoError(t, w.InsertLedger(ctx, types.LedgerEventRow{EventID: "2"}))
	require.Len(t, sink.inserts, 1)
	assert.Len(t, sink.inserts[0], 2)

	w.batchSize = 10
	require.NoError(t, w.InsertLedger(ctx, types.LedgerEventRow{EventID: "3"}))
	require.NoError(t, w.Flush(ctx))
	assert.Len(t, sink.inserts, 2)
	assert.Empty(t, w.buffer)
	require.NoError(t, w.Flush(ctx))
	assert.Len(t, sink.inserts, 2, "empty flush is a no-op")
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"status": "completed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, nj.JSONVal)

	for _, in := range []any{nil, json.RawMessage(nil), []byte{}} {
		nj, err = EncodeJSON(in)
		require.NoError(t, err)
		assert.False(t, nj.Valid)
	}

	raw := json.RawMessage(`{"amount":"2.99"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), nj.JSONVal)

	_, err = EncodeJSON(make(chan int))
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	badGateway := &googleapi.Error{Code: http.StatusBadGateway}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"http 403", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"grpc internal", status.Error(codes.Internal, "x"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"multi all retryable", cbigquery.MultiError{badGateway}, true},
		{"multi mixed", cbigquery.MultiError{badGateway, errors.New("bad row")}, false},
		{"empty multi", cbigquery.MultiError{}, false},
		{"row errors retryable", cbigquery.PutMultiError{{InsertID: "a", Errors: cbigquery.MultiError{badGateway}}}, true},
		{"row errors invalid", cbigquery.PutMultiError{{InsertID: "a", Errors: cbigquery.MultiError{errors.New("no such field")}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryable(tc.err))
		})
	}
}
