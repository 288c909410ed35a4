// Package writer streams decoded ledger events into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/creatorvault-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/creatorvault-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	LedgerTable string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures. MaxAttempts
// counts the first try.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Sink is the BigQuery surface the writer needs at startup and per flush.
type Sink interface {
	tableInserter
	EnsureTable(ctx context.Context, spec pkgbigquery.TableSpec) error
}

// BigQueryWriter buffers ledger rows and inserts them in batches. Each row's
// event id is its insert id, so BigQuery drops redelivered events it has
// already seen within its dedupe window.
type BigQueryWriter struct {
	client      tableInserter
	ledgerTable string
	batchSize   int
	retry       RetryPolicy

	mu     sync.Mutex
	buffer []types.LedgerEventRow
}

// New builds a writer and provisions the ledger table, partitioned by
// occurred_at and clustered by creator and event type.
func New(ctx context.Context, sink Sink, cfg Config) (*BigQueryWriter, error) {
	if sink == nil {
		return nil, errors.New("bigquery client required")
	}
	w, err := newWriter(sink, cfg)
	if err != nil {
		return nil, err
	}
	spec := pkgbigquery.TableSpec{
		Name:           w.ledgerTable,
		Schema:         types.LedgerEventSchema,
		PartitionField: "occurred_at",
		ClusterBy:      []string{"creator_id", "event_type"},
	}
	if err := sink.EnsureTable(ctx, spec); err != nil {
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	return w, nil
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	table := strings.TrimSpace(cfg.LedgerTable)
	if table == "" {
		return nil, errors.New("ledger table is required")
	}
	p := cfg.RetryPolicy
	p.MaxAttempts = orDefault(p.MaxAttempts, defaultMaxAttempts)
	p.InitialBackoff = orDefault(p.InitialBackoff, defaultInitialBackoff)
	p.MaximumBackoff = max(orDefault(p.MaximumBackoff, defaultMaximumBackoff), p.InitialBackoff)

	return &BigQueryWriter{
		client:      client,
		ledgerTable: table,
		batchSize:   orDefault(cfg.BatchSize, defaultBatchSize),
		retry:       p,
	}, nil
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// InsertLedger buffers row and flushes when the batch fills. With the
// default batch of one the row is in BigQuery before the caller acks.
func (w *BigQueryWriter) InsertLedger(ctx context.Context, row types.LedgerEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is buffered. Used on shutdown.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// flushLocked keeps the buffer intact on failure so the next flush resends
// the same rows under the same insert ids.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.buffer))
	for i := range w.buffer {
		rows[i] = &cbigquery.StructSaver{
			Struct:   &w.buffer[i],
			Schema:   types.LedgerEventSchema,
			InsertID: w.buffer[i].EventID,
		}
	}
	if err := w.insert(ctx, rows); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.ledgerTable, err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	backoff := retry.NewExponential(w.retry.InitialBackoff)
	backoff = retry.WithCappedDuration(w.retry.MaximumBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(w.retry.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.ledgerTable, rows)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// EncodeJSON converts a payload for a BigQuery JSON column. nil and empty
// raw input become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
