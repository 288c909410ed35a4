package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
)

const (
	unlockReaperName     = "unlock-reaper"
	defaultStaleAfter    = 15 * time.Minute
	defaultReaperBatch   = 200
	reasonAbandoned      = "abandoned before charge"
	reasonOutcomeUnknown = "gateway outcome unknown"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UnlockReaperJobParams configure the stale unlock sweep.
type UnlockReaperJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Ledger     ledger.Repository
	Outbox     outboxEmitter
	Metrics    *metrics.CronJobMetrics
	StaleAfter time.Duration
	BatchSize  int
}

// NewUnlockReaperJob builds the job that fails unlock rows stuck before or
// during the gateway call. Rows stuck in processing may have been charged, so
// they also raise a reconciliation event.
func NewUnlockReaperJob(params UnlockReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReaperBatch
	}
	return &unlockReaperJob{
		logg:       params.Logger,
		db:         params.DB,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type unlockReaperJob struct {
	logg       *logger.Logger
	db         txRunner
	ledger     ledger.Repository
	outbox     outboxEmitter
	metrics    *metrics.CronJobMetrics
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *unlockReaperJob) Name() string { return unlockReaperName }

func (j *unlockReaperJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	return multierr.Combine(
		j.sweep(ctx, enums.TransactionStatusPending, cutoff, reasonAbandoned, enums.EventTransactionFailed),
		j.sweep(ctx, enums.TransactionStatusProcessing, cutoff, reasonOutcomeUnknown, enums.EventUnlockReconciliationRequired),
	)
}

func (j *unlockReaperJob) sweep(ctx context.Context, from enums.TransactionStatus, cutoff time.Time, reason string, event enums.OutboxEventType) error {
	rows, err := j.ledger.ListStale(ctx, from, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale %s transactions: %w", from, err)
	}
	var errs error
	swept := 0
	for i := range rows {
		ok, err := j.fail(ctx, &rows[i], reason, event)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reap transaction %s: %w", rows[i].ID, err))
			continue
		}
		if ok {
			swept++
		}
	}
	if j.metrics != nil {
		j.metrics.AddSwept(unlockReaperName, string(from), swept)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"from":   from,
		"cutoff": cutoff,
		"found":  len(rows),
		"swept":  swept,
		"batch":  j.batch,
	})
	j.logg.Info(logCtx, "stale unlock sweep complete")
	return errs
}

// fail reports false when the row moved on before the sweep reached it.
func (j *unlockReaperJob) fail(ctx context.Context, txn *models.Transaction, reason string, event enums.OutboxEventType) (bool, error) {
	var moved bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.ledger.WithTx(tx).Transition(ctx, txn, enums.TransactionStatusFailed, reason, map[string]any{"failure_reason": reason})
		if err != nil || !ok {
			return err
		}
		moved = true
		txn.FailureReason = &reason
		return j.outbox.EmitIfNotExists(ctx, tx, ledger.TransactionEvent(event, txn, &outbox.ActorRef{Role: outbox.ActorRoleSystem}, reason, j.now().UTC()))
	})
	if err != nil {
		return false, err
	}
	if moved && event == enums.EventUnlockReconciliationRequired {
		j.logg.Warn(j.logg.WithTransactionID(ctx, txn.ID.String()), "unlock failed with unknown gateway outcome; reconciliation required")
	}
	return moved, nil
}
