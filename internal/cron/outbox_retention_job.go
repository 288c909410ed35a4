package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
)

const (
	outboxRetentionName = "outbox-retention"

	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	// matches the publisher's default attempt ceiling
	defaultTerminalAttempts = 10
	pruneBatchSize          = 500
)

type outboxPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts, limit int) (int64, error)
}

type deadLetterPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure pruning of settled outbox rows. Without
// DeadLetters only the outbox table is pruned.
type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Outbox           outboxPruner
	DeadLetters      deadLetterPruner
	Metrics          *metrics.CronJobMetrics
	Retention        time.Duration
	DLQRetention     time.Duration
	TerminalAttempts int
}

type outboxRetentionJob struct {
	params OutboxRetentionJobParams
	now    func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox retention: logger is required")
	case params.DB == nil:
		return nil, errors.New("outbox retention: db is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox retention: outbox repository is required")
	}
	params.Retention = durationOr(params.Retention, defaultOutboxRetention)
	params.DLQRetention = durationOr(params.DLQRetention, defaultDLQRetention)
	if params.TerminalAttempts <= 0 {
		params.TerminalAttempts = defaultTerminalAttempts
	}
	return &outboxRetentionJob{params: params, now: time.Now}, nil
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionName }

// Run deletes in batches until a batch comes back short, so one cycle clears
// the backlog without holding a long transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	p := j.params

	events, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return p.Outbox.PruneBefore(ctx, tx, now.Add(-p.Retention), p.TerminalAttempts, pruneBatchSize)
	})
	p.Metrics.AddSwept(outboxRetentionName, "outbox", int(events))
	if err != nil {
		return err
	}

	var deadLetters int64
	if p.DeadLetters != nil {
		deadLetters, err = j.drain(ctx, func(tx *gorm.DB) (int64, error) {
			return p.DeadLetters.PruneBefore(ctx, tx, now.Add(-p.DLQRetention), pruneBatchSize)
		})
		p.Metrics.AddSwept(outboxRetentionName, "outbox_dlq", int(deadLetters))
		if err != nil {
			return err
		}
	}

	p.Logger.Info(p.Logger.WithFields(ctx, map[string]any{
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
		"retention":            p.Retention.String(),
	}), "outbox retention finished")
	return nil
}

func (j *outboxRetentionJob) drain(ctx context.Context, prune func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.params.DB.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = prune(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneBatchSize {
			return total, nil
		}
	}
}
