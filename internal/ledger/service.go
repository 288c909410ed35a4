package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox/payloads"
)

const reversalReason = "refund reversal"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes ledger reads and the post-completion status changes.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	Refund(ctx context.Context, input RefundInput) (*models.Transaction, error)
	Dispute(ctx context.Context, input DisputeInput) (*models.Transaction, error)
}

// RefundInput identifies a completed transaction to refund.
type RefundInput struct {
	TransactionID uuid.UUID
	Reason        string
	ActorID       uuid.UUID
}

// DisputeInput records a chargeback against a completed transaction.
type DisputeInput struct {
	TransactionID uuid.UUID
	Reason        string
	ActorID       uuid.UUID
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Outbox   eventEmitter
	Logger   *logger.Logger
	Clawback enums.RefundClawback
}

type service struct {
	repo     Repository
	db       txRunner
	outbox   eventEmitter
	logg     *logger.Logger
	clawback enums.RefundClawback
	now      func() time.Time
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clawback, err := enums.ParseRefundClawback(string(params.Clawback))
	if err != nil {
		return nil, err
	}
	return &service{
		repo:     params.Repo,
		db:       params.DB,
		outbox:   params.Outbox,
		logg:     params.Logger,
		clawback: clawback,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

// Refund moves a completed transaction to refunded. Money already paid out to
// the creator is reconciled according to the configured clawback policy.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Transaction, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "refunded"
	}
	var result *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.loadCompleted(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.transition(ctx, repo, txn, enums.TransactionStatusRefunded, reason, map[string]any{"refunded_at": now}); err != nil {
			return err
		}
		txn.RefundedAt = &now
		actor := actorRef(input.ActorID)
		if err := s.outbox.Emit(ctx, tx, TransactionEvent(enums.EventTransactionRefunded, txn, actor, reason, now)); err != nil {
			return err
		}
		if txn.PayoutProcessed {
			if err := s.reconcilePaidOut(ctx, tx, repo, txn, actor, now); err != nil {
				return err
			}
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithTransactionID(ctx, result.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"payout_processed": result.PayoutProcessed, "clawback": s.clawback})
	s.logg.Info(logCtx, "transaction refunded")
	return result, nil
}

// Dispute moves a completed transaction to disputed, which also revokes the
// entitlement it granted.
func (s *service) Dispute(ctx context.Context, input DisputeInput) (*models.Transaction, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "disputed"
	}
	var result *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := s.loadCompleted(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, repo, txn, enums.TransactionStatusDisputed, reason, nil); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.outbox.Emit(ctx, tx, TransactionEvent(enums.EventTransactionDisputed, txn, actorRef(input.ActorID), reason, now)); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithTransactionID(ctx, result.ID.String()), "transaction disputed")
	return result, nil
}

func (s *service) loadCompleted(ctx context.Context, repo Repository, id uuid.UUID) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn.Status != enums.TransactionStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "only completed transactions can be refunded or disputed").
			WithDetails(map[string]any{"status": txn.Status})
	}
	if txn.ReversalOf != nil || txn.Type == enums.TransactionTypePayout {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "payout and reversal rows cannot be refunded or disputed").
			WithDetails(map[string]any{"type": txn.Type})
	}
	held, err := repo.IsHeldByOpenPayout(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open payout snapshots")
	}
	if held {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "transaction is held by an open payout request")
	}
	return txn, nil
}

func (s *service) transition(ctx context.Context, repo Repository, txn *models.Transaction, to enums.TransactionStatus, reason string, updates map[string]any) error {
	ok, err := repo.Transition(ctx, txn, to, reason, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "transaction status changed concurrently")
	}
	return nil
}

// reconcilePaidOut handles a refund of earnings a processed payout already
// sent to the creator.
func (s *service) reconcilePaidOut(ctx context.Context, tx *gorm.DB, repo Repository, txn *models.Transaction, actor *outbox.ActorRef, now time.Time) error {
	data := payloads.RefundReconciliationEvent{
		TransactionID:   txn.ID,
		CreatorID:       txn.CreatorID,
		PayoutRequestID: txn.PayoutRequestID,
		Amount:          txn.Amount,
		CreatorEarnings: txn.CreatorEarnings,
		ClawbackPolicy:  s.clawback,
	}
	if s.clawback == enums.RefundClawbackDebitNextPayout {
		reversal := &models.Transaction{
			ID:              uuid.New(),
			MemberID:        txn.MemberID,
			CreatorID:       txn.CreatorID,
			Type:            enums.TransactionTypePayout,
			Amount:          txn.Amount.Neg(),
			PlatformFeeRate: txn.PlatformFeeRate,
			CreatorEarnings: txn.CreatorEarnings.Neg(),
			Currency:        txn.Currency,
			Status:          enums.TransactionStatusCompleted,
			ReversalOf:      &txn.ID,
			CompletedAt:     &now,
		}
		if err := repo.Create(ctx, reversal, reversalReason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund reversal")
		}
		data.ReversalTransactionID = &reversal.ID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundReconciliationRequired,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Version:       1,
		Actor:         actor,
		OccurredAt:    now,
		Data:          data,
	})
}

func actorRef(id uuid.UUID) *outbox.ActorRef {
	if id == uuid.Nil {
		return &outbox.ActorRef{Role: outbox.ActorRoleSystem}
	}
	return &outbox.ActorRef{ID: id, Role: outbox.ActorRoleAdmin}
}
