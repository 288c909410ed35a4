package unlocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/internal/earnings"
	"github.com/angelmondragon/creatorvault-backend/internal/gateway"
	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	dbpkg "github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/creatorvault-backend/pkg/db/types"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
)

const (
	chargeSuccess  = "success"
	chargeDeclined = "declined"
	chargeTimeout  = "timeout"
	chargeError    = "error"
)

// idempotencyNamespace scopes gateway idempotency keys derived by chargeKey.
var idempotencyNamespace = uuid.MustParse("6f1c2a7e-5d0b-4f38-9a43-2c8e51b7d9a4")

type purchase struct {
	kind       enums.TransactionType
	memberID   uuid.UUID
	creatorID  uuid.UUID
	targetID   uuid.UUID
	contentID  *uuid.UUID
	bundleID   *uuid.UUID
	contentIDs []uuid.UUID
	pricing    earnings.Result
	methodRef  string
	exclusive  bool
	note       string
}

// chargeKey is stable for a given attempt at a purchase target, so a retried
// gateway call with the same key collapses on the provider side.
func chargeKey(memberID uuid.UUID, kind enums.TransactionType, targetID uuid.UUID, attempt int64) string {
	name := fmt.Sprintf("%s|%s|%s|%d", memberID, kind, targetID, attempt)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// purchase reserves the unlock slot, charges the member and records the
// outcome. Once the charge is issued the flow runs to completed or failed even
// if the caller goes away.
func (s *service) purchase(ctx context.Context, p purchase) (*models.Transaction, error) {
	txn, err := s.reserve(ctx, p)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	ctx = s.logg.WithMemberID(ctx, p.memberID.String())
	ctx = s.logg.WithCreatorID(ctx, p.creatorID.String())

	runCtx := context.WithoutCancel(ctx)
	if err := s.markProcessing(runCtx, txn); err != nil {
		s.metrics.IncUnlock(string(p.kind), metrics.OutcomeError)
		return nil, err
	}

	result, chargeErr := s.charge(runCtx, txn, p)
	if chargeErr != nil || !result.Success {
		return nil, s.fail(runCtx, txn, result, chargeErr)
	}
	if err := s.complete(runCtx, txn, p, result); err != nil {
		s.metrics.IncUnlock(string(p.kind), metrics.OutcomeError)
		s.logg.Error(runCtx, "charge captured but ledger completion failed", err)
		return nil, err
	}
	s.metrics.IncUnlock(string(p.kind), metrics.OutcomeCompleted)
	s.applySideEffects(runCtx, txn, p)
	return txn, nil
}

// reserve inserts the pending row that holds the member's unlock slot. The
// partial unique indexes on live unlock rows reject a concurrent duplicate
// before any charge is issued.
func (s *service) reserve(ctx context.Context, p purchase) (*models.Transaction, error) {
	var reserved *models.Transaction
	var existing *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		if p.exclusive {
			found, err := repo.FindActiveUnlock(ctx, p.memberID, p.kind, p.targetID)
			switch {
			case err == nil:
				existing = found
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing unlock")
			}
		}
		attempts, err := repo.CountAttempts(ctx, p.memberID, p.kind, p.targetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count purchase attempts")
		}
		key := chargeKey(p.memberID, p.kind, p.targetID, attempts+1)
		txn := &models.Transaction{
			ID:               uuid.New(),
			MemberID:         p.memberID,
			CreatorID:        p.creatorID,
			Type:             p.kind,
			ContentID:        p.contentID,
			BundleID:         p.bundleID,
			BundleContentIDs: snapshotIDs(p),
			Amount:           p.pricing.Amount,
			OriginalPrice:    p.pricing.OriginalPrice,
			DiscountPercent:  p.pricing.DiscountPercent,
			PlatformFeeRate:  p.pricing.FeeRate,
			Currency:         s.currency,
			Status:           enums.TransactionStatusPending,
			PaymentMethodRef: p.methodRef,
			IdempotencyKey:   &key,
		}
		if err := repo.Create(ctx, txn, "reserved"); err != nil {
			return err
		}
		reserved = txn
		return nil
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, s.alreadyUnlocked(ctx, p)
		}
		s.metrics.IncUnlock(string(p.kind), metrics.OutcomeError)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve unlock")
	}
	if existing != nil {
		s.metrics.IncUnlock(string(p.kind), metrics.OutcomeAlreadyUnlocked)
		return nil, alreadyUnlockedError(existing.ID)
	}
	return reserved, nil
}

// alreadyUnlocked resolves the row that won a reservation race.
func (s *service) alreadyUnlocked(ctx context.Context, p purchase) error {
	if !p.exclusive {
		s.metrics.IncUnlock(string(p.kind), metrics.OutcomeRejected)
		return pkgerrors.New(pkgerrors.CodeConflict, "a purchase for this target is already in flight")
	}
	s.metrics.IncUnlock(string(p.kind), metrics.OutcomeAlreadyUnlocked)
	winner, err := s.ledger.FindActiveUnlock(ctx, p.memberID, p.kind, p.targetID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeAlreadyUnlocked, "already unlocked")
	}
	return alreadyUnlockedError(winner.ID)
}

func alreadyUnlockedError(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyUnlocked, "already unlocked").
		WithDetails(map[string]any{"transaction_id": id.String()})
}

func (s *service) markProcessing(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.ledger.WithTx(tx).Transition(ctx, txn, enums.TransactionStatusProcessing, "charge issued", nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transaction processing")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "transaction left pending before charge")
		}
		return nil
	})
}

func (s *service) charge(ctx context.Context, txn *models.Transaction, p purchase) (gateway.Result, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.gateway.Charge(chargeCtx, gateway.Charge{
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		MemberID:       txn.MemberID,
		MethodRef:      p.methodRef,
		IdempotencyKey: *txn.IdempotencyKey,
		ReferenceID:    txn.ID.String(),
		Note:           p.note,
	})

	outcome := chargeSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = chargeTimeout
	case err != nil:
		outcome = chargeError
	case !result.Success:
		outcome = chargeDeclined
	}
	s.metrics.ObserveCharge(outcome, time.Since(started))
	return result, err
}

func (s *service) fail(ctx context.Context, txn *models.Transaction, result gateway.Result, chargeErr error) error {
	reason := result.Reason
	switch {
	case errors.Is(chargeErr, context.DeadlineExceeded):
		reason = "gateway timeout"
	case chargeErr != nil:
		reason = "gateway error: " + chargeErr.Error()
	case reason == "":
		reason = "payment declined"
	}
	updates := map[string]any{
		"failure_reason":   reason,
		"creator_earnings": decimal.Zero,
	}
	if result.ExternalRef != "" {
		updates["external_ref"] = result.ExternalRef
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.ledger.WithTx(tx).Transition(ctx, txn, enums.TransactionStatusFailed, reason, updates)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transaction %s left processing during charge", txn.ID)
		}
		txn.FailureReason = &reason
		return s.outbox.Emit(ctx, tx, ledger.TransactionEvent(enums.EventTransactionFailed, txn, memberActor(txn.MemberID), reason, s.now().UTC()))
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record failed charge", err)
	} else {
		txn.CreatorEarnings = decimal.Zero
	}
	s.metrics.IncUnlock(string(txn.Type), metrics.OutcomePaymentFailed)
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "unlock payment failed")

	wrapped := pkgerrors.New(pkgerrors.CodePaymentFailed, "payment failed").
		WithDetails(map[string]any{"transaction_id": txn.ID.String(), "reason": reason})
	if chargeErr != nil {
		wrapped = pkgerrors.Wrap(pkgerrors.CodePaymentFailed, chargeErr, "payment failed").
			WithDetails(map[string]any{"transaction_id": txn.ID.String(), "reason": reason})
	}
	return wrapped
}

// complete fixes the precomputed earnings on the row and queues the
// completion event in the same db transaction.
func (s *service) complete(ctx context.Context, txn *models.Transaction, p purchase, result gateway.Result) error {
	now := s.now().UTC()
	updates := map[string]any{
		"creator_earnings": p.pricing.CreatorEarnings,
		"completed_at":     now,
	}
	if result.ExternalRef != "" {
		updates["external_ref"] = result.ExternalRef
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.ledger.WithTx(tx).Transition(ctx, txn, enums.TransactionStatusCompleted, "charge captured", updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "transaction left processing during charge")
		}
		txn.CreatorEarnings = p.pricing.CreatorEarnings
		txn.CompletedAt = &now
		if result.ExternalRef != "" {
			ref := result.ExternalRef
			txn.ExternalRef = &ref
		}
		return s.outbox.Emit(ctx, tx, ledger.TransactionEvent(enums.EventTransactionCompleted, txn, memberActor(txn.MemberID), "", now))
	})
}

// applySideEffects updates creator-facing counters. Failures are logged and
// never change the recorded transaction.
func (s *service) applySideEffects(ctx context.Context, txn *models.Transaction, p purchase) {
	if p.kind == enums.TransactionTypeContentUnlock || p.kind == enums.TransactionTypeBundleUnlock {
		if err := s.catalog.IncrementUnlockStats(ctx, p.contentIDs, txn.Amount); err != nil {
			s.logg.Error(ctx, "content unlock stats not updated", err)
		}
	}
	if s.revenue != nil {
		if err := s.revenue.IncrCreatorRevenue(ctx, txn.CreatorID.String(), txn.CreatorEarnings); err != nil {
			s.logg.Error(ctx, "creator revenue stats not updated", err)
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"type":             txn.Type,
		"amount":           txn.Amount.StringFixed(2),
		"creator_earnings": txn.CreatorEarnings.StringFixed(2),
	}), "unlock completed")
}

func snapshotIDs(p purchase) dbtypes.UUIDArray {
	if p.kind != enums.TransactionTypeBundleUnlock && p.kind != enums.TransactionTypeProfileUnlock {
		return nil
	}
	return dbtypes.UUIDArray(p.contentIDs)
}

func memberActor(id uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{ID: id, Role: outbox.ActorRoleMember}
}
