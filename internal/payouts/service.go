package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/internal/catalog"
	"github.com/angelmondragon/creatorvault-backend/internal/earnings"
	dbpkg "github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/pagination"
	"github.com/angelmondragon/creatorvault-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Balance is the live fold over a creator's withdrawable ledger rows.
type Balance struct {
	Amount         decimal.Decimal
	TransactionIDs []uuid.UUID
}

// Page is one newest-first slice of a creator's payout history.
type Page struct {
	Requests   []models.PayoutRequest
	NextCursor string
}

// Service runs the payout request workflow.
type Service interface {
	AvailableBalance(ctx context.Context, creatorID uuid.UUID) (Balance, error)
	RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.PayoutRequest, error)
	Approve(ctx context.Context, input ReviewInput) (*models.PayoutRequest, error)
	Reject(ctx context.Context, input RejectInput) (*models.PayoutRequest, error)
	MarkProcessed(ctx context.Context, input MarkProcessedInput) (*models.PayoutRequest, error)
	Cancel(ctx context.Context, input CancelInput) (*models.PayoutRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID, page pagination.Params) (Page, error)
}

type RequestPayoutInput struct {
	CreatorID   uuid.UUID       `json:"creator_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"money"`
	PaypalEmail string          `json:"paypal_email" validate:"omitempty,email"`
}

type ReviewInput struct {
	RequestID uuid.UUID `json:"request_id" validate:"required"`
	AdminID   uuid.UUID `json:"admin_id" validate:"required"`
}

type RejectInput struct {
	RequestID uuid.UUID `json:"request_id" validate:"required"`
	AdminID   uuid.UUID `json:"admin_id" validate:"required"`
	Reason    string    `json:"reason" validate:"max=1000"`
}

type MarkProcessedInput struct {
	RequestID        uuid.UUID `json:"request_id" validate:"required"`
	AdminID          uuid.UUID `json:"admin_id"`
	PaymentReference string    `json:"payment_reference" validate:"required,max=255"`
}

type CancelInput struct {
	RequestID uuid.UUID `json:"request_id" validate:"required"`
	CreatorID uuid.UUID `json:"creator_id" validate:"required"`
}

// ServiceParams groups dependencies for the payout service.
type ServiceParams struct {
	Repo           Repository
	Catalog        catalog.Repository
	DB             txRunner
	Outbox         outboxPublisher
	Metrics        *metrics.LedgerMetrics
	Logger         *logger.Logger
	DefaultMinimum decimal.Decimal
	Currency       string
}

type service struct {
	repo           Repository
	catalog        catalog.Repository
	db             txRunner
	outbox         outboxPublisher
	metrics        *metrics.LedgerMetrics
	logg           *logger.Logger
	defaultMinimum decimal.Decimal
	currency       string
	now            func() time.Time
}

// NewService constructs the payout workflow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DefaultMinimum.IsNegative() {
		return nil, fmt.Errorf("default minimum payout must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewLedgerMetrics(nil)
	}
	return &service{
		repo:           params.Repo,
		catalog:        params.Catalog,
		db:             params.DB,
		outbox:         params.Outbox,
		metrics:        m,
		logg:           params.Logger,
		defaultMinimum: params.DefaultMinimum,
		currency:       currency,
		now:            time.Now,
	}, nil
}

// AvailableBalance folds the live ledger. It is the only source for payout
// decisions; cached revenue counters are never consulted.
func (s *service) AvailableBalance(ctx context.Context, creatorID uuid.UUID) (Balance, error) {
	if creatorID == uuid.Nil {
		return Balance{}, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}
	rows, err := s.repo.ListEligible(ctx, creatorID)
	if err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible transactions")
	}
	return fold(rows), nil
}

func (s *service) RequestPayout(ctx context.Context, input RequestPayoutInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	requested := earnings.Round2(input.Amount)

	var created *models.PayoutRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindPendingByCreator(ctx, input.CreatorID); err == nil {
			return duplicatePending()
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending payout")
		}

		rows, err := repo.ListEligible(ctx, input.CreatorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible transactions")
		}
		balance := fold(rows)
		if requested.GreaterThan(balance.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "requested amount exceeds available balance").
				WithDetails(map[string]any{"available": balance.Amount.StringFixed(2), "requested": requested.StringFixed(2)})
		}

		settings, err := s.catalog.WithTx(tx).FindCreatorSettings(ctx, input.CreatorID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout settings")
		}
		minimum := s.defaultMinimum
		email := strings.TrimSpace(input.PaypalEmail)
		if settings != nil {
			if settings.MinimumPayout != nil {
				minimum = *settings.MinimumPayout
			}
			if email == "" {
				email = settings.PaypalEmail
			}
		}
		if requested.LessThan(minimum) {
			return pkgerrors.New(pkgerrors.CodeBelowMinimum, "requested amount is below the minimum payout").
				WithDetails(map[string]any{"minimum": minimum.StringFixed(2)})
		}

		snapshot, payoutAmount := selectSnapshot(rows, requested)
		if !payoutAmount.Equal(requested) {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "requested amount does not match a claimable set of transactions").
				WithDetails(map[string]any{
					"requested":     requested.StringFixed(2),
					"nearest_below": earnings.Round2(payoutAmount).StringFixed(2),
					"available":     balance.Amount.StringFixed(2),
				})
		}
		links := make([]models.PayoutRequestTransaction, 0, len(snapshot))
		for _, row := range snapshot {
			links = append(links, models.PayoutRequestTransaction{TransactionID: row.ID, Earnings: row.CreatorEarnings})
		}
		request := &models.PayoutRequest{
			ID:              uuid.New(),
			CreatorID:       input.CreatorID,
			RequestedAmount: requested,
			AvailableAmount: balance.Amount,
			PayoutAmount:    payoutAmount,
			Currency:        s.currency,
			Status:          enums.PayoutStatusPending,
			PaypalEmail:     email,
		}
		if err := repo.Create(ctx, request, links); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return duplicatePending()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout request")
		}
		created = request
		return s.emit(ctx, tx, enums.EventPayoutRequested, request, &outbox.ActorRef{ID: input.CreatorID, Role: outbox.ActorRoleCreator}, "")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayoutTransition(string(enums.PayoutStatusPending))
	s.logg.Info(s.logg.WithFields(s.logg.WithPayoutRequestID(ctx, created.ID.String()), map[string]any{
		"creator_id":    created.CreatorID.String(),
		"requested":     created.RequestedAmount.StringFixed(2),
		"payout_amount": created.PayoutAmount.StringFixed(2),
		"transactions":  len(created.Transactions),
	}), "payout requested")
	return created, nil
}

func (s *service) Approve(ctx context.Context, input ReviewInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return s.transition(ctx, transition{
		id:     input.RequestID,
		to:     enums.PayoutStatusApproved,
		event:  enums.EventPayoutApproved,
		actor:  &outbox.ActorRef{ID: input.AdminID, Role: outbox.ActorRoleAdmin},
		update: map[string]any{"reviewed_by": input.AdminID, "reviewed_at": now},
		apply: func(r *models.PayoutRequest) {
			r.ReviewedBy = &input.AdminID
			r.ReviewedAt = &now
		},
	})
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required").
			WithDetails(map[string]string{"reason": "is required"})
	}
	now := s.now().UTC()
	return s.transition(ctx, transition{
		id:     input.RequestID,
		to:     enums.PayoutStatusRejected,
		event:  enums.EventPayoutRejected,
		actor:  &outbox.ActorRef{ID: input.AdminID, Role: outbox.ActorRoleAdmin},
		reason: reason,
		update: map[string]any{"reviewed_by": input.AdminID, "reviewed_at": now, "rejection_reason": reason},
		apply: func(r *models.PayoutRequest) {
			r.ReviewedBy = &input.AdminID
			r.ReviewedAt = &now
			r.RejectionReason = &reason
		},
	})
}

// MarkProcessed records the external payment and claims every snapshotted
// transaction in the same db transaction. Rows created after the request are
// never swept in.
func (s *service) MarkProcessed(ctx context.Context, input MarkProcessedInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(input.PaymentReference)
	now := s.now().UTC()
	actor := &outbox.ActorRef{ID: input.AdminID, Role: outbox.ActorRoleAdmin}
	if input.AdminID == uuid.Nil {
		actor = &outbox.ActorRef{Role: outbox.ActorRoleSystem}
	}
	return s.transition(ctx, transition{
		id:     input.RequestID,
		to:     enums.PayoutStatusProcessed,
		event:  enums.EventPayoutProcessed,
		actor:  actor,
		update: map[string]any{"processed_at": now, "payment_reference": ref},
		apply: func(r *models.PayoutRequest) {
			r.ProcessedAt = &now
			r.PaymentReference = &ref
		},
		within: func(ctx context.Context, repo Repository, r *models.PayoutRequest) error {
			ids := r.TransactionIDs()
			claimed, err := repo.ClaimTransactions(ctx, r.ID, ids)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim snapshot transactions")
			}
			if claimed != int64(len(ids)) {
				return pkgerrors.New(pkgerrors.CodeInvalidState, "payout snapshot no longer matches the ledger").
					WithDetails(map[string]any{"expected": len(ids), "claimed": claimed})
			}
			return nil
		},
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return s.transition(ctx, transition{
		id:     input.RequestID,
		to:     enums.PayoutStatusCancelled,
		event:  enums.EventPayoutCancelled,
		actor:  &outbox.ActorRef{ID: input.CreatorID, Role: outbox.ActorRoleCreator},
		owner:  input.CreatorID,
		update: map[string]any{"cancelled_at": now},
		apply: func(r *models.PayoutRequest) {
			r.CancelledAt = &now
		},
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout request id required")
	}
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return request, nil
}

func (s *service) ListByCreator(ctx context.Context, creatorID uuid.UUID, page pagination.Params) (Page, error) {
	if creatorID == uuid.Nil {
		return Page{}, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}
	after, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	requests, err := s.repo.ListByCreator(ctx, creatorID, pagination.LimitWithBuffer(page.Limit), after)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout requests")
	}
	requests, next := pagination.Trim(requests, page.Limit, func(r models.PayoutRequest) pagination.Cursor {
		return pagination.Cursor{At: r.CreatedAt, ID: r.ID}
	})
	return Page{Requests: requests, NextCursor: next}, nil
}

type transition struct {
	id     uuid.UUID
	to     enums.PayoutStatus
	event  enums.OutboxEventType
	actor  *outbox.ActorRef
	owner  uuid.UUID
	reason string
	update map[string]any
	apply  func(*models.PayoutRequest)
	within func(ctx context.Context, repo Repository, r *models.PayoutRequest) error
}

func (s *service) transition(ctx context.Context, t transition) (*models.PayoutRequest, error) {
	var result *models.PayoutRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, t.id)
		if err != nil {
			return notFoundOr(err)
		}
		if t.owner != uuid.Nil && request.CreatorID != t.owner {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payout request belongs to another creator")
		}
		from := request.Status
		if !from.CanTransitionTo(t.to) {
			return invalidTransition(from, t.to)
		}
		ok, err := repo.UpdateStatus(ctx, request.ID, from, t.to, t.update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout request")
		}
		if !ok {
			return invalidTransition(from, t.to)
		}
		request.Status = t.to
		if t.apply != nil {
			t.apply(request)
		}
		if t.within != nil {
			if err := t.within(ctx, repo, request); err != nil {
				return err
			}
		}
		result = request
		return s.emit(ctx, tx, t.event, request, t.actor, t.reason)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayoutTransition(string(t.to))
	s.logg.Info(s.logg.WithFields(s.logg.WithPayoutRequestID(ctx, result.ID.String()), map[string]any{
		"creator_id": result.CreatorID.String(),
		"status":     result.Status,
	}), "payout request updated")
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, r *models.PayoutRequest, actor *outbox.ActorRef, reason string) error {
	data := payloadFor(r, reason)
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayoutRequest,
		AggregateID:   r.ID,
		Version:       1,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data:          data,
	})
}

func fold(rows []models.Transaction) Balance {
	balance := Balance{Amount: decimal.Zero, TransactionIDs: make([]uuid.UUID, 0, len(rows))}
	for _, row := range rows {
		balance.Amount = balance.Amount.Add(row.CreatorEarnings)
		balance.TransactionIDs = append(balance.TransactionIDs, row.ID)
	}
	balance.Amount = earnings.Round2(balance.Amount)
	return balance
}

// selectSnapshot takes every debit first, then the oldest credits that still
// fit under requested. The caller must check that the result sums to
// requested; a request that lands between claimable sums is rejected.
func selectSnapshot(rows []models.Transaction, requested decimal.Decimal) ([]models.Transaction, decimal.Decimal) {
	picked := make([]models.Transaction, 0, len(rows))
	sum := decimal.Zero
	for _, row := range rows {
		if row.CreatorEarnings.IsNegative() {
			picked = append(picked, row)
			sum = sum.Add(row.CreatorEarnings)
		}
	}
	for _, row := range rows {
		if row.CreatorEarnings.IsNegative() {
			continue
		}
		if next := sum.Add(row.CreatorEarnings); next.LessThanOrEqual(requested) {
			picked = append(picked, row)
			sum = next
		}
	}
	return picked, sum
}

func duplicatePending() error {
	return pkgerrors.New(pkgerrors.CodeDuplicatePendingRequest, "creator already has a pending payout request")
}

func invalidTransition(from, to enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("payout request cannot move from %s to %s", from, to))
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout request")
}
