package unlocks

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
	"github.com/angelmondragon/creatorvault-backend/internal/gateway"
	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/validate"
)

const defaultChargeTimeout = 20 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type revenueRecorder interface {
	IncrCreatorRevenue(ctx context.Context, creatorID string, earnings decimal.Decimal) error
}

// Service charges members for content and records the result in the ledger.
type Service interface {
	Unlock(ctx context.Context, input UnlockInput) (*models.Transaction, error)
	UnlockBundle(ctx context.Context, input BundleUnlockInput) (*models.Transaction, error)
	UnlockProfile(ctx context.Context, input ProfileUnlockInput) (*models.Transaction, error)
	Tip(ctx context.Context, input TipInput) (*models.Transaction, error)
}

// UnlockInput buys a single content item.
type UnlockInput struct {
	MemberID         uuid.UUID `json:"member_id" validate:"required"`
	ContentID        uuid.UUID `json:"content_id" validate:"required"`
	PaymentMethodRef string    `json:"payment_method_ref" validate:"required,max=255"`
}

// BundleUnlockInput buys every item of a bundle as it stands at purchase time.
type BundleUnlockInput struct {
	MemberID         uuid.UUID `json:"member_id" validate:"required"`
	BundleID         uuid.UUID `json:"bundle_id" validate:"required"`
	PaymentMethodRef string    `json:"payment_method_ref" validate:"required,max=255"`
}

// ProfileUnlockInput buys the creator's published catalog as it stands at purchase time.
type ProfileUnlockInput struct {
	MemberID         uuid.UUID `json:"member_id" validate:"required"`
	CreatorID        uuid.UUID `json:"creator_id" validate:"required"`
	PaymentMethodRef string    `json:"payment_method_ref" validate:"required,max=255"`
}

// TipInput sends money to a creator without granting access.
type TipInput struct {
	MemberID         uuid.UUID       `json:"member_id" validate:"required"`
	CreatorID        uuid.UUID       `json:"creator_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethodRef string          `json:"payment_method_ref" validate:"required,max=255"`
	Note             string          `json:"note" validate:"max=500"`
}

// ServiceParams groups dependencies for the unlock service.
type ServiceParams struct {
	Ledger        ledger.Repository
	Catalog       catalog.Repository
	DB            txRunner
	Gateway       gateway.Gateway
	Outbox        outboxPublisher
	Revenue       revenueRecorder
	Metrics       *metrics.LedgerMetrics
	Logger        *logger.Logger
	FeeRate       decimal.Decimal
	Currency      string
	ChargeTimeout time.Duration
}

type service struct {
	ledger        ledger.Repository
	catalog       catalog.Repository
	db            txRunner
	gateway       gateway.Gateway
	outbox        outboxPublisher
	revenue       revenueRecorder
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	feeRate       decimal.Decimal
	currency      string
	chargeTimeout time.Duration
	now           func() time.Time
}

// NewService constructs the unlock service. Revenue and Metrics are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("platform fee rate must be within [0,1]")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	timeout := params.ChargeTimeout
	if timeout <= 0 {
		timeout = defaultChargeTimeout
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewLedgerMetrics(nil)
	}
	return &service{
		ledger:        params.Ledger,
		catalog:       params.Catalog,
		db:            params.DB,
		gateway:       params.Gateway,
		outbox:        params.Outbox,
		revenue:       params.Revenue,
		metrics:       m,
		logg:          params.Logger,
		feeRate:       params.FeeRate,
		currency:      currency,
		chargeTimeout: timeout,
		now:           time.Now,
	}, nil
}

func (s *service) Unlock(ctx context.Context, input UnlockInput) (*models.Transaction, error) {
	kind := enums.TransactionTypeContentUnlock
	if err := validate.Struct(input); err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	content, err := s.catalog.FindContent(ctx, input.ContentID)
	if err != nil {
		return nil, s.rejectLookup(kind, err, "content not found")
	}
	if content.Status != enums.ContentStatusPublished {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeContentNotFound, "content not found")
	}
	pricing, err := earnings.Compute(earnings.Input{
		Amount:          content.Price,
		FeeRate:         s.feeRate,
		DiscountPercent: content.DiscountPercent,
		OriginalPrice:   content.OriginalPrice,
	})
	if err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	contentID := content.ID
	return s.purchase(ctx, purchase{
		kind:       kind,
		memberID:   input.MemberID,
		creatorID:  content.CreatorID,
		targetID:   content.ID,
		contentID:  &contentID,
		contentIDs: []uuid.UUID{content.ID},
		pricing:    pricing,
		methodRef:  input.PaymentMethodRef,
		exclusive:  true,
		note:       content.Title,
	})
}

func (s *service) UnlockBundle(ctx context.Context, input BundleUnlockInput) (*models.Transaction, error) {
	kind := enums.TransactionTypeBundleUnlock
	if err := validate.Struct(input); err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	bundle, err := s.catalog.FindBundle(ctx, input.BundleID)
	if err != nil {
		return nil, s.rejectLookup(kind, err, "bundle not found")
	}
	if bundle.Status != enums.ContentStatusPublished || len(bundle.ContentIDs) == 0 {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeContentNotFound, "bundle not found")
	}
	pricing, err := earnings.Compute(earnings.Input{
		Amount:          bundle.Price,
		FeeRate:         s.feeRate,
		DiscountPercent: bundle.DiscountPercent,
	})
	if err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	bundleID := bundle.ID
	return s.purchase(ctx, purchase{
		kind:       kind,
		memberID:   input.MemberID,
		creatorID:  bundle.CreatorID,
		targetID:   bundle.ID,
		bundleID:   &bundleID,
		contentIDs: append([]uuid.UUID(nil), bundle.ContentIDs...),
		pricing:    pricing,
		methodRef:  input.PaymentMethodRef,
		exclusive:  true,
		note:       bundle.Title,
	})
}

func (s *service) UnlockProfile(ctx context.Context, input ProfileUnlockInput) (*models.Transaction, error) {
	kind := enums.TransactionTypeProfileUnlock
	if err := validate.Struct(input); err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	settings, err := s.catalog.FindCreatorSettings(ctx, input.CreatorID)
	if err != nil {
		return nil, s.rejectLookup(kind, err, "profile unlock not offered")
	}
	if settings.ProfileUnlockPrice == nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeContentNotFound, "profile unlock not offered")
	}
	contentIDs, err := s.catalog.ListCreatorContentIDs(ctx, input.CreatorID)
	if err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list creator content")
	}
	pricing, err := earnings.Compute(earnings.Input{Amount: *settings.ProfileUnlockPrice, FeeRate: s.feeRate})
	if err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	return s.purchase(ctx, purchase{
		kind:       kind,
		memberID:   input.MemberID,
		creatorID:  input.CreatorID,
		targetID:   input.CreatorID,
		contentIDs: contentIDs,
		pricing:    pricing,
		methodRef:  input.PaymentMethodRef,
		exclusive:  true,
		note:       "profile unlock",
	})
}

func (s *service) Tip(ctx context.Context, input TipInput) (*models.Transaction, error) {
	kind := enums.TransactionTypeTip
	if err := validate.Struct(input); err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	pricing, err := earnings.Compute(earnings.Input{Amount: input.Amount, FeeRate: s.feeRate})
	if err != nil {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return nil, err
	}
	note := validate.SanitizeString(input.Note, 500)
	if note == "" {
		note = "tip"
	}
	return s.purchase(ctx, purchase{
		kind:      kind,
		memberID:  input.MemberID,
		creatorID: input.CreatorID,
		targetID:  input.CreatorID,
		pricing:   pricing,
		methodRef: input.PaymentMethodRef,
		note:      note,
	})
}

func (s *service) rejectLookup(kind enums.TransactionType, err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.metrics.IncUnlock(string(kind), metrics.OutcomeRejected)
		return pkgerrors.New(pkgerrors.CodeContentNotFound, msg)
	}
	s.metrics.IncUnlock(string(kind), metrics.OutcomeError)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase target")
}
