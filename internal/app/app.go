// Package app builds the ledger services from configuration and shared
// clients. Binaries and the HTTP layer both start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/creatorvault-backend/internal/catalog"
	"github.com/angelmondragon/creatorvault-backend/internal/entitlements"
	"github.com/angelmondragon/creatorvault-backend/internal/gateway"
	"github.com/angelmondragon/creatorvault-backend/internal/ledger"
	"github.com/angelmondragon/creatorvault-backend/internal/payouts"
	"github.com/angelmondragon/creatorvault-backend/internal/unlocks"
	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/metrics"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
	"github.com/angelmondragon/creatorvault-backend/pkg/redis"
	"github.com/angelmondragon/creatorvault-backend/pkg/square"
)

// Params carries the clients the services share. Redis and Square are
// optional: without Redis creator revenue counters are skipped, and Square is
// only needed when the gateway provider is square.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Square     gateway.SquarePayments
	Registerer prometheus.Registerer
}

// StatsReader reads the display-only creator counters.
type StatsReader interface {
	CreatorStats(ctx context.Context, creatorID string) (redis.CreatorStats, error)
}

// App holds the wired repositories and services. Stats is nil without Redis.
type App struct {
	Catalog      catalog.Repository
	LedgerRepo   ledger.Repository
	PayoutRepo   payouts.Repository
	Outbox       *outbox.Service
	DeadLetters  *outbox.DLQRepository
	Metrics      *metrics.LedgerMetrics
	Ledger       ledger.Service
	Unlocks      unlocks.Service
	Entitlements entitlements.Service
	Payouts      payouts.Service
	Stats        StatsReader
}

// New wires every service against the shared database client.
func New(params Params) (*App, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	gw, err := gateway.New(cfg.Gateway, params.Square)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	a := &App{
		Catalog:     catalog.NewRepository(conn),
		LedgerRepo:  ledger.NewRepository(conn),
		PayoutRepo:  payouts.NewRepository(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		DeadLetters: outbox.NewDLQRepository(conn),
		Metrics:     metrics.NewLedgerMetrics(params.Registerer),
	}

	if a.Ledger, err = ledger.NewService(ledger.ServiceParams{
		Repo:     a.LedgerRepo,
		DB:       params.DB,
		Outbox:   a.Outbox,
		Logger:   logg,
		Clawback: cfg.Ledger.Clawback(),
	}); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	unlockParams := unlocks.ServiceParams{
		Ledger:        a.LedgerRepo,
		Catalog:       a.Catalog,
		DB:            params.DB,
		Gateway:       gw,
		Outbox:        a.Outbox,
		Metrics:       a.Metrics,
		Logger:        logg,
		FeeRate:       cfg.Ledger.PlatformFeeRateDecimal(),
		Currency:      cfg.Ledger.Currency,
		ChargeTimeout: cfg.Gateway.ChargeTimeout,
	}
	if params.Redis != nil {
		unlockParams.Revenue = params.Redis
		a.Stats = params.Redis
	}
	if a.Unlocks, err = unlocks.NewService(unlockParams); err != nil {
		return nil, fmt.Errorf("unlock service: %w", err)
	}

	if a.Entitlements, err = entitlements.NewService(a.LedgerRepo); err != nil {
		return nil, fmt.Errorf("entitlement service: %w", err)
	}

	if a.Payouts, err = payouts.NewService(payouts.ServiceParams{
		Repo:           a.PayoutRepo,
		Catalog:        a.Catalog,
		DB:             params.DB,
		Outbox:         a.Outbox,
		Metrics:        a.Metrics,
		Logger:         logg,
		DefaultMinimum: cfg.Ledger.DefaultMinimumPayoutDecimal(),
		Currency:       cfg.Ledger.Currency,
	}); err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	return a, nil
}

// SquarePayments returns the Square client when the configured gateway needs
// one, and nil otherwise.
func SquarePayments(ctx context.Context, cfg *config.Config, logg *logger.Logger) (gateway.SquarePayments, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Gateway.Provider), config.GatewayProviderSquare) {
		return nil, nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, fmt.Errorf("square client: %w", err)
	}
	return client, nil
}
