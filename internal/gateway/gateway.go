// Package gateway charges members through the configured payment provider.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
)

// Charge is one synchronous payment attempt.
type Charge struct {
	Amount         decimal.Decimal
	Currency       string
	MemberID       uuid.UUID
	MethodRef      string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// Result reports the provider's answer. A declined charge is a Result with
// Success false; transport failures and timeouts are returned as errors.
type Result struct {
	Success     bool
	ExternalRef string
	Reason      string
}

// Gateway is the payment collaborator used by the unlock flow.
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (Result, error)
}

// New returns the gateway selected by cfg.Provider. payments is only required
// for the square provider.
func New(cfg config.GatewayConfig, payments SquarePayments) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", config.GatewayProviderNoop:
		return Noop{}, nil
	case config.GatewayProviderSquare:
		return NewSquare(payments)
	default:
		return nil, fmt.Errorf("unsupported gateway provider %q", cfg.Provider)
	}
}

// Noop approves every charge. Used for local development.
type Noop struct{}

func (Noop) Charge(ctx context.Context, charge Charge) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(charge.IdempotencyKey) == "" {
		return Result{}, fmt.Errorf("idempotency key required")
	}
	return Result{Success: true, ExternalRef: "noop_" + charge.IdempotencyKey}, nil
}
