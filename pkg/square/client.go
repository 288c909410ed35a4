// Package square wraps the Square Payments API used to charge members.
package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

func baseURL(env string) string {
	if env == productionEnv {
		return "https://connect.squareup.com"
	}
	return "https://connect.squareupsandbox.com"
}

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// Client books card charges against one Square location.
type Client struct {
	payments    paymentsAPI
	environment string
	locationID  string
	logger      *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	switch env {
	case "":
		env = sandboxEnv
	case sandboxEnv, productionEnv:
	default:
		return nil, errInvalidSquareEnv
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(baseURL(env)), sqoption.WithToken(token))
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "location_id": location}), "square client initialized")
	return &Client{payments: sdk.Payments, environment: env, locationID: location, logger: logg}, nil
}

// NewIdempotencyKey returns prefix-<uuid>. Prefixes up to eight characters
// stay inside Square's key limit.
func (c *Client) NewIdempotencyKey(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cv"
	}
	return prefix + "-" + uuid.NewString()
}

// CreatePayment charges a stored card and autocompletes it. Without a caller
// key a random one is used, so only caller-keyed retries collapse.
func (c *Client) CreatePayment(ctx context.Context, charge ChargeRequest) (*sq.Payment, error) {
	if strings.TrimSpace(charge.LocationID) == "" {
		charge.LocationID = c.locationID
	}
	if strings.TrimSpace(charge.IdempotencyKey) == "" {
		charge.IdempotencyKey = c.NewIdempotencyKey("cv")
	}
	req, err := charge.build()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid square charge")
	}

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"square_op":    "create_payment",
		"location_id":  charge.LocationID,
		"reference_id": charge.ReferenceID,
		"amount_minor": *req.AmountMoney.Amount,
		"currency":     string(*req.AmountMoney.Currency),
	})
	resp, err := c.payments.Create(ctx, req)
	if err != nil {
		mapped := mapError(err, "create payment")
		c.logger.Error(logCtx, "square create payment failed", mapped)
		return nil, mapped
	}
	payment := resp.GetPayment()
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	c.logger.Info(c.logger.WithFields(logCtx, map[string]any{
		"payment_id":     deref(payment.GetID()),
		"payment_status": deref(payment.GetStatus()),
	}), "square payment created")
	return payment, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
