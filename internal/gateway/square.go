package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/square"
)

// SquarePayments is the subset of the Square client the gateway needs.
type SquarePayments interface {
	CreatePayment(ctx context.Context, charge square.ChargeRequest) (*sq.Payment, error)
}

type squareGateway struct {
	payments SquarePayments
}

// NewSquare charges stored card references through Square Payments.
func NewSquare(payments SquarePayments) (Gateway, error) {
	if payments == nil {
		return nil, fmt.Errorf("square payments client required")
	}
	return &squareGateway{payments: payments}, nil
}

func (g *squareGateway) Charge(ctx context.Context, charge Charge) (Result, error) {
	if strings.TrimSpace(charge.MethodRef) == "" {
		return Result{Success: false, Reason: "payment method required"}, nil
	}
	switch minor := square.MinorUnits(charge.Amount, charge.Currency); {
	case minor < 0:
		return Result{}, fmt.Errorf("negative charge amount %s", charge.Amount)
	case minor == 0:
		return Result{Success: true}, nil
	}

	payment, err := g.payments.CreatePayment(ctx, square.ChargeRequest{
		Amount:         charge.Amount,
		Currency:       charge.Currency,
		SourceID:       charge.MethodRef,
		IdempotencyKey: charge.IdempotencyKey,
		ReferenceID:    charge.ReferenceID,
		Note:           charge.Note,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		if declined(err) {
			return Result{Success: false, Reason: err.Error()}, nil
		}
		return Result{}, err
	}
	if payment == nil {
		return Result{}, fmt.Errorf("square returned no payment")
	}

	ref := deref(payment.GetID())
	status := strings.ToUpper(deref(payment.GetStatus()))
	switch status {
	case "COMPLETED", "APPROVED":
		return Result{Success: true, ExternalRef: ref}, nil
	default:
		return Result{Success: false, ExternalRef: ref, Reason: "payment status " + strings.ToLower(status)}, nil
	}
}

// declined reports whether Square answered with a client-side rejection
// (card declined, bad source) rather than failing to answer.
func declined(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict, pkgerrors.CodeForbidden, pkgerrors.CodeNotFound:
		return true
	default:
		return false
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
