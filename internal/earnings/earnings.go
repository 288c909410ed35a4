// Package earnings derives creator earnings from a gross charge. It performs
// no I/O and is evaluated once when a transaction is created.
package earnings

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Input is the pricing of a single charge.
type Input struct {
	Amount          decimal.Decimal
	FeeRate         decimal.Decimal
	DiscountPercent *decimal.Decimal
	OriginalPrice   *decimal.Decimal
}

// Result is fixed on the transaction at creation and never recomputed.
type Result struct {
	Amount          decimal.Decimal
	FeeRate         decimal.Decimal
	CreatorEarnings decimal.Decimal
	PlatformFee     decimal.Decimal
	DiscountPercent *decimal.Decimal
	OriginalPrice   *decimal.Decimal
}

// Compute returns creatorEarnings = round2(amount * (1 - feeRate)). When a
// discount is given without an original price, the original price is derived
// as round2(amount / (1 - discount/100)).
func Compute(in Input) (Result, error) {
	if in.Amount.IsNegative() {
		return Result{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must not be negative")
	}
	if in.FeeRate.IsNegative() || in.FeeRate.GreaterThan(one) {
		return Result{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "platform fee rate must be within [0,1]")
	}

	amount := Round2(in.Amount)
	res := Result{
		Amount:          amount,
		FeeRate:         in.FeeRate,
		CreatorEarnings: Round2(amount.Mul(one.Sub(in.FeeRate))),
	}
	res.PlatformFee = amount.Sub(res.CreatorEarnings)

	if in.DiscountPercent != nil {
		discount := *in.DiscountPercent
		if discount.IsNegative() || discount.GreaterThanOrEqual(hundred) {
			return Result{}, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "discount percent must be within [0,100)")
		}
		res.DiscountPercent = &discount
		derived := Round2(amount.Div(one.Sub(discount.Div(hundred))))
		if in.OriginalPrice != nil && !Round2(*in.OriginalPrice).Equal(derived) {
			return Result{}, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "original price does not match the discounted amount").
				WithDetails(map[string]any{"original_price": Round2(*in.OriginalPrice).StringFixed(2), "expected": derived.StringFixed(2)})
		}
		res.OriginalPrice = &derived
	}
	if in.OriginalPrice != nil {
		original := Round2(*in.OriginalPrice)
		if original.LessThan(amount) {
			return Result{}, pkgerrors.New(pkgerrors.CodeInvalidDiscount, "original price must not be below the charged amount")
		}
		res.OriginalPrice = &original
	}
	return res, nil
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
