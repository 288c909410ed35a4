package square

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
)

// Square field limits for CreatePayment.
const (
	maxReferenceIDLen    = 40
	maxNoteLen           = 500
	maxIdempotencyKeyLen = 45
)

// zeroDecimalCurrencies are charged in whole units.
var zeroDecimalCurrencies = map[string]bool{"JPY": true, "KRW": true, "VND": true, "CLP": true}

// ChargeRequest is a card-on-file charge for one unlock.
type ChargeRequest struct {
	Amount         decimal.Decimal
	Currency       string
	SourceID       string
	CustomerID     string
	LocationID     string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

// MinorUnits converts amount into the smallest unit of currency, rounding
// half away from zero.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	places := int32(2)
	if zeroDecimalCurrencies[normalizeCurrency(currency)] {
		places = 0
	}
	return amount.Round(places).Shift(places).IntPart()
}

func (r ChargeRequest) build() (*sq.CreatePaymentRequest, error) {
	minor := MinorUnits(r.Amount, r.Currency)
	switch {
	case minor <= 0:
		return nil, fmt.Errorf("charge amount %s must be positive", r.Amount)
	case strings.TrimSpace(r.SourceID) == "":
		return nil, errors.New("charge source id is required")
	case r.IdempotencyKey == "" || len(r.IdempotencyKey) > maxIdempotencyKeyLen:
		return nil, fmt.Errorf("idempotency key must be 1-%d characters", maxIdempotencyKeyLen)
	}

	currency := sq.Currency(normalizeCurrency(r.Currency))
	autocomplete := true
	return &sq.CreatePaymentRequest{
		IdempotencyKey: r.IdempotencyKey,
		SourceID:       r.SourceID,
		AmountMoney:    &sq.Money{Amount: &minor, Currency: &currency},
		Autocomplete:   &autocomplete,
		LocationID:     optional(r.LocationID, 0),
		CustomerID:     optional(r.CustomerID, 0),
		ReferenceID:    optional(r.ReferenceID, maxReferenceIDLen),
		Note:           optional(r.Note, maxNoteLen),
	}, nil
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}

// optional trims value and returns nil when nothing is left. A positive limit
// truncates to that many bytes.
func optional(value string, limit int) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return &value
}
