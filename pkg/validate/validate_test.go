package validate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
)

type payoutForm struct {
	CreatorID uuid.UUID       `json:"creator_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"money"`
	Email     string          `json:"paypal_email" validate:"omitempty,email"`
	Note      string          `json:"note" validate:"max=5"`
	Internal  string          `json:"-" validate:"required"`
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected a typed error, got %v", err)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	out, ok := typed.Details().(map[string]string)
	require.True(t, ok, "unexpected details type %T", typed.Details())
	return out
}

func TestStructAcceptsValidInput(t *testing.T) {
	in := payoutForm{CreatorID: uuid.New(), Amount: decimal.RequireFromString("4.99"), Email: "a@b.co", Internal: "x"}
	assert.NoError(t, Struct(in))
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	got := details(t, Struct(payoutForm{Amount: decimal.Zero, Email: "nope", Note: "too long"}))
	assert.Equal(t, map[string]string{
		"creator_id":   "is required",
		"amount":       "must be a positive amount with at most 2 decimal places",
		"paypal_email": "must be a valid email",
		"note":         "must be at most 5",
		"Internal":     "is required",
	}, got)
}

func TestMoneyTag(t *testing.T) {
	cases := map[string]bool{
		"0.01":   true,
		"12":     true,
		"12.50":  true,
		"0":      false,
		"-3.00":  false,
		"1.005":  false,
		"0.0001": false,
	}
	for raw, ok := range cases {
		t.Run(raw, func(t *testing.T) {
			in := payoutForm{CreatorID: uuid.New(), Amount: decimal.RequireFromString(raw), Internal: "x"}
			err := Struct(in)
			if ok {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, details(t, err), "amount")
		})
	}
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct("not a struct")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "refund", SanitizeString("  refund requested by member  ", 6))
	assert.Equal(t, "ok", SanitizeString(" ok ", 0))
	assert.Equal(t, "café", SanitizeString("café au lait", 5))
}
