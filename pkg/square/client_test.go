package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorvault-backend/pkg/errors"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

type fakePayments struct {
	last *sq.CreatePaymentRequest
	resp *sq.CreatePaymentResponse
	err  error
}

func (f *fakePayments) Create(_ context.Context, req *sq.CreatePaymentRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error) {
	f.last = req
	return f.resp, f.err
}

func testClient(payments paymentsAPI) *Client {
	return &Client{
		payments:    payments,
		environment: sandboxEnv,
		locationID:  "L1",
		logger:      logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard}),
	}
}

func strPtr(s string) *string { return &s }

func TestNewIdempotencyKeyFitsSquareLimit(t *testing.T) {
	c := &Client{}
	key := c.NewIdempotencyKey("unlock")
	assert.True(t, strings.HasPrefix(key, "unlock-"))
	assert.LessOrEqual(t, len(key), maxIdempotencyKeyLen)
	assert.True(t, strings.HasPrefix(c.NewIdempotencyKey(" "), "cv-"))
}

func TestCreatePaymentDefaultsLocationAndKey(t *testing.T) {
	payments := &fakePayments{resp: &sq.CreatePaymentResponse{
		Payment: &sq.Payment{ID: strPtr("pay_1"), Status: strPtr("COMPLETED")},
	}}
	c := testClient(payments)

	payment, err := c.CreatePayment(context.Background(), ChargeRequest{
		Amount:   decimal.RequireFromString("4.99"),
		SourceID: "ccof:card",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", deref(payment.GetID()))
	require.NotNil(t, payments.last)
	assert.Equal(t, "L1", deref(payments.last.LocationID))
	assert.True(t, strings.HasPrefix(payments.last.IdempotencyKey, "cv-"))
	assert.Equal(t, int64(499), *payments.last.AmountMoney.Amount)
}

func TestCreatePaymentRejectsInvalidCharge(t *testing.T) {
	payments := &fakePayments{}
	_, err := testClient(payments).CreatePayment(context.Background(), ChargeRequest{Amount: decimal.Zero, SourceID: "card"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Nil(t, payments.last, "invalid charges never reach square")
}

func TestCreatePaymentMapsAPIError(t *testing.T) {
	payments := &fakePayments{err: sqcore.NewAPIError(http.StatusPaymentRequired,
		errors.New(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"Card declined."}]}`))}

	_, err := testClient(payments).CreatePayment(context.Background(), ChargeRequest{
		Amount:         decimal.NewFromInt(5),
		SourceID:       "ccof:card",
		IdempotencyKey: "k1",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Contains(t, err.Error(), "Card declined.")
}

func TestCreatePaymentWithoutPayment(t *testing.T) {
	_, err := testClient(&fakePayments{resp: &sq.CreatePaymentResponse{}}).CreatePayment(context.Background(), ChargeRequest{
		Amount:   decimal.NewFromInt(1),
		SourceID: "card",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]pkgerrors.Code{
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusConflict:            pkgerrors.CodeConflict,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusBadRequest:          pkgerrors.CodeValidation,
		http.StatusPaymentRequired:     pkgerrors.CodeValidation,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusInternalServerError: pkgerrors.CodeDependency,
	}
	for status, want := range tests {
		assert.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		want   pkgerrors.Code
		detail string
	}{
		{
			name: "authentication overrides status",
			err:  sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			want: pkgerrors.CodeUnauthorized,
		},
		{
			name:   "idempotency key reused",
			err:    sqcore.NewAPIError(http.StatusConflict, errors.New(`{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED","detail":"key reused"}]}`)),
			want:   pkgerrors.CodeIdempotency,
			detail: "key reused",
		},
		{
			name: "unparseable body",
			err:  sqcore.NewAPIError(http.StatusBadGateway, errors.New("<html>")),
			want: pkgerrors.CodeDependency,
		},
		{
			name: "transport error",
			err:  errors.New("dial tcp: timeout"),
			want: pkgerrors.CodeDependency,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapError(tc.err, "create payment")
			typed := pkgerrors.As(mapped)
			require.NotNil(t, typed)
			assert.Equal(t, tc.want, typed.Code())
			if tc.detail != "" {
				assert.Contains(t, mapped.Error(), tc.detail)
			}
		})
	}
	assert.NoError(t, mapError(nil, "noop"))
}

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})
	cases := []struct {
		name string
		cfg  config.SquareConfig
		want error
	}{
		{name: "missing token", cfg: config.SquareConfig{LocationID: "L1"}, want: errAccessTokenRequired},
		{name: "missing location", cfg: config.SquareConfig{AccessToken: "tok"}, want: errLocationRequired},
		{name: "bad env", cfg: config.SquareConfig{AccessToken: "tok", LocationID: "L1", Env: "staging"}, want: errInvalidSquareEnv},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tc.cfg, logg)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	_, err := NewClient(context.Background(), config.SquareConfig{AccessToken: "tok", LocationID: "L1"}, nil)
	assert.ErrorIs(t, err, errLoggerRequired)

	client, err := NewClient(context.Background(), config.SquareConfig{AccessToken: "tok", LocationID: "L1", Env: "Production"}, logg)
	require.NoError(t, err)
	assert.Equal(t, productionEnv, client.environment)
	assert.Equal(t, "L1", client.locationID)
}

func TestChargeRequestBuild(t *testing.T) {
	req, err := ChargeRequest{
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "usd",
		LocationID:     "L1",
		SourceID:       "ccof:card",
		IdempotencyKey: "key-1",
		ReferenceID:    strings.Repeat("r", 60),
		Note:           "  ",
	}.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.IdempotencyKey != "key-1" || req.SourceID != "ccof:card" {
		t.Fatalf("unexpected request identity: %+v", req)
	}
	if *req.AmountMoney.Amount != 999 || *req.AmountMoney.Currency != sq.Currency("USD") {
		t.Fatalf("unexpected amount money: %+v", req.AmountMoney)
	}
	if req.CustomerID != nil || req.Note != nil {
		t.Fatalf("blank optional fields should be omitted")
	}
	if len(*req.ReferenceID) != maxReferenceIDLen {
		t.Fatalf("reference id should be truncated, got %d chars", len(*req.ReferenceID))
	}
	if req.Autocomplete == nil || !*req.Autocomplete {
		t.Fatalf("expected autocomplete to be set")
	}
}

func TestChargeRequestBuildRejects(t *testing.T) {
	valid := ChargeRequest{Amount: decimal.NewFromInt(5), SourceID: "card", IdempotencyKey: "k"}
	cases := map[string]func(r *ChargeRequest){
		"zero amount":     func(r *ChargeRequest) { r.Amount = decimal.Zero },
		"sub-cent amount": func(r *ChargeRequest) { r.Amount = decimal.RequireFromString("0.004") },
		"missing source":  func(r *ChargeRequest) { r.SourceID = "" },
		"long key":        func(r *ChargeRequest) { r.IdempotencyKey = strings.Repeat("k", 46) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			if _, err := r.build(); err == nil {
				t.Fatalf("expected build error")
			}
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"2.99", "USD", 299},
		{"10", "", 1000},
		{"0.005", "usd", 1},
		{"1500", "JPY", 1500},
		{"1500.6", "jpy", 1501},
	}
	for _, tc := range tests {
		if got := MinorUnits(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Fatalf("MinorUnits(%s %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}
