package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMetadataClasses(t *testing.T) {
	tests := []struct {
		code      Code
		class     Class
		publicMsg string
		detailsOK bool
	}{
		{CodeValidation, ClassInput, "validation failed", true},
		{CodeInvalidAmount, ClassInput, "invalid amount", true},
		{CodeForbidden, ClassDenied, "access denied", false},
		{CodeNotFound, ClassMissing, "resource not found", false},
		{CodeContentNotFound, ClassMissing, "content not found", false},
		{CodeAlreadyUnlocked, ClassState, "content already unlocked", true},
		{CodeInsufficientFunds, ClassState, "insufficient available balance", true},
		{CodeInvalidState, ClassState, "operation not allowed in current state", true},
		{CodeDependency, ClassTransient, "dependency unavailable", true},
		{CodeInternal, ClassInternal, "internal error", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.class, meta.Class)
			assert.Equal(t, tt.publicMsg, meta.PublicMessage)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
		})
	}
}

func TestEveryCodeHasMetadata(t *testing.T) {
	for code := range metadataByCode {
		assert.NotEmpty(t, MetadataFor(code).PublicMessage, code)
	}
	assert.Equal(t, ClassInternal, MetadataFor("SOMETHING_UNKNOWN").Class)
}

func TestRetryableAndExitCodes(t *testing.T) {
	assert.True(t, MetadataFor(CodeDependency).Retryable())
	assert.True(t, MetadataFor(CodeInternal).Retryable())
	assert.False(t, MetadataFor(CodeInsufficientFunds).Retryable())

	assert.Equal(t, 1, ClassInternal.ExitCode())
	assert.Equal(t, 2, ClassInput.ExitCode())
	assert.Equal(t, 5, ClassState.ExitCode())
	assert.Equal(t, 6, ClassTransient.ExitCode())
	assert.Equal(t, "state", ClassState.String())
	assert.Equal(t, "class(42)", Class(42).String())
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassMissing, ClassOf(fmt.Errorf("load: %w", New(CodeNotFound, "gone"))))
	assert.Equal(t, ClassInternal, ClassOf(stdErrors.New("plain")))
	assert.Equal(t, ClassInternal, ClassOf(nil))
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing amount")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing amount" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "amount"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(CodeInsufficientFunds, "requested 35.00 exceeds available 30.00")
	outer := fmt.Errorf("request payout: %w", inner)
	if !Is(outer, CodeInsufficientFunds) {
		t.Fatalf("expected Is to find code through wrapping")
	}
	if Is(outer, CodeBelowMinimum) {
		t.Fatalf("unexpected match for different code")
	}
	if Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDiagnoseCollectsChain(t *testing.T) {
	err := Wrap(CodeInvalidState, stdErrors.New("0 rows affected"), "payout request not approved")
	d := Diagnose(err)
	if d.Code != CodeInvalidState {
		t.Fatalf("expected code %s, got %s", CodeInvalidState, d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(d.Chain))
	}
	if d.PG != nil {
		t.Fatalf("expected no pg detail, got %+v", d.PG)
	}
	if got := Diagnose(nil); got.Message != "" || got.Chain != nil {
		t.Fatalf("nil error should diagnose to zero value, got %+v", got)
	}
}

func TestDiagnoseReadsPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payout_requests_one_pending", TableName: "payout_requests"}
	d := Diagnose(Wrap(CodeDuplicatePendingRequest, fmt.Errorf("insert: %w", pgErr), "pending request exists"))
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "payout_requests_one_pending" {
		t.Fatalf("unexpected pg detail %+v", d.PG)
	}

	d = Diagnose(&pq.Error{Code: "40001", Table: "transactions"})
	if d.PG == nil || d.PG.Code != "40001" || d.PG.Table != "transactions" {
		t.Fatalf("unexpected pq detail %+v", d.PG)
	}
}
