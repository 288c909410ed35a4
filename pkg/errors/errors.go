// Package errors carries coded errors through the ledger services. A code
// decides how a failure surfaces: its class, whether retrying can help and
// which message an operator sees.
package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeAlreadyUnlocked         Code = "ALREADY_UNLOCKED"
	CodeContentNotFound         Code = "CONTENT_NOT_FOUND"
	CodePaymentFailed           Code = "PAYMENT_FAILED"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeInvalidDiscount         Code = "INVALID_DISCOUNT"
	CodeDuplicatePendingRequest Code = "DUPLICATE_PENDING_REQUEST"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeBelowMinimum            Code = "BELOW_MINIMUM"
	CodeInvalidState            Code = "INVALID_STATE"
)

// Class groups codes by who has to act on them.
type Class uint8

const (
	ClassInternal  Class = iota // a bug or broken invariant
	ClassInput                  // the caller sent something unusable
	ClassDenied                 // the caller may not do this
	ClassMissing                // the target does not exist
	ClassState                  // the ledger's current state forbids it
	ClassTransient              // a dependency failed; retrying may help
)

var classNames = [...]string{"internal", "input", "denied", "missing", "state", "transient"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", c)
}

// ExitCode is the process status ledgerctl exits with for the class.
func (c Class) ExitCode() int {
	if c == ClassInternal {
		return 1
	}
	return int(c) + 1
}

// Metadata is what an operator surface may show for a code.
type Metadata struct {
	Class          Class
	PublicMessage  string
	DetailsAllowed bool
}

// Retryable reports whether the same call may succeed later.
func (m Metadata) Retryable() bool {
	return m.Class == ClassTransient || m.Class == ClassInternal
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      {ClassInput, "validation failed", true},
	CodeInvalidAmount:   {ClassInput, "invalid amount", true},
	CodeInvalidDiscount: {ClassInput, "invalid discount", true},
	CodeUnauthorized:    {ClassDenied, "authentication required", false},
	CodeForbidden:       {ClassDenied, "access denied", false},
	CodeNotFound:        {ClassMissing, "resource not found", false},
	CodeContentNotFound: {ClassMissing, "content not found", false},

	CodeConflict:                {ClassState, "conflict detected", false},
	CodeStateConflict:           {ClassState, "state transition disallowed", true},
	CodeIdempotency:             {ClassState, "idempotency key reused", true},
	CodeAlreadyUnlocked:         {ClassState, "content already unlocked", true},
	CodePaymentFailed:           {ClassState, "payment failed", true},
	CodeDuplicatePendingRequest: {ClassState, "a payout request is already pending", true},
	CodeInsufficientFunds:       {ClassState, "insufficient available balance", true},
	CodeBelowMinimum:            {ClassState, "amount below minimum payout", true},
	CodeInvalidState:            {ClassState, "operation not allowed in current state", true},

	CodeRateLimit:  {ClassTransient, "rate limit exceeded", false},
	CodeDependency: {ClassTransient, "dependency unavailable", true},
	CodeInternal:   {ClassInternal, "internal error", false},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err yields New(code, message).
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	return As(err).codeOr("") == code
}

// ClassOf classifies err. Uncoded errors count as internal.
func ClassOf(err error) Class {
	return MetadataFor(As(err).codeOr(CodeInternal)).Class
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
