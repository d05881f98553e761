// Package apperr defines the error taxonomy shared by the domain services.
//
// Every domain failure carries a Kind so the transport layer can pick a
// response status without knowing individual sentinels. Sentinels are
// *Error values compared with errors.Is; errors that carry extra data
// (for example which product ran out of stock) implement Kinded instead.
package apperr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// KindInternal is a datastore or programming failure. Not surfaced verbatim.
	KindInternal Kind = iota
	// KindValidation is malformed or missing input. No state changed.
	KindValidation
	// KindNotFound means a referenced order, item, coupon, address or product is absent.
	KindNotFound
	// KindConflict means the request is well formed but the current state forbids it.
	KindConflict
	// KindGateway is a payment gateway failure or signature mismatch.
	KindGateway
	// KindUnauthorized means the caller identity could not be established.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Kinded is implemented by errors that know their own Kind.
type Kinded interface {
	error
	Kind() Kind
}

// Error is a classified domain error with a stable machine-readable code.
type Error struct {
	kind    Kind
	Code    string
	Message string
}

var _ Kinded = (*Error)(nil)

func (e *Error) Error() string { return e.Message }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{kind: kind, Code: code, Message: message}
}

// Validation creates a KindValidation error.
func Validation(code, message string) *Error { return New(KindValidation, code, message) }

// NotFound creates a KindNotFound error.
func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

// Conflict creates a KindConflict error.
func Conflict(code, message string) *Error { return New(KindConflict, code, message) }

// Gateway creates a KindGateway error.
func Gateway(code, message string) *Error { return New(KindGateway, code, message) }

// Unauthorized creates a KindUnauthorized error.
func Unauthorized(code, message string) *Error { return New(KindUnauthorized, code, message) }

// KindOf reports the Kind of the first classified error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// CodeOf returns the machine-readable code for err, falling back to the
// kind name when the error carries no code of its own.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	return KindOf(err).String()
}

// Invalid builds an ad-hoc validation error for a specific field.
func Invalid(field, message string) error {
	return New(KindValidation, "invalid_"+field, field+": "+message)
}
