// Package apperr holds the error kinds shared by the cart, order and payment
// packages. Callers wrap them with fmt.Errorf("...: %w", ...) and test with errors.Is.
package apperr

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrAmountMismatch   = errors.New("amount mismatch")
	ErrUnknownStatus    = errors.New("unknown payment status")
	ErrConflict         = errors.New("concurrent update conflict")
	ErrTransient        = errors.New("datastore unavailable")
)

// Invalid wraps ErrInvalidInput with a client-facing reason.
func Invalid(reason string) error {
	return &reasonError{kind: ErrInvalidInput, reason: reason}
}

// NotFound wraps ErrNotFound with a client-facing reason.
func NotFound(reason string) error {
	return &reasonError{kind: ErrNotFound, reason: reason}
}

// Conflict wraps ErrConflict with a client-facing reason.
func Conflict(reason string) error {
	return &reasonError{kind: ErrConflict, reason: reason}
}

type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.reason }
func (e *reasonError) Unwrap() error { return e.kind }

// Reason returns the client-facing message of err, falling back to the kind.
func Reason(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	for _, k := range []error{ErrInvalidInput, ErrNotFound, ErrSignatureInvalid, ErrAmountMismatch, ErrUnknownStatus, ErrConflict, ErrTransient} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal error"
}
