package payments

import "errors"

var (
	ErrNotConfigured     = errors.New("payment provider not configured")
	ErrNotReady          = errors.New("payment provider not ready")
	ErrElementMounted    = errors.New("another payment element is already mounted")
	ErrDeclined          = errors.New("payment declined")
	ErrIncomplete        = errors.New("payment not completed")
	ErrOrderFailed       = errors.New("payment order failed")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// Error is a provider failure. Message is the text shown next to the
// payment widget; Kind is one of the sentinels above.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}
