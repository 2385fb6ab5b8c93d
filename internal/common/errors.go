// Package common defines shared constants and sentinel errors used across
// the clautod server and its admin client. Callers should use errors.Is to
// match these values; producers wrap them with fmt.Errorf("%w: ...").
package common

import "errors"

var (
	// Entity errors.
	ErrValidation          = errors.New("validation error")
	ErrConstraintViolation = errors.New("constraint violation")

	// Directory and storage errors.
	ErrMissingSubject     = errors.New("no such subject")
	ErrStorageState       = errors.New("unexpected storage state")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Policy errors.
	ErrIllegalOperation   = errors.New("illegal operation")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Session and dispatch errors.
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrRateLimited      = errors.New("too many requests")

	ErrorInternal = errors.New("internal error")
)

// caller-facing errors, most specific first
var public = []error{
	ErrInvalidCredentials,
	ErrValidation,
	ErrConstraintViolation,
	ErrIllegalOperation,
	ErrMissingSubject,
	ErrorUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrMethodNotAllowed,
	ErrRateLimited,
	ErrStorageUnavailable,
}

// Classify returns the sentinel a transport should report for err.
// Anything that does not wrap a caller-facing sentinel is ErrorInternal.
func Classify(err error) error {
	for _, e := range public {
		if errors.Is(err, e) {
			return e
		}
	}
	return ErrorInternal
}

// PublicMessage returns the text that may be shown to an external caller.
// Policy and validation errors keep their detail, authentication failures are
// reduced to their sentinel and everything else becomes "internal error".
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	switch c := Classify(err); c {
	case ErrValidation, ErrConstraintViolation, ErrIllegalOperation, ErrMissingSubject:
		return err.Error()
	default:
		return c.Error()
	}
}
