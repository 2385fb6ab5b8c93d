package client

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremy-quicklearner/clautod/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// RemoteError is a failure reported by the server. Message is the text the
// server chose to expose.
type RemoteError struct {
	Code    codes.Code
	Message string
	kind    error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}

func kindOf(code codes.Code) error {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrForbidden
	case codes.InvalidArgument:
		return common.ErrValidation
	case codes.NotFound:
		return common.ErrNotFound
	case codes.FailedPrecondition:
		return common.ErrIllegalOperation
	case codes.ResourceExhausted:
		return common.ErrRateLimited
	case codes.Unimplemented:
		return common.ErrMethodNotAllowed
	default:
		return common.ErrorInternal
	}
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &RemoteError{Code: st.Code(), Message: st.Message(), kind: kindOf(st.Code())}
}
