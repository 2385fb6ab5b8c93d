package httpapi

import (
	"net/http"

	"github.com/jeremy-quicklearner/clautod/internal/common"
)

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	switch common.Classify(err) {
	case common.ErrValidation, common.ErrConstraintViolation:
		return http.StatusBadRequest
	case common.ErrorUnauthorized, common.ErrInvalidCredentials:
		return http.StatusUnauthorized
	case common.ErrForbidden:
		return http.StatusForbidden
	case common.ErrMissingSubject, common.ErrNotFound:
		return http.StatusNotFound
	case common.ErrMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case common.ErrIllegalOperation:
		return http.StatusConflict
	case common.ErrRateLimited:
		return http.StatusTooManyRequests
	case common.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
