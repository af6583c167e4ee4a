package handler

import (
	"errors"
	"net/http"

	"go-bank-gate/common"
	"go-bank-gate/service"
)

func ErrorHandlingMiddleware(next func(http.ResponseWriter, *http.Request) *common.AppError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			err.Send(w)
		}
	}
}

// toAppError maps a service error to its HTTP form. invalidMsg is the
// message used for ErrAuthInvalid, which differs between credential and
// token failures.
func toAppError(err error, invalidMsg string) *common.AppError {
	switch {
	case errors.Is(err, service.ErrAuthInvalid):
		return common.NewAppError(http.StatusUnauthorized, invalidMsg, nil)
	case errors.Is(err, service.ErrAccountInactive):
		return common.NewAppError(http.StatusUnauthorized, "Account is inactive", nil)
	case errors.Is(err, service.ErrStoreUnavailable):
		return common.NewAppError(http.StatusServiceUnavailable, "Service temporarily unavailable", err)
	default:
		return common.NewAppError(http.StatusInternalServerError, "Internal server error", err)
	}
}
