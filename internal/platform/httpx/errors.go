// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// Machine readable problem codes.
const (
	CodeDuplicateEmail     = "duplicate_email"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotFound           = "not_found"
	CodeValidation         = "validation"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", CodeNotFound, shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrDuplicateEmail):
		Problem(w, http.StatusBadRequest, "Duplicate Email", CodeDuplicateEmail, shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusBadRequest, "Invalid Credentials", CodeInvalidCredentials, shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", CodeValidation, shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey-accounts"`)
		Problem(w, http.StatusUnauthorized, "Unauthorized", CodeUnauthorized, shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", CodeInternal, "")
	}
}
