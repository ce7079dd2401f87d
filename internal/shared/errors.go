package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown email and wrong password share it.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEmail occurs when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized occurs when a bearer token is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInternal hides storage and hashing failures from callers.
	ErrInternal = errors.New("internal error")
)

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrDuplicateEmail):
		return "User already exists"
	case errors.Is(err, ErrNotFound):
		return "User not found"
	case errors.Is(err, ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "Internal server error"
	}
}
