package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthExpired      = fmt.Errorf("session expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrQuestionNotFound   = fmt.Errorf("question not found")
	ErrSubmissionNotFound = fmt.Errorf("submission not found")

	// Live update errors
	ErrTransport        = fmt.Errorf("push transport error")
	ErrMalformedMessage = fmt.Errorf("malformed push message")
	ErrNotConnected     = fmt.Errorf("push client not connected")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// IsAuthError reports whether err belongs to the terminal authentication family
// ([ErrNoRefreshToken], [ErrRefreshFailed], [ErrAuthExpired], [ErrNotAuthenticated]).
func IsAuthError(err error) bool {
	for _, target := range []error{ErrNoRefreshToken, ErrRefreshFailed, ErrAuthExpired, ErrNotAuthenticated} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
