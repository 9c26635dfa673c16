package auth

import "errors"

// Failure kinds callers branch on. Everything else coming out of a login
// attempt is a navigation failure wrapped with context.
var (
	// ErrCredentialsNotConfigured means no portal username/password is set
	ErrCredentialsNotConfigured = errors.New("portal credentials not configured")

	// ErrLoginFormNotFound means the login page rendered without a usable
	// form, usually a portal UI change or bot detection
	ErrLoginFormNotFound = errors.New("login form not found on page")

	// ErrTokenNotCaptured means the login flow completed but no bearer
	// token was observed in the portal's API traffic
	ErrTokenNotCaptured = errors.New("bearer token not captured during login")
)
