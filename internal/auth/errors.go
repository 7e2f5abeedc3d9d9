// Package auth implements Examdesk's token, lockout, OTP, and CSRF primitives.
package auth

import "errors"

// Sentinel errors returned by the auth primitives. Handlers match these with
// errors.Is to pick the HTTP status and envelope flags.
var (
	// ErrInvalidCredentials covers both unknown-email and wrong-password so
	// login responses stay uniform.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenExpired marks an access token that verified correctly except
	// for its expiry. Clients treat this as a refresh signal.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers every other token verification failure.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrRefreshTokenStale marks a refresh token that verified but does not
	// match the stored value, typically because rotation already replaced it.
	ErrRefreshTokenStale = errors.New("refresh token stale")

	// ErrAccountLocked marks an account in a lockout window.
	ErrAccountLocked = errors.New("account locked")

	// ErrOTPInvalidOrExpired covers wrong, expired, and already-used codes.
	ErrOTPInvalidOrExpired = errors.New("otp invalid or expired")

	// ErrCSRFInvalid marks a missing or mismatched CSRF token.
	ErrCSRFInvalid = errors.New("csrf token invalid")

	// ErrTooManyResetRequests marks an account over the password-reset
	// request throttle.
	ErrTooManyResetRequests = errors.New("too many password reset requests")
)
