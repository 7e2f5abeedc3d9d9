package models

import "time"

// Response is the envelope every API endpoint returns. Data is present on
// success; the optional flags let clients distinguish failure causes
// without parsing messages.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	// TokenExpired marks a 401 caused by an expired (but otherwise valid)
	// access token, signalling the client to attempt a refresh.
	TokenExpired bool `json:"tokenExpired,omitempty"`

	// AccountLocked and LockExpiry accompany a 403 when the account is
	// locked out after repeated login failures.
	AccountLocked bool       `json:"accountLocked,omitempty"`
	LockExpiry    *time.Time `json:"lockExpiry,omitempty"`
}

// RegisterRequest is the payload for user registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for credential login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the data payload returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshRequest is the payload for token refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordRequest starts the password-reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest checks a password-reset code.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest sets a new password after OTP verification.
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
