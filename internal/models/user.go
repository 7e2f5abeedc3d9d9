package models

import (
	"strings"
	"time"
)

// User represents a user account stored in Examdesk. Besides the credential
// fields it carries the per-account security state the auth flows mutate:
// the stored refresh token, the pending password-reset OTP, and the login
// failure / reset throttle counters.
//
// Never marshal User into an API response; use Profile for the public view.
type User struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`

	// Refresh token state. Both are set on issue and cleared together on
	// logout or revocation.
	RefreshToken       string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry,omitempty"`

	// Pending password-reset OTP. OTPHash holds a keyed hash, never the
	// code itself. Cleared after one successful verification.
	OTPHash   string    `json:"otp_hash,omitempty"`
	OTPExpiry time.Time `json:"otp_expiry,omitempty"`

	// Login failure tracking for the lockout guard.
	LoginAttempts      int       `json:"login_attempts,omitempty"`
	LastLoginAttempt   time.Time `json:"last_login_attempt,omitempty"`
	AccountLocked      bool      `json:"account_locked,omitempty"`
	AccountLockedUntil time.Time `json:"account_locked_until,omitempty"`

	// Password-reset request throttling.
	PasswordResetAttempts int       `json:"password_reset_attempts,omitempty"`
	LastPasswordReset     time.Time `json:"last_password_reset,omitempty"`
}

// NormalizeEmail lowercases and trims an email address. Emails are the
// unique account key, so every lookup and store goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasRefreshToken reports whether the user has an unexpired stored
// refresh token.
func (u *User) HasRefreshToken(now time.Time) bool {
	return u.RefreshToken != "" && now.Before(u.RefreshTokenExpiry)
}

// ClearRefreshToken removes the stored refresh token and its expiry.
func (u *User) ClearRefreshToken() {
	u.RefreshToken = ""
	u.RefreshTokenExpiry = time.Time{}
}

// ClearOTP removes the pending password-reset OTP.
func (u *User) ClearOTP() {
	u.OTPHash = ""
	u.OTPExpiry = time.Time{}
}

// Profile is the public view of a user returned by the API. It never
// includes credential or security state.
type Profile struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// Profile returns the public view of the user.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:      u.UserID,
		Name:    u.Name,
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
	}
}
