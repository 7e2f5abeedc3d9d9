package auth

import (
	"time"

	"github.com/examdesk/examdesk/internal/models"
)

// LockoutPolicy governs login failure tracking. Failures inside a rolling
// window accumulate; hitting the threshold locks the account for the window
// duration. The policy mutates the credential record only; callers persist.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// CheckLogin reports whether the user may attempt a login. An expired lock
// is cleared lazily here, together with its timestamp. A still-active lock
// returns ErrAccountLocked; the attempt counter is not advanced while
// locked, so failed attempts during a lock do not extend it.
func (p LockoutPolicy) CheckLogin(user *models.User, now time.Time) error {
	if user.AccountLocked {
		if now.Before(user.AccountLockedUntil) {
			return ErrAccountLocked
		}
		user.AccountLocked = false
		user.AccountLockedUntil = time.Time{}
		user.LoginAttempts = 0
		user.LastLoginAttempt = time.Time{}
	}
	return nil
}

// RecordFailure registers a failed login attempt. A failure outside the
// rolling window restarts the count; the threshold locks the account until
// now plus the window.
func (p LockoutPolicy) RecordFailure(user *models.User, now time.Time) {
	if !user.LastLoginAttempt.IsZero() && now.Sub(user.LastLoginAttempt) > p.Window {
		user.LoginAttempts = 0
	}
	user.LoginAttempts++
	user.LastLoginAttempt = now

	if user.LoginAttempts >= p.MaxAttempts {
		user.AccountLocked = true
		user.AccountLockedUntil = now.Add(p.Window)
	}
}

// RecordSuccess clears the failure state after a successful login.
func (p LockoutPolicy) RecordSuccess(user *models.User) {
	user.LoginAttempts = 0
	user.LastLoginAttempt = time.Time{}
	user.AccountLocked = false
	user.AccountLockedUntil = time.Time{}
}

// ResetPolicy throttles password-reset OTP requests, structurally the same
// rolling-window guard with its own fields and limits.
type ResetPolicy struct {
	MaxRequests int
	Window      time.Duration
}

// CheckRequest reports whether the user may request another reset OTP, and
// records the request. A request outside the window restarts the count.
func (p ResetPolicy) CheckRequest(user *models.User, now time.Time) error {
	if !user.LastPasswordReset.IsZero() && now.Sub(user.LastPasswordReset) > p.Window {
		user.PasswordResetAttempts = 0
	}
	if user.PasswordResetAttempts >= p.MaxRequests {
		return ErrTooManyResetRequests
	}
	user.PasswordResetAttempts++
	user.LastPasswordReset = now
	return nil
}
