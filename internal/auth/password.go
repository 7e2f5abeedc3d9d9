package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
	passwordSpecials  = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"
)

// ValidatePassword enforces the password policy: at least 8 characters with
// an uppercase letter, a lowercase letter, a digit, and a special character.
// Registration and password reset both go through this.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "an uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "a lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "a digit")
	}
	if !hasSpecial {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("password must contain %s", strings.Join(missing, ", "))
	}
	return nil
}

// HashPassword hashes a password with bcrypt. bcrypt ignores input beyond
// 72 bytes, so longer passwords are truncated explicitly.
func HashPassword(password string) (string, error) {
	pw := []byte(password)
	if len(pw) > 72 {
		pw = pw[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against its bcrypt hash. Returns
// ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	pw := []byte(password)
	if len(pw) > 72 {
		pw = pw[:72]
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), pw); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
