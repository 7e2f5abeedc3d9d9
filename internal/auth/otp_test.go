package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examdesk/examdesk/internal/models"
)

var otpKey = []byte("otp-test-key")

func TestGenerateOTP(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateOTP()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	// 20 draws from a million values colliding down to one code would mean
	// the generator is broken.
	assert.Greater(t, len(seen), 1)
}

func TestDeriveOTPKey(t *testing.T) {
	key := DeriveOTPKey("secret")
	assert.Len(t, key, 32)
	assert.Equal(t, key, DeriveOTPKey("secret"))
	assert.NotEqual(t, key, DeriveOTPKey("other"))
	// The derived key never equals the raw signing secret.
	assert.NotEqual(t, []byte("secret"), key)
}

func TestVerifyOTP(t *testing.T) {
	now := time.Now()
	user := &models.User{
		Email:     "student@example.com",
		OTPHash:   HashOTP(otpKey, "student@example.com", "123456"),
		OTPExpiry: now.Add(10 * time.Minute),
	}

	assert.NoError(t, VerifyOTP(otpKey, user, "123456", now))
	assert.ErrorIs(t, VerifyOTP(otpKey, user, "654321", now), ErrOTPInvalidOrExpired)
}

func TestVerifyOTPExpired(t *testing.T) {
	now := time.Now()
	user := &models.User{
		Email:     "student@example.com",
		OTPHash:   HashOTP(otpKey, "student@example.com", "123456"),
		OTPExpiry: now.Add(-time.Minute),
	}

	assert.ErrorIs(t, VerifyOTP(otpKey, user, "123456", now), ErrOTPInvalidOrExpired)
}

func TestVerifyOTPNonePending(t *testing.T) {
	user := &models.User{Email: "student@example.com"}
	assert.ErrorIs(t, VerifyOTP(otpKey, user, "123456", time.Now()), ErrOTPInvalidOrExpired)
}

func TestOTPBoundToEmail(t *testing.T) {
	now := time.Now()
	user := &models.User{
		Email:     "other@example.com",
		OTPHash:   HashOTP(otpKey, "student@example.com", "123456"),
		OTPExpiry: now.Add(10 * time.Minute),
	}

	// Hash was computed for a different account, so the same code fails.
	assert.ErrorIs(t, VerifyOTP(otpKey, user, "123456", now), ErrOTPInvalidOrExpired)
}

func TestHashOTPNormalizesEmail(t *testing.T) {
	a := HashOTP(otpKey, "Student@Example.COM", "123456")
	b := HashOTP(otpKey, "student@example.com", "123456")
	assert.Equal(t, a, b)
}
