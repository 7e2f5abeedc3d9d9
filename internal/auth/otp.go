package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/examdesk/examdesk/internal/models"
)

var otpMax = big.NewInt(1000000)

// GenerateOTP returns a 6-digit numeric password-reset code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// DeriveOTPKey derives the OTP hashing key from the server secret. The
// label keeps the key distinct from the raw secret, which also signs
// access tokens.
func DeriveOTPKey(secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("otp"))
	return mac.Sum(nil)
}

// HashOTP produces the keyed hash stored in place of the code. Binding the
// email into the MAC means a code issued for one account cannot verify
// against another.
func HashOTP(key []byte, email, code string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(models.NormalizeEmail(email) + "|" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyOTP checks a submitted code against the user's stored hash and
// expiry. The stored OTP is single use: callers clear it after a successful
// verification.
func VerifyOTP(key []byte, user *models.User, code string, now time.Time) error {
	if user.OTPHash == "" || user.OTPExpiry.IsZero() {
		return ErrOTPInvalidOrExpired
	}
	if now.After(user.OTPExpiry) {
		return ErrOTPInvalidOrExpired
	}
	expected := HashOTP(key, user.Email, code)
	if !hmac.Equal([]byte(expected), []byte(user.OTPHash)) {
		return ErrOTPInvalidOrExpired
	}
	return nil
}
