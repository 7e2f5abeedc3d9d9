package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "examdesk"

// Claims is the verified content of an Examdesk token.
type Claims struct {
	UserID  string
	IsAdmin bool
}

// Issuer signs and verifies access and refresh tokens.
//
// Access tokens are HS256 JWTs under a single shared secret. Refresh tokens
// are HS256 JWTs under a per-user secret derived from the refresh base
// secret, so rotating the base invalidates every outstanding refresh token
// and no revocation list is needed for per-user checks.
type Issuer struct {
	accessSecret []byte
	refreshBase  []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration

	now func() time.Time
}

// NewIssuer creates a token issuer.
func NewIssuer(accessSecret, refreshBase string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret: []byte(accessSecret),
		refreshBase:  []byte(refreshBase),
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		now:          time.Now,
	}
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// refreshSecret derives the per-user refresh signing secret.
func (i *Issuer) refreshSecret(userID string) []byte {
	mac := hmac.New(sha256.New, i.refreshBase)
	mac.Write([]byte(userID))
	return mac.Sum(nil)
}

// IssueAccessToken signs a short-lived access token for the user.
func (i *Issuer) IssueAccessToken(userID string, isAdmin bool) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"admin": isAdmin,
		"iss":   tokenIssuer,
		"iat":   now.Unix(),
		"exp":   now.Add(i.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a refresh token for the user and returns it with
// its expiry. Callers persist both on the credential record; the stored copy
// is the rotation anchor.
func (i *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := i.now()
	expiry := now.Add(i.refreshTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": tokenIssuer,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.refreshSecret(userID))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, expiry, nil
}

// VerifyAccessToken verifies an access token signature and expiry. Expired
// but otherwise valid tokens fail with ErrTokenExpired; everything else
// fails with ErrTokenInvalid.
func (i *Issuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (interface{}, error) { return i.accessSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrTokenInvalid
	}
	admin, _ := claims["admin"].(bool)

	return &Claims{UserID: sub, IsAdmin: admin}, nil
}

// VerifyRefreshToken verifies a refresh token against the user's derived
// secret. Callers must additionally check the stored token equality and
// stored expiry; this only proves the signature and JWT expiry.
func (i *Issuer) VerifyRefreshToken(tokenString, userID string) (*Claims, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (interface{}, error) { return i.refreshSecret(userID), nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub != userID {
		return nil, ErrTokenInvalid
	}

	return &Claims{UserID: sub}, nil
}
