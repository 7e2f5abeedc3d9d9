package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	secret, err := NewCSRFSecret()
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	token, err := CreateCSRFToken(secret)
	require.NoError(t, err)

	assert.NoError(t, VerifyCSRFToken(secret, token))
}

func TestCSRFTokenWrongSecret(t *testing.T) {
	secret, err := NewCSRFSecret()
	require.NoError(t, err)
	other, err := NewCSRFSecret()
	require.NoError(t, err)

	token, err := CreateCSRFToken(secret)
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyCSRFToken(other, token), ErrCSRFInvalid)
}

func TestCSRFTokenMalformed(t *testing.T) {
	secret, err := NewCSRFSecret()
	require.NoError(t, err)

	for _, token := range []string{"", "nodot", ".", "salt.", ".mac", "salt.wrongmac"} {
		assert.ErrorIs(t, VerifyCSRFToken(secret, token), ErrCSRFInvalid, "token %q", token)
	}
}

func TestCSRFTokensAreUnique(t *testing.T) {
	secret, err := NewCSRFSecret()
	require.NoError(t, err)

	a, err := CreateCSRFToken(secret)
	require.NoError(t, err)
	b, err := CreateCSRFToken(secret)
	require.NoError(t, err)

	// Fresh salt per token; both still verify.
	assert.NotEqual(t, a, b)
	assert.NoError(t, VerifyCSRFToken(secret, a))
	assert.NoError(t, VerifyCSRFToken(secret, b))
}
