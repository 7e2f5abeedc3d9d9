package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!pass", false},
		{"too short", "S1!a", true},
		{"no uppercase", "str0ng!pass", true},
		{"no lowercase", "STR0NG!PASS", true},
		{"no digit", "Strong!pass", true},
		{"no special", "Str0ngpass", true},
		{"long valid", strings.Repeat("Aa1!", 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!pass")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng!pass", hash)

	assert.NoError(t, CheckPassword(hash, "Str0ng!pass"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestLongPasswordTruncation(t *testing.T) {
	long := strings.Repeat("Aa1!", 30) // 120 bytes
	hash, err := HashPassword(long)
	require.NoError(t, err)

	// bcrypt only sees the first 72 bytes; both sides truncate the same way.
	assert.NoError(t, CheckPassword(hash, long))
	assert.NoError(t, CheckPassword(hash, long[:72]))
	assert.ErrorIs(t, CheckPassword(hash, long[:71]), ErrInvalidCredentials)
}
