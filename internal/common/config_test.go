package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 5000, config.Server.Port)
	assert.Equal(t, "examdesk", config.Storage.Namespace)
	assert.Equal(t, 5, config.Auth.MaxLoginAttempts)
	assert.Equal(t, 3, config.Auth.MaxResetRequests)
	assert.Equal(t, 15*time.Minute, config.Auth.GetAccessTokenExpiry())
	assert.Equal(t, 7*24*time.Hour, config.Auth.GetRefreshTokenExpiry())
	assert.Equal(t, 10*time.Minute, config.Auth.GetOTPExpiry())
	assert.Equal(t, 30*time.Minute, config.Auth.GetLockoutWindow())
	assert.Equal(t, 24*time.Hour, config.Auth.GetResetWindow())
}

func TestLoadConfig_MissingFileSkipped(t *testing.T) {
	config, err := LoadConfig("/nonexistent/config.toml")
	require.NoError(t, err)
	assert.Equal(t, 5000, config.Server.Port)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	data := `
environment = "production"

[server]
port = 8080

[auth]
access_token_expiry = "5m"
max_login_attempts = 3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 5*time.Minute, config.Auth.GetAccessTokenExpiry())
	assert.Equal(t, 3, config.Auth.MaxLoginAttempts)
	// untouched values keep defaults
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.True(t, config.IsProduction())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EXAMDESK_PORT", "9000")
	t.Setenv("EXAMDESK_AUTH_ACCESS_SECRET", "env-secret")
	t.Setenv("EXAMDESK_SMTP_USERNAME", "mailer@example.com")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "env-secret", config.Auth.AccessSecret)
	assert.Equal(t, "mailer@example.com", config.SMTP.Username)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	config := NewDefaultConfig()

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.access_secret")
	assert.Contains(t, err.Error(), "smtp.username")

	config.Auth.AccessSecret = "a"
	config.Auth.RefreshSecret = "b"
	config.SMTP.Username = "c"
	config.SMTP.Password = "d"
	assert.NoError(t, config.Validate())
}

func TestAllowedOriginList(t *testing.T) {
	sc := ServerConfig{AllowedOrigins: "http://localhost:3000, https://examdesk.app ,"}
	assert.Equal(t, []string{"http://localhost:3000", "https://examdesk.app"}, sc.AllowedOriginList())
}

func TestParseDurationFallback(t *testing.T) {
	ac := AuthConfig{AccessTokenExpiry: "garbage"}
	assert.Equal(t, 15*time.Minute, ac.GetAccessTokenExpiry())
}
