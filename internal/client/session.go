package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/models"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultCacheTTL   = 60 * time.Second
	defaultRetryDelay = time.Second
	maxAttempts       = 3
	maxCSRFFailures   = 3

	csrfHeaderName = "X-CSRF-Token"
)

// csrfExemptPaths mirrors the server's exclusion list: these are reachable
// without a CSRF token.
var csrfExemptPaths = map[string]bool{
	"/api/users/login":           true,
	"/api/users/register":        true,
	"/api/users/forgot-password": true,
	"/api/users/verify-otp":      true,
	"/api/users/reset-password":  true,
}

// transientStatuses trigger a retry with linear backoff.
var transientStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// APIError is a non-success envelope surfaced as an error.
type APIError struct {
	Status        int
	Message       string
	TokenExpired  bool
	AccountLocked bool
	LockExpiry    *time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Session is an authenticated connection to an Examdesk server. It owns the
// token pair, the CSRF state, a read cache, and the recovery ladder applied
// to failed requests. Construct one per identity and share it; all methods
// are safe for concurrent use.
type Session struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	logger     *common.Logger
	cache      *responseCache

	// refreshGroup collapses concurrent refresh attempts into one; callers
	// waiting on the same flight share its outcome. flightGroup dedupes
	// identical in-flight cacheable reads.
	refreshGroup singleflight.Group
	flightGroup  singleflight.Group

	csrfMu       sync.Mutex
	csrfToken    string
	csrfFailures int

	retryDelay time.Duration
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = c }
}

// WithTokenStore sets the token persistence backend.
func WithTokenStore(ts TokenStore) SessionOption {
	return func(s *Session) { s.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *common.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithRetryDelay sets the base backoff delay for transient retries.
func WithRetryDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.retryDelay = d }
}

// WithCacheTTL sets the read cache TTL.
func WithCacheTTL(ttl time.Duration) SessionOption {
	return func(s *Session) { s.cache = newResponseCache(ttl) }
}

// NewSession creates a session against the given server base URL.
func NewSession(baseURL string, opts ...SessionOption) *Session {
	jar, _ := cookiejar.New(nil)
	s := &Session{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout, Jar: jar},
		tokens:     NewMemoryTokenStore(),
		logger:     common.NewDefaultLogger(),
		cache:      newResponseCache(defaultCacheTTL),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// post sends a POST request through the cache and recovery machinery and
// returns the decoded envelope.
func (s *Session) post(ctx context.Context, path string, payload interface{}) (*models.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if !cacheableEndpoints[path] {
		raw, err := s.execute(ctx, http.MethodPost, path, body)
		if err != nil {
			return nil, err
		}
		return decodeEnvelope(raw)
	}

	key := http.MethodPost + " " + path + " " + string(body)
	if cached, ok := s.cache.Get(key); ok {
		return decodeEnvelope(cached)
	}

	// Identical concurrent reads share one round trip.
	v, err, _ := s.flightGroup.Do(key, func() (interface{}, error) {
		raw, err := s.execute(ctx, http.MethodPost, path, body)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, raw)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(v.([]byte))
}

// execute runs one logical request through the recovery ladder:
// CSRF refetch once on a CSRF-shaped 403, single-flight refresh and retry
// on 401 with tokenExpired, token teardown on any other 401, and linear
// backoff on transient statuses.
func (s *Session) execute(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	csrfRetried := false
	authRetried := false

	for attempt := 1; ; attempt++ {
		raw, status, env, err := s.send(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if status < 300 {
			return raw, nil
		}

		apiErr := &APIError{Status: status}
		if env != nil {
			apiErr.Message = env.Message
			apiErr.TokenExpired = env.TokenExpired
			apiErr.AccountLocked = env.AccountLocked
			apiErr.LockExpiry = env.LockExpiry
		}

		switch {
		case status == http.StatusForbidden && env != nil && env.Message == "Invalid CSRF token" && !csrfRetried:
			csrfRetried = true
			s.invalidateCSRF()
			continue

		case status == http.StatusUnauthorized && apiErr.TokenExpired && !authRetried:
			authRetried = true
			if err := s.refresh(ctx); err != nil {
				// refresh already tore down tokens and cache
				return nil, apiErr
			}
			continue

		case status == http.StatusUnauthorized:
			s.teardown()
			return nil, apiErr

		case transientStatuses[status] && attempt < maxAttempts:
			select {
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		return nil, apiErr
	}
}

// send performs a single round trip.
func (s *Session) send(ctx context.Context, method, path string, body []byte) ([]byte, int, *models.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if access, _ := s.tokens.Pair(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	if method != http.MethodGet && !csrfExemptPaths[path] {
		if token := s.ensureCSRF(ctx); token != "" {
			req.Header.Set(csrfHeaderName, token)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env models.Response
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil {
		return raw, resp.StatusCode, &env, nil
	}
	return raw, resp.StatusCode, nil, nil
}

// ensureCSRF returns the cached CSRF token, fetching it lazily. After
// maxCSRFFailures consecutive fetch failures the session degrades to
// sending no token rather than blocking every request.
func (s *Session) ensureCSRF(ctx context.Context) string {
	s.csrfMu.Lock()
	defer s.csrfMu.Unlock()

	if s.csrfToken != "" {
		return s.csrfToken
	}
	if s.csrfFailures >= maxCSRFFailures {
		return ""
	}

	token, err := s.fetchCSRFLocked(ctx)
	if err != nil {
		s.csrfFailures++
		s.logger.Warn().Err(err).Int("failures", s.csrfFailures).Msg("CSRF token fetch failed")
		return ""
	}
	s.csrfFailures = 0
	s.csrfToken = token
	return token
}

// fetchCSRFLocked fetches a fresh token; the secret cookie lands in the jar.
func (s *Session) fetchCSRFLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/csrf-token", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf endpoint returned %d", resp.StatusCode)
	}

	var env models.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	var data struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := reencode(env.Data, &data); err != nil || data.CSRFToken == "" {
		return "", errors.New("csrf token missing from response")
	}
	return data.CSRFToken, nil
}

// invalidateCSRF drops the cached token so the next request refetches.
func (s *Session) invalidateCSRF() {
	s.csrfMu.Lock()
	defer s.csrfMu.Unlock()
	s.csrfToken = ""
}

// refresh exchanges the stored refresh token for a new pair. Concurrent
// callers collapse into a single refresh request and share its outcome.
// On failure the session is torn down: tokens and cache cleared.
func (s *Session) refresh(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		_, refreshToken := s.tokens.Pair()
		if refreshToken == "" {
			return nil, errors.New("no refresh token")
		}

		body, err := json.Marshal(models.RefreshRequest{RefreshToken: refreshToken})
		if err != nil {
			return nil, err
		}

		// Plain send: running the ladder here would recurse on 401.
		raw, status, _, err := s.send(ctx, http.MethodPost, "/api/users/refresh-token", body)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("refresh rejected with status %d", status)
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		var pair models.TokenPair
		if err := reencode(env.Data, &pair); err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
			return nil, errors.New("refresh response missing token pair")
		}
		if err := s.tokens.SetPair(pair.AccessToken, pair.RefreshToken); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		s.teardown()
		return err
	}
	return nil
}

// teardown clears the token pair and the read cache together.
func (s *Session) teardown() {
	if err := s.tokens.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear tokens")
	}
	s.cache.Clear()
}

// --- typed endpoint wrappers ---

// Register creates an account.
func (s *Session) Register(ctx context.Context, name, email, password string) error {
	_, err := s.post(ctx, "/api/users/register", models.RegisterRequest{
		Name: name, Email: email, Password: password,
	})
	return err
}

// Login signs in and stores the returned token pair.
func (s *Session) Login(ctx context.Context, email, password string) error {
	env, err := s.post(ctx, "/api/users/login", models.LoginRequest{
		Email: email, Password: password,
	})
	if err != nil {
		return err
	}
	var pair models.TokenPair
	if err := reencode(env.Data, &pair); err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		return errors.New("login response missing token pair")
	}
	return s.tokens.SetPair(pair.AccessToken, pair.RefreshToken)
}

// RefreshToken forces a token refresh.
func (s *Session) RefreshToken(ctx context.Context) error {
	return s.refresh(ctx)
}

// Logout revokes the refresh token server-side and tears the session down.
func (s *Session) Logout(ctx context.Context) error {
	_, refreshToken := s.tokens.Pair()
	_, err := s.post(ctx, "/api/users/logout", models.RefreshRequest{RefreshToken: refreshToken})
	s.teardown()
	return err
}

// GetUserInfo fetches the authenticated user's profile.
func (s *Session) GetUserInfo(ctx context.Context) (*models.Profile, error) {
	env, err := s.post(ctx, "/api/users/get-user-info", nil)
	if err != nil {
		return nil, err
	}
	var profile models.Profile
	if err := reencode(env.Data, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// ForgotPassword starts the password-reset flow.
func (s *Session) ForgotPassword(ctx context.Context, email string) error {
	_, err := s.post(ctx, "/api/users/forgot-password", models.ForgotPasswordRequest{Email: email})
	return err
}

// VerifyOTP checks a password-reset code.
func (s *Session) VerifyOTP(ctx context.Context, email, otp string) error {
	_, err := s.post(ctx, "/api/users/verify-otp", models.VerifyOTPRequest{Email: email, OTP: otp})
	return err
}

// ResetPassword sets a new password after OTP verification.
func (s *Session) ResetPassword(ctx context.Context, email, password string) error {
	_, err := s.post(ctx, "/api/users/reset-password", models.ResetPasswordRequest{
		Email: email, Password: password,
	})
	return err
}

// --- helpers ---

func decodeEnvelope(raw []byte) (*models.Response, error) {
	var env models.Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, nil
}

// reencode converts a decoded interface{} payload into a typed struct.
func reencode(data interface{}, v interface{}) error {
	if data == nil {
		return errors.New("no data in response")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
