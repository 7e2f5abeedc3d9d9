package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/interfaces"
	"github.com/examdesk/examdesk/internal/models"
	"github.com/examdesk/examdesk/internal/storage/surrealdb"
)

// memUserStore is an in-memory UserStore for handler tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User

	saveErr error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
}

func (s *memUserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, surrealdb.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, surrealdb.ErrUserNotFound
}

func (s *memUserStore) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	user.Email = models.NormalizeEmail(user.Email)
	cp := *user
	s.users[user.UserID] = &cp
	return nil
}

func (s *memUserStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

func (s *memUserStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memUserStore) Close() error { return nil }

// memStorage wraps memUserStore as a StorageManager.
type memStorage struct {
	users *memUserStore
}

func (m *memStorage) UserStore() interfaces.UserStore { return m.users }
func (m *memStorage) Close() error                    { return nil }

// fakeMailer records sent OTPs and can be told to fail.
type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentOTP
	fail  bool
	calls int
}

type sentOTP struct {
	email string
	code  string
}

func (m *fakeMailer) SendOTP(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, sentOTP{email: email, code: code})
	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].code
}

// testServer bundles the server under test with its fakes and a movable clock.
type testServer struct {
	srv    *Server
	store  *memUserStore
	mailer *fakeMailer

	mu sync.Mutex
	t  time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Auth.AccessSecret = "test-access-secret"
	config.Auth.RefreshSecret = "test-refresh-secret"
	config.SMTP.Username = "noreply@examdesk.app"
	config.SMTP.Password = "secret"

	store := newMemUserStore()
	mailer := &fakeMailer{}
	srv := NewServer(config, common.NewSilentLogger(), &memStorage{users: store}, mailer)

	ts := &testServer{srv: srv, store: store, mailer: mailer, t: time.Now()}
	srv.now = func() time.Time {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return ts.t
	}
	return ts
}

// advance moves the server clock forward.
func (ts *testServer) advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.t = ts.t.Add(d)
}

// csrf fetches a CSRF cookie and token pair from the server.
func (ts *testServer) csrf(t *testing.T) (*http.Cookie, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	ts.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data := resp.Data.(map[string]interface{})
	token := data["csrfToken"].(string)

	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c, token
		}
	}
	t.Fatal("no csrf cookie set")
	return nil, ""
}

// request option helpers
type reqOption func(*http.Request)

func withBearer(token string) reqOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCSRF(cookie *http.Cookie, token string) reqOption {
	return func(r *http.Request) {
		r.AddCookie(cookie)
		r.Header.Set(csrfHeaderName, token)
	}
}

func withCookie(c *http.Cookie) reqOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

// do issues a request against the full middleware stack and decodes the
// response envelope.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, opts ...reqOption) (*httptest.ResponseRecorder, models.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var resp models.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec, resp
}

// register creates an account through the API.
func (ts *testServer) register(t *testing.T, name, email, password string) {
	t.Helper()
	rec, resp := ts.do(t, http.MethodPost, "/api/users/register", models.RegisterRequest{
		Name: name, Email: email, Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	require.True(t, resp.Success)
}

// login signs in and returns the token pair.
func (ts *testServer) login(t *testing.T, email, password string) models.TokenPair {
	t.Helper()
	rec, resp := ts.do(t, http.MethodPost, "/api/users/login", models.LoginRequest{
		Email: email, Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)

	data := resp.Data.(map[string]interface{})
	return models.TokenPair{
		AccessToken:  data["accessToken"].(string),
		RefreshToken: data["refreshToken"].(string),
	}
}
