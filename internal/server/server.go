// Package server implements the Examdesk REST API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/examdesk/examdesk/internal/auth"
	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/interfaces"
)

// Server wraps the HTTP server and its collaborators.
type Server struct {
	config  *common.Config
	logger  *common.Logger
	storage interfaces.StorageManager
	mailer  interfaces.Mailer

	issuer  *auth.Issuer
	lockout auth.LockoutPolicy
	reset   auth.ResetPolicy
	otpKey  []byte
	limiter *ipRateLimiter

	server *http.Server

	// now is swappable for tests.
	now func() time.Time
}

// NewServer creates a new HTTP REST API server.
func NewServer(config *common.Config, logger *common.Logger, storage interfaces.StorageManager, mailer interfaces.Mailer) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		storage: storage,
		mailer:  mailer,
		issuer: auth.NewIssuer(
			config.Auth.AccessSecret,
			config.Auth.RefreshSecret,
			config.Auth.GetAccessTokenExpiry(),
			config.Auth.GetRefreshTokenExpiry(),
		),
		lockout: auth.LockoutPolicy{
			MaxAttempts: config.Auth.MaxLoginAttempts,
			Window:      config.Auth.GetLockoutWindow(),
		},
		reset: auth.ResetPolicy{
			MaxRequests: config.Auth.MaxResetRequests,
			Window:      config.Auth.GetResetWindow(),
		},
		otpKey:  auth.DeriveOTPKey(config.Auth.AccessSecret),
		limiter: newIPRateLimiter(config.Auth.RateLimitRequests, config.Auth.GetRateLimitWindow()),
		now:     time.Now,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, logger, config, s.limiter)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
