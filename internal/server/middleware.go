package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/examdesk/examdesk/internal/auth"
	"github.com/examdesk/examdesk/internal/common"
)

// csrfCookieName holds the per-session CSRF secret; the derived token
// travels in the csrfHeaderName header.
const (
	csrfCookieName = "_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// csrfExcludedPaths are reachable before the client holds a CSRF token:
// the unauthenticated credential flows and the token endpoint itself.
var csrfExcludedPaths = map[string]bool{
	"/csrf-token":                true,
	"/api/users/login":           true,
	"/api/users/register":        true,
	"/api/users/forgot-password": true,
	"/api/users/verify-otp":      true,
	"/api/users/reset-password":  true,
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// recoveryMiddleware catches panics and returns 500.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("path", r.URL.Path).
						Msg("Panic recovered in HTTP handler")
					WriteFailure(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for the configured origins. Credentials
// must be allowed because the CSRF secret and refresh token ride cookies.
func corsMiddleware(config *common.Config) func(http.Handler) http.Handler {
	allowed := config.Server.AllowedOriginList()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, a := range allowed {
				if a == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Vary", "Origin")
					break
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID, X-Correlation-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// correlationIDMiddleware extracts or generates a correlation ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = r.Header.Get("X-Correlation-ID")
		}
		if corrID == "" {
			corrID = uuid.New().String()[:8]
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			dur := time.Since(start)
			corrID := w.Header().Get("X-Correlation-ID")

			event := logger.Trace()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytesWritten).
				Dur("duration", dur).
				Str("correlation_id", corrID).
				Msg("HTTP request")
		})
	}
}

// rateLimitMiddleware rejects callers over the per-IP request allowance.
func rateLimitMiddleware(limiter *ipRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				WriteFailure(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// csrfMiddleware enforces the double-submit check on mutating requests.
// The token from the header must verify against the secret in the cookie.
func csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if csrfExcludedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			WriteFailure(w, http.StatusForbidden, "Invalid CSRF token")
			return
		}
		if err := auth.VerifyCSRFToken(cookie.Value, r.Header.Get(csrfHeaderName)); err != nil {
			WriteFailure(w, http.StatusForbidden, "Invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth wraps a handler with bearer token verification, user load,
// and the lockout check. The authenticated subject lands in the request
// context for the handler.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			WriteFailure(w, http.StatusUnauthorized, "Authorization token missing")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.issuer.VerifyAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				WriteTokenExpired(w)
				return
			}
			WriteFailure(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := s.storage.UserStore().GetUser(r.Context(), claims.UserID)
		if err != nil {
			WriteFailure(w, http.StatusUnauthorized, "User not found")
			return
		}

		if user.AccountLocked {
			now := s.now()
			if err := s.lockout.CheckLogin(user, now); err != nil {
				remaining := user.AccountLockedUntil.Sub(now).Round(time.Minute)
				minutes := int(remaining.Minutes())
				if minutes < 1 {
					minutes = 1
				}
				WriteAccountLocked(w,
					fmt.Sprintf("Account locked. Try again in %d minutes", minutes),
					user.AccountLockedUntil)
				return
			}
			// Lock expired; persist the lazy clear.
			user.ModifiedAt = now
			if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
				s.logger.Warn().Err(err).Str("user_id", user.UserID).Msg("Failed to persist lock clear")
			}
		}

		ctx := common.WithSubject(r.Context(), &common.Subject{
			UserID:  user.UserID,
			IsAdmin: user.IsAdmin,
		})
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin is requireAuth plus an admin role check.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		subject := common.SubjectFromContext(r.Context())
		if subject == nil || !subject.IsAdmin {
			WriteFailure(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

// applyMiddleware wraps a handler with the middleware stack.
func applyMiddleware(handler http.Handler, logger *common.Logger, config *common.Config, limiter *ipRateLimiter) http.Handler {
	// Apply in reverse order (last applied = first executed)
	handler = csrfMiddleware(handler)
	handler = rateLimitMiddleware(limiter)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = correlationIDMiddleware(handler)
	handler = corsMiddleware(config)(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}
