package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/examdesk/examdesk/internal/auth"
	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/models"
)

const refreshCookieName = "refreshToken"

// handleCSRFToken handles GET /csrf-token. It mints a per-session secret
// into the _csrf cookie and returns the derived token in the body; clients
// echo the token in the X-CSRF-Token header on mutating requests.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	secret, err := auth.NewCSRFSecret()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate CSRF secret")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	token, err := auth.CreateCSRFToken(secret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create CSRF token")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	WriteSuccess(w, http.StatusOK, "CSRF token issued", map[string]string{"csrfToken": token})
}

// handleRegister handles POST /api/users/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = models.NormalizeEmail(req.Email)

	if req.Name == "" || len(req.Name) > 100 {
		WriteFailure(w, http.StatusBadRequest, "Name is required and must be at most 100 characters")
		return
	}
	if !validEmail(req.Email) {
		WriteFailure(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		WriteFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.storage.UserStore().GetUserByEmail(r.Context(), req.Email); err == nil {
		WriteFailure(w, http.StatusBadRequest, "User already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := s.now()
	user := &models.User{
		UserID:       uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save user")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("User registered")
	WriteSuccess(w, http.StatusOK, "User created successfully", nil)
}

// handleLogin handles POST /api/users/login. Unknown email and wrong
// password fail identically so the response does not leak which was wrong.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := s.storage.UserStore().GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		WriteFailure(w, http.StatusBadRequest, "Invalid email or password")
		return
	}

	now := s.now()
	if err := s.lockout.CheckLogin(user, now); err != nil {
		remaining := user.AccountLockedUntil.Sub(now).Round(time.Minute)
		minutes := int(remaining.Minutes())
		if minutes < 1 {
			minutes = 1
		}
		WriteAccountLocked(w,
			fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d minutes", minutes),
			user.AccountLockedUntil)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.lockout.RecordFailure(user, now)
		user.ModifiedAt = now
		if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.UserID).Msg("Failed to persist login failure")
		}
		WriteFailure(w, http.StatusBadRequest, "Invalid email or password")
		return
	}

	s.lockout.RecordSuccess(user)

	pair, err := s.issueTokenPair(user, now)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to issue tokens")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user.ModifiedAt = now
	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to save user after login")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setRefreshCookie(w, user.RefreshToken, user.RefreshTokenExpiry)
	s.logger.Info().Str("user_id", user.UserID).Msg("User logged in")
	WriteSuccess(w, http.StatusOK, "Login successful", pair)
}

// issueTokenPair mints a fresh access+refresh pair and writes the refresh
// token onto the user record. The stored copy is what rotation checks
// against, so issuing always invalidates the previous refresh token.
func (s *Server) issueTokenPair(user *models.User, now time.Time) (*models.TokenPair, error) {
	accessToken, err := s.issuer.IssueAccessToken(user.UserID, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	refreshToken, expiry, err := s.issuer.IssueRefreshToken(user.UserID)
	if err != nil {
		return nil, err
	}

	user.RefreshToken = refreshToken
	user.RefreshTokenExpiry = expiry

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// handleRefreshToken handles POST /api/users/refresh-token. The token may
// arrive in the body or the refreshToken cookie. A valid token is rotated:
// the response pair replaces the stored token, so replaying the old one
// fails the stored-equality check.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	tokenString := s.refreshTokenFromRequest(w, r)
	if tokenString == "" {
		WriteFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	userID := unverifiedSubject(tokenString)
	if userID == "" {
		WriteFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if _, err := s.issuer.VerifyRefreshToken(tokenString, userID); err != nil {
		WriteFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := s.storage.UserStore().GetUser(r.Context(), userID)
	if err != nil {
		WriteFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	now := s.now()
	if user.RefreshToken != tokenString || !user.HasRefreshToken(now) {
		WriteFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	pair, err := s.issueTokenPair(user, now)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to rotate tokens")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user.ModifiedAt = now
	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to save rotated token")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setRefreshCookie(w, user.RefreshToken, user.RefreshTokenExpiry)
	WriteSuccess(w, http.StatusOK, "Token refreshed", pair)
}

// handleLogout handles POST /api/users/logout. Best effort: the stored
// refresh token is cleared when the presented token matches, and the cookie
// is always dropped.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	tokenString := s.refreshTokenFromRequest(w, r)
	if tokenString != "" {
		if userID := unverifiedSubject(tokenString); userID != "" {
			if user, err := s.storage.UserStore().GetUser(r.Context(), userID); err == nil && user.RefreshToken == tokenString {
				user.ClearRefreshToken()
				user.ModifiedAt = s.now()
				if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
					s.logger.Warn().Err(err).Str("user_id", user.UserID).Msg("Failed to clear refresh token")
				}
			}
		}
	}

	s.clearRefreshCookie(w)
	WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// handleGetUserInfo handles POST /api/users/get-user-info (authenticated).
func (s *Server) handleGetUserInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	subject := common.SubjectFromContext(r.Context())
	if subject == nil {
		WriteFailure(w, http.StatusUnauthorized, "Authorization token missing")
		return
	}

	user, err := s.storage.UserStore().GetUser(r.Context(), subject.UserID)
	if err != nil {
		WriteFailure(w, http.StatusUnauthorized, "User not found")
		return
	}

	WriteSuccess(w, http.StatusOK, "User info fetched successfully", user.Profile())
}

// handleGetAllUsers handles POST /api/users/get-all-users (admin only).
func (s *Server) handleGetAllUsers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	users, err := s.storage.UserStore().ListUsers(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	profiles := make([]*models.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	WriteSuccess(w, http.StatusOK, "Users fetched successfully", profiles)
}

// handleForgotPassword handles POST /api/users/forgot-password: throttled
// OTP issue and delivery.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ForgotPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := s.storage.UserStore().GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		WriteFailure(w, http.StatusNotFound, "User not found")
		return
	}

	now := s.now()
	if err := s.reset.CheckRequest(user, now); err != nil {
		WriteFailure(w, http.StatusTooManyRequests, "Too many password reset requests. Try again later.")
		return
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate OTP")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user.OTPHash = auth.HashOTP(s.otpKey, user.Email, code)
	user.OTPExpiry = now.Add(s.config.Auth.GetOTPExpiry())
	user.ModifiedAt = now

	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to save OTP")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := s.mailer.SendOTP(r.Context(), user.Email, code); err != nil {
		WriteFailure(w, http.StatusInternalServerError, "Failed to send OTP email")
		return
	}

	WriteSuccess(w, http.StatusOK, "OTP sent to your email", nil)
}

// handleVerifyOTP handles POST /api/users/verify-otp. A code verifies once:
// the stored hash is cleared on success.
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.VerifyOTPRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := s.storage.UserStore().GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		WriteFailure(w, http.StatusNotFound, "User not found")
		return
	}

	now := s.now()
	if err := auth.VerifyOTP(s.otpKey, user, req.OTP, now); err != nil {
		WriteFailure(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}

	user.ClearOTP()
	user.ModifiedAt = now
	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to clear OTP")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	WriteSuccess(w, http.StatusOK, "OTP verified", nil)
}

// handleResetPassword handles POST /api/users/reset-password. The new
// password goes through the same policy as registration, and the stored
// refresh token is revoked so every session has to log in again.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ResetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := auth.ValidatePassword(req.Password); err != nil {
		WriteFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.storage.UserStore().GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		WriteFailure(w, http.StatusNotFound, "User not found")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user.PasswordHash = hash
	user.ClearOTP()
	user.ClearRefreshToken()
	user.ModifiedAt = s.now()

	if err := s.storage.UserStore().SaveUser(r.Context(), user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to save new password")
		WriteFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("Password reset")
	WriteSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

// --- helpers ---

// refreshTokenFromRequest reads the refresh token from the body, falling
// back to the cookie. An empty body is tolerated.
func (s *Server) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	var req models.RefreshRequest
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		// Decode errors fall through to the cookie.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// unverifiedSubject pulls the sub claim without signature verification.
// The refresh secret is derived from the user ID, so the ID must be read
// before the token can be verified; full verification follows.
func unverifiedSubject(tokenString string) string {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/users",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/users",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}
