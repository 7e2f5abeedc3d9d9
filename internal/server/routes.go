package server

import (
	"net/http"

	"github.com/examdesk/examdesk/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// CSRF bootstrap
	mux.HandleFunc("/csrf-token", s.handleCSRFToken)

	// Users
	mux.HandleFunc("/api/users/register", s.handleRegister)
	mux.HandleFunc("/api/users/login", s.handleLogin)
	mux.HandleFunc("/api/users/refresh-token", s.handleRefreshToken)
	mux.HandleFunc("/api/users/logout", s.handleLogout)
	mux.HandleFunc("/api/users/get-user-info", s.requireAuth(s.handleGetUserInfo))
	mux.HandleFunc("/api/users/get-all-users", s.requireAdmin(s.handleGetAllUsers))
	mux.HandleFunc("/api/users/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("/api/users/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("/api/users/reset-password", s.handleResetPassword)
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteSuccess(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteSuccess(w, http.StatusOK, "ok", map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
