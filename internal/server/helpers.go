package server

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/examdesk/examdesk/internal/models"
)

// WriteResponse writes a response envelope with the given status code.
func WriteResponse(w http.ResponseWriter, statusCode int, resp *models.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteResponse(w, statusCode, &models.Response{Success: true, Message: message, Data: data})
}

// WriteFailure writes a failure envelope.
func WriteFailure(w http.ResponseWriter, statusCode int, message string) {
	WriteResponse(w, statusCode, &models.Response{Success: false, Message: message})
}

// WriteTokenExpired writes the 401 failure that signals clients to refresh.
func WriteTokenExpired(w http.ResponseWriter) {
	WriteResponse(w, http.StatusUnauthorized, &models.Response{
		Success:      false,
		Message:      "Token expired",
		TokenExpired: true,
	})
}

// WriteAccountLocked writes the 403 failure for a locked account.
func WriteAccountLocked(w http.ResponseWriter, message string, lockExpiry time.Time) {
	WriteResponse(w, http.StatusForbidden, &models.Response{
		Success:       false,
		Message:       message,
		AccountLocked: true,
		LockExpiry:    &lockExpiry,
	})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteFailure(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteFailure(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// validEmail checks the email has an addr-spec shape. The store constraint
// on normalized emails is the real guard; this rejects junk at the boundary.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
