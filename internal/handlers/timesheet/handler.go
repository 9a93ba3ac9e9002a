// Package timesheet serves projects, clocked entries, weekly hour
// assignments, to-do lists and payroll reports.
package timesheet

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/response"
)

// Handler holds dependencies for timesheet handlers.
type Handler struct {
	DB    *sql.DB
	Audit *audit.Logger

	// Company prefixes payroll export filenames.
	Company string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// caller returns the authenticated identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		response.Err(w, "authentication required", http.StatusUnauthorized)
		return id, false
	}
	return id, true
}

// requireManager writes a 403 unless the caller is a manager.
func requireManager(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := caller(w, r)
	if !ok {
		return id, false
	}
	if !id.IsManager() {
		response.Err(w, "manager role required", http.StatusForbidden)
		return id, false
	}
	return id, true
}

// subject resolves whose records a request is about: ?user_id= for
// managers, otherwise the caller.
func subject(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := caller(w, r)
	if !ok {
		return 0, false
	}
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return id.UserID, true
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		response.Err(w, "invalid user_id", http.StatusBadRequest)
		return 0, false
	}
	if userID != id.UserID && !id.IsManager() {
		response.Err(w, "manager role required", http.StatusForbidden)
		return 0, false
	}
	return userID, true
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
