package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/database"
	"mrp/internal/models"
)

// SetupTestDB opens a fresh migrated SQLite database in a temp directory.
// It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a logger that discards output.
func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// AuditLogger returns an audit logger for db without a websocket hub.
func AuditLogger(db *sql.DB) *audit.Logger {
	return &audit.Logger{DB: db, Log: Logger()}
}

// CreateTestUser creates an active user with password "password123" and
// returns its identity.
func CreateTestUser(t *testing.T, db *sql.DB, username, role string) auth.Identity {
	t.Helper()
	id, err := auth.CreateUser(context.Background(), db, auth.NewUser{
		Username:  username,
		Password:  "password123",
		FirstName: username,
		LastName:  "Tester",
		Role:      role,
	})
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return auth.Identity{UserID: id, Username: username, Role: role}
}

// JSONRequest builds a request with body marshaled as JSON.
func JSONRequest(method, path string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// As attaches the caller identity to req.
func As(req *http.Request, id auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) *models.Meta {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
	return resp.Meta
}
