package timesheet_test

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"mrp/internal/auth"
	"mrp/internal/database"
	"mrp/internal/handlers/timesheet"
	"mrp/internal/models"
	"mrp/internal/testutil"
)

// Wednesday; the week starts on Sunday 2026-10-11.
var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	h       *timesheet.Handler
	db      *sql.DB
	boss    auth.Identity
	worker  auth.Identity
	project int64
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	f := fixture{
		db:     db,
		boss:   testutil.CreateTestUser(t, db, "boss", auth.RoleManager),
		worker: testutil.CreateTestUser(t, db, "worker", auth.RoleUser),
	}
	f.h = &timesheet.Handler{
		DB:      db,
		Audit:   testutil.AuditLogger(db),
		Company: "acme",
		Now:     func() time.Time { return now },
	}
	f.project = mustExec(t, db, "INSERT INTO projects (name) VALUES ('Widgets')")
	mustExec(t, db, "INSERT INTO project_members (project_id, user_id) VALUES (?, ?)", f.project, f.worker.UserID)
	return f
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// seedEntry inserts a closed entry directly, bypassing validation.
func seedEntry(t *testing.T, db *sql.DB, user, project int64, start, end string) int64 {
	t.Helper()
	s, e := at(start), at(end)
	return mustExec(t, db,
		"INSERT INTO entries (user_id, project_id, start_time, end_time, activities, hours) VALUES (?, ?, ?, ?, 'work', ?)",
		user, project, database.FormatTime(s), database.FormatTime(e), timesheet.EntryHours(s, e).String())
}

func call(fn http.HandlerFunc, req *http.Request, who auth.Identity) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	fn(w, testutil.As(req, who))
	return w
}

func callID(fn func(http.ResponseWriter, *http.Request, string), req *http.Request, who auth.Identity, id int64) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	fn(w, testutil.As(req, who), itoa(id))
	return w
}

func entryBody(project int64, start, end string) map[string]interface{} {
	return map[string]interface{}{
		"project_id": project,
		"start_time": start,
		"end_time":   end,
		"activities": "soldering",
	}
}

func createEntry(t *testing.T, f fixture, who auth.Identity, start, end string) models.Entry {
	t.Helper()
	w := call(f.h.CreateEntry, testutil.JSONRequest("POST", "/api/v1/entries", entryBody(f.project, start, end)), who)
	if w.Code != 201 {
		t.Fatalf("Failed to create entry: %d %s", w.Code, w.Body.String())
	}
	var e models.Entry
	testutil.DecodeEnvelope(t, w, &e)
	return e
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
