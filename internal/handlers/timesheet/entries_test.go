package timesheet_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"mrp/internal/auth"
	"mrp/internal/handlers/timesheet"
	"mrp/internal/models"
	"mrp/internal/testutil"
)

func TestCreateEntryComputesHours(t *testing.T) {
	f := setup(t)
	e := createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:30:00Z")

	if !e.Hours.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected 1.5 hours, got %s", e.Hours)
	}
	if e.ProjectName != "Widgets" || e.UserID != f.worker.UserID {
		t.Errorf("Unexpected entry %+v", e)
	}
	if e.DeleteKey != timesheet.DeleteKey(e.ID, true) {
		t.Errorf("Unexpected delete key %q", e.DeleteKey)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	f := setup(t)
	createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:30:00Z")
	other := mustExec(t, f.db, "INSERT INTO projects (name) VALUES ('Secret')")

	tests := []struct {
		name    string
		body    map[string]interface{}
		status  int
		message string
	}{
		{"end before start", entryBody(f.project, "2026-10-12T10:00:00Z", "2026-10-12T09:00:00Z"), 400, "ending time"},
		{"equal times", entryBody(f.project, "2026-10-12T10:00:00Z", "2026-10-12T10:00:00Z"), 400, "ending time"},
		{"over twelve hours", entryBody(f.project, "2026-10-12T06:00:00Z", "2026-10-12T18:00:01Z"), 400, "12"},
		{"overlap", entryBody(f.project, "2026-10-13T10:00:00Z", "2026-10-13T11:00:00Z"), 409, "overlaps with Widgets"},
		{"contains existing", entryBody(f.project, "2026-10-13T08:00:00Z", "2026-10-13T11:00:00Z"), 409, "overlaps"},
		{"not a member", entryBody(other, "2026-10-12T09:00:00Z", "2026-10-12T10:00:00Z"), 403, ""},
		{"missing start", map[string]interface{}{"project_id": f.project, "end_time": "2026-10-12T10:00:00Z", "activities": "x"}, 400, "start_time"},
		{"missing activities", entryBody(f.project, "2026-10-12T09:00:00Z", "2026-10-12T10:00:00Z"), 400, "activities"},
		{"activities too long", entryBody(f.project, "2026-10-12T09:00:00Z", "2026-10-12T10:00:00Z"), 400, "activities"},
	}
	tests[7].body["activities"] = "  "
	tests[8].body["activities"] = strings.Repeat("a", 51)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(f.h.CreateEntry, testutil.JSONRequest("POST", "/api/v1/entries", tt.body), f.worker)
			testutil.AssertStatus(t, w, tt.status)
			if tt.message != "" && !strings.Contains(w.Body.String(), tt.message) {
				t.Errorf("Expected %q in %s", tt.message, w.Body.String())
			}
		})
	}
}

func TestCreateEntryAdjacentIsAllowed(t *testing.T) {
	f := setup(t)
	createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:30:00Z")
	createEntry(t, f, f.worker, "2026-10-13T10:30:00Z", "2026-10-13T11:00:00Z")
	createEntry(t, f, f.worker, "2026-10-13T08:00:00Z", "2026-10-13T09:00:00Z")
}

func TestCreateEntryForOtherUser(t *testing.T) {
	f := setup(t)
	body := entryBody(f.project, "2026-10-13T09:00:00Z", "2026-10-13T10:00:00Z")
	body["user_id"] = f.boss.UserID

	w := call(f.h.CreateEntry, testutil.JSONRequest("POST", "/api/v1/entries", body), f.worker)
	testutil.AssertStatus(t, w, 403)

	body["user_id"] = f.worker.UserID
	w = call(f.h.CreateEntry, testutil.JSONRequest("POST", "/api/v1/entries", body), f.boss)
	testutil.AssertStatus(t, w, 201)
	var e models.Entry
	testutil.DecodeEnvelope(t, w, &e)
	if e.UserID != f.worker.UserID {
		t.Errorf("Expected entry for worker, got user %d", e.UserID)
	}
}

func TestEntryVisibility(t *testing.T) {
	f := setup(t)
	e := createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:00:00Z")
	stranger := testutil.CreateTestUser(t, f.db, "stranger", auth.RoleUser)

	w := callID(f.h.GetEntry, testutil.JSONRequest("GET", "/api/v1/entries/x", nil), stranger, e.ID)
	testutil.AssertStatus(t, w, 404)
	w = callID(f.h.GetEntry, testutil.JSONRequest("GET", "/api/v1/entries/x", nil), f.boss, e.ID)
	testutil.AssertStatus(t, w, 200)

	w = call(f.h.ListEntries, testutil.JSONRequest("GET", "/api/v1/entries?user_id="+itoa(f.worker.UserID), nil), stranger)
	testutil.AssertStatus(t, w, 403)
	w = call(f.h.ListEntries, testutil.JSONRequest("GET", "/api/v1/entries?user_id="+itoa(f.worker.UserID)+"&from=2026-10-13&to=2026-10-13", nil), f.boss)
	testutil.AssertStatus(t, w, 200)
	var entries []models.Entry
	meta := testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 1 || meta == nil || meta.Total != 1 {
		t.Errorf("Expected one entry, got %d", len(entries))
	}
}

func TestUpdateClosedEntry(t *testing.T) {
	f := setup(t)
	first := createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:00:00Z")
	second := createEntry(t, f, f.worker, "2026-10-13T11:00:00Z", "2026-10-13T12:00:00Z")

	w := callID(f.h.UpdateEntry, testutil.JSONRequest("PUT", "/api/v1/entries/x",
		entryBody(f.project, "2026-10-13T09:00:00Z", "2026-10-13T11:30:00Z")), f.worker, first.ID)
	testutil.AssertStatus(t, w, 409)

	w = callID(f.h.UpdateEntry, testutil.JSONRequest("PUT", "/api/v1/entries/x",
		entryBody(f.project, "2026-10-13T11:15:00Z", "2026-10-13T12:15:00Z")), f.worker, second.ID)
	testutil.AssertStatus(t, w, 200)
	var e models.Entry
	testutil.DecodeEnvelope(t, w, &e)
	if !e.Hours.Equal(decimal.NewFromInt(1)) || !e.StartTime.Equal(at("2026-10-13T11:15:00Z")) {
		t.Errorf("Unexpected updated entry %+v", e)
	}
}

func TestDeleteEntryRequiresKey(t *testing.T) {
	f := setup(t)
	e := createEntry(t, f, f.worker, "2026-10-13T09:00:00Z", "2026-10-13T10:00:00Z")

	w := callID(f.h.DeleteEntry, testutil.JSONRequest("DELETE", "/api/v1/entries/x?key=wrong", nil), f.worker, e.ID)
	testutil.AssertStatus(t, w, 403)
	w = callID(f.h.DeleteEntry, testutil.JSONRequest("DELETE", "/api/v1/entries/x?key="+timesheet.DeleteKey(e.ID, false), nil), f.worker, e.ID)
	testutil.AssertStatus(t, w, 403)

	w = callID(f.h.DeleteEntry, testutil.JSONRequest("DELETE", "/api/v1/entries/x?key="+e.DeleteKey, nil), f.worker, e.ID)
	testutil.AssertStatus(t, w, 200)
	w = callID(f.h.GetEntry, testutil.JSONRequest("GET", "/api/v1/entries/x", nil), f.worker, e.ID)
	testutil.AssertStatus(t, w, 404)
}
