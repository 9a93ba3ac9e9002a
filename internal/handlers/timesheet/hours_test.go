package timesheet_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"mrp/internal/models"
	"mrp/internal/testutil"
)

func TestProjectHoursWeekNormalization(t *testing.T) {
	f := setup(t)
	body := map[string]interface{}{"week_start": "2026-10-14", "project_id": f.project, "user_id": f.worker.UserID, "hours": "12.5"}

	w := call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.worker)
	testutil.AssertStatus(t, w, 403)

	w = call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.boss)
	testutil.AssertStatus(t, w, 201)
	var ph models.ProjectHours
	testutil.DecodeEnvelope(t, w, &ph)
	if ph.WeekStart != "2026-10-11" || !ph.Hours.Equal(decimal.RequireFromString("12.5")) || ph.Published {
		t.Errorf("Unexpected assignment %+v", ph)
	}

	// same Sunday week, different weekday
	body["week_start"] = "2026-10-17"
	w = call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.boss)
	testutil.AssertStatus(t, w, 409)

	body["week_start"] = "2026-10-18"
	w = call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.boss)
	testutil.AssertStatus(t, w, 201)
}

func TestProjectHoursValidation(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
	}{
		{"zero hours", map[string]interface{}{"week_start": "2026-10-11", "project_id": f.project, "user_id": f.worker.UserID, "hours": "0"}, 400},
		{"bad date", map[string]interface{}{"week_start": "10/11/2026", "project_id": f.project, "user_id": f.worker.UserID, "hours": "1"}, 400},
		{"missing project", map[string]interface{}{"week_start": "2026-10-11", "user_id": f.worker.UserID, "hours": "1"}, 400},
		{"unknown project", map[string]interface{}{"week_start": "2026-10-11", "project_id": 999, "user_id": f.worker.UserID, "hours": "1"}, 404},
		{"smallest amount", map[string]interface{}{"week_start": "2026-10-11", "project_id": f.project, "user_id": f.worker.UserID, "hours": "0.00001"}, 201},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", tt.body), f.boss)
			testutil.AssertStatus(t, w, tt.status)
		})
	}
}

func TestPublishWeek(t *testing.T) {
	f := setup(t)
	body := map[string]interface{}{"week_start": "2026-10-11", "project_id": f.project, "user_id": f.worker.UserID, "hours": "8"}
	w := call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.boss)
	testutil.AssertStatus(t, w, 201)

	var items []models.ProjectHours
	w = call(f.h.ListProjectHours, testutil.JSONRequest("GET", "/api/v1/project-hours?week_start=2026-10-13", nil), f.worker)
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 0 {
		t.Errorf("Expected unpublished hours hidden, got %d", len(items))
	}
	w = call(f.h.ListProjectHours, testutil.JSONRequest("GET", "/api/v1/project-hours", nil), f.boss)
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 1 {
		t.Errorf("Expected manager to see the current week, got %d", len(items))
	}

	w = call(f.h.PublishWeek, testutil.JSONRequest("POST", "/api/v1/project-hours/publish?week_start=2026-10-12", nil), f.worker)
	testutil.AssertStatus(t, w, 403)
	w = call(f.h.PublishWeek, testutil.JSONRequest("POST", "/api/v1/project-hours/publish?week_start=2026-10-12", nil), f.boss)
	testutil.AssertStatus(t, w, 200)

	w = call(f.h.ListProjectHours, testutil.JSONRequest("GET", "/api/v1/project-hours?week_start=2026-10-11", nil), f.worker)
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 1 || !items[0].Published {
		t.Errorf("Expected the published assignment, got %+v", items)
	}

	w = call(f.h.ListProjectHours, testutil.JSONRequest("GET", "/api/v1/project-hours?week_start=soon", nil), f.worker)
	testutil.AssertStatus(t, w, 400)
}

func TestUpdateAndDeleteProjectHours(t *testing.T) {
	f := setup(t)
	body := map[string]interface{}{"week_start": "2026-10-11", "project_id": f.project, "user_id": f.worker.UserID, "hours": "8"}
	w := call(f.h.CreateProjectHours, testutil.JSONRequest("POST", "/api/v1/project-hours", body), f.boss)
	var ph models.ProjectHours
	testutil.DecodeEnvelope(t, w, &ph)

	body["hours"] = "6.25"
	body["published"] = true
	w = callID(f.h.UpdateProjectHours, testutil.JSONRequest("PUT", "/api/v1/project-hours/x", body), f.boss, ph.ID)
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &ph)
	if !ph.Hours.Equal(decimal.RequireFromString("6.25")) || !ph.Published {
		t.Errorf("Unexpected assignment %+v", ph)
	}

	w = callID(f.h.UpdateProjectHours, testutil.JSONRequest("PUT", "/api/v1/project-hours/x", body), f.boss, 999)
	testutil.AssertStatus(t, w, 404)

	w = callID(f.h.DeleteProjectHours, testutil.JSONRequest("DELETE", "/api/v1/project-hours/x", nil), f.boss, ph.ID)
	testutil.AssertStatus(t, w, 200)
	w = callID(f.h.DeleteProjectHours, testutil.JSONRequest("DELETE", "/api/v1/project-hours/x", nil), f.boss, ph.ID)
	testutil.AssertStatus(t, w, 404)
}

func TestTodos(t *testing.T) {
	f := setup(t)
	for _, td := range []struct {
		priority int
		text     string
	}{{3, "file expenses"}, {1, "order solder"}, {2, "calibrate scope"}} {
		w := call(f.h.CreateTodo, testutil.JSONRequest("POST", "/api/v1/todos",
			map[string]interface{}{"priority": td.priority, "description": td.text}), f.worker)
		testutil.AssertStatus(t, w, 201)
	}

	w := call(f.h.CreateTodo, testutil.JSONRequest("POST", "/api/v1/todos",
		map[string]interface{}{"description": strings.Repeat("x", 51)}), f.worker)
	testutil.AssertStatus(t, w, 400)

	var todos []models.ToDo
	w = call(f.h.ListTodos, testutil.JSONRequest("GET", "/api/v1/todos", nil), f.worker)
	testutil.DecodeEnvelope(t, w, &todos)
	if len(todos) != 3 || todos[0].Description != "order solder" || todos[2].Description != "file expenses" {
		t.Fatalf("Expected todos by priority, got %+v", todos)
	}

	w = callID(f.h.ToggleTodo, testutil.JSONRequest("POST", "/api/v1/todos/x/toggle", nil), f.worker, todos[0].ID)
	testutil.AssertStatus(t, w, 200)
	var toggled models.ToDo
	testutil.DecodeEnvelope(t, w, &toggled)
	if !toggled.Completed {
		t.Error("Expected todo completed after toggle")
	}

	w = call(f.h.ListTodos, testutil.JSONRequest("GET", "/api/v1/todos?completed=0", nil), f.worker)
	testutil.DecodeEnvelope(t, w, &todos)
	if len(todos) != 2 {
		t.Errorf("Expected 2 open todos, got %d", len(todos))
	}

	stranger := testutil.CreateTestUser(t, f.db, "stranger", "user")
	w = callID(f.h.DeleteTodo, testutil.JSONRequest("DELETE", "/api/v1/todos/x", nil), stranger, toggled.ID)
	testutil.AssertStatus(t, w, 404)
	w = call(f.h.ListTodos, testutil.JSONRequest("GET", "/api/v1/todos?user_id="+itoa(f.worker.UserID), nil), stranger)
	testutil.AssertStatus(t, w, 403)

	w = callID(f.h.DeleteTodo, testutil.JSONRequest("DELETE", "/api/v1/todos/x", nil), f.worker, toggled.ID)
	testutil.AssertStatus(t, w, 200)
}
