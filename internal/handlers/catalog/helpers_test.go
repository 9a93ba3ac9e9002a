package catalog_test

import (
	"database/sql"
	"fmt"
	"net/http/httptest"
	"testing"

	"mrp/internal/auth"
	"mrp/internal/handlers/catalog"
	"mrp/internal/models"
	"mrp/internal/schema"
	"mrp/internal/testutil"
)

func newTestHandler(t *testing.T) (*catalog.Handler, *sql.DB, auth.Identity) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db, "clerk", auth.RoleManager)
	return &catalog.Handler{DB: db, Audit: testutil.AuditLogger(db)}, db, user
}

func createType(t *testing.T, h *catalog.Handler, user auth.Identity, body map[string]interface{}) schema.Type {
	t.Helper()
	req := testutil.As(testutil.JSONRequest("POST", "/api/v1/types", body), user)
	w := httptest.NewRecorder()
	h.CreateType(w, req)
	if w.Code != 201 {
		t.Fatalf("Failed to create type: %d %s", w.Code, w.Body.String())
	}
	var typ schema.Type
	testutil.DecodeEnvelope(t, w, &typ)
	return typ
}

func resistorType(t *testing.T, h *catalog.Handler, user auth.Identity) schema.Type {
	t.Helper()
	return createType(t, h, user, map[string]interface{}{
		"name":   "Resistor",
		"prefix": "res",
		"fields": []map[string]string{
			{"name": "Resistance", "slot": "char1"},
			{"name": "Package", "slot": "char2"},
			{"name": "Power mW", "slot": "integer1"},
		},
	})
}

func createPart(t *testing.T, h *catalog.Handler, user auth.Identity, typeID int64, body map[string]interface{}) models.Part {
	t.Helper()
	req := testutil.As(testutil.JSONRequest("POST", "/api/v1/types/x/parts", body), user)
	w := httptest.NewRecorder()
	h.CreatePart(w, req, fmt.Sprint(typeID))
	if w.Code != 201 {
		t.Fatalf("Failed to create part: %d %s", w.Code, w.Body.String())
	}
	var p models.Part
	testutil.DecodeEnvelope(t, w, &p)
	return p
}

func insertVendor(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO vendors (name) VALUES (?)", name)
	if err != nil {
		t.Fatalf("Failed to insert vendor: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertLocation(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO locations (name) VALUES (?)", name)
	if err != nil {
		t.Fatalf("Failed to insert location: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}
