package catalog_test

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"mrp/internal/models"
	"mrp/internal/testutil"
)

func TestVendorCRUD(t *testing.T) {
	h, _, user := newTestHandler(t)

	w := httptest.NewRecorder()
	h.CreateVendor(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]string{
		"name": "Murata", "website": "https://murata.com",
	}), user))
	testutil.AssertStatus(t, w, 201)
	var v models.Vendor
	testutil.DecodeEnvelope(t, w, &v)
	if v.VendorType != "manufacturer" {
		t.Errorf("Expected default vendor type manufacturer, got %q", v.VendorType)
	}

	w = httptest.NewRecorder()
	h.UpdateVendor(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]string{
		"name": "Murata Electronics", "vendor_type": "supplier",
	}), user), fmt.Sprint(v.ID))
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &v)
	if v.Name != "Murata Electronics" || v.VendorType != "supplier" {
		t.Errorf("Unexpected vendor after update %+v", v)
	}

	w = httptest.NewRecorder()
	h.ListVendors(w, httptest.NewRequest("GET", "/api/v1/vendors?vendor_type=supplier", nil))
	var list []models.Vendor
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 supplier, got %d", len(list))
	}

	w = httptest.NewRecorder()
	h.DeleteVendor(w, testutil.As(httptest.NewRequest("DELETE", "/", nil), user), fmt.Sprint(v.ID))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetVendor(w, httptest.NewRequest("GET", "/", nil), fmt.Sprint(v.ID))
	testutil.AssertStatus(t, w, 404)
}

func TestCreateVendorValidation(t *testing.T) {
	h, _, user := newTestHandler(t)
	w := httptest.NewRecorder()
	h.CreateVendor(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]string{
		"name": "", "vendor_type": "broker", "website": "murata.com",
	}), user))
	testutil.AssertStatus(t, w, 400)
}

func TestMergeVendors(t *testing.T) {
	h, db, user := newTestHandler(t)
	typ := resistorType(t, h, user)
	primary := insertVendor(t, db, "Texas Instruments")
	alias := insertVendor(t, db, "TI")
	createPart(t, h, user, typ.ID, map[string]interface{}{
		"description":   "op amp",
		"manufacturers": []map[string]interface{}{{"vendor_id": alias, "mpn": "LM358"}},
	})

	w := httptest.NewRecorder()
	h.MergeVendors(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]int64{
		"primary_id": primary, "alias_id": alias,
	}), user))
	testutil.AssertStatus(t, w, 200)

	var v models.Vendor
	testutil.DecodeEnvelope(t, w, &v)
	if v.PartCount != 1 {
		t.Errorf("Expected merged vendor to own 1 part, got %d", v.PartCount)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM vendors WHERE id = ?", alias).Scan(&n)
	if n != 0 {
		t.Error("Expected alias vendor to be deleted")
	}
}

func TestMergeVendorsRejectsSelfAndMissing(t *testing.T) {
	h, db, user := newTestHandler(t)
	id := insertVendor(t, db, "Only")

	w := httptest.NewRecorder()
	h.MergeVendors(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]int64{"primary_id": id, "alias_id": id}), user))
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.MergeVendors(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]int64{"primary_id": id, "alias_id": 999}), user))
	testutil.AssertStatus(t, w, 404)
}

func TestMergeLocationsSumsStock(t *testing.T) {
	h, db, user := newTestHandler(t)
	typ := resistorType(t, h, user)
	home := insertLocation(t, db, "Main")
	annex := insertLocation(t, db, "Annex")
	both := createPart(t, h, user, typ.ID, map[string]interface{}{
		"description": "both",
		"stock":       []map[string]interface{}{{"location_id": home, "stock": 10}, {"location_id": annex, "stock": 5}},
	})
	annexOnly := createPart(t, h, user, typ.ID, map[string]interface{}{
		"description": "annex only",
		"stock":       []map[string]interface{}{{"location_id": annex, "stock": 7}},
	})
	db.Exec("INSERT INTO products (id, description) VALUES (1, 'Kit')")
	db.Exec("INSERT INTO product_stock (product_id, location_id, stock) VALUES (1, ?, 3)", annex)

	w := httptest.NewRecorder()
	h.MergeLocations(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]int64{
		"primary_id": home, "alias_id": annex,
	}), user))
	testutil.AssertStatus(t, w, 200)

	stockAt := func(partID int64) (rows int, total int64) {
		db.QueryRow("SELECT COUNT(*), COALESCE(SUM(stock),0) FROM part_stock WHERE part_id = ? AND location_id = ?", partID, home).Scan(&rows, &total)
		return
	}
	if rows, total := stockAt(both.ID); rows != 1 || total != 15 {
		t.Errorf("Expected one row of 15 for shared part, got %d rows totalling %d", rows, total)
	}
	if rows, total := stockAt(annexOnly.ID); rows != 1 || total != 7 {
		t.Errorf("Expected moved row of 7, got %d rows totalling %d", rows, total)
	}
	var productStock int64
	db.QueryRow("SELECT stock FROM product_stock WHERE product_id = 1 AND location_id = ?", home).Scan(&productStock)
	if productStock != 3 {
		t.Errorf("Expected product stock moved to primary, got %d", productStock)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM locations").Scan(&n)
	if n != 1 {
		t.Errorf("Expected alias location deleted, %d locations remain", n)
	}
}

func TestSetPartStock(t *testing.T) {
	h, db, user := newTestHandler(t)
	typ := resistorType(t, h, user)
	loc := insertLocation(t, db, "Drawer")
	p := createPart(t, h, user, typ.ID, map[string]interface{}{"description": "r"})

	for _, qty := range []int64{4, 9} {
		w := httptest.NewRecorder()
		h.SetPartStock(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]int64{"location_id": loc, "stock": qty}), user), fmt.Sprint(p.ID))
		testutil.AssertStatus(t, w, 200)
	}
	var rows []models.StockRow
	w := httptest.NewRecorder()
	h.SetPartStock(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]int64{"location_id": loc, "stock": 12}), user), fmt.Sprint(p.ID))
	testutil.DecodeEnvelope(t, w, &rows)
	if len(rows) != 1 || rows[0].Stock != 12 {
		t.Errorf("Expected a single upserted row of 12, got %+v", rows)
	}

	w = httptest.NewRecorder()
	h.SetPartStock(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]int64{"location_id": loc, "stock": -1}), user), fmt.Sprint(p.ID))
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.DeletePartStock(w, testutil.As(httptest.NewRequest("DELETE", "/", nil), user), fmt.Sprint(rows[0].ID))
	testutil.AssertStatus(t, w, 200)
}
