package catalog_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"mrp/internal/distributor"
	"mrp/internal/models"
	"mrp/internal/testutil"
)

type fakeDistributor struct {
	product *distributor.Product
	err     error
	queries []distributor.Query
}

func (f *fakeDistributor) Name() string { return "fake" }

func (f *fakeDistributor) Lookup(ctx context.Context, q distributor.Query) (*distributor.Product, error) {
	f.queries = append(f.queries, q)
	return f.product, f.err
}

func chipResistor() *distributor.Product {
	return &distributor.Product{
		MPN:                 "RC0603FR-0710KL",
		Manufacturer:        "YAGEO",
		Family:              "Chip Resistor - Surface Mount",
		Series:              "RC",
		Description:         "RES 10K OHM 1% 1/10W 0603",
		DetailedDescription: "10 kOhms 1% 0.1W Chip Resistor 0603",
		DatasheetURL:        "https://example.com/rc.pdf",
		Parameters: []distributor.Parameter{
			{Name: "Resistance", Value: "10 kOhms"},
			{Name: "Tolerance", Value: "1%"},
		},
	}
}

func TestImportPartCreatesTypeAndManufacturer(t *testing.T) {
	h, db, user := newTestHandler(t)
	fake := &fakeDistributor{product: chipResistor()}
	h.Distributors = map[string]distributor.Client{"digikey": fake}

	w := httptest.NewRecorder()
	h.ImportPart(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]string{
		"website": "digikey", "mpn": "RC0603FR-0710KL",
	}), user))
	testutil.AssertStatus(t, w, 201)

	var p models.Part
	testutil.DecodeEnvelope(t, w, &p)
	if p.IPN != "CRS000001" {
		t.Errorf("Expected prefix from family initials, got %s", p.IPN)
	}
	if p.Description != "10 kOhms 1% 0.1W Chip Resistor 0603" {
		t.Errorf("Expected detailed description, got %q", p.Description)
	}
	if len(p.Fields) != 3 || p.Fields[0].Name != "Series" || p.Fields[0].Slot != "char1" || p.Fields[0].Value != "RC" {
		t.Errorf("Expected Series in char1 first, got %+v", p.Fields)
	}
	if p.Fields[1].Value != "10 kOhms" {
		t.Errorf("Expected resistance value, got %+v", p.Fields[1])
	}
	if len(p.Manufacturers) != 1 || p.Manufacturers[0].Vendor != "YAGEO" {
		t.Errorf("Expected YAGEO link, got %+v", p.Manufacturers)
	}
	if len(fake.queries) != 1 || fake.queries[0].MPN != "RC0603FR-0710KL" {
		t.Errorf("Unexpected queries %+v", fake.queries)
	}

	var audits int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action = 'import'").Scan(&audits)
	if audits != 1 {
		t.Errorf("Expected 1 import audit row, got %d", audits)
	}
}

func TestImportPartReusesTypeAndRejectsDuplicateMPN(t *testing.T) {
	h, db, user := newTestHandler(t)
	fake := &fakeDistributor{product: chipResistor()}
	h.Distributors = map[string]distributor.Client{"digikey": fake}

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ImportPart(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]string{
			"website": "digikey", "part_number": "311-10.0KHRCT-ND",
		}), user))
		return w
	}
	testutil.AssertStatus(t, send(), 201)
	testutil.AssertStatus(t, send(), 409)

	fake.product.MPN = "RC0603FR-071KL"
	testutil.AssertStatus(t, send(), 201)

	var types, vendors int
	db.QueryRow("SELECT COUNT(*) FROM types").Scan(&types)
	db.QueryRow("SELECT COUNT(*) FROM vendors").Scan(&vendors)
	if types != 1 || vendors != 1 {
		t.Errorf("Expected type and vendor reused, got %d types %d vendors", types, vendors)
	}
}

func TestImportPartRequiresExactlyOneIdentifier(t *testing.T) {
	h, _, user := newTestHandler(t)
	h.Distributors = map[string]distributor.Client{"digikey": &fakeDistributor{}}

	for _, body := range []map[string]string{
		{"website": "digikey"},
		{"website": "digikey", "barcode": "1", "mpn": "2"},
		{"website": "farnell", "mpn": "2"},
	} {
		w := httptest.NewRecorder()
		h.ImportPart(w, testutil.As(testutil.JSONRequest("POST", "/", body), user))
		testutil.AssertStatus(t, w, 400)
	}
}

func TestImportPartErrors(t *testing.T) {
	h, _, user := newTestHandler(t)
	big := chipResistor()
	for i := 0; i < 40; i++ {
		big.Parameters = append(big.Parameters, distributor.Parameter{Name: fmt.Sprintf("p%d", i), Value: "v"})
	}

	cases := []struct {
		name   string
		client distributor.Client
		want   int
	}{
		{"not configured", nil, 503},
		{"not found", &fakeDistributor{err: distributor.ErrNotFound}, 404},
		{"tokens off", &fakeDistributor{err: distributor.ErrTokenExpired}, 502},
		{"too many fields", &fakeDistributor{product: big}, 422},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h.Distributors = map[string]distributor.Client{}
			if c.client != nil {
				h.Distributors["mouser"] = c.client
			}
			w := httptest.NewRecorder()
			h.ImportPart(w, testutil.As(testutil.JSONRequest("POST", "/", map[string]string{
				"website": "mouser", "barcode": "595-X",
			}), user))
			testutil.AssertStatus(t, w, c.want)
		})
	}
}

func TestDistributorTokens(t *testing.T) {
	h, db, user := newTestHandler(t)
	h.Tokens = &distributor.SQLTokenStore{DB: db}

	w := httptest.NewRecorder()
	h.PutDistributorTokens(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]string{
		"access_token": "a", "refresh_token": "r",
	}), user))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetDistributorTokens(w, httptest.NewRequest("GET", "/", nil))
	var got distributor.Tokens
	testutil.DecodeEnvelope(t, w, &got)
	if got.RefreshToken != "r" || got.AccessToken != "a" {
		t.Errorf("Unexpected tokens %+v", got)
	}

	w = httptest.NewRecorder()
	h.PutDistributorTokens(w, testutil.As(testutil.JSONRequest("PUT", "/", map[string]string{"access_token": "a"}), user))
	testutil.AssertStatus(t, w, 400)
}
