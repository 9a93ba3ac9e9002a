package distributor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) Load(ctx context.Context, name string) (Tokens, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(Tokens), args.Error(1)
}

func (m *mockTokenStore) Save(ctx context.Context, name string, t Tokens) error {
	args := m.Called(ctx, name, t)
	return args.Error(0)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const keywordResponse = `{
  "ExactMatches": [{
    "ManufacturerProductNumber": "RC0603FR-0710KL",
    "Manufacturer": {"Name": "YAGEO"},
    "Description": {"ProductDescription": "RES 10K OHM 1% 1/10W 0603", "DetailedDescription": "10 kOhms ±1% 0.1W Chip Resistor 0603"},
    "DatasheetUrl": "https://example.com/rc.pdf",
    "Category": {"Name": "Chip Resistor - Surface Mount"},
    "Series": {"Name": "RC"},
    "Parameters": [
      {"ParameterText": "Resistance", "ValueText": "10 kOhms"},
      {"ParameterText": "Tolerance", "ValueText": "±1%"}
    ],
    "ProductVariations": [{
      "DigiKeyProductNumber": "311-10.0KHRCT-ND",
      "StandardPricing": [{"BreakQuantity": 1, "UnitPrice": 0.1}, {"BreakQuantity": 10, "UnitPrice": 0.021}]
    }]
  }]
}`

func digikeyServer(t *testing.T, refreshOK bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		if !refreshOK {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    600,
		})
	})
	mux.HandleFunc("/Barcoding/v3/ProductBarcodes/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"DigiKeyPartNumber":"311-10.0KHRCT-ND"}`))
	})
	mux.HandleFunc("/products/v4/search/keyword", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["Keywords"] == "missing" {
			w.Write([]byte(`{"ExactMatches":[],"Products":[]}`))
			return
		}
		w.Write([]byte(keywordResponse))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDigiKey(srv *httptest.Server, store TokenStore) *DigiKey {
	return NewDigiKey(DigiKeyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/v1/oauth2/token",
		APIBase:      srv.URL,
	}, store, quietLogger())
}

func TestQueryValidate(t *testing.T) {
	assert.ErrorIs(t, Query{}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{Barcode: "x", MPN: "y"}.Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, Query{PartNumber: "  "}.Validate(), ErrInvalidQuery)
	assert.NoError(t, Query{MPN: "LM358"}.Validate())
	assert.Equal(t, "LM358", Query{MPN: " LM358 "}.Keyword())
}

func TestDigiKeyLookupRotatesTokens(t *testing.T) {
	srv := digikeyServer(t, true)
	store := new(mockTokenStore)
	store.On("Load", mock.Anything, DigiKeyTokenName).Return(Tokens{AccessToken: "old", RefreshToken: "old-refresh"}, nil)
	store.On("Save", mock.Anything, DigiKeyTokenName, mock.MatchedBy(func(tk Tokens) bool {
		return tk.AccessToken == "new-access" && tk.RefreshToken == "new-refresh" && !tk.ExpiresAt.IsZero()
	})).Return(nil)

	p, err := newTestDigiKey(srv, store).Lookup(context.Background(), Query{MPN: "RC0603FR-0710KL"})
	require.NoError(t, err)
	store.AssertExpectations(t)

	assert.Equal(t, "RC0603FR-0710KL", p.MPN)
	assert.Equal(t, "YAGEO", p.Manufacturer)
	assert.Equal(t, "Chip Resistor - Surface Mount", p.Family)
	assert.Equal(t, "RC", p.Series)
	assert.Equal(t, "311-10.0KHRCT-ND", p.DistributorPN)
	assert.Equal(t, "10 kOhms ±1% 0.1W Chip Resistor 0603", p.BestDescription())
	assert.Equal(t, []string{"Series", "Resistance", "Tolerance"}, p.FieldNames())
	require.Len(t, p.PriceBreaks, 2)
	assert.True(t, p.PriceBreaks[1].UnitPrice.Equal(decimal.RequireFromString("0.021")))

	v, ok := p.Value("resistance")
	assert.True(t, ok)
	assert.Equal(t, "10 kOhms", v)
}

func TestDigiKeyBarcodeLookup(t *testing.T) {
	srv := digikeyServer(t, true)
	store := new(mockTokenStore)
	store.On("Load", mock.Anything, DigiKeyTokenName).Return(Tokens{RefreshToken: "old-refresh"}, nil)
	store.On("Save", mock.Anything, DigiKeyTokenName, mock.Anything).Return(nil)

	p, err := newTestDigiKey(srv, store).Lookup(context.Background(), Query{Barcode: "0123456789"})
	require.NoError(t, err)
	assert.Equal(t, "RC0603FR-0710KL", p.MPN)
}

func TestDigiKeyNotFound(t *testing.T) {
	srv := digikeyServer(t, true)
	store := new(mockTokenStore)
	store.On("Load", mock.Anything, DigiKeyTokenName).Return(Tokens{RefreshToken: "old-refresh"}, nil)
	store.On("Save", mock.Anything, DigiKeyTokenName, mock.Anything).Return(nil)

	_, err := newTestDigiKey(srv, store).Lookup(context.Background(), Query{PartNumber: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDigiKeyRejectedRefresh(t *testing.T) {
	srv := digikeyServer(t, false)
	store := new(mockTokenStore)
	store.On("Load", mock.Anything, DigiKeyTokenName).Return(Tokens{RefreshToken: "old-refresh"}, nil)

	_, err := newTestDigiKey(srv, store).Lookup(context.Background(), Query{MPN: "x"})
	assert.ErrorIs(t, err, ErrTokenExpired)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestDigiKeyWithoutRefreshToken(t *testing.T) {
	store := new(mockTokenStore)
	store.On("Load", mock.Anything, DigiKeyTokenName).Return(Tokens{}, nil)

	d := NewDigiKey(DigiKeyConfig{TokenURL: "http://127.0.0.1:0"}, store, quietLogger())
	_, err := d.Lookup(context.Background(), Query{MPN: "x"})
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// memTokenStore is a TokenStore backed by a map.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]Tokens
}

func (m *memTokenStore) Load(ctx context.Context, name string) (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[name], nil
}

func (m *memTokenStore) Save(ctx context.Context, name string, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[name] = t
	return nil
}

// rotatingServer issues a new refresh token on every grant and rejects any
// refresh token it has already seen, like Digi-Key does.
func rotatingServer(t *testing.T, grants *int32) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	valid := "r0"
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		defer mu.Unlock()
		if r.PostForm.Get("refresh_token") != valid {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		n := atomic.AddInt32(grants, 1)
		valid = fmt.Sprintf("r%d", n)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  fmt.Sprintf("a%d", n),
			"refresh_token": valid,
			"expires_in":    600,
		})
	})
	mux.HandleFunc("/products/v4/search/keyword", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(keywordResponse))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDigiKeyConcurrentLookupsShareOneGrant(t *testing.T) {
	var grants int32
	srv := rotatingServer(t, &grants)
	store := &memTokenStore{tokens: map[string]Tokens{DigiKeyTokenName: {RefreshToken: "r0"}}}
	d := newTestDigiKey(srv, store)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Lookup(context.Background(), Query{MPN: "RC0603FR-0710KL"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "lookup %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&grants))
	assert.Equal(t, "r1", store.tokens[DigiKeyTokenName].RefreshToken)
}

func TestDigiKeyRefreshesNearExpiry(t *testing.T) {
	var grants int32
	srv := rotatingServer(t, &grants)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	store := &memTokenStore{tokens: map[string]Tokens{DigiKeyTokenName: {
		AccessToken: "a0", RefreshToken: "r0", ExpiresAt: now.Add(10 * time.Minute),
	}}}
	d := newTestDigiKey(srv, store)
	d.now = func() time.Time { return now }

	_, err := d.Lookup(context.Background(), Query{MPN: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&grants), "valid access token reused")

	now = now.Add(9*time.Minute + 30*time.Second)
	_, err = d.Lookup(context.Background(), Query{MPN: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&grants))
	assert.Equal(t, "a1", store.tokens[DigiKeyTokenName].AccessToken)
}

func TestMouserLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search/partnumber", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("apiKey"))
		w.Write([]byte(`{"Errors":[],"SearchResults":{"Parts":[{
			"MouserPartNumber":"595-LM358P","ManufacturerPartNumber":"LM358P","Manufacturer":"Texas Instruments",
			"Description":"Operational Amplifiers","Category":"Operational Amplifiers - Op Amps",
			"ProductAttributes":[{"AttributeName":"Series","AttributeValue":"LM358"},{"AttributeName":"Packaging","AttributeValue":"Tube"}],
			"PriceBreaks":[{"Quantity":1,"Price":"$0.45"},{"Quantity":1000,"Price":"$1,0.2x"}]}]}}`))
	}))
	defer srv.Close()

	p, err := NewMouser("key", srv.URL, 0).Lookup(context.Background(), Query{Barcode: "595-LM358P"})
	require.NoError(t, err)
	assert.Equal(t, "LM358P", p.MPN)
	assert.Equal(t, "LM358", p.Series)
	assert.Equal(t, []string{"Series", "Packaging"}, p.FieldNames())
	require.Len(t, p.PriceBreaks, 1)
	assert.Equal(t, "0.45", p.PriceBreaks[0].UnitPrice.String())
}

func TestMouserAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Errors":[{"Code":"Invalid","Message":"Invalid unique identifier."}]}`))
	}))
	defer srv.Close()

	_, err := NewMouser("bad", srv.URL, 0).Lookup(context.Background(), Query{MPN: "LM358P"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid unique identifier")
}

func TestParseMouserPrice(t *testing.T) {
	d, ok := ParseMouserPrice("$1,234.50")
	assert.True(t, ok)
	assert.Equal(t, "1234.5", d.String())

	_, ok = ParseMouserPrice("n/a")
	assert.False(t, ok)
}
