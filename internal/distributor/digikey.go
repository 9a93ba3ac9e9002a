package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DigiKeyTokenName is the distributor_tokens row holding the Digi-Key pair.
const DigiKeyTokenName = "digikey"

// DigiKeyConfig holds the OAuth application credentials and endpoints.
type DigiKeyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBase      string
	Timeout      time.Duration
}

// tokenSkew is how long before expiry a stored access token stops being
// reused.
const tokenSkew = time.Minute

// DigiKey looks parts up with the Digi-Key product search API. Lookups reuse
// the stored access token until it nears expiry and then exchange the refresh
// token for a new pair. Digi-Key rotates the refresh token on every grant, so
// load, grant and save happen under mu.
type DigiKey struct {
	cfg   DigiKeyConfig
	store TokenStore
	http  *http.Client
	log   logrus.FieldLogger
	now   func() time.Time

	mu sync.Mutex
}

// NewDigiKey creates a Digi-Key client persisting tokens in store.
func NewDigiKey(cfg DigiKeyConfig, store TokenStore, log logrus.FieldLogger) *DigiKey {
	return &DigiKey{
		cfg:   cfg,
		store: store,
		http:  newHTTPClient(cfg.Timeout),
		log:   log.WithField("distributor", DigiKeyTokenName),
		now:   time.Now,
	}
}

func (d *DigiKey) Name() string { return DigiKeyTokenName }

// accessToken returns the stored access token while it is still valid and
// runs the grant otherwise.
func (d *DigiKey) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, err := d.store.Load(ctx, DigiKeyTokenName)
	if err != nil {
		return "", fmt.Errorf("load tokens: %w", err)
	}
	if current.AccessToken != "" && d.now().Add(tokenSkew).Before(current.ExpiresAt) {
		return current.AccessToken, nil
	}
	next, err := d.grant(ctx, current)
	if err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

// grant runs the refresh-token grant and stores the rotated tokens. The
// caller holds mu.
func (d *DigiKey) grant(ctx context.Context, current Tokens) (Tokens, error) {
	if current.RefreshToken == "" {
		return Tokens{}, ErrTokenExpired
	}

	form := url.Values{
		"client_id":     {d.cfg.ClientID},
		"client_secret": {d.cfg.ClientSecret},
		"refresh_token": {current.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.http.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("digikey oauth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		d.log.WithField("status", resp.StatusCode).Warn("token refresh rejected: " + truncate(string(b), 200))
		return Tokens{}, ErrTokenExpired
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return Tokens{}, fmt.Errorf("digikey token decode error: %w", err)
	}
	if tokenResp.RefreshToken == "" || tokenResp.AccessToken == "" {
		return Tokens{}, ErrTokenExpired
	}

	next := Tokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    d.now().UTC().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	if err := d.store.Save(ctx, DigiKeyTokenName, next); err != nil {
		return Tokens{}, fmt.Errorf("save tokens: %w", err)
	}
	d.log.Debug("tokens refreshed")
	return next, nil
}

// Lookup resolves a barcode to a Digi-Key part number when needed, then runs
// a keyword search and returns the exact match.
func (d *DigiKey) Lookup(ctx context.Context, q Query) (*Product, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	keyword := q.Keyword()
	if q.Barcode != "" {
		keyword, err = d.barcode(ctx, token, strings.TrimSpace(q.Barcode))
		if err != nil {
			return nil, err
		}
	}
	return d.search(ctx, token, keyword)
}

func (d *DigiKey) do(req *http.Request, token string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-DIGIKEY-Client-Id", d.cfg.ClientID)
	req.Header.Set("X-DIGIKEY-Locale-Site", "US")
	req.Header.Set("X-DIGIKEY-Locale-Language", "en")
	req.Header.Set("X-DIGIKEY-Locale-Currency", "USD")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("digikey request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("digikey: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrTokenExpired
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("digikey error %d: %s", resp.StatusCode, truncate(string(body), 500))
	}
	return body, nil
}

func (d *DigiKey) barcode(ctx context.Context, token, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.cfg.APIBase+"/Barcoding/v3/ProductBarcodes/"+url.PathEscape(code), nil)
	if err != nil {
		return "", err
	}
	body, err := d.do(req, token)
	if err != nil {
		return "", err
	}
	var bc struct {
		DigiKeyPartNumber string `json:"DigiKeyPartNumber"`
	}
	if err := json.Unmarshal(body, &bc); err != nil {
		return "", fmt.Errorf("digikey barcode parse error: %w", err)
	}
	if bc.DigiKeyPartNumber == "" {
		return "", ErrNotFound
	}
	return bc.DigiKeyPartNumber, nil
}

type dkProduct struct {
	ManufacturerProductNumber string `json:"ManufacturerProductNumber"`
	Manufacturer              struct {
		Name string `json:"Name"`
	} `json:"Manufacturer"`
	Description struct {
		ProductDescription  string `json:"ProductDescription"`
		DetailedDescription string `json:"DetailedDescription"`
	} `json:"Description"`
	DatasheetURL string `json:"DatasheetUrl"`
	Category     struct {
		Name string `json:"Name"`
	} `json:"Category"`
	Series struct {
		Name string `json:"Name"`
	} `json:"Series"`
	Parameters []struct {
		ParameterText string `json:"ParameterText"`
		ValueText     string `json:"ValueText"`
	} `json:"Parameters"`
	ProductVariations []struct {
		DigiKeyProductNumber string `json:"DigiKeyProductNumber"`
		StandardPricing      []struct {
			BreakQuantity int     `json:"BreakQuantity"`
			UnitPrice     float64 `json:"UnitPrice"`
		} `json:"StandardPricing"`
	} `json:"ProductVariations"`
}

func (d *DigiKey) search(ctx context.Context, token, keyword string) (*Product, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"Keywords": keyword,
		"Limit":    10,
		"Offset":   0,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.cfg.APIBase+"/products/v4/search/keyword", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := d.do(req, token)
	if err != nil {
		return nil, err
	}

	var dkResp struct {
		ExactMatches []dkProduct `json:"ExactMatches"`
		Products     []dkProduct `json:"Products"`
	}
	if err := json.Unmarshal(body, &dkResp); err != nil {
		return nil, fmt.Errorf("digikey response parse error: %w", err)
	}

	var hit *dkProduct
	switch {
	case len(dkResp.ExactMatches) > 0:
		hit = &dkResp.ExactMatches[0]
	case len(dkResp.Products) > 0:
		hit = &dkResp.Products[0]
	default:
		return nil, ErrNotFound
	}

	p := &Product{
		Distributor:         "Digi-Key",
		MPN:                 hit.ManufacturerProductNumber,
		Manufacturer:        hit.Manufacturer.Name,
		Family:              hit.Category.Name,
		Series:              strings.TrimSpace(hit.Series.Name),
		Description:         hit.Description.ProductDescription,
		DetailedDescription: hit.Description.DetailedDescription,
		DatasheetURL:        hit.DatasheetURL,
	}
	if p.Series == "-" {
		p.Series = ""
	}
	for _, param := range hit.Parameters {
		p.Parameters = append(p.Parameters, Parameter{Name: param.ParameterText, Value: param.ValueText})
	}
	if len(hit.ProductVariations) > 0 {
		v := hit.ProductVariations[0]
		p.DistributorPN = v.DigiKeyProductNumber
		for _, sp := range v.StandardPricing {
			p.PriceBreaks = append(p.PriceBreaks, PriceBreak{
				Qty:       sp.BreakQuantity,
				UnitPrice: decimal.NewFromFloat(sp.UnitPrice),
			})
		}
	}
	return p, nil
}
