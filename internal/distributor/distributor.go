// Package distributor looks parts up on electronics distributor APIs and
// normalizes the result for import into the catalog.
package distributor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("part not found")
	ErrTokenExpired = errors.New("distributor access tokens are off")
	ErrInvalidQuery = errors.New("enter exactly one of barcode, part number or manufacturer part number")
	ErrRateLimited  = errors.New("rate limited, retry later")
)

// Query identifies the part to look up. Exactly one field must be set.
type Query struct {
	Barcode    string `json:"barcode"`
	PartNumber string `json:"part_number"`
	MPN        string `json:"mpn"`
}

// Validate enforces that exactly one identifier is given.
func (q Query) Validate() error {
	n := 0
	for _, v := range []string{q.Barcode, q.PartNumber, q.MPN} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	if n != 1 {
		return ErrInvalidQuery
	}
	return nil
}

// Keyword is the search term for part number and MPN queries.
func (q Query) Keyword() string {
	if s := strings.TrimSpace(q.PartNumber); s != "" {
		return s
	}
	return strings.TrimSpace(q.MPN)
}

// Parameter is one named attribute of a distributor product.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PriceBreak is a quantity-based price tier.
type PriceBreak struct {
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Product is a distributor search hit.
type Product struct {
	Distributor         string       `json:"distributor"`
	DistributorPN       string       `json:"distributor_pn"`
	MPN                 string       `json:"mpn"`
	Manufacturer        string       `json:"manufacturer"`
	Family              string       `json:"family"`
	Series              string       `json:"series"`
	Description         string       `json:"description"`
	DetailedDescription string       `json:"detailed_description"`
	DatasheetURL        string       `json:"datasheet_url"`
	Parameters          []Parameter  `json:"parameters"`
	PriceBreaks         []PriceBreak `json:"price_breaks"`
}

// BestDescription prefers the detailed description.
func (p *Product) BestDescription() string {
	if p.DetailedDescription != "" {
		return p.DetailedDescription
	}
	return p.Description
}

// FieldNames lists the field names a new Type for this product gets: Series
// first when the product has one, then each distinct parameter.
func (p *Product) FieldNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, strings.TrimSpace(n))
	}
	if p.Series != "" {
		add("Series")
	}
	for _, param := range p.Parameters {
		add(param.Name)
	}
	return names
}

// Value returns the product's value for a field name.
func (p *Product) Value(name string) (string, bool) {
	if strings.EqualFold(name, "Series") && p.Series != "" {
		return p.Series, true
	}
	for _, param := range p.Parameters {
		if strings.EqualFold(param.Name, name) {
			return param.Value, true
		}
	}
	return "", false
}

// Client is implemented by each distributor backend.
type Client interface {
	Name() string
	Lookup(ctx context.Context, q Query) (*Product, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
