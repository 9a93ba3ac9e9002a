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
	"time"

	"github.com/shopspring/decimal"
)

// Mouser searches the Mouser part number API. A barcode is the Mouser part
// number printed on the bag, so it is searched the same way.
type Mouser struct {
	apiKey  string
	apiBase string
	http    *http.Client
}

// NewMouser creates a Mouser client.
func NewMouser(apiKey, apiBase string, timeout time.Duration) *Mouser {
	return &Mouser{apiKey: apiKey, apiBase: apiBase, http: newHTTPClient(timeout)}
}

func (m *Mouser) Name() string { return "mouser" }

func (m *Mouser) Lookup(ctx context.Context, q Query) (*Product, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	keyword := q.Keyword()
	if keyword == "" {
		keyword = strings.TrimSpace(q.Barcode)
	}

	reqBody, _ := json.Marshal(map[string]interface{}{
		"SearchByPartRequest": map[string]interface{}{
			"mouserPartNumber":  keyword,
			"partSearchOptions": "Exact",
		},
	})
	endpoint := m.apiBase + "/api/v1/search/partnumber?apiKey=" + url.QueryEscape(m.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mouser search request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("mouser: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mouser search error %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var mouserResp struct {
		Errors []struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Errors"`
		SearchResults struct {
			Parts []struct {
				MouserPartNumber       string `json:"MouserPartNumber"`
				ManufacturerPartNumber string `json:"ManufacturerPartNumber"`
				Manufacturer           string `json:"Manufacturer"`
				Description            string `json:"Description"`
				Category               string `json:"Category"`
				DataSheetURL           string `json:"DataSheetUrl"`
				ProductAttributes      []struct {
					AttributeName  string `json:"AttributeName"`
					AttributeValue string `json:"AttributeValue"`
				} `json:"ProductAttributes"`
				PriceBreaks []struct {
					Quantity int    `json:"Quantity"`
					Price    string `json:"Price"`
				} `json:"PriceBreaks"`
			} `json:"Parts"`
		} `json:"SearchResults"`
	}
	if err := json.Unmarshal(respBody, &mouserResp); err != nil {
		return nil, fmt.Errorf("mouser response parse error: %w", err)
	}
	if len(mouserResp.Errors) > 0 {
		return nil, fmt.Errorf("mouser API error: %s", mouserResp.Errors[0].Message)
	}
	if len(mouserResp.SearchResults.Parts) == 0 {
		return nil, ErrNotFound
	}

	hit := mouserResp.SearchResults.Parts[0]
	p := &Product{
		Distributor:   "Mouser",
		DistributorPN: hit.MouserPartNumber,
		MPN:           hit.ManufacturerPartNumber,
		Manufacturer:  hit.Manufacturer,
		Family:        hit.Category,
		Description:   hit.Description,
		DatasheetURL:  hit.DataSheetURL,
	}
	for _, a := range hit.ProductAttributes {
		if strings.EqualFold(a.AttributeName, "Series") {
			p.Series = a.AttributeValue
			continue
		}
		p.Parameters = append(p.Parameters, Parameter{Name: a.AttributeName, Value: a.AttributeValue})
	}
	for _, pb := range hit.PriceBreaks {
		if price, ok := ParseMouserPrice(pb.Price); ok {
			p.PriceBreaks = append(p.PriceBreaks, PriceBreak{Qty: pb.Quantity, UnitPrice: price})
		}
	}
	return p, nil
}

// ParseMouserPrice handles Mouser's price format like "$1.23" or "1,234.50".
func ParseMouserPrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.Replace(s, "$", "", 1)
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
