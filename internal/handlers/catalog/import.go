package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/distributor"
	"mrp/internal/response"
	"mrp/internal/schema"
	"mrp/internal/validation"
)

var errNoFamily = errors.New("distributor returned no product family")

type importRequest struct {
	Website string `json:"website"`
	distributor.Query
}

// importProduct stores a distributor hit as a new part. The Type named after
// the product family is created on first use with one text field per
// parameter, and the manufacturer is created when unknown.
func importProduct(ctx context.Context, tx *sql.Tx, p *distributor.Product) (int64, string, error) {
	family := strings.TrimSpace(p.Family)
	if family == "" {
		return 0, "", errNoFamily
	}

	var typeID int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM types WHERE name = ?", family).Scan(&typeID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prefix, err := schema.NormalizePrefix(schema.DerivePrefix(family))
		if err != nil {
			return 0, "", fmt.Errorf("family %q: %w", family, err)
		}
		fields, err := schema.CharFields(p.FieldNames())
		if err != nil {
			return 0, "", err
		}
		typeID, err = insertType(ctx, tx, schema.Type{Name: family, Prefix: prefix, Fields: fields})
		if err != nil {
			return 0, "", err
		}
	case err != nil:
		return 0, "", err
	}

	if p.Manufacturer != "" && p.MPN != "" {
		taken, err := mpnTaken(ctx, tx, p.MPN, 0)
		if err != nil {
			return 0, "", err
		}
		if taken {
			return 0, "", ErrDuplicateMPN
		}
	}

	fields, err := loadFields(ctx, tx, typeID)
	if err != nil {
		return 0, "", err
	}
	values := schema.Values{}
	for _, f := range fields {
		v, ok := p.Value(f.Name)
		if !ok || v == "" {
			continue
		}
		if f.Slot.IsInteger() {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				continue
			}
		}
		values[f.Slot] = v
	}

	datasheet := p.DatasheetURL
	if !strings.HasPrefix(datasheet, "http") {
		datasheet = ""
	}
	partID, ipn, err := insertPart(ctx, tx, newPart{
		TypeID:       typeID,
		Description:  p.BestDescription(),
		DatasheetURL: datasheet,
		Values:       values,
	})
	if err != nil {
		return 0, "", err
	}

	if p.Manufacturer != "" {
		vendorID, err := getOrCreateVendor(ctx, tx, p.Manufacturer)
		if err != nil {
			return 0, "", err
		}
		if _, err := attachManufacturer(ctx, tx, partID, vendorID, p.MPN); err != nil {
			return 0, "", err
		}
	}
	return partID, ipn, nil
}

// ImportPart looks a part up on a distributor and creates it locally.
// Exactly one of barcode, part_number and mpn must be given.
func (h *Handler) ImportPart(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "website", req.Website)
	validation.ValidateEnum(ve, "website", req.Website, validation.ValidWebsites)
	ve.AddErr("query", req.Query.Validate())
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	client, ok := h.Distributors[req.Website]
	if !ok || client == nil {
		response.Err(w, req.Website+" is not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	product, err := client.Lookup(ctx, req.Query)
	switch {
	case errors.Is(err, distributor.ErrNotFound):
		response.Err(w, "Invalid Part Number", http.StatusNotFound)
		return
	case errors.Is(err, distributor.ErrInvalidQuery):
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		response.Err(w, err.Error(), http.StatusBadGateway)
		return
	}

	var partID int64
	var ipn string
	err = database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		var err error
		partID, ipn, err = importProduct(ctx, tx, product)
		return err
	})
	switch {
	case errors.Is(err, ErrDuplicateMPN):
		response.Err(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, schema.ErrTooManyFields):
		response.Err(w, "can't create type, too many fields", http.StatusUnprocessableEntity)
		return
	case errors.Is(err, errNoFamily), errors.Is(err, schema.ErrInvalidPrefix):
		response.Err(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionImport, "part", partID,
		fmt.Sprintf("Imported %s %s from %s", product.MPN, ipn, client.Name()))

	p, err := loadPart(ctx, h.DB, partID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, p)
}

// GetDistributorTokens shows the stored Digi-Key token pair.
func (h *Handler) GetDistributorTokens(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil {
		response.Err(w, "token store not configured", http.StatusServiceUnavailable)
		return
	}
	t, err := h.Tokens.Load(r.Context(), distributor.DigiKeyTokenName)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, t)
}

// PutDistributorTokens replaces the Digi-Key token pair, e.g. after the
// refresh token lapsed and a new one was issued by hand.
func (h *Handler) PutDistributorTokens(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil {
		response.Err(w, "token store not configured", http.StatusServiceUnavailable)
		return
	}
	var t distributor.Tokens
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "refresh_token", t.RefreshToken)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	if err := h.Tokens.Save(ctx, distributor.DigiKeyTokenName, t); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "distributor", distributor.DigiKeyTokenName, "Entered Digi-Key tokens")
	response.JSON(w, map[string]string{"status": "saved"})
}
