package catalog

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

const vendorSelect = `SELECT v.id, v.name, v.vendor_type, v.website, v.created_at,
	(SELECT COUNT(DISTINCT part_id) FROM part_manufacturers WHERE vendor_id = v.id) FROM vendors v`

func scanVendor(row rowScanner) (models.Vendor, error) {
	var v models.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.VendorType, &v.Website, &v.CreatedAt, &v.PartCount)
	return v, err
}

type vendorInput struct {
	Name       string `json:"name"`
	VendorType string `json:"vendor_type"`
	Website    string `json:"website"`
}

func (v *vendorInput) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	v.Name = strings.TrimSpace(v.Name)
	validation.RequireField(ve, "name", v.Name)
	validation.ValidateMaxLength(ve, "name", v.Name, validation.MaxNameLength)
	validation.ValidateEnum(ve, "vendor_type", v.VendorType, validation.ValidVendorTypes)
	validation.ValidateURL(ve, "website", v.Website)
	return ve
}

// ListVendors returns manufacturers and suppliers, optionally filtered by
// vendor_type and a name search.
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	query := vendorSelect + " WHERE 1=1"
	var args []any
	if t := r.URL.Query().Get("vendor_type"); t != "" {
		query += " AND v.vendor_type = ?"
		args = append(args, t)
	}
	if s := r.URL.Query().Get("search"); s != "" {
		query += " AND v.name LIKE ?"
		args = append(args, "%"+s+"%")
	}
	rows, err := h.DB.QueryContext(r.Context(), query+" ORDER BY v.name", args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, v)
	}
	response.JSON(w, items)
}

// GetVendor returns a single vendor by ID.
func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request, id string) {
	vendorID, ok := response.ID(w, id)
	if !ok {
		return
	}
	v, err := scanVendor(h.DB.QueryRowContext(r.Context(), vendorSelect+" WHERE v.id = ?", vendorID))
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, v)
}

// CreateVendor creates a new vendor.
func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var in vendorInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	if in.VendorType == "" {
		in.VendorType = "manufacturer"
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "INSERT INTO vendors (name, vendor_type, website) VALUES (?, ?, ?)",
		in.Name, in.VendorType, in.Website)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.Audit.Record(ctx, audit.ActionCreate, "vendor", id, "Created vendor "+in.Name)

	v, err := scanVendor(h.DB.QueryRowContext(ctx, vendorSelect+" WHERE v.id = ?", id))
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, v)
}

// UpdateVendor updates an existing vendor.
func (h *Handler) UpdateVendor(w http.ResponseWriter, r *http.Request, id string) {
	vendorID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in vendorInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx,
		"UPDATE vendors SET name = ?, vendor_type = COALESCE(NULLIF(?, ''), vendor_type), website = ? WHERE id = ?",
		in.Name, in.VendorType, in.Website, vendorID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "vendor", vendorID, "Updated vendor "+in.Name)
	h.GetVendor(w, r, id)
}

// DeleteVendor deletes a vendor. Its part links go with it.
func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request, id string) {
	vendorID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM vendors WHERE id = ?", vendorID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "vendor", vendorID, "Deleted vendor "+id)
	response.JSON(w, map[string]interface{}{"deleted": vendorID})
}

type mergeRequest struct {
	PrimaryID int64 `json:"primary_id"`
	AliasID   int64 `json:"alias_id"`
}

var errSameRecord = errors.New("primary and alias must differ")

func (m mergeRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	validation.RequireID(ve, "primary_id", m.PrimaryID)
	validation.RequireID(ve, "alias_id", m.AliasID)
	if m.PrimaryID != 0 && m.PrimaryID == m.AliasID {
		ve.AddErr("alias_id", errSameRecord)
	}
	return ve
}

// requireBoth returns sql.ErrNoRows unless both ids exist in table.
func requireBoth(ctx context.Context, tx *sql.Tx, table string, a, b int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id IN (?, ?)", a, b).Scan(&n); err != nil {
		return err
	}
	if n != 2 {
		return sql.ErrNoRows
	}
	return nil
}

// MergeVendors moves every part link of the alias vendor to the primary and
// deletes the alias.
func (h *Handler) MergeVendors(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		if err := requireBoth(ctx, tx, "vendors", req.PrimaryID, req.AliasID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE part_manufacturers SET vendor_id = ? WHERE vendor_id = ?",
			req.PrimaryID, req.AliasID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM vendors WHERE id = ?", req.AliasID)
		return err
	})
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionMerge, "vendor", req.PrimaryID, "Merged vendor "+itoa(req.AliasID)+" into "+itoa(req.PrimaryID))
	h.GetVendor(w, r, itoa(req.PrimaryID))
}
