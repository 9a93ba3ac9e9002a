package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/schema"
	"mrp/internal/validation"
)

type manufacturerInput struct {
	VendorID int64  `json:"vendor_id"`
	MPN      string `json:"mpn"`
}

type stockInput struct {
	LocationID int64 `json:"location_id"`
	Stock      int64 `json:"stock"`
}

type partRequest struct {
	Description   string              `json:"description"`
	DatasheetURL  string              `json:"datasheet_url"`
	Values        map[string]string   `json:"values"`
	Manufacturers []manufacturerInput `json:"manufacturers"`
	Stock         []stockInput        `json:"stock"`
}

func (req *partRequest) validate(fields []schema.Field) (schema.Values, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	req.Description = strings.TrimSpace(req.Description)
	validation.RequireField(ve, "description", req.Description)
	validation.ValidateMaxLength(ve, "description", req.Description, validation.MaxStringLength)
	validation.ValidateURL(ve, "datasheet_url", req.DatasheetURL)
	values, err := schema.Bind(req.Values, fields)
	ve.AddErr("values", err)
	for slot, v := range values {
		validation.ValidateMaxLength(ve, string(slot), v, validation.MaxNameLength)
	}
	for i, m := range req.Manufacturers {
		validation.RequireID(ve, fmt.Sprintf("manufacturers[%d].vendor_id", i), m.VendorID)
	}
	for i, s := range req.Stock {
		validation.RequireID(ve, fmt.Sprintf("stock[%d].location_id", i), s.LocationID)
		validation.ValidateNonNegativeInt(ve, fmt.Sprintf("stock[%d].stock", i), s.Stock)
		validation.ValidateMaxQuantity(ve, fmt.Sprintf("stock[%d].stock", i), s.Stock)
	}
	return values, ve
}

// ListParts lists the parts of one type. Query parameters: search (part
// number, description, manufacturer, MPN, location), manufacturer and
// location ids, and any slot name (char1=...) as an exact filter.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request, typeID string) {
	tid, ok := response.ID(w, typeID)
	if !ok {
		return
	}
	ctx := r.Context()
	fields, err := loadFields(ctx, h.DB, tid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	q := r.URL.Query()
	where := " FROM parts p JOIN types t ON t.id = p.type_id WHERE p.type_id = ?"
	args := []any{tid}
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		like := "%" + search + "%"
		where += ` AND (p.ipn LIKE ? OR p.description LIKE ?
			OR EXISTS (SELECT 1 FROM part_manufacturers pm JOIN vendors v ON v.id = pm.vendor_id
				WHERE pm.part_id = p.id AND (pm.mpn LIKE ? OR v.name LIKE ?))
			OR EXISTS (SELECT 1 FROM part_stock ps JOIN locations l ON l.id = ps.location_id
				WHERE ps.part_id = p.id AND l.name LIKE ?))`
		args = append(args, like, like, like, like, like)
	}
	if v := q.Get("manufacturer"); v != "" {
		where += " AND EXISTS (SELECT 1 FROM part_manufacturers pm WHERE pm.part_id = p.id AND pm.vendor_id = ?)"
		args = append(args, v)
	}
	if v := q.Get("location"); v != "" {
		where += " AND EXISTS (SELECT 1 FROM part_stock ps WHERE ps.part_id = p.id AND ps.location_id = ?)"
		args = append(args, v)
	}
	for _, s := range schema.AllSlots() {
		if v, ok := q[string(s)]; ok && len(v) > 0 {
			where += " AND p." + string(s) + " = ?"
			args = append(args, slotArg(s, v[0]))
		}
	}

	var total int
	if err := h.DB.QueryRowContext(ctx, "SELECT COUNT(*)"+where, args...).Scan(&total); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	page, limit, offset := response.Pagination(r, 50)
	rows, err := h.DB.QueryContext(ctx, partSelect+", "+slotColumns()+where+" ORDER BY p.ipn LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		p.Fields = schema.Label(p.Values, fields)
		items = append(items, p)
	}
	response.JSONMeta(w, items, total, page, limit)
}

// PartFilterValues returns, per field of the type, the distinct values in
// use. Used to build filter menus.
func (h *Handler) PartFilterValues(w http.ResponseWriter, r *http.Request, typeID string) {
	tid, ok := response.ID(w, typeID)
	if !ok {
		return
	}
	ctx := r.Context()
	fields, err := loadFields(ctx, h.DB, tid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		col := string(f.Slot)
		rows, err := h.DB.QueryContext(ctx,
			"SELECT DISTINCT CAST("+col+" AS TEXT) FROM parts WHERE type_id = ? AND "+col+" IS NOT NULL AND "+col+" <> '' ORDER BY 1", tid)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		vals := []string{}
		for rows.Next() {
			var v string
			rows.Scan(&v)
			vals = append(vals, v)
		}
		rows.Close()
		out[f.Name] = vals
	}
	response.JSON(w, out)
}

// GetPart returns a part with labeled values, manufacturers and stock.
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request, id string) {
	partID, ok := response.ID(w, id)
	if !ok {
		return
	}
	p, err := loadPart(r.Context(), h.DB, partID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// CreatePart creates a part of the given type and mints its part number.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request, typeID string) {
	tid, ok := response.ID(w, typeID)
	if !ok {
		return
	}
	ctx := r.Context()
	t, err := loadType(ctx, h.DB, tid)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	var req partRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	values, ve := req.validate(t.Fields)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	var partID int64
	var ipn string
	err = database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		var err error
		partID, ipn, err = insertPart(ctx, tx, newPart{
			TypeID:       tid,
			Description:  req.Description,
			DatasheetURL: req.DatasheetURL,
			Values:       values,
		})
		if err != nil {
			return err
		}
		for _, m := range req.Manufacturers {
			if _, err := attachManufacturer(ctx, tx, partID, m.VendorID, m.MPN); err != nil {
				return err
			}
		}
		for _, s := range req.Stock {
			if err := upsertStock(ctx, tx, "part_stock", "part_id", partID, s.LocationID, s.Stock); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateMPN) {
		response.Err(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "part", partID, "Created part "+ipn)

	p, err := loadPart(ctx, h.DB, partID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, p)
}

// UpdatePart updates description, datasheet and the given field values.
// Values not mentioned keep their current contents. The part number never
// changes.
func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request, id string) {
	partID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var typeID int64
	if err := h.DB.QueryRowContext(ctx, "SELECT type_id FROM parts WHERE id = ?", partID).Scan(&typeID); err != nil {
		response.DBErr(w, err)
		return
	}
	fields, err := loadFields(ctx, h.DB, typeID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var req partRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	values, ve := req.validate(fields)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	set := []string{"description = ?", "datasheet_url = ?", "updated_at = CURRENT_TIMESTAMP"}
	args := []any{req.Description, req.DatasheetURL}
	for slot, v := range values {
		set = append(set, string(slot)+" = ?")
		args = append(args, slotArg(slot, v))
	}
	args = append(args, partID)
	if _, err := h.DB.ExecContext(ctx, "UPDATE parts SET "+strings.Join(set, ", ")+" WHERE id = ?", args...); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "part", partID, "Updated part "+id)
	h.GetPart(w, r, id)
}

// DeletePart deletes a part that no product uses.
func (h *Handler) DeletePart(w http.ResponseWriter, r *http.Request, id string) {
	partID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var uses int
	h.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM product_parts WHERE part_id = ?", partID).Scan(&uses)
	if uses > 0 {
		response.Err(w, fmt.Sprintf("cannot delete part: %d products use it", uses), http.StatusConflict)
		return
	}
	var ipn string
	if err := h.DB.QueryRowContext(ctx, "SELECT ipn FROM parts WHERE id = ?", partID).Scan(&ipn); err != nil {
		response.DBErr(w, err)
		return
	}
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM parts WHERE id = ?", partID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "part", partID, "Deleted part "+ipn)
	response.JSON(w, map[string]interface{}{"deleted": partID})
}

// AddPartManufacturer links a manufacturer part number to a part.
func (h *Handler) AddPartManufacturer(w http.ResponseWriter, r *http.Request, id string) {
	partID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in manufacturerInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireID(ve, "vendor_id", in.VendorID)
	validation.RequireField(ve, "mpn", in.MPN)
	validation.ValidateMaxLength(ve, "mpn", in.MPN, validation.MaxNameLength)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	ctx := r.Context()
	var linkID int64
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM parts WHERE id = ?", partID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		var err error
		linkID, err = attachManufacturer(ctx, tx, partID, in.VendorID, in.MPN)
		return err
	})
	if errors.Is(err, ErrDuplicateMPN) {
		response.Err(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "part", partID, "Added manufacturer part number "+in.MPN)
	response.Created(w, map[string]interface{}{"id": linkID})
}

// DeletePartManufacturer removes one manufacturer link.
func (h *Handler) DeletePartManufacturer(w http.ResponseWriter, r *http.Request, id string) {
	linkID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var partID int64
	if err := h.DB.QueryRowContext(ctx, "SELECT part_id FROM part_manufacturers WHERE id = ?", linkID).Scan(&partID); err != nil {
		response.DBErr(w, err)
		return
	}
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM part_manufacturers WHERE id = ?", linkID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "part", partID, "Removed manufacturer link "+itoa(linkID))
	response.JSON(w, map[string]interface{}{"deleted": linkID})
}
