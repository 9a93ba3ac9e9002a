package catalog

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

// stockTables are the per-location stock tables and their owner column.
var stockTables = []struct{ table, owner string }{
	{"part_stock", "part_id"},
	{"product_stock", "product_id"},
}

type locationInput struct {
	Name string `json:"name"`
}

func (l *locationInput) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	l.Name = strings.TrimSpace(l.Name)
	validation.RequireField(ve, "name", l.Name)
	validation.ValidateMaxLength(ve, "name", l.Name, validation.MaxNameLength)
	return ve
}

// ListLocations returns all locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(), "SELECT id, name, created_at FROM locations ORDER BY name")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Location{}
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, l)
	}
	response.JSON(w, items)
}

// GetLocation returns a single location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request, id string) {
	locID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var l models.Location
	err := h.DB.QueryRowContext(r.Context(), "SELECT id, name, created_at FROM locations WHERE id = ?", locID).
		Scan(&l.ID, &l.Name, &l.CreatedAt)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, l)
}

// CreateLocation creates a location.
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var in locationInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "INSERT INTO locations (name) VALUES (?)", in.Name)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.Audit.Record(ctx, audit.ActionCreate, "location", id, "Created location "+in.Name)
	response.Created(w, models.Location{ID: id, Name: in.Name})
}

// UpdateLocation renames a location.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request, id string) {
	locID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in locationInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "UPDATE locations SET name = ? WHERE id = ?", in.Name, locID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "location", locID, "Renamed location to "+in.Name)
	h.GetLocation(w, r, id)
}

// DeleteLocation deletes a location and the stock recorded there.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request, id string) {
	locID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", locID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "location", locID, "Deleted location "+id)
	response.JSON(w, map[string]interface{}{"deleted": locID})
}

// mergeStock moves the alias location's stock rows onto the primary. An
// item held at both ends up with one row carrying the sum.
func mergeStock(ctx context.Context, tx *sql.Tx, table, owner string, primary, alias int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET stock = stock +
		(SELECT a.stock FROM `+table+` a WHERE a.location_id = ? AND a.`+owner+` = `+table+`.`+owner+`)
		WHERE location_id = ? AND `+owner+` IN (SELECT `+owner+` FROM `+table+` WHERE location_id = ?)`,
		alias, primary, alias); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE location_id = ?
		AND `+owner+` IN (SELECT `+owner+` FROM `+table+` WHERE location_id = ?)`, alias, primary); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "UPDATE "+table+" SET location_id = ? WHERE location_id = ?", primary, alias)
	return err
}

// MergeLocations moves all stock of the alias location to the primary and
// deletes the alias.
func (h *Handler) MergeLocations(w http.ResponseWriter, r *http.Request) {
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
		if err := requireBoth(ctx, tx, "locations", req.PrimaryID, req.AliasID); err != nil {
			return err
		}
		for _, st := range stockTables {
			if err := mergeStock(ctx, tx, st.table, st.owner, req.PrimaryID, req.AliasID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", req.AliasID)
		return err
	})
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionMerge, "location", req.PrimaryID, "Merged location "+itoa(req.AliasID)+" into "+itoa(req.PrimaryID))
	h.GetLocation(w, r, itoa(req.PrimaryID))
}

// SetPartStock sets the quantity of a part held at a location.
func (h *Handler) SetPartStock(w http.ResponseWriter, r *http.Request, id string) {
	partID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in stockInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireID(ve, "location_id", in.LocationID)
	validation.ValidateNonNegativeInt(ve, "stock", in.Stock)
	validation.ValidateMaxQuantity(ve, "stock", in.Stock)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	if err := upsertStock(ctx, h.DB, "part_stock", "part_id", partID, in.LocationID, in.Stock); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			response.Err(w, "unknown part or location", http.StatusNotFound)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "part", partID, "Set stock at location "+itoa(in.LocationID)+" to "+itoa(in.Stock))
	rows, err := stockRows(ctx, h.DB, "part_stock", "part_id", partID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, rows)
}

// DeletePartStock removes one stock row.
func (h *Handler) DeletePartStock(w http.ResponseWriter, r *http.Request, id string) {
	rowID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var partID int64
	if err := h.DB.QueryRowContext(ctx, "SELECT part_id FROM part_stock WHERE id = ?", rowID).Scan(&partID); err != nil {
		response.DBErr(w, err)
		return
	}
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM part_stock WHERE id = ?", rowID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "part", partID, "Removed stock row "+itoa(rowID))
	response.JSON(w, map[string]interface{}{"deleted": rowID})
}
