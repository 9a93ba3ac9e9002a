package catalog

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/response"
	"mrp/internal/schema"
	"mrp/internal/validation"
)

type typeRequest struct {
	Name   string         `json:"name"`
	Prefix string         `json:"prefix"`
	Fields []schema.Field `json:"fields"`
}

// validate normalizes the request into a Type or collects every problem.
func (req typeRequest) validate() (schema.Type, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	t := schema.Type{Name: strings.TrimSpace(req.Name), Fields: schema.Compact(req.Fields)}
	validation.RequireField(ve, "name", t.Name)
	validation.ValidateMaxLength(ve, "name", t.Name, validation.MaxNameLength)
	prefix, err := schema.NormalizePrefix(req.Prefix)
	if err != nil {
		ve.AddErr("prefix", err)
	}
	t.Prefix = prefix
	ve.AddErr("fields", schema.ValidateFields(t.Fields))
	return t, ve
}

// ListTypes returns every type with its fields.
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.DB.QueryContext(ctx, "SELECT id FROM types ORDER BY name")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var ids []int64
	for rows.Next() {
		var id int64
		rows.Scan(&id)
		ids = append(ids, id)
	}
	rows.Close()

	items := []schema.Type{}
	for _, id := range ids {
		t, err := loadType(ctx, h.DB, id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, t)
	}
	response.JSON(w, items)
}

// GetType returns a type with its ordered fields.
func (h *Handler) GetType(w http.ResponseWriter, r *http.Request, id string) {
	typeID, ok := response.ID(w, id)
	if !ok {
		return
	}
	t, err := loadType(r.Context(), h.DB, typeID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, t)
}

// CreateType creates a type from a name, prefix and field list.
func (h *Handler) CreateType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	t, ve := req.validate()
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	h.createType(w, r, t)
}

// QuickCreateType creates a type from one line: "Name, PFX, field1, field2".
func (h *Handler) QuickCreateType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Line string `json:"line"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	t, err := schema.ParseQuickType(req.Line)
	if err != nil {
		ve := &validation.ValidationErrors{}
		ve.AddErr("line", err)
		response.Invalid(w, ve)
		return
	}
	h.createType(w, r, t)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request, t schema.Type) {
	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		id, err := insertType(ctx, tx, t)
		t.ID = id
		return err
	})
	if errors.Is(err, ErrTypeNameTaken) {
		response.Err(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "type", t.ID, "Created type "+t.Name)

	created, err := loadType(ctx, h.DB, t.ID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, created)
}

// UpdateType renames a type and replaces its field set.
func (h *Handler) UpdateType(w http.ResponseWriter, r *http.Request, id string) {
	typeID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req typeRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	t, ve := req.validate()
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE types SET name = ?, prefix = ? WHERE id = ?", t.Name, t.Prefix, typeID)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrTypeNameTaken
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return replaceFields(ctx, tx, typeID, t.Fields)
	})
	switch {
	case errors.Is(err, ErrTypeNameTaken):
		response.Err(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "type", typeID, "Updated type "+t.Name)
	h.GetType(w, r, id)
}

// DeleteType removes a type and, by cascade, its fields and parts.
func (h *Handler) DeleteType(w http.ResponseWriter, r *http.Request, id string) {
	typeID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var inBOM int
	h.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_parts pp JOIN parts p ON p.id = pp.part_id
		WHERE p.type_id = ?`, typeID).Scan(&inBOM)
	if inBOM > 0 {
		response.Err(w, "cannot delete type: its parts are used in product BOMs", http.StatusConflict)
		return
	}
	res, err := h.DB.ExecContext(ctx, "DELETE FROM types WHERE id = ?", typeID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "type", typeID, "Deleted type "+id)
	response.JSON(w, map[string]interface{}{"deleted": typeID})
}
