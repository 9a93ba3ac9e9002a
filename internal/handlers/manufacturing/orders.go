package manufacturing

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

type lineInput struct {
	ProductID int64 `json:"product_id"`
	Amount    int64 `json:"amount"`
}

type orderRequest struct {
	Notes string      `json:"notes"`
	Lines []lineInput `json:"lines"`
}

func (o *orderRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	o.Notes = strings.TrimSpace(o.Notes)
	validation.ValidateMaxLength(ve, "notes", o.Notes, 4000)
	for i, l := range o.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		validation.RequireID(ve, field+".product_id", l.ProductID)
		validation.ValidatePositiveInt(ve, field+".amount", l.Amount)
		validation.ValidateMaxQuantity(ve, field+".amount", l.Amount)
	}
	return ve
}

func loadOrder(ctx context.Context, q database.Querier, id string) (models.ManufacturingOrder, error) {
	var mo models.ManufacturingOrder
	err := q.QueryRowContext(ctx,
		"SELECT id, notes, created_by, created_at, updated_at FROM manufacturing_orders WHERE id = ?", id).
		Scan(&mo.ID, &mo.Notes, &mo.CreatedBy, &mo.CreatedAt, &mo.UpdatedAt)
	if err != nil {
		return mo, err
	}
	mo.Lines, err = orderLines(ctx, q, id)
	return mo, err
}

func orderLines(ctx context.Context, q database.Querier, id string) ([]models.MOLine, error) {
	rows, err := q.QueryContext(ctx, `SELECT l.id, l.product_id, p.description, l.amount
		FROM mo_lines l JOIN products p ON p.id = l.product_id WHERE l.mo_id = ? ORDER BY l.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []models.MOLine{}
	for rows.Next() {
		var l models.MOLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Description, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func writeLines(ctx context.Context, tx *sql.Tx, id string, lines []lineInput) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM mo_lines WHERE mo_id = ?", id); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO mo_lines (mo_id, product_id, amount) VALUES (?, ?, ?)", id, l.ProductID, l.Amount); err != nil {
			return fmt.Errorf("product %d: %w", l.ProductID, err)
		}
	}
	return nil
}

func writeErr(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "FOREIGN KEY") {
		response.Err(w, "unknown product", http.StatusNotFound)
		return
	}
	response.DBErr(w, err)
}

// ListOrders returns manufacturing orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, limit, offset := response.Pagination(r, 50)
	var total int
	if err := h.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM manufacturing_orders").Scan(&total); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	rows, err := h.DB.QueryContext(ctx, `SELECT id, notes, created_by, created_at, updated_at
		FROM manufacturing_orders ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.ManufacturingOrder{}
	for rows.Next() {
		var mo models.ManufacturingOrder
		if err := rows.Scan(&mo.ID, &mo.Notes, &mo.CreatedBy, &mo.CreatedAt, &mo.UpdatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, mo)
	}
	response.JSONMeta(w, items, total, page, limit)
}

// GetOrder returns one order with its lines.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, id string) {
	mo, err := loadOrder(r.Context(), h.DB, id)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, mo)
}

// CreateOrder numbers a new order MO-YYYY-NNNN and stores its lines.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	ctx := r.Context()
	var id string
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		var err error
		if id, err = database.NextID(ctx, tx, "MO", "manufacturing_orders", 4); err != nil {
			return err
		}
		now := database.FormatTime(timeNow())
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO manufacturing_orders (id, notes, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			id, req.Notes, auth.Username(ctx), now, now); err != nil {
			return err
		}
		return writeLines(ctx, tx, id, req.Lines)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "mo", id, fmt.Sprintf("Created %s with %d lines", id, len(req.Lines)))

	mo, err := loadOrder(ctx, h.DB, id)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, mo)
}

// UpdateOrder replaces the notes and lines of an order.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request, id string) {
	var req orderRequest
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
		res, err := tx.ExecContext(ctx, "UPDATE manufacturing_orders SET notes = ?, updated_at = ? WHERE id = ?",
			req.Notes, database.FormatTime(timeNow()), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return writeLines(ctx, tx, id, req.Lines)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "mo", id, "Updated "+id)

	mo, err := loadOrder(ctx, h.DB, id)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, mo)
}

// DeleteOrder removes an order and its lines.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM manufacturing_orders WHERE id = ?", id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "mo", id, "Deleted "+id)
	response.JSON(w, map[string]string{"status": "deleted"})
}
