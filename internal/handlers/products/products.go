package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/bom"
	"mrp/internal/database"
	"mrp/internal/handlers/common"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

type partLine struct {
	PartID int64 `json:"part_id"`
	Amount int64 `json:"amount"`
}

type componentLine struct {
	ComponentID int64 `json:"component_id"`
	Amount      int64 `json:"amount"`
}

type stockLine struct {
	LocationID int64 `json:"location_id"`
	Stock      int64 `json:"stock"`
}

// productRequest creates or updates a product. On update a nil list leaves
// the stored rows alone and a present list replaces them.
type productRequest struct {
	Description string          `json:"description"`
	URL         string          `json:"url"`
	Parts       []partLine      `json:"parts"`
	Components  []componentLine `json:"components"`
	Stock       []stockLine     `json:"stock"`
}

func (p *productRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	p.Description = strings.TrimSpace(p.Description)
	p.URL = strings.TrimSpace(p.URL)
	validation.RequireField(ve, "description", p.Description)
	validation.ValidateMaxLength(ve, "description", p.Description, validation.MaxStringLength)
	validation.ValidateURL(ve, "url", p.URL)
	for i, l := range p.Parts {
		field := fmt.Sprintf("parts[%d]", i)
		validation.RequireID(ve, field+".part_id", l.PartID)
		validation.ValidatePositiveInt(ve, field+".amount", l.Amount)
		validation.ValidateMaxQuantity(ve, field+".amount", l.Amount)
	}
	for i, l := range p.Components {
		field := fmt.Sprintf("components[%d]", i)
		validation.RequireID(ve, field+".component_id", l.ComponentID)
		validation.ValidatePositiveInt(ve, field+".amount", l.Amount)
		validation.ValidateMaxQuantity(ve, field+".amount", l.Amount)
	}
	for i, l := range p.Stock {
		field := fmt.Sprintf("stock[%d]", i)
		validation.RequireID(ve, field+".location_id", l.LocationID)
		validation.ValidateNonNegativeInt(ve, field+".stock", l.Stock)
		validation.ValidateMaxQuantity(ve, field+".stock", l.Stock)
	}
	return ve
}

// writeContents stores the lists present in req for productID.
func writeContents(ctx context.Context, tx *sql.Tx, productID int64, req productRequest, replace bool) error {
	if req.Parts != nil {
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM product_parts WHERE product_id = ?", productID); err != nil {
				return err
			}
		}
		for _, l := range req.Parts {
			if err := addPart(ctx, tx, productID, l.PartID, l.Amount); err != nil {
				return err
			}
		}
	}
	if req.Components != nil {
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM product_components WHERE product_id = ?", productID); err != nil {
				return err
			}
		}
		for _, l := range req.Components {
			if err := addComponent(ctx, tx, productID, l.ComponentID, l.Amount); err != nil {
				return err
			}
		}
	}
	if req.Stock != nil {
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM product_stock WHERE product_id = ?", productID); err != nil {
				return err
			}
		}
		for _, l := range req.Stock {
			if err := setStock(ctx, tx, productID, l.LocationID, l.Stock); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeErr maps structure errors to status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bom.ErrCycleDetected):
		response.Err(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bom.ErrQuantityOverflow):
		response.Err(w, err.Error(), http.StatusUnprocessableEntity)
	case strings.Contains(err.Error(), "FOREIGN KEY"):
		response.Err(w, "unknown part, product or location", http.StatusNotFound)
	case strings.Contains(err.Error(), "CHECK constraint"):
		response.Err(w, "a product cannot contain itself", http.StatusConflict)
	default:
		response.DBErr(w, err)
	}
}

// ListProducts returns products, optionally filtered by description.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, limit, offset := response.Pagination(r, 50)
	where := ""
	var args []any
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		where = " WHERE description LIKE ?"
		args = append(args, "%"+s+"%")
	}

	var total int
	if err := h.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	rows, err := h.DB.QueryContext(ctx, `SELECT id, description, url, created_at, updated_at,
		(SELECT COALESCE(SUM(stock), 0) FROM product_stock WHERE product_id = products.id)
		FROM products`+where+" ORDER BY description LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Description, &p.URL, &p.CreatedAt, &p.UpdatedAt, &p.TotalStock); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, p)
	}
	response.JSONMeta(w, items, total, page, limit)
}

// GetProduct returns a product with its parts, components and stock.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	p, err := loadProduct(r.Context(), h.DB, productID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// CreateProduct stores a product and its contents.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}

	ctx := r.Context()
	var productID int64
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO products (description, url) VALUES (?, ?)", req.Description, req.URL)
		if err != nil {
			return err
		}
		productID, _ = res.LastInsertId()
		return writeContents(ctx, tx, productID, req, false)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "product", productID, "Created product "+req.Description)

	p, err := loadProduct(ctx, h.DB, productID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, p)
}

// UpdateProduct replaces the description and url, and any content list
// present in the body.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req productRequest
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
		res, err := tx.ExecContext(ctx, "UPDATE products SET description = ?, url = ?, updated_at = ? WHERE id = ?",
			req.Description, req.URL, database.FormatTime(timeNow()), productID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return writeContents(ctx, tx, productID, req, true)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "product", productID, "Updated product "+req.Description)

	p, err := loadProduct(ctx, h.DB, productID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// DeleteProduct removes a product unless another product or an order uses it.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var used int
	h.DB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM product_components WHERE component_id = ?) +
		(SELECT COUNT(*) FROM mo_lines WHERE product_id = ?)`, productID, productID).Scan(&used)
	if used > 0 {
		response.Err(w, "product is used by other products or manufacturing orders", http.StatusConflict)
		return
	}
	res, err := h.DB.ExecContext(ctx, "DELETE FROM products WHERE id = ?", productID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "product", productID, "Deleted product "+id)
	response.JSON(w, map[string]string{"status": "deleted"})
}

// AddProductPart adds one part line to a product.
func (h *Handler) AddProductPart(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in partLine
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	req := productRequest{Description: "-", Parts: []partLine{in}}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	h.changeContents(w, r, productID, func(ctx context.Context, tx *sql.Tx) error {
		return addPart(ctx, tx, productID, in.PartID, in.Amount)
	}, fmt.Sprintf("Added part %d x%d", in.PartID, in.Amount))
}

// AddProductComponent adds a sub-assembly to a product. An edge that would
// make the product its own descendant is a 409.
func (h *Handler) AddProductComponent(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in componentLine
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	req := productRequest{Description: "-", Components: []componentLine{in}}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	h.changeContents(w, r, productID, func(ctx context.Context, tx *sql.Tx) error {
		return addComponent(ctx, tx, productID, in.ComponentID, in.Amount)
	}, fmt.Sprintf("Added component %d x%d", in.ComponentID, in.Amount))
}

// DeleteProductPart removes a part line by row id.
func (h *Handler) DeleteProductPart(w http.ResponseWriter, r *http.Request, id string) {
	h.deleteRow(w, r, "product_parts", id)
}

// DeleteProductComponent removes a component line by row id.
func (h *Handler) DeleteProductComponent(w http.ResponseWriter, r *http.Request, id string) {
	h.deleteRow(w, r, "product_components", id)
}

// DeleteProductStock removes a stock row by row id.
func (h *Handler) DeleteProductStock(w http.ResponseWriter, r *http.Request, id string) {
	h.deleteRow(w, r, "product_stock", id)
}

// SetProductStock sets the quantity held at one location.
func (h *Handler) SetProductStock(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var in stockLine
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	req := productRequest{Description: "-", Stock: []stockLine{in}}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	h.changeContents(w, r, productID, func(ctx context.Context, tx *sql.Tx) error {
		return setStock(ctx, tx, productID, in.LocationID, in.Stock)
	}, fmt.Sprintf("Set stock at location %d to %d", in.LocationID, in.Stock))
}

func (h *Handler) changeContents(w http.ResponseWriter, r *http.Request, productID int64, fn func(context.Context, *sql.Tx) error, summary string) {
	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", productID).Scan(&exists); err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "UPDATE products SET updated_at = ? WHERE id = ?", database.FormatTime(timeNow()), productID)
		return err
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "product", productID, summary)
	p, err := loadProduct(ctx, h.DB, productID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) deleteRow(w http.ResponseWriter, r *http.Request, table, id string) {
	rowID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	var productID int64
	if err := h.DB.QueryRowContext(ctx, "SELECT product_id FROM "+table+" WHERE id = ?", rowID).Scan(&productID); err != nil {
		response.DBErr(w, err)
		return
	}
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", rowID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "product", productID, "Removed "+table+" row "+id)
	response.JSON(w, map[string]string{"status": "deleted"})
}

// explode returns the flattened part list for qty units of productID.
func (h *Handler) explode(ctx context.Context, productID, qty int64) ([]models.BOMLine, error) {
	var exists int
	if err := h.DB.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", productID).Scan(&exists); err != nil {
		return nil, err
	}
	g, err := LoadGraph(ctx, h.DB)
	if err != nil {
		return nil, err
	}
	req, err := bom.Explode(g, productID, qty)
	if err != nil {
		return nil, err
	}
	return bomLines(ctx, h.DB, req.Parts)
}

func bomQuantity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("qty")
	if raw == "" {
		return 1, true
	}
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || qty <= 0 || qty > validation.MaxQuantity {
		response.Err(w, "qty must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return qty, true
}

// ProductBOM returns the flattened bill of materials, scaled by ?qty=.
func (h *Handler) ProductBOM(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	qty, ok := bomQuantity(w, r)
	if !ok {
		return
	}
	lines, err := h.explode(r.Context(), productID, qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	response.JSON(w, lines)
}

// ExportBOM downloads the flattened bill of materials as a workbook.
func (h *Handler) ExportBOM(w http.ResponseWriter, r *http.Request, id string) {
	productID, ok := response.ID(w, id)
	if !ok {
		return
	}
	qty, ok := bomQuantity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	lines, err := h.explode(ctx, productID, qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	data := make([][]interface{}, 0, len(lines))
	for _, l := range lines {
		data = append(data, []interface{}{l.Quantity, l.IPN, l.Manufacturers, l.MPNs, l.Description})
	}
	h.Audit.Record(ctx, audit.ActionExport, "product", productID, "Exported BOM")
	common.ExportExcel(w, fmt.Sprintf("product-%d-bom", productID), "BOM",
		[]string{"Quantity", "Part Number", "Manufacturer", "Manufacturer Part Number", "Description"}, data)
}
