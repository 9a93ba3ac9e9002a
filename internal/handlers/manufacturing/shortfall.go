package manufacturing

import (
	"context"
	"errors"
	"net/http"

	"mrp/internal/audit"
	"mrp/internal/bom"
	"mrp/internal/handlers/common"
	"mrp/internal/handlers/products"
	"mrp/internal/models"
	"mrp/internal/response"
)

// shortfall explodes every line of the order and compares the result with
// stock summed over all locations.
func (h *Handler) shortfall(ctx context.Context, id string) (models.ShortfallReport, error) {
	report := models.ShortfallReport{OrderID: id}
	mo, err := loadOrder(ctx, h.DB, id)
	if err != nil {
		return report, err
	}
	lines := make([]bom.Line, 0, len(mo.Lines))
	for _, l := range mo.Lines {
		lines = append(lines, bom.Line{ProductID: l.ProductID, Amount: l.Amount})
	}

	g, err := products.LoadGraph(ctx, h.DB)
	if err != nil {
		return report, err
	}
	req, err := bom.ExplodeOrder(g, lines)
	if err != nil {
		return report, err
	}
	stock, err := products.LoadStock(ctx, h.DB)
	if err != nil {
		return report, err
	}
	partLabels, err := products.PartLabels(ctx, h.DB)
	if err != nil {
		return report, err
	}
	productLabels, err := products.ProductLabels(ctx, h.DB)
	if err != nil {
		return report, err
	}

	sf := bom.Shortfalls(req, stock)
	report.Parts = labeled(sf.Parts, partLabels)
	report.Products = labeled(sf.Products, productLabels)
	report.Short = sf.Short()
	return report, nil
}

func labeled(in []bom.Shortfall, names map[int64]string) []models.ShortfallLine {
	out := make([]models.ShortfallLine, 0, len(in))
	for _, s := range in {
		out = append(out, models.ShortfallLine{
			ID: s.ID, Label: names[s.ID], Needed: s.Needed, OnHand: s.OnHand, Short: s.Short,
		})
	}
	return out
}

func writeShortfallErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bom.ErrCycleDetected):
		response.Err(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bom.ErrQuantityOverflow):
		response.Err(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		response.DBErr(w, err)
	}
}

// Shortfall reports needed, on-hand and short quantities for every part and
// intermediate product the order consumes.
func (h *Handler) Shortfall(w http.ResponseWriter, r *http.Request, id string) {
	report, err := h.shortfall(r.Context(), id)
	if err != nil {
		writeShortfallErr(w, err)
		return
	}
	response.JSON(w, report)
}

// ExportShortfall downloads the shortfall report as a workbook.
func (h *Handler) ExportShortfall(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	report, err := h.shortfall(ctx, id)
	if err != nil {
		writeShortfallErr(w, err)
		return
	}
	var data [][]interface{}
	for _, group := range []struct {
		kind  string
		lines []models.ShortfallLine
	}{{"Part", report.Parts}, {"Product", report.Products}} {
		for _, l := range group.lines {
			data = append(data, []interface{}{group.kind, l.Label, l.Needed, l.OnHand, l.Short})
		}
	}
	h.Audit.Record(ctx, audit.ActionExport, "mo", id, "Exported shortfall")
	common.ExportExcel(w, id+"-shortfall", "Shortfall",
		[]string{"Kind", "Item", "Needed", "On Hand", "Short"}, data)
}
