package products

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mrp/internal/bom"
	"mrp/internal/database"
	"mrp/internal/models"
)

// LoadGraph reads every product structure into a bom.Graph.
func LoadGraph(ctx context.Context, q database.Querier) (*bom.Graph, error) {
	g := bom.NewGraph()
	rows, err := q.QueryContext(ctx, "SELECT product_id, part_id, amount FROM product_parts")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var product, part, amount int64
		if err := rows.Scan(&product, &part, &amount); err != nil {
			rows.Close()
			return nil, err
		}
		if err := g.AddPart(product, part, amount); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, "SELECT product_id, component_id, amount FROM product_components")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var product, component, amount int64
		if err := rows.Scan(&product, &component, &amount); err != nil {
			return nil, err
		}
		if err := g.AddComponent(product, component, amount); err != nil {
			return nil, err
		}
	}
	return g, rows.Err()
}

// LoadStock sums on-hand quantities across locations.
func LoadStock(ctx context.Context, q database.Querier) (bom.Stock, error) {
	stock := bom.Stock{Parts: map[int64]int64{}, Products: map[int64]int64{}}
	for _, src := range []struct {
		query string
		into  map[int64]int64
	}{
		{"SELECT part_id, SUM(stock) FROM part_stock GROUP BY part_id", stock.Parts},
		{"SELECT product_id, SUM(stock) FROM product_stock GROUP BY product_id", stock.Products},
	} {
		if err := sumInto(ctx, q, src.query, src.into); err != nil {
			return stock, err
		}
	}
	return stock, nil
}

func sumInto(ctx context.Context, q database.Querier, query string, into map[int64]int64) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		into[id] = n
	}
	return rows.Err()
}

// PartLabels maps part ids to "IPN description".
func PartLabels(ctx context.Context, q database.Querier) (map[int64]string, error) {
	return labels(ctx, q, "SELECT id, ipn || ' ' || description FROM parts")
}

// ProductLabels maps product ids to their descriptions.
func ProductLabels(ctx context.Context, q database.Querier) (map[int64]string, error) {
	return labels(ctx, q, "SELECT id, description FROM products")
}

func labels(ctx context.Context, q database.Querier, query string) (map[int64]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, err
		}
		out[id] = strings.TrimSpace(label)
	}
	return out, rows.Err()
}

func loadProduct(ctx context.Context, q database.Querier, id int64) (models.Product, error) {
	var p models.Product
	err := q.QueryRowContext(ctx, `SELECT id, description, url, created_at, updated_at,
		(SELECT COALESCE(SUM(stock), 0) FROM product_stock WHERE product_id = products.id)
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Description, &p.URL, &p.CreatedAt, &p.UpdatedAt, &p.TotalStock)
	if err != nil {
		return p, err
	}
	if p.Parts, err = productParts(ctx, q, id); err != nil {
		return p, err
	}
	if p.Components, err = productComponents(ctx, q, id); err != nil {
		return p, err
	}
	p.Stock, err = productStock(ctx, q, id)
	return p, err
}

func productParts(ctx context.Context, q database.Querier, id int64) ([]models.ProductPart, error) {
	rows, err := q.QueryContext(ctx, `SELECT pp.id, pp.part_id, p.ipn, p.description, pp.amount
		FROM product_parts pp JOIN parts p ON p.id = pp.part_id
		WHERE pp.product_id = ? ORDER BY p.ipn`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.ProductPart{}
	for rows.Next() {
		var pp models.ProductPart
		if err := rows.Scan(&pp.ID, &pp.PartID, &pp.IPN, &pp.Description, &pp.Amount); err != nil {
			return nil, err
		}
		items = append(items, pp)
	}
	return items, rows.Err()
}

func productComponents(ctx context.Context, q database.Querier, id int64) ([]models.ProductComponent, error) {
	rows, err := q.QueryContext(ctx, `SELECT pc.id, pc.component_id, c.description, pc.amount
		FROM product_components pc JOIN products c ON c.id = pc.component_id
		WHERE pc.product_id = ? ORDER BY c.description`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.ProductComponent{}
	for rows.Next() {
		var pc models.ProductComponent
		if err := rows.Scan(&pc.ID, &pc.ComponentID, &pc.Description, &pc.Amount); err != nil {
			return nil, err
		}
		items = append(items, pc)
	}
	return items, rows.Err()
}

func productStock(ctx context.Context, q database.Querier, id int64) ([]models.StockRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT s.id, s.location_id, l.name, s.stock FROM product_stock s
		JOIN locations l ON l.id = s.location_id WHERE s.product_id = ? ORDER BY l.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.StockRow{}
	for rows.Next() {
		var s models.StockRow
		if err := rows.Scan(&s.ID, &s.LocationID, &s.LocationName, &s.Stock); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// addComponent stores one component edge after checking it against the
// current structure. Call inside the transaction that writes the edge.
func addComponent(ctx context.Context, tx *sql.Tx, productID, componentID, amount int64) error {
	g, err := LoadGraph(ctx, tx)
	if err != nil {
		return err
	}
	if err := bom.WouldCreateCycle(g, productID, componentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO product_components (product_id, component_id, amount) VALUES (?, ?, ?)",
		productID, componentID, amount); err != nil {
		return fmt.Errorf("component %d: %w", componentID, err)
	}
	return nil
}

func addPart(ctx context.Context, tx *sql.Tx, productID, partID, amount int64) error {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO product_parts (product_id, part_id, amount) VALUES (?, ?, ?)",
		productID, partID, amount); err != nil {
		return fmt.Errorf("part %d: %w", partID, err)
	}
	return nil
}

func setStock(ctx context.Context, q database.Querier, productID, locationID, stock int64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO product_stock (product_id, location_id, stock) VALUES (?, ?, ?)
		ON CONFLICT(product_id, location_id) DO UPDATE SET stock = excluded.stock`,
		productID, locationID, stock)
	return err
}

// bomLines resolves exploded part quantities to display rows ordered by
// part number.
func bomLines(ctx context.Context, q database.Querier, parts map[int64]int64) ([]models.BOMLine, error) {
	lines := []models.BOMLine{}
	if len(parts) == 0 {
		return lines, nil
	}
	ids := make([]any, 0, len(parts))
	for id := range parts {
		ids = append(ids, id)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx, `SELECT p.id, p.ipn, p.description,
		COALESCE((SELECT GROUP_CONCAT(v.name, ', ') FROM part_manufacturers pm JOIN vendors v ON v.id = pm.vendor_id WHERE pm.part_id = p.id), ''),
		COALESCE((SELECT GROUP_CONCAT(pm.mpn, ', ') FROM part_manufacturers pm WHERE pm.part_id = p.id AND pm.mpn <> ''), '')
		FROM parts p WHERE p.id IN (`+marks+`) ORDER BY p.ipn`, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l models.BOMLine
		if err := rows.Scan(&l.PartID, &l.IPN, &l.Description, &l.Manufacturers, &l.MPNs); err != nil {
			return nil, err
		}
		l.Quantity = parts[l.PartID]
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
