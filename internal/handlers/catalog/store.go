package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/schema"
)

var (
	ErrDuplicateMPN  = errors.New("manufacturer part number already exists")
	ErrTypeNameTaken = errors.New("a type with that name already exists")
)

// loadFields returns the Type's fields in display order.
func loadFields(ctx context.Context, q database.Querier, typeID int64) ([]schema.Field, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, type_id, name, slot FROM fields WHERE type_id = ? ORDER BY position, id", typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fields := []schema.Field{}
	for rows.Next() {
		var f schema.Field
		var slot string
		if err := rows.Scan(&f.ID, &f.TypeID, &f.Name, &slot); err != nil {
			return nil, err
		}
		f.Slot = schema.Slot(slot)
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func loadType(ctx context.Context, q database.Querier, id int64) (schema.Type, error) {
	var t schema.Type
	err := q.QueryRowContext(ctx, "SELECT id, name, prefix FROM types WHERE id = ?", id).Scan(&t.ID, &t.Name, &t.Prefix)
	if err != nil {
		return t, err
	}
	t.Fields, err = loadFields(ctx, q, id)
	return t, err
}

// insertType stores t and its fields. Fields must already be validated.
func insertType(ctx context.Context, tx *sql.Tx, t schema.Type) (int64, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO types (name, prefix) VALUES (?, ?)", t.Name, t.Prefix)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrTypeNameTaken
		}
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, replaceFields(ctx, tx, id, t.Fields)
}

func replaceFields(ctx context.Context, tx *sql.Tx, typeID int64, fields []schema.Field) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE type_id = ?", typeID); err != nil {
		return err
	}
	for i, f := range fields {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fields (type_id, name, slot, position) VALUES (?, ?, ?, ?)",
			typeID, f.Name, string(f.Slot), i); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

func slotColumns() string {
	slots := schema.AllSlots()
	cols := make([]string, len(slots))
	for i, s := range slots {
		cols[i] = "p." + string(s)
	}
	return strings.Join(cols, ", ")
}

func slotArg(s schema.Slot, v string) any {
	if s.IsInteger() {
		if v == "" {
			return nil
		}
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return v
}

type rowScanner interface {
	Scan(dest ...any) error
}

const partSelect = `SELECT p.id, p.type_id, t.name, p.ipn, p.seq, p.description, p.datasheet_url, p.created_at, p.updated_at,
	(SELECT COALESCE(SUM(stock), 0) FROM part_stock WHERE part_id = p.id)`

func scanPart(row rowScanner) (models.Part, error) {
	var p models.Part
	slots := schema.AllSlots()
	chars := make([]string, len(slots))
	ints := make([]sql.NullInt64, len(slots))
	dest := []any{&p.ID, &p.TypeID, &p.TypeName, &p.IPN, &p.Seq, &p.Description, &p.DatasheetURL, &p.CreatedAt, &p.UpdatedAt, &p.TotalStock}
	for i, s := range slots {
		if s.IsInteger() {
			dest = append(dest, &ints[i])
		} else {
			dest = append(dest, &chars[i])
		}
	}
	if err := row.Scan(dest...); err != nil {
		return p, err
	}
	p.Values = schema.Values{}
	for i, s := range slots {
		switch {
		case s.IsInteger() && ints[i].Valid:
			p.Values[s] = strconv.FormatInt(ints[i].Int64, 10)
		case !s.IsInteger() && chars[i] != "":
			p.Values[s] = chars[i]
		}
	}
	return p, nil
}

func loadPart(ctx context.Context, q database.Querier, id int64) (models.Part, error) {
	p, err := scanPart(q.QueryRowContext(ctx,
		partSelect+", "+slotColumns()+" FROM parts p JOIN types t ON t.id = p.type_id WHERE p.id = ?", id))
	if err != nil {
		return p, err
	}
	fields, err := loadFields(ctx, q, p.TypeID)
	if err != nil {
		return p, err
	}
	p.Fields = schema.Label(p.Values, fields)
	if p.Manufacturers, err = partManufacturers(ctx, q, id); err != nil {
		return p, err
	}
	p.Stock, err = stockRows(ctx, q, "part_stock", "part_id", id)
	return p, err
}

func partManufacturers(ctx context.Context, q database.Querier, partID int64) ([]models.PartManufacturer, error) {
	rows, err := q.QueryContext(ctx, `SELECT pm.id, pm.part_id, pm.vendor_id, v.name, pm.mpn
		FROM part_manufacturers pm JOIN vendors v ON v.id = pm.vendor_id
		WHERE pm.part_id = ? ORDER BY pm.id`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.PartManufacturer{}
	for rows.Next() {
		var m models.PartManufacturer
		if err := rows.Scan(&m.ID, &m.PartID, &m.VendorID, &m.Vendor, &m.MPN); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// stockRows lists per-location stock from part_stock or product_stock.
func stockRows(ctx context.Context, q database.Querier, table, ownerCol string, ownerID int64) ([]models.StockRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT s.id, s.location_id, l.name, s.stock FROM `+table+` s
		JOIN locations l ON l.id = s.location_id WHERE s.`+ownerCol+` = ? ORDER BY l.name`, ownerID)
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

// newPart is what insertPart needs to store a part.
type newPart struct {
	TypeID       int64
	Description  string
	DatasheetURL string
	Values       schema.Values
}

// insertPart mints the next part number for the Type's prefix and stores
// the part. Types sharing a prefix share one number sequence.
func insertPart(ctx context.Context, tx *sql.Tx, np newPart) (int64, string, error) {
	var prefix string
	if err := tx.QueryRowContext(ctx, "SELECT prefix FROM types WHERE id = ?", np.TypeID).Scan(&prefix); err != nil {
		return 0, "", err
	}
	var current int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(p.seq), 0) FROM parts p JOIN types t ON t.id = p.type_id WHERE t.prefix = ?",
		prefix).Scan(&current); err != nil {
		return 0, "", err
	}
	seq := schema.NextPartNumber(current)
	ipn := schema.FormatPartNumber(prefix, seq)

	cols := []string{"type_id", "seq", "ipn", "description", "datasheet_url"}
	args := []any{np.TypeID, seq, ipn, np.Description, np.DatasheetURL}
	for slot, v := range np.Values {
		cols = append(cols, string(slot))
		args = append(args, slotArg(slot, v))
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	res, err := tx.ExecContext(ctx,
		"INSERT INTO parts ("+strings.Join(cols, ", ")+") VALUES ("+marks+")", args...)
	if err != nil {
		return 0, "", fmt.Errorf("insert part %s: %w", ipn, err)
	}
	id, _ := res.LastInsertId()
	return id, ipn, nil
}

// mpnTaken reports whether mpn is already attached to a part other than
// exceptPart.
func mpnTaken(ctx context.Context, q database.Querier, mpn string, exceptPart int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM part_manufacturers WHERE mpn = ? COLLATE NOCASE AND part_id <> ?",
		strings.TrimSpace(mpn), exceptPart).Scan(&n)
	return n > 0, err
}

func attachManufacturer(ctx context.Context, tx *sql.Tx, partID, vendorID int64, mpn string) (int64, error) {
	mpn = strings.TrimSpace(mpn)
	if mpn != "" {
		taken, err := mpnTaken(ctx, tx, mpn, partID)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, ErrDuplicateMPN
		}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO part_manufacturers (part_id, vendor_id, mpn) VALUES (?, ?, ?)", partID, vendorID, mpn)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// upsertStock sets the quantity held at one location.
func upsertStock(ctx context.Context, q database.Querier, table, ownerCol string, ownerID, locationID, stock int64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO `+table+` (`+ownerCol+`, location_id, stock) VALUES (?, ?, ?)
		ON CONFLICT(`+ownerCol+`, location_id) DO UPDATE SET stock = excluded.stock`,
		ownerID, locationID, stock)
	return err
}

// getOrCreateVendor finds a manufacturer by name, case insensitively.
func getOrCreateVendor(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM vendors WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO vendors (name, vendor_type) VALUES (?, 'manufacturer')", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
