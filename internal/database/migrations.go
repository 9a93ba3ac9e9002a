package database

import (
	"database/sql"
	"fmt"
	"strings"

	"mrp/internal/schema"
)

func partsTable() string {
	var cols []string
	for _, s := range schema.AllSlots() {
		if s.IsInteger() {
			cols = append(cols, string(s)+" INTEGER")
		} else {
			cols = append(cols, string(s)+" TEXT NOT NULL DEFAULT ''")
		}
	}
	return `CREATE TABLE IF NOT EXISTS parts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type_id INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		ipn TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		datasheet_url TEXT NOT NULL DEFAULT '',
		` + strings.Join(cols, ",\n\t\t") + `,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(type_id, seq)
	)`
}

// Migrate creates every table and index that does not exist yet.
func Migrate(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user','manager')),
			active INTEGER NOT NULL DEFAULT 1,
			failed_logins INTEGER NOT NULL DEFAULT 0,
			locked_until INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			ssn TEXT NOT NULL DEFAULT '' CHECK(length(ssn) <= 4),
			title TEXT NOT NULL DEFAULT '',
			payroll INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			username TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS distributor_tokens (
			name TEXT PRIMARY KEY,
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			prefix TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fields (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type_id INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slot TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		partsTable(),
		`CREATE TABLE IF NOT EXISTS vendors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			vendor_type TEXT NOT NULL DEFAULT 'manufacturer' CHECK(vendor_type IN ('manufacturer','supplier')),
			website TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS part_manufacturers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
			vendor_id INTEGER NOT NULL REFERENCES vendors(id) ON DELETE CASCADE,
			mpn TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS part_stock (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
			location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
			stock INTEGER NOT NULL DEFAULT 0,
			UNIQUE(part_id, location_id)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS product_parts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
			amount INTEGER NOT NULL CHECK(amount > 0)
		)`,
		`CREATE TABLE IF NOT EXISTS product_components (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			component_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			amount INTEGER NOT NULL CHECK(amount > 0),
			CHECK(product_id <> component_id)
		)`,
		`CREATE TABLE IF NOT EXISTS product_stock (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
			stock INTEGER NOT NULL DEFAULT 0,
			UNIQUE(product_id, location_id)
		)`,
		`CREATE TABLE IF NOT EXISTS manufacturing_orders (
			id TEXT PRIMARY KEY,
			notes TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mo_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mo_id TEXT NOT NULL REFERENCES manufacturing_orders(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
			amount INTEGER NOT NULL CHECK(amount > 0)
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			inactive INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS project_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE(user_id, project_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			activities TEXT NOT NULL DEFAULT '',
			hours TEXT NOT NULL DEFAULT '0',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS project_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			week_start DATE NOT NULL,
			project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			hours TEXT NOT NULL DEFAULT '0',
			published INTEGER NOT NULL DEFAULT 0,
			UNIQUE(week_start, project_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			priority INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_fields_type ON fields(type_id)",
		"CREATE INDEX IF NOT EXISTS idx_parts_type ON parts(type_id)",
		"CREATE INDEX IF NOT EXISTS idx_part_manufacturers_part ON part_manufacturers(part_id)",
		"CREATE INDEX IF NOT EXISTS idx_part_manufacturers_mpn ON part_manufacturers(mpn)",
		"CREATE INDEX IF NOT EXISTS idx_product_parts_product ON product_parts(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_product_components_product ON product_components(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_mo_lines_mo ON mo_lines(mo_id)",
		"CREATE INDEX IF NOT EXISTS idx_entries_user_start ON entries(user_id, start_time)",
		"CREATE INDEX IF NOT EXISTS idx_entries_end_time ON entries(end_time)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_one_active ON entries(user_id) WHERE end_time IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_module ON audit_log(module, record_id)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	return nil
}
