package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout is how timestamps are stored. All values are UTC so that string
// comparison in SQL orders them correctly.
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout is used for week starts and other plain dates.
const DateLayout = "2006-01-02"

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the SQLite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; readers share the rest of the pool under WAL.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// FormatTime renders t in the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. Values written by CURRENT_TIMESTAMP and
// RFC 3339 strings are accepted too.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NextID returns the next human readable id for table, shaped PREFIX-YYYY-NNNN.
// Call it inside the transaction that inserts the row.
func NextID(ctx context.Context, q Querier, prefix, table string, digits int) (string, error) {
	year := time.Now().UTC().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("next id for %s: %w", table, err)
	}

	next := 1
	if maxID.Valid {
		parts := strings.Split(maxID.String, "-")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next), nil
}

// WithTx runs fn in a transaction, rolling back if fn returns an error.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
