package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrp/internal/database"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "mrp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrp.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.Open(path)
	require.NoError(t, err, "reopening must not fail on existing schema")
	defer db.Close()

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNextID(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	year := time.Now().UTC().Format("2006")

	id, err := database.NextID(ctx, db, "MO", "manufacturing_orders", 4)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("MO-%s-0001", year), id)

	_, err = db.Exec("INSERT INTO manufacturing_orders (id) VALUES (?)", fmt.Sprintf("MO-%s-0041", year))
	require.NoError(t, err)
	id, err = database.NextID(ctx, db, "MO", "manufacturing_orders", 4)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("MO-%s-0042", year), id)
}

func TestWithTxRollsBack(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")
	err := database.WithTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO manufacturing_orders (id) VALUES ('MO-X')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM manufacturing_orders").Scan(&n))
	assert.Zero(t, n)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec("INSERT INTO manufacturing_orders (id) VALUES ('MO-1')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO manufacturing_orders (id) VALUES ('MO-1')")
	assert.True(t, database.IsUniqueViolation(err))
	assert.False(t, database.IsUniqueViolation(nil))
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.FixedZone("EDT", -4*3600))
	s := database.FormatTime(at)
	assert.Equal(t, "2026-10-14 13:30:00", s)

	back, err := database.ParseTime(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(at))

	back, err = database.ParseTime("2026-10-14T13:30:00Z")
	require.NoError(t, err)
	assert.True(t, back.Equal(at))

	_, err = database.ParseTime("yesterday")
	assert.Error(t, err)
}
