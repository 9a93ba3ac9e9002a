package distributor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrp/internal/database"
)

func TestSQLTokenStore(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	defer db.Close()

	store := &SQLTokenStore{DB: db}
	ctx := context.Background()

	empty, err := store.Load(ctx, DigiKeyTokenName)
	require.NoError(t, err)
	assert.Empty(t, empty.RefreshToken)

	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, DigiKeyTokenName, Tokens{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: exp}))
	require.NoError(t, store.Save(ctx, DigiKeyTokenName, Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: exp}))

	got, err := store.Load(ctx, DigiKeyTokenName)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.ExpiresAt.Equal(exp))
}
