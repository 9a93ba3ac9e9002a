package auth

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrp/internal/database"
)

func TestJWTRoundTrip(t *testing.T) {
	a := NewJWT("secret", time.Hour)
	token, err := a.Issue(Identity{UserID: 42, Username: "kim", Role: RoleManager})
	require.NoError(t, err)

	id, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Username: "kim", Role: RoleManager}, id)
	assert.True(t, id.IsManager())

	_, err = NewJWT("other", time.Hour).Parse(token)
	assert.Error(t, err, "token signed with another secret")

	_, err = NewJWT("secret", -time.Minute).Parse(mustIssue(t, NewJWT("secret", -time.Minute)))
	assert.Error(t, err, "expired token")
}

func mustIssue(t *testing.T, a *JWT) string {
	t.Helper()
	token, err := a.Issue(Identity{UserID: 1, Username: "x", Role: RoleUser})
	require.NoError(t, err)
	return token
}

func TestAuthenticateHeader(t *testing.T) {
	a := NewJWT("secret", time.Hour)
	req := httptest.NewRequest("GET", "/", nil)
	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, ErrNoToken)

	req.Header.Set("Authorization", "Bearer "+mustIssue(t, a))
	id, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "x", id.Username)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, Username(ctx))

	ctx = WithIdentity(ctx, Identity{UserID: 3, Username: "lee", Role: RoleUser})
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.False(t, id.IsManager())
	assert.Equal(t, "lee", Username(ctx))
}

func TestCreateUserAndLockout(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	_, err = CreateUser(ctx, db, NewUser{Username: "pat", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = CreateUser(ctx, db, NewUser{Username: "pat", Password: "password123", Role: "admin"})
	assert.Error(t, err)

	uid, err := CreateUser(ctx, db, NewUser{Username: "pat", Password: "password123"})
	require.NoError(t, err)
	var profiles int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM profiles WHERE user_id = ?", uid).Scan(&profiles))
	assert.Equal(t, 1, profiles)

	id, err := CheckPassword(ctx, db, " pat ", "password123")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, id.Role)

	_, err = CheckPassword(ctx, db, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	for i := 0; i < MaxFailedLogins; i++ {
		_, err = CheckPassword(ctx, db, "pat", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = CheckPassword(ctx, db, "pat", "password123")
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(LockoutDuration + time.Second)
	_, err = CheckPassword(ctx, db, "pat", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = CheckPassword(ctx, db, "pat", "password123")
	require.NoError(t, err, "one failure after the lock expired must not relock")
}
