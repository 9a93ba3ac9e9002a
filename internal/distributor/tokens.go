package distributor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mrp/internal/database"
)

// Tokens is an OAuth token pair.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore persists the rotating tokens of one distributor account.
type TokenStore interface {
	Load(ctx context.Context, name string) (Tokens, error)
	Save(ctx context.Context, name string, t Tokens) error
}

// SQLTokenStore keeps tokens in the distributor_tokens table.
type SQLTokenStore struct {
	DB *sql.DB
}

// Load returns the stored tokens, or zero Tokens when none were saved.
func (s *SQLTokenStore) Load(ctx context.Context, name string) (Tokens, error) {
	var t Tokens
	var expires sql.NullString
	err := s.DB.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, expires_at FROM distributor_tokens WHERE name = ?", name).
		Scan(&t.AccessToken, &t.RefreshToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Tokens{}, nil
	}
	if err != nil {
		return Tokens{}, err
	}
	if expires.Valid && expires.String != "" {
		t.ExpiresAt, _ = database.ParseTime(expires.String)
	}
	return t, nil
}

func (s *SQLTokenStore) Save(ctx context.Context, name string, t Tokens) error {
	var expires any
	if !t.ExpiresAt.IsZero() {
		expires = database.FormatTime(t.ExpiresAt)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO distributor_tokens (name, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, expires_at = excluded.expires_at, updated_at = CURRENT_TIMESTAMP`,
		name, t.AccessToken, t.RefreshToken, expires)
	return err
}
