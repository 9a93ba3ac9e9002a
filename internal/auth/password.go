package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewUser holds the fields needed to create an account.
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// CreateUser inserts a user with a hashed password and an empty profile.
func CreateUser(ctx context.Context, db *sql.DB, u NewUser) (int64, error) {
	username := strings.TrimSpace(u.Username)
	if username == "" {
		return 0, errors.New("username is required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Role != RoleUser && u.Role != RoleManager {
		return 0, fmt.Errorf("unknown role %q", u.Role)
	}
	hash, err := HashPassword(u.Password)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, first_name, last_name, password_hash, role) VALUES (?, ?, ?, ?, ?)",
		username, u.FirstName, u.LastName, hash, u.Role)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", username, err)
	}
	id, _ := res.LastInsertId()
	if _, err := tx.ExecContext(ctx, "INSERT INTO profiles (user_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// CheckPassword verifies username/password against the stored hash. Failed
// attempts count towards a temporary lockout.
func CheckPassword(ctx context.Context, db *sql.DB, username, password string) (Identity, error) {
	var id Identity
	var hash string
	var active bool
	var lockedUntil int64
	err := db.QueryRowContext(ctx,
		"SELECT id, username, role, password_hash, active, locked_until FROM users WHERE username = ?",
		strings.TrimSpace(username)).Scan(&id.UserID, &id.Username, &id.Role, &hash, &active, &lockedUntil)
	if err == sql.ErrNoRows {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if !active {
		return Identity{}, ErrInvalidCredentials
	}
	if isLocked(lockedUntil) {
		return Identity{}, ErrAccountLocked
	}
	if lockedUntil > 0 {
		// lock expired, start counting again
		if err := resetFailedLogins(ctx, db, id.UserID); err != nil {
			return Identity{}, err
		}
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		if err := recordFailedLogin(ctx, db, id.UserID); err != nil {
			return Identity{}, err
		}
		return Identity{}, ErrInvalidCredentials
	}
	return id, resetFailedLogins(ctx, db, id.UserID)
}
