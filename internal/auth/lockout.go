package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	MaxFailedLogins = 10
	LockoutDuration = 15 * time.Minute
)

var ErrAccountLocked = errors.New("account locked after repeated failed logins")

var timeNow = time.Now

func isLocked(lockedUntil int64) bool {
	return lockedUntil > timeNow().Unix()
}

// recordFailedLogin bumps the failure counter and locks the account once it
// reaches MaxFailedLogins.
func recordFailedLogin(ctx context.Context, db *sql.DB, userID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE users
		SET failed_logins = failed_logins + 1,
		    locked_until = CASE WHEN failed_logins + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ?`, MaxFailedLogins, timeNow().Add(LockoutDuration).Unix(), userID)
	return err
}

func resetFailedLogins(ctx context.Context, db *sql.DB, userID int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE users SET failed_logins = 0, locked_until = 0 WHERE id = ?", userID)
	return err
}
