package timesheet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mrp/internal/database"
	"mrp/internal/models"
)

const entrySelect = `SELECT e.id, e.user_id, e.project_id, p.name, e.start_time, e.end_time, e.activities, e.hours
	FROM entries e JOIN projects p ON p.id = e.project_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.Entry, error) {
	var e models.Entry
	var start, hours string
	var end sql.NullString
	if err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.ProjectName, &start, &end, &e.Activities, &hours); err != nil {
		return e, err
	}
	var err error
	if e.StartTime, err = database.ParseTime(start); err != nil {
		return e, err
	}
	if end.Valid && end.String != "" {
		t, err := database.ParseTime(end.String)
		if err != nil {
			return e, err
		}
		e.EndTime = &t
	}
	if e.Hours, err = decimal.NewFromString(hours); err != nil {
		return e, fmt.Errorf("entry %d hours: %w", e.ID, err)
	}
	e.DeleteKey = DeleteKey(e.ID, e.EndTime != nil)
	return e, nil
}

func queryEntries(ctx context.Context, q database.Querier, where string, args ...any) ([]models.Entry, error) {
	rows, err := q.QueryContext(ctx, entrySelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func loadEntry(ctx context.Context, q database.Querier, id int64) (models.Entry, error) {
	return scanEntry(q.QueryRowContext(ctx, entrySelect+" WHERE e.id = ?", id))
}

// activeEntry returns the user's open entry, or nil.
func activeEntry(ctx context.Context, q database.Querier, userID int64) (*models.Entry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx, entrySelect+" WHERE e.user_id = ? AND e.end_time IS NULL", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// trackable checks the project is active and the user is a member.
func trackable(ctx context.Context, q database.Querier, projectID, userID int64) error {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE p.id = ? AND m.user_id = ? AND p.inactive = 0`, projectID, userID).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotTrackable
	}
	return nil
}

// checkOverlap fails with an *OverlapError when [start, end) intersects one
// of the user's other closed entries.
func checkOverlap(ctx context.Context, q database.Querier, userID, exceptID int64, start, end time.Time) error {
	clash, err := scanEntry(q.QueryRowContext(ctx, entrySelect+`
		WHERE e.user_id = ? AND e.id <> ? AND e.end_time IS NOT NULL
		AND e.start_time < ? AND e.end_time > ?
		ORDER BY e.start_time LIMIT 1`,
		userID, exceptID, database.FormatTime(end), database.FormatTime(start)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return &OverlapError{Project: clash.ProjectName, Start: clash.StartTime, End: *clash.EndTime}
}

// validateClosed applies every rule for a closed entry of userID.
func validateClosed(ctx context.Context, q database.Querier, userID, entryID int64, start, end time.Time) error {
	if err := CheckSpan(start, end); err != nil {
		return err
	}
	return checkOverlap(ctx, q, userID, entryID, start, end)
}

// closeEntry ends an open entry at end and stores its hours.
func closeEntry(ctx context.Context, tx *sql.Tx, e *models.Entry, end time.Time, activities *string) error {
	if err := validateClosed(ctx, tx, e.UserID, e.ID, e.StartTime, end); err != nil {
		return err
	}
	if activities != nil {
		e.Activities = *activities
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE entries SET end_time = ?, activities = ?, hours = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		database.FormatTime(end), e.Activities, EntryHours(e.StartTime, end).String(), e.ID)
	return err
}

func insertEntry(ctx context.Context, tx *sql.Tx, userID, projectID int64, start time.Time, end *time.Time, activities string) (int64, error) {
	var endArg any
	hours := decimal.Zero
	if end != nil {
		endArg = database.FormatTime(*end)
		hours = EntryHours(start, *end)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO entries (user_id, project_id, start_time, end_time, activities, hours) VALUES (?, ?, ?, ?, ?, ?)",
		userID, projectID, database.FormatTime(start), endArg, activities, hours.String())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrAlreadyClockedIn
		}
		return 0, err
	}
	return res.LastInsertId()
}

// sumHours adds entry hours in Go; hours are stored as decimal text.
func sumHours(entries []models.Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Hours)
	}
	return total
}
