package timesheet

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxEntrySpan is the longest single entry.
const MaxEntrySpan = 12 * time.Hour

var (
	ErrEndBeforeStart    = errors.New("ending time must exceed the starting time")
	ErrTooLong           = errors.New("ending time exceeds starting time by 12 hours or more")
	ErrOverlap           = errors.New("entry overlaps another entry")
	ErrNotClockedIn      = errors.New("not clocked in")
	ErrAlreadyClockedIn  = errors.New("already clocked in")
	ErrStartBeforeActive = errors.New("the start time is on or before the current entry")
	ErrConflictsActive   = errors.New("the start time or end time conflict with the active entry")
	ErrNotTrackable      = errors.New("project is not active or you are not a member")
)

// OverlapError names the entry a new period collides with.
type OverlapError struct {
	Project string
	Start   time.Time
	End     time.Time
}

func (e *OverlapError) Error() string {
	layout := "15:04:05"
	if e.Start.YearDay() != e.End.YearDay() || e.Start.Year() != e.End.Year() {
		layout = "15:04:05 on 01/02/2006"
	}
	return fmt.Sprintf("start time overlaps with %s from %s to %s",
		e.Project, e.Start.Format(layout), e.End.Format(layout))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// CheckSpan validates a closed period on its own.
func CheckSpan(start, end time.Time) error {
	if !end.After(start) {
		return ErrEndBeforeStart
	}
	if end.Sub(start) > MaxEntrySpan {
		return fmt.Errorf("%s to %s: %w", start.Format("01/02/2006 15:04:05"), end.Format("01/02/2006 15:04:05"), ErrTooLong)
	}
	return nil
}

// Overlaps reports whether two closed periods share any instant. Touching
// endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return bStart.Before(aEnd) && bEnd.After(aStart)
}

// EntryHours is the length of a period in hours, rounded to 5 places.
func EntryHours(start, end time.Time) decimal.Decimal {
	secs := int64(end.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return decimal.NewFromInt(secs).Div(decimal.NewFromInt(3600)).Round(5)
}

// DeleteKey is the token a client must echo back to delete an entry. It
// changes when the entry is closed.
func DeleteKey(id int64, closed bool) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d-%t-timesheet-entry", id, closed)))
	return hex.EncodeToString(sum[:])
}

// WeekStart returns midnight UTC of the Sunday on or before t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// MonthStart returns midnight UTC of the first of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
