package timesheet

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

const maxActivities = 50

type entryRequest struct {
	UserID     int64      `json:"user_id"`
	ProjectID  int64      `json:"project_id"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	Activities string     `json:"activities"`
}

func (e *entryRequest) validate(needEnd bool) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	e.Activities = strings.TrimSpace(e.Activities)
	validation.RequireID(ve, "project_id", e.ProjectID)
	validation.RequireField(ve, "activities", e.Activities)
	validation.ValidateMaxLength(ve, "activities", e.Activities, maxActivities)
	if e.StartTime == nil {
		ve.Add("start_time", "please enter a valid start time")
	}
	if needEnd && e.EndTime == nil {
		ve.Add("end_time", "is required")
	}
	return ve
}

// entryErr maps entry rule failures to status codes.
func entryErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEndBeforeStart), errors.Is(err, ErrTooLong),
		errors.Is(err, ErrStartBeforeActive), errors.Is(err, ErrConflictsActive):
		response.Err(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrOverlap), errors.Is(err, ErrNotClockedIn), errors.Is(err, ErrAlreadyClockedIn):
		response.Err(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotTrackable):
		response.Err(w, err.Error(), http.StatusForbidden)
	default:
		response.DBErr(w, err)
	}
}

// ownEntry loads an entry the caller may act on.
func (h *Handler) ownEntry(w http.ResponseWriter, r *http.Request, id string) (models.Entry, auth.Identity, bool) {
	var e models.Entry
	who, ok := caller(w, r)
	if !ok {
		return e, who, false
	}
	entryID, ok := response.ID(w, id)
	if !ok {
		return e, who, false
	}
	e, err := loadEntry(r.Context(), h.DB, entryID)
	if err != nil {
		response.DBErr(w, err)
		return e, who, false
	}
	if e.UserID != who.UserID && !who.IsManager() {
		response.Err(w, "not found", http.StatusNotFound)
		return e, who, false
	}
	return e, who, true
}

// ListEntries returns a user's entries, newest first. ?from= and ?to=
// (YYYY-MM-DD) bound the start time.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	ve := &validation.ValidationErrors{}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	validation.ValidateDate(ve, "from", from)
	validation.ValidateDate(ve, "to", to)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	where := "WHERE e.user_id = ?"
	args := []any{userID}
	if from != "" {
		where += " AND e.start_time >= ?"
		args = append(args, from+" 00:00:00")
	}
	if to != "" {
		where += " AND e.start_time < date(?, '+1 day')"
		args = append(args, to)
	}
	page, limit, offset := response.Pagination(r, 100)
	var total int
	if err := h.DB.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM entries e "+where, args...).Scan(&total); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	entries, err := queryEntries(r.Context(), h.DB, where+" ORDER BY e.start_time DESC LIMIT ? OFFSET ?", append(args, limit, offset)...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONMeta(w, entries, total, page, limit)
}

// GetEntry returns an entry with its delete key.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request, id string) {
	e, _, ok := h.ownEntry(w, r, id)
	if !ok {
		return
	}
	response.JSON(w, e)
}

// ActiveEntry returns the user's open entry, or null.
func (h *Handler) ActiveEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	e, err := activeEntry(r.Context(), h.DB, userID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, e)
}

// CreateEntry records a closed period after the fact.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(true); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	userID := who.UserID
	if req.UserID != 0 && req.UserID != who.UserID {
		if !who.IsManager() {
			response.Err(w, "manager role required", http.StatusForbidden)
			return
		}
		userID = req.UserID
	}
	start, end := req.StartTime.UTC(), req.EndTime.UTC()

	ctx := r.Context()
	var entryID int64
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		if err := trackable(ctx, tx, req.ProjectID, userID); err != nil {
			return err
		}
		active, err := activeEntry(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active != nil && (start.After(active.StartTime) || end.After(active.StartTime)) {
			return ErrConflictsActive
		}
		if err := validateClosed(ctx, tx, userID, 0, start, end); err != nil {
			return err
		}
		entryID, err = insertEntry(ctx, tx, userID, req.ProjectID, start, &end, req.Activities)
		return err
	})
	if err != nil {
		entryErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "entry", entryID, "Created entry for user "+itoa(userID))

	e, err := loadEntry(ctx, h.DB, entryID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, e)
}

// UpdateEntry edits an entry. The open entry keeps running: its end time
// cannot be set here, use clock out.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request, id string) {
	current, _, ok := h.ownEntry(w, r, id)
	if !ok {
		return
	}
	var req entryRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	open := current.EndTime == nil
	if ve := req.validate(!open); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	start := req.StartTime.UTC()

	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		if req.ProjectID != current.ProjectID {
			if err := trackable(ctx, tx, req.ProjectID, current.UserID); err != nil {
				return err
			}
		}
		if open {
			// the open entry counts as running until now
			now := h.now()
			if start.After(now) {
				return ErrEndBeforeStart
			}
			if err := checkOverlap(ctx, tx, current.UserID, current.ID, start, now); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE entries SET project_id = ?, start_time = ?, activities = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				req.ProjectID, database.FormatTime(start), req.Activities, current.ID)
			return err
		}

		end := req.EndTime.UTC()
		active, err := activeEntry(ctx, tx, current.UserID)
		if err != nil {
			return err
		}
		if active != nil && (start.After(active.StartTime) || end.After(active.StartTime)) {
			return ErrConflictsActive
		}
		if err := validateClosed(ctx, tx, current.UserID, current.ID, start, end); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE entries SET project_id = ?, start_time = ?, end_time = ?, activities = ?, hours = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			req.ProjectID, database.FormatTime(start), database.FormatTime(end), req.Activities,
			EntryHours(start, end).String(), current.ID)
		return err
	})
	if err != nil {
		entryErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "entry", current.ID, "Updated entry")

	e, err := loadEntry(ctx, h.DB, current.ID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, e)
}

// DeleteEntry removes an entry when ?key= matches its delete key.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request, id string) {
	e, _, ok := h.ownEntry(w, r, id)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" || key != e.DeleteKey {
		response.Err(w, "you are not authorized to delete this entry", http.StatusForbidden)
		return
	}
	ctx := r.Context()
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", e.ID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "entry", e.ID, "Deleted entry on "+e.ProjectName)
	response.JSON(w, map[string]string{"status": "deleted"})
}
