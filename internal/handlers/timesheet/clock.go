package timesheet

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

type clockInRequest struct {
	ProjectID     int64      `json:"project_id"`
	StartTime     *time.Time `json:"start_time"`
	Activities    string     `json:"activities"`
	ActiveComment *string    `json:"active_comment"`
}

type clockOutRequest struct {
	EndTime    *time.Time `json:"end_time"`
	Activities *string    `json:"activities"`
}

// ClockIn opens an entry for the caller. A running entry is closed one
// second before the new start, with its own validation applied.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req clockInRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	req.Activities = strings.TrimSpace(req.Activities)
	ve := &validation.ValidationErrors{}
	validation.RequireID(ve, "project_id", req.ProjectID)
	validation.RequireField(ve, "activities", req.Activities)
	validation.ValidateMaxLength(ve, "activities", req.Activities, maxActivities)
	if req.ActiveComment != nil {
		validation.ValidateMaxLength(ve, "active_comment", *req.ActiveComment, maxActivities)
	}
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	start := h.now()
	if req.StartTime != nil {
		start = req.StartTime.UTC()
	}
	start = start.Truncate(time.Second)

	ctx := r.Context()
	var entryID int64
	var closed *models.Entry
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		if err := trackable(ctx, tx, req.ProjectID, who.UserID); err != nil {
			return err
		}
		active, err := activeEntry(ctx, tx, who.UserID)
		if err != nil {
			return err
		}
		if active != nil {
			if !start.After(active.StartTime) {
				return fmt.Errorf("%w: %s starting at %s", ErrStartBeforeActive,
					active.ProjectName, active.StartTime.Format("15:04:05"))
			}
			if err := closeEntry(ctx, tx, active, start.Add(-time.Second), req.ActiveComment); err != nil {
				return err
			}
			closed = active
		}
		entryID, err = insertEntry(ctx, tx, who.UserID, req.ProjectID, start, nil, req.Activities)
		return err
	})
	if err != nil {
		entryErr(w, err)
		return
	}
	if closed != nil {
		h.Audit.Record(ctx, audit.ActionClock, "entry", closed.ID, "Clocked out of "+closed.ProjectName)
	}

	e, err := loadEntry(ctx, h.DB, entryID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionClock, "entry", entryID, "Clocked into "+e.ProjectName)
	response.Created(w, e)
}

// ClockOut closes the caller's open entry at end_time, default now.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req clockOutRequest
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &req); err != nil {
			response.Err(w, "invalid body: "+err.Error(), 400)
			return
		}
	}
	if req.Activities != nil {
		trimmed := strings.TrimSpace(*req.Activities)
		req.Activities = &trimmed
		ve := &validation.ValidationErrors{}
		validation.ValidateMaxLength(ve, "activities", trimmed, maxActivities)
		if ve.HasErrors() {
			response.Invalid(w, ve)
			return
		}
	}
	end := h.now()
	if req.EndTime != nil {
		end = req.EndTime.UTC()
	}
	end = end.Truncate(time.Second)

	ctx := r.Context()
	var entryID int64
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		active, err := activeEntry(ctx, tx, who.UserID)
		if err != nil {
			return err
		}
		if active == nil {
			return ErrNotClockedIn
		}
		entryID = active.ID
		return closeEntry(ctx, tx, active, end, req.Activities)
	})
	if err != nil {
		entryErr(w, err)
		return
	}

	e, err := loadEntry(ctx, h.DB, entryID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionClock, "entry", entryID, "Clocked out of "+e.ProjectName)
	response.JSON(w, e)
}
