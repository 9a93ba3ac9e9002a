package timesheet

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

var minAssignment = decimal.New(1, -5)

type hoursRequest struct {
	WeekStart string          `json:"week_start"`
	ProjectID int64           `json:"project_id"`
	UserID    int64           `json:"user_id"`
	Hours     decimal.Decimal `json:"hours"`
	Published bool            `json:"published"`
}

func (p *hoursRequest) validate() (time.Time, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "week_start", p.WeekStart)
	validation.ValidateDate(ve, "week_start", p.WeekStart)
	validation.RequireID(ve, "project_id", p.ProjectID)
	validation.RequireID(ve, "user_id", p.UserID)
	if p.Hours.LessThan(minAssignment) {
		ve.Add("hours", "must be at least 0.00001")
	}
	day, _ := time.Parse(database.DateLayout, p.WeekStart)
	return WeekStart(day), ve
}

// parseWeek reads ?week_start=, defaulting to the current week, and
// normalizes it to its Sunday.
func (h *Handler) parseWeek(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("week_start")
	if raw == "" {
		return WeekStart(h.now()), true
	}
	day, err := time.Parse(database.DateLayout, raw)
	if err != nil {
		response.Err(w, "week_start must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, false
	}
	return WeekStart(day), true
}

func scanHours(rows interface{ Scan(...any) error }) (models.ProjectHours, error) {
	var ph models.ProjectHours
	var week, hours string
	if err := rows.Scan(&ph.ID, &week, &ph.ProjectID, &ph.UserID, &hours, &ph.Published); err != nil {
		return ph, err
	}
	ph.WeekStart = week
	if len(week) >= 10 {
		ph.WeekStart = week[:10]
	}
	var err error
	ph.Hours, err = decimal.NewFromString(hours)
	return ph, err
}

func weekAssignments(ctx context.Context, q database.Querier, week time.Time, userID int64, publishedOnly bool) ([]models.ProjectHours, error) {
	query := "SELECT id, week_start, project_id, user_id, hours, published FROM project_hours WHERE week_start = ?"
	args := []any{week.Format(database.DateLayout)}
	if userID != 0 {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if publishedOnly {
		query += " AND published = 1"
	}
	rows, err := q.QueryContext(ctx, query+" ORDER BY user_id, project_id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.ProjectHours{}
	for rows.Next() {
		ph, err := scanHours(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ph)
	}
	return items, rows.Err()
}

// ListProjectHours returns the assignments of one week. Only managers see
// unpublished rows.
func (h *Handler) ListProjectHours(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	week, ok := h.parseWeek(w, r)
	if !ok {
		return
	}
	items, err := weekAssignments(r.Context(), h.DB, week, 0, !who.IsManager())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}

// CreateProjectHours assigns hours for one user, project and week.
func (h *Handler) CreateProjectHours(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	var req hoursRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	week, ve := req.validate()
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx,
		"INSERT INTO project_hours (week_start, project_id, user_id, hours, published) VALUES (?, ?, ?, ?, ?)",
		week.Format(database.DateLayout), req.ProjectID, req.UserID, req.Hours.String(), req.Published)
	if err != nil {
		hoursErr(w, err)
		return
	}
	id, _ := res.LastInsertId()
	h.Audit.Record(ctx, audit.ActionCreate, "project_hours", id, "Assigned "+req.Hours.String()+" hours")
	h.writeHours(w, r, id, true)
}

// UpdateProjectHours replaces an assignment.
func (h *Handler) UpdateProjectHours(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	rowID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req hoursRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	week, ve := req.validate()
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx,
		"UPDATE project_hours SET week_start = ?, project_id = ?, user_id = ?, hours = ?, published = ? WHERE id = ?",
		week.Format(database.DateLayout), req.ProjectID, req.UserID, req.Hours.String(), req.Published, rowID)
	if err != nil {
		hoursErr(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "project_hours", rowID, "Updated assignment")
	h.writeHours(w, r, rowID, false)
}

// DeleteProjectHours removes an assignment.
func (h *Handler) DeleteProjectHours(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	rowID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM project_hours WHERE id = ?", rowID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "project_hours", rowID, "Deleted assignment")
	response.JSON(w, map[string]string{"status": "deleted"})
}

// PublishWeek publishes every assignment of ?week_start=.
func (h *Handler) PublishWeek(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	week, ok := h.parseWeek(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	day := week.Format(database.DateLayout)
	if _, err := h.DB.ExecContext(ctx, "UPDATE project_hours SET published = 1 WHERE week_start = ?", day); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "project_hours", day, "Published week of "+day)
	items, err := weekAssignments(ctx, h.DB, week, 0, false)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}

func (h *Handler) writeHours(w http.ResponseWriter, r *http.Request, id int64, created bool) {
	ph, err := scanHours(h.DB.QueryRowContext(r.Context(),
		"SELECT id, week_start, project_id, user_id, hours, published FROM project_hours WHERE id = ?", id))
	if err != nil {
		response.DBErr(w, err)
		return
	}
	if created {
		response.Created(w, ph)
		return
	}
	response.JSON(w, ph)
}

func hoursErr(w http.ResponseWriter, err error) {
	switch {
	case database.IsUniqueViolation(err):
		response.Err(w, "hours for that week, project and user already exist", http.StatusConflict)
	case strings.Contains(err.Error(), "FOREIGN KEY"):
		response.Err(w, "unknown project or user", http.StatusNotFound)
	default:
		response.Err(w, err.Error(), 500)
	}
}
