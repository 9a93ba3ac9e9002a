package timesheet

import (
	"context"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

type projectRequest struct {
	Name     string `json:"name"`
	Inactive bool   `json:"inactive"`
}

func (p *projectRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	p.Name = strings.TrimSpace(p.Name)
	validation.RequireField(ve, "name", p.Name)
	validation.ValidateMaxLength(ve, "name", p.Name, validation.MaxNameLength)
	return ve
}

type memberRequest struct {
	UserID int64 `json:"user_id"`
}

func loadProject(ctx context.Context, q database.Querier, id int64) (models.Project, error) {
	var p models.Project
	err := q.QueryRowContext(ctx, "SELECT id, name, inactive, created_at FROM projects WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Inactive, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	rows, err := q.QueryContext(ctx, "SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id", id)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	p.Members = []int64{}
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return p, err
		}
		p.Members = append(p.Members, uid)
	}
	return p, rows.Err()
}

// ListProjects returns projects by name. ?trackable=1 limits the list to
// active projects the caller belongs to.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	query := "SELECT id, name, inactive, created_at FROM projects"
	var args []any
	if r.URL.Query().Get("trackable") == "1" {
		query += " WHERE inactive = 0 AND id IN (SELECT project_id FROM project_members WHERE user_id = ?)"
		args = append(args, who.UserID)
	}
	rows, err := h.DB.QueryContext(r.Context(), query+" ORDER BY name", args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Inactive, &p.CreatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, p)
	}
	response.JSON(w, items)
}

// GetProject returns a project with its member ids.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request, id string) {
	projectID, ok := response.ID(w, id)
	if !ok {
		return
	}
	p, err := loadProject(r.Context(), h.DB, projectID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// CreateProject adds a project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	var req projectRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "INSERT INTO projects (name, inactive) VALUES (?, ?)", req.Name, req.Inactive)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.Audit.Record(ctx, audit.ActionCreate, "project", id, "Created project "+req.Name)
	p, err := loadProject(ctx, h.DB, id)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, p)
}

// UpdateProject renames a project or toggles inactive.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	projectID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req projectRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "UPDATE projects SET name = ?, inactive = ? WHERE id = ?", req.Name, req.Inactive, projectID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "project", projectID, "Updated project "+req.Name)
	p, err := loadProject(ctx, h.DB, projectID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// DeleteProject removes a project with its entries and memberships.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	projectID, ok := response.ID(w, id)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "project", projectID, "Deleted project "+id)
	response.JSON(w, map[string]string{"status": "deleted"})
}

// AddMember lets a user track time on a project.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	projectID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req memberRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireID(ve, "user_id", req.UserID)
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	_, err := h.DB.ExecContext(ctx, "INSERT INTO project_members (project_id, user_id) VALUES (?, ?)", projectID, req.UserID)
	switch {
	case database.IsUniqueViolation(err):
		response.Err(w, "user is already a member", http.StatusConflict)
		return
	case err != nil && strings.Contains(err.Error(), "FOREIGN KEY"):
		response.Err(w, "unknown project or user", http.StatusNotFound)
		return
	case err != nil:
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "project", projectID, "Added member "+itoa(req.UserID))
	p, err := loadProject(ctx, h.DB, projectID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, p)
}

// RemoveMember ends a user's membership.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request, id, userID string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	projectID, ok := response.ID(w, id)
	if !ok {
		return
	}
	uid, ok := response.ID(w, userID)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM project_members WHERE project_id = ? AND user_id = ?", projectID, uid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", http.StatusNotFound)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "project", projectID, "Removed member "+userID)
	response.JSON(w, map[string]string{"status": "removed"})
}
