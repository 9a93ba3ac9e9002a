package timesheet

import (
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

type todoRequest struct {
	Priority    int    `json:"priority"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func (t *todoRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	t.Description = strings.TrimSpace(t.Description)
	validation.RequireField(ve, "description", t.Description)
	validation.ValidateMaxLength(ve, "description", t.Description, 50)
	return ve
}

const todoSelect = "SELECT id, user_id, priority, description, completed, created_at FROM todos"

// ListTodos returns a user's to-dos by priority. ?completed=0|1 filters.
func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	query := todoSelect + " WHERE user_id = ?"
	args := []any{userID}
	switch r.URL.Query().Get("completed") {
	case "0":
		query += " AND completed = 0"
	case "1":
		query += " AND completed = 1"
	}
	rows, err := h.DB.QueryContext(r.Context(), query+" ORDER BY priority, id", args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.ToDo{}
	for rows.Next() {
		var t models.ToDo
		if err := rows.Scan(&t.ID, &t.UserID, &t.Priority, &t.Description, &t.Completed, &t.CreatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, t)
	}
	response.JSON(w, items)
}

// CreateTodo adds a to-do for the caller, or for ?user_id= when a manager.
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	var req todoRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	res, err := h.DB.ExecContext(ctx, "INSERT INTO todos (user_id, priority, description, completed) VALUES (?, ?, ?, ?)",
		userID, req.Priority, req.Description, req.Completed)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.Audit.Record(ctx, audit.ActionCreate, "todo", id, req.Description)
	h.writeTodo(w, r, id, true)
}

// UpdateTodo replaces a to-do's fields.
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request, id string) {
	t, ok := h.ownTodo(w, r, id)
	if !ok {
		return
	}
	var req todoRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	if _, err := h.DB.ExecContext(ctx, "UPDATE todos SET priority = ?, description = ?, completed = ? WHERE id = ?",
		req.Priority, req.Description, req.Completed, t.ID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "todo", t.ID, req.Description)
	h.writeTodo(w, r, t.ID, false)
}

// ToggleTodo flips the completed flag.
func (h *Handler) ToggleTodo(w http.ResponseWriter, r *http.Request, id string) {
	t, ok := h.ownTodo(w, r, id)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.DB.ExecContext(ctx, "UPDATE todos SET completed = NOT completed WHERE id = ?", t.ID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "todo", t.ID, "Toggled "+t.Description)
	h.writeTodo(w, r, t.ID, false)
}

// DeleteTodo removes a to-do.
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request, id string) {
	t, ok := h.ownTodo(w, r, id)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.DB.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", t.ID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionDelete, "todo", t.ID, t.Description)
	response.JSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) ownTodo(w http.ResponseWriter, r *http.Request, id string) (models.ToDo, bool) {
	var t models.ToDo
	who, ok := caller(w, r)
	if !ok {
		return t, false
	}
	todoID, ok := response.ID(w, id)
	if !ok {
		return t, false
	}
	err := h.DB.QueryRowContext(r.Context(), todoSelect+" WHERE id = ?", todoID).
		Scan(&t.ID, &t.UserID, &t.Priority, &t.Description, &t.Completed, &t.CreatedAt)
	if err != nil {
		response.DBErr(w, err)
		return t, false
	}
	if t.UserID != who.UserID && !who.IsManager() {
		response.Err(w, "not found", http.StatusNotFound)
		return t, false
	}
	return t, true
}

func (h *Handler) writeTodo(w http.ResponseWriter, r *http.Request, id int64, created bool) {
	var t models.ToDo
	err := h.DB.QueryRowContext(r.Context(), todoSelect+" WHERE id = ?", id).
		Scan(&t.ID, &t.UserID, &t.Priority, &t.Description, &t.Completed, &t.CreatedAt)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	if created {
		response.Created(w, t)
		return
	}
	response.JSON(w, t)
}
