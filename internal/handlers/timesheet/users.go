package timesheet

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/database"
	"mrp/internal/models"
	"mrp/internal/response"
	"mrp/internal/validation"
)

// UserDetail is a user with payroll profile.
type UserDetail struct {
	models.User
	Profile models.Profile `json:"profile"`
}

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type profileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	SSN       string `json:"ssn"`
	Title     string `json:"title"`
	Payroll   bool   `json:"payroll"`
	Active    *bool  `json:"active"`
}

func (p *profileRequest) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.SSN = strings.TrimSpace(p.SSN)
	p.Title = strings.TrimSpace(p.Title)
	validation.ValidateMaxLength(ve, "first_name", p.FirstName, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "last_name", p.LastName, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "ssn", p.SSN, 4)
	validation.ValidateMaxLength(ve, "title", p.Title, 20)
	return ve
}

func loadUser(ctx context.Context, q database.Querier, id int64) (UserDetail, error) {
	var u UserDetail
	err := q.QueryRowContext(ctx, `SELECT u.id, u.username, u.first_name, u.last_name, u.role, u.active, u.created_at,
		COALESCE(p.ssn, ''), COALESCE(p.title, ''), COALESCE(p.payroll, 0)
		FROM users u LEFT JOIN profiles p ON p.user_id = u.id WHERE u.id = ?`, id).
		Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.Active, &u.CreatedAt,
			&u.Profile.SSN, &u.Profile.Title, &u.Profile.Payroll)
	u.Profile.UserID = u.ID
	return u, err
}

// ListUsers returns every user by last name.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	rows, err := h.DB.QueryContext(r.Context(),
		"SELECT id, username, first_name, last_name, role, active, created_at FROM users ORDER BY last_name, first_name, id")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, u)
	}
	response.JSON(w, items)
}

// GetUser returns a user. The profile is only shown to the user themself
// and to managers.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request, id string) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	userID, ok := response.ID(w, id)
	if !ok {
		return
	}
	u, err := loadUser(r.Context(), h.DB, userID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	if who.UserID != userID && !who.IsManager() {
		u.Profile = models.Profile{UserID: userID}
	}
	response.JSON(w, u)
}

// CreateUser adds an account with an empty profile.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	var req createUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", strings.TrimSpace(req.Username))
	if req.Role != "" {
		validation.ValidateEnum(ve, "role", req.Role, validation.ValidRoles)
	}
	if len(req.Password) < 8 {
		ve.AddErr("password", auth.ErrWeakPassword)
	}
	if ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	id, err := auth.CreateUser(ctx, h.DB, auth.NewUser{
		Username: req.Username, Password: req.Password,
		FirstName: strings.TrimSpace(req.FirstName), LastName: strings.TrimSpace(req.LastName),
		Role: req.Role,
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			response.Err(w, "username already exists", http.StatusConflict)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(ctx, audit.ActionCreate, "user", id, "Created user "+req.Username)
	u, err := loadUser(ctx, h.DB, id)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.Created(w, u)
}

// UpdateProfile sets a user's names and payroll details.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	userID, ok := response.ID(w, id)
	if !ok {
		return
	}
	var req profileRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body: "+err.Error(), 400)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		response.Invalid(w, ve)
		return
	}
	ctx := r.Context()
	err := database.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE users SET first_name = ?, last_name = ? WHERE id = ?",
			req.FirstName, req.LastName, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		if req.Active != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE users SET active = ? WHERE id = ?", *req.Active, userID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO profiles (user_id, ssn, title, payroll) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET ssn = excluded.ssn, title = excluded.title, payroll = excluded.payroll`,
			userID, req.SSN, req.Title, req.Payroll)
		return err
	})
	if err != nil {
		response.DBErr(w, err)
		return
	}
	h.Audit.Record(ctx, audit.ActionUpdate, "user", userID, "Updated profile")
	u, err := loadUser(ctx, h.DB, userID)
	if err != nil {
		response.DBErr(w, err)
		return
	}
	response.JSON(w, u)
}
