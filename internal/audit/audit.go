package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mrp/internal/auth"
	"mrp/internal/models"
	"mrp/internal/websocket"
)

// Action constants.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionMerge  = "merge"
	ActionImport = "import"
	ActionExport = "export"
	ActionClock  = "clock"
)

// Logger writes the audit trail and announces each change on the hub.
type Logger struct {
	DB  *sql.DB
	Hub *websocket.Hub
	Log logrus.FieldLogger
}

// Record stores one audit row for the caller in ctx and broadcasts it.
// Failures are logged, never returned: the change itself already happened.
func (l *Logger) Record(ctx context.Context, action, module string, recordID any, summary string) {
	if l == nil {
		return
	}
	id := toString(recordID)
	var userID *int64
	username := "system"
	if ident, ok := auth.FromContext(ctx); ok {
		userID = &ident.UserID
		username = ident.Username
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	_, err := l.DB.ExecContext(ctx,
		"INSERT INTO audit_log (user_id, username, action, module, record_id, summary, request_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		userID, username, action, module, id, summary, requestID)
	if err != nil && l.Log != nil {
		l.Log.WithError(err).WithFields(logrus.Fields{
			"module":    module,
			"record_id": id,
		}).Error("audit log write failed")
	}
	if l.Hub != nil && action != ActionExport {
		l.Hub.BroadcastChange(module, action, recordID)
	}
}

// List returns the newest audit rows, optionally for one module and record.
func List(ctx context.Context, db *sql.DB, module, recordID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := "SELECT id, user_id, username, action, module, record_id, summary, request_id, created_at FROM audit_log WHERE 1=1"
	var args []any
	if module != "" {
		query += " AND module = ?"
		args = append(args, module)
	}
	if recordID != "" {
		query += " AND record_id = ?"
		args = append(args, recordID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var userID sql.NullInt64
		if err := rows.Scan(&e.ID, &userID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
