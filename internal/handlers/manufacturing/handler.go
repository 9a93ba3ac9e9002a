// Package manufacturing serves manufacturing orders and their shortfall
// reports.
package manufacturing

import (
	"database/sql"
	"time"

	"mrp/internal/audit"
)

// Handler holds dependencies for manufacturing handlers.
type Handler struct {
	DB    *sql.DB
	Audit *audit.Logger
}

var timeNow = time.Now
