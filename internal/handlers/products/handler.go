// Package products serves finished and intermediate products, their bills of
// materials and per-location stock.
package products

import (
	"database/sql"
	"time"

	"mrp/internal/audit"
)

// Handler holds dependencies for product handlers.
type Handler struct {
	DB    *sql.DB
	Audit *audit.Logger
}

var timeNow = time.Now
