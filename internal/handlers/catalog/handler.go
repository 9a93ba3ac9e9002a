// Package catalog serves part types, parts, manufacturers, locations and
// distributor imports.
package catalog

import (
	"database/sql"
	"strconv"

	"mrp/internal/audit"
	"mrp/internal/distributor"
)

// Handler holds dependencies for catalog handlers.
type Handler struct {
	DB    *sql.DB
	Audit *audit.Logger

	// Distributors by website key ("digikey", "mouser"). Missing entries
	// mean the integration is not configured.
	Distributors map[string]distributor.Client
	Tokens       distributor.TokenStore
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
