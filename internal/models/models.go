package models

import (
	"time"

	"github.com/shopspring/decimal"

	"mrp/internal/schema"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Profile carries the payroll details of a user.
type Profile struct {
	UserID  int64  `json:"user_id"`
	SSN     string `json:"ssn"`
	Title   string `json:"title"`
	Payroll bool   `json:"payroll"`
}

type Vendor struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	VendorType string `json:"vendor_type"`
	Website    string `json:"website"`
	PartCount  int    `json:"part_count"`
	CreatedAt  string `json:"created_at"`
}

type Location struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// StockRow is the quantity of one item held at one location.
type StockRow struct {
	ID           int64  `json:"id"`
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location_name"`
	Stock        int64  `json:"stock"`
}

// PartManufacturer links a part to a manufacturer and its part number.
type PartManufacturer struct {
	ID       int64  `json:"id"`
	PartID   int64  `json:"part_id"`
	VendorID int64  `json:"vendor_id"`
	Vendor   string `json:"vendor"`
	MPN      string `json:"mpn"`
}

type Part struct {
	ID            int64                 `json:"id"`
	TypeID        int64                 `json:"type_id"`
	TypeName      string                `json:"type_name"`
	IPN           string                `json:"ipn"`
	Seq           int                   `json:"seq"`
	Description   string                `json:"description"`
	DatasheetURL  string                `json:"datasheet_url"`
	Values        schema.Values         `json:"values"`
	Fields        []schema.LabeledValue `json:"fields"`
	Manufacturers []PartManufacturer    `json:"manufacturers"`
	Stock         []StockRow            `json:"stock"`
	TotalStock    int64                 `json:"total_stock"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

type ProductPart struct {
	ID          int64  `json:"id"`
	PartID      int64  `json:"part_id"`
	IPN         string `json:"ipn"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type ProductComponent struct {
	ID          int64  `json:"id"`
	ComponentID int64  `json:"component_id"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type Product struct {
	ID          int64              `json:"id"`
	Description string             `json:"description"`
	URL         string             `json:"url"`
	Parts       []ProductPart      `json:"parts"`
	Components  []ProductComponent `json:"components"`
	Stock       []StockRow         `json:"stock"`
	TotalStock  int64              `json:"total_stock"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
}

// BOMLine is one flattened bill-of-materials row.
type BOMLine struct {
	PartID        int64  `json:"part_id"`
	IPN           string `json:"ipn"`
	Description   string `json:"description"`
	Manufacturers string `json:"manufacturers"`
	MPNs          string `json:"mpns"`
	Quantity      int64  `json:"quantity"`
}

type MOLine struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type ManufacturingOrder struct {
	ID        string   `json:"id"`
	Notes     string   `json:"notes"`
	CreatedBy string   `json:"created_by"`
	Lines     []MOLine `json:"lines"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// ShortfallLine is a shortfall row with the item's display label.
type ShortfallLine struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	Needed int64  `json:"needed"`
	OnHand int64  `json:"on_hand"`
	Short  int64  `json:"short"`
}

type ShortfallReport struct {
	OrderID  string          `json:"order_id"`
	Parts    []ShortfallLine `json:"parts"`
	Products []ShortfallLine `json:"products"`
	Short    bool            `json:"short"`
}

type Project struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Inactive  bool    `json:"inactive"`
	Members   []int64 `json:"members"`
	CreatedAt string  `json:"created_at"`
}

// Entry is a clocked work period. An open entry has no EndTime.
type Entry struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ProjectID   int64           `json:"project_id"`
	ProjectName string          `json:"project_name"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time"`
	Activities  string          `json:"activities"`
	Hours       decimal.Decimal `json:"hours"`
	DeleteKey   string          `json:"delete_key,omitempty"`
}

type ProjectHours struct {
	ID        int64           `json:"id"`
	WeekStart string          `json:"week_start"`
	ProjectID int64           `json:"project_id"`
	UserID    int64           `json:"user_id"`
	Hours     decimal.Decimal `json:"hours"`
	Published bool            `json:"published"`
}

type ToDo struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Priority    int    `json:"priority"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
}

type AuditEntry struct {
	ID        int64  `json:"id"`
	UserID    *int64 `json:"user_id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	RequestID string `json:"request_id"`
	CreatedAt string `json:"created_at"`
}
