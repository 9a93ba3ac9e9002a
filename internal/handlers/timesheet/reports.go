package timesheet

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"mrp/internal/audit"
	"mrp/internal/database"
	"mrp/internal/handlers/common"
	"mrp/internal/models"
	"mrp/internal/response"
)

// PayrollHeader is the column layout expected by the payroll provider.
var PayrollHeader = []string{
	"last_name", "first_name", "ssn", "title",
	"regular_hours", "overtime_hours", "double_overtime_hours",
	"bonus", "commision", "paycheck_tips", "cash_tips",
	"correction_payment", "reimbursement", "personal_note",
}

const defaultCompany = "engimusing-llc"

type ProjectTotal struct {
	ProjectID int64           `json:"project_id"`
	Project   string          `json:"project"`
	Hours     decimal.Decimal `json:"hours"`
}

type UserTotal struct {
	UserID    int64           `json:"user_id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Hours     decimal.Decimal `json:"hours"`
}

// WeekSheet is one user's closed entries for a Sunday-start week.
type WeekSheet struct {
	UserID    int64                 `json:"user_id"`
	WeekStart string                `json:"week_start"`
	Entries   []models.Entry        `json:"entries"`
	Projects  []ProjectTotal        `json:"projects"`
	Assigned  []models.ProjectHours `json:"assigned"`
	Total     decimal.Decimal       `json:"total"`
}

// ProjectSheet is a project's closed entries for one month.
type ProjectSheet struct {
	ProjectID int64           `json:"project_id"`
	Project   string          `json:"project"`
	Month     string          `json:"month"`
	Entries   []models.Entry  `json:"entries"`
	Users     []UserTotal     `json:"users"`
	Total     decimal.Decimal `json:"total"`
}

func projectTotals(entries []models.Entry) []ProjectTotal {
	byID := map[int64]*ProjectTotal{}
	var order []int64
	for _, e := range entries {
		pt, ok := byID[e.ProjectID]
		if !ok {
			pt = &ProjectTotal{ProjectID: e.ProjectID, Project: e.ProjectName, Hours: decimal.Zero}
			byID[e.ProjectID] = pt
			order = append(order, e.ProjectID)
		}
		pt.Hours = pt.Hours.Add(e.Hours)
	}
	totals := make([]ProjectTotal, 0, len(order))
	for _, id := range order {
		totals = append(totals, *byID[id])
	}
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].Project < totals[j].Project })
	return totals
}

// WeekTimesheet reports ?user_id= (default caller) for ?week_start=.
func (h *Handler) WeekTimesheet(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	userID, ok := subject(w, r)
	if !ok {
		return
	}
	week, ok := h.parseWeek(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	entries, err := queryEntries(ctx, h.DB,
		"WHERE e.user_id = ? AND e.end_time IS NOT NULL AND e.end_time >= ? AND e.end_time < ? ORDER BY e.start_time",
		userID, database.FormatTime(week), database.FormatTime(week.AddDate(0, 0, 7)))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	assigned, err := weekAssignments(ctx, h.DB, week, userID, !who.IsManager())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, WeekSheet{
		UserID:    userID,
		WeekStart: week.Format(database.DateLayout),
		Entries:   entries,
		Projects:  projectTotals(entries),
		Assigned:  assigned,
		Total:     sumHours(entries),
	})
}

func (h *Handler) projectSheet(w http.ResponseWriter, r *http.Request, id string) (ProjectSheet, bool) {
	var sheet ProjectSheet
	if _, ok := requireManager(w, r); !ok {
		return sheet, false
	}
	projectID, ok := response.ID(w, id)
	if !ok {
		return sheet, false
	}
	month := MonthStart(h.now())
	if raw := r.URL.Query().Get("month"); raw != "" {
		t, err := time.Parse("2006-01", raw)
		if err != nil {
			response.Err(w, "month must be YYYY-MM", http.StatusBadRequest)
			return sheet, false
		}
		month = t.UTC()
	}
	ctx := r.Context()
	p, err := loadProject(ctx, h.DB, projectID)
	if err != nil {
		response.DBErr(w, err)
		return sheet, false
	}
	entries, err := queryEntries(ctx, h.DB,
		"WHERE e.project_id = ? AND e.end_time IS NOT NULL AND e.start_time >= ? AND e.start_time < ? ORDER BY e.start_time",
		projectID, database.FormatTime(month), database.FormatTime(month.AddDate(0, 1, 0)))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return sheet, false
	}

	names := map[int64]UserTotal{}
	rows, err := h.DB.QueryContext(ctx, "SELECT id, first_name, last_name FROM users")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return sheet, false
	}
	defer rows.Close()
	for rows.Next() {
		var u UserTotal
		if err := rows.Scan(&u.UserID, &u.FirstName, &u.LastName); err != nil {
			response.Err(w, err.Error(), 500)
			return sheet, false
		}
		u.Hours = decimal.Zero
		names[u.UserID] = u
	}

	byUser := map[int64]UserTotal{}
	for _, e := range entries {
		u, ok := byUser[e.UserID]
		if !ok {
			u = names[e.UserID]
			u.UserID = e.UserID
		}
		u.Hours = u.Hours.Add(e.Hours)
		byUser[e.UserID] = u
	}
	users := make([]UserTotal, 0, len(byUser))
	for _, u := range byUser {
		u.Hours = u.Hours.Round(2)
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].Hours.Equal(users[j].Hours) {
			return users[i].Hours.GreaterThan(users[j].Hours)
		}
		return users[i].UserID < users[j].UserID
	})

	return ProjectSheet{
		ProjectID: p.ID,
		Project:   p.Name,
		Month:     month.Format("2006-01"),
		Entries:   entries,
		Users:     users,
		Total:     sumHours(entries).Round(2),
	}, true
}

// ProjectTimesheet reports a project's hours for ?month=YYYY-MM.
func (h *Handler) ProjectTimesheet(w http.ResponseWriter, r *http.Request, id string) {
	sheet, ok := h.projectSheet(w, r, id)
	if !ok {
		return
	}
	response.JSON(w, sheet)
}

// ProjectTimesheetCSV is the per-entry CSV of ProjectTimesheet.
func (h *Handler) ProjectTimesheetCSV(w http.ResponseWriter, r *http.Request, id string) {
	sheet, ok := h.projectSheet(w, r, id)
	if !ok {
		return
	}
	names := map[int64]string{}
	for _, u := range sheet.Users {
		names[u.UserID] = u.FirstName + " " + u.LastName
	}
	data := make([][]string, 0, len(sheet.Entries)+1)
	for _, e := range sheet.Entries {
		data = append(data, []string{
			names[e.UserID],
			database.FormatTime(e.StartTime),
			database.FormatTime(*e.EndTime),
			e.Hours.StringFixed(2),
			e.Activities,
		})
	}
	data = append(data, []string{"Total", "", "", sheet.Total.StringFixed(2), ""})
	h.Audit.Record(r.Context(), audit.ActionExport, "project", sheet.ProjectID, "Exported timesheet for "+sheet.Month)
	common.ExportCSV(w, fmt.Sprintf("project-%d-%s.csv", sheet.ProjectID, sheet.Month),
		[]string{"User", "Start", "End", "Hours", "Activities"}, data)
}

// PayrollRow is one payroll user with total hours for the week.
type PayrollRow struct {
	LastName  string
	FirstName string
	SSN       string
	Title     string
	Hours     decimal.Decimal
}

// Record renders the row under PayrollHeader. All hours go to regular_hours.
func (p PayrollRow) Record() []string {
	rec := make([]string, len(PayrollHeader))
	rec[0], rec[1], rec[2], rec[3] = p.LastName, p.FirstName, p.SSN, p.Title
	rec[4] = p.Hours.StringFixed(2)
	return rec
}

// scanPayrollUsers reads (id, last, first, ssn, title) rows and closes them.
func scanPayrollUsers(rows *sql.Rows) ([]int64, []PayrollRow, error) {
	defer rows.Close()
	var ids []int64
	var payroll []PayrollRow
	for rows.Next() {
		var id int64
		var p PayrollRow
		if err := rows.Scan(&id, &p.LastName, &p.FirstName, &p.SSN, &p.Title); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		payroll = append(payroll, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return ids, payroll, nil
}

// PayrollCSV exports the week starting at date for every payroll user.
func (h *Handler) PayrollCSV(w http.ResponseWriter, r *http.Request, date string) {
	if _, ok := requireManager(w, r); !ok {
		return
	}
	start, err := time.Parse(database.DateLayout, date)
	if err != nil {
		response.Err(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	rows, err := h.DB.QueryContext(ctx, `SELECT u.id, u.last_name, u.first_name, p.ssn, p.title
		FROM users u JOIN profiles p ON p.user_id = u.id
		WHERE p.payroll = 1 ORDER BY u.last_name, u.first_name, u.id`)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	ids, payroll, err := scanPayrollUsers(rows)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	from, to := database.FormatTime(start), database.FormatTime(start.AddDate(0, 0, 7))
	data := make([][]string, 0, len(payroll))
	for i, p := range payroll {
		entries, err := queryEntries(ctx, h.DB,
			"WHERE e.user_id = ? AND e.end_time IS NOT NULL AND e.end_time >= ? AND e.end_time < ?", ids[i], from, to)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		p.Hours = sumHours(entries).Round(2)
		data = append(data, p.Record())
	}

	company := h.Company
	if company == "" {
		company = defaultCompany
	}
	h.Audit.Record(ctx, audit.ActionExport, "payroll", date, fmt.Sprintf("Exported payroll for %d users", len(data)))
	common.ExportCSV(w, fmt.Sprintf("%s-timesheet-%s.csv", company, date), PayrollHeader, data)
}
