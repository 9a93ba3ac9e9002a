// Package server wires configuration, storage and handlers into the HTTP
// API.
package server

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"mrp/internal/audit"
	"mrp/internal/auth"
	"mrp/internal/config"
	"mrp/internal/distributor"
	"mrp/internal/handlers/catalog"
	"mrp/internal/handlers/manufacturing"
	"mrp/internal/handlers/products"
	"mrp/internal/handlers/timesheet"
	"mrp/internal/response"
	"mrp/internal/websocket"
)

// Distributor imports are rate limited per user; every Digi-Key lookup also
// rotates the stored refresh token.
const (
	importLimit  = 20
	importWindow = time.Minute
)

// App holds shared dependencies for the application.
type App struct {
	DB    *sql.DB
	Log   logrus.FieldLogger
	Hub   *websocket.Hub
	Auth  auth.Authenticator
	Audit *audit.Logger

	Catalog       *catalog.Handler
	Products      *products.Handler
	Manufacturing *manufacturing.Handler
	Timesheet     *timesheet.Handler

	limiter *RateLimiter
}

// New builds the handlers. Distributors without credentials are left out and
// their imports answer 503.
func New(cfg *config.Config, db *sql.DB, log logrus.FieldLogger, authn auth.Authenticator) *App {
	hub := websocket.NewHub(log)
	al := &audit.Logger{DB: db, Hub: hub, Log: log}
	tokens := &distributor.SQLTokenStore{DB: db}

	clients := map[string]distributor.Client{}
	if cfg.DigiKey.ClientID != "" {
		clients["digikey"] = distributor.NewDigiKey(distributor.DigiKeyConfig{
			ClientID:     cfg.DigiKey.ClientID,
			ClientSecret: cfg.DigiKey.ClientSecret,
			TokenURL:     cfg.DigiKey.TokenURL,
			APIBase:      cfg.DigiKey.APIBase,
			Timeout:      cfg.HTTPTimeout,
		}, tokens, log)
	}
	if cfg.Mouser.APIKey != "" {
		clients["mouser"] = distributor.NewMouser(cfg.Mouser.APIKey, cfg.Mouser.APIBase, cfg.HTTPTimeout)
	}
	for name := range clients {
		log.WithField("distributor", name).Info("distributor enabled")
	}

	return &App{
		DB:    db,
		Log:   log,
		Hub:   hub,
		Auth:  authn,
		Audit: al,

		Catalog:       &catalog.Handler{DB: db, Audit: al, Distributors: clients, Tokens: tokens},
		Products:      &products.Handler{DB: db, Audit: al},
		Manufacturing: &manufacturing.Handler{DB: db, Audit: al},
		Timesheet:     &timesheet.Handler{DB: db, Audit: al, Company: cfg.Company},

		limiter: NewRateLimiter(),
	}
}

// withID adapts handlers taking a path id.
func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}

// Routes returns the router for the whole API.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(a.Log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/healthz", a.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAuth(a.Auth))

		// the websocket must not be wrapped in Timeout or Compress
		r.Get("/ws", a.Hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(middleware.Compress(5))

			r.Get("/me", a.me)
			r.Get("/audit", a.listAudit)
			a.catalogRoutes(r)
			a.productRoutes(r)
			a.timesheetRoutes(r)
		})
	})
	return r
}

func (a *App) catalogRoutes(r chi.Router) {
	c := a.Catalog
	manager := RequireRole(auth.RoleManager)

	r.Get("/types", c.ListTypes)
	r.Post("/types", c.CreateType)
	r.Post("/types/quick", c.QuickCreateType)
	r.Get("/types/{id}", withID(c.GetType))
	r.Put("/types/{id}", withID(c.UpdateType))
	r.With(manager).Delete("/types/{id}", withID(c.DeleteType))
	r.Get("/types/{id}/parts", withID(c.ListParts))
	r.Post("/types/{id}/parts", withID(c.CreatePart))
	r.Get("/types/{id}/parts/filters", withID(c.PartFilterValues))

	r.With(RateLimit(a.limiter, importLimit, importWindow)).Post("/parts/import", c.ImportPart)
	r.Get("/parts/{id}", withID(c.GetPart))
	r.Put("/parts/{id}", withID(c.UpdatePart))
	r.Delete("/parts/{id}", withID(c.DeletePart))
	r.Post("/parts/{id}/manufacturers", withID(c.AddPartManufacturer))
	r.Delete("/part-manufacturers/{id}", withID(c.DeletePartManufacturer))
	r.Put("/parts/{id}/stock", withID(c.SetPartStock))
	r.Delete("/part-stock/{id}", withID(c.DeletePartStock))

	r.Get("/vendors", c.ListVendors)
	r.Post("/vendors", c.CreateVendor)
	r.With(manager).Post("/vendors/merge", c.MergeVendors)
	r.Get("/vendors/{id}", withID(c.GetVendor))
	r.Put("/vendors/{id}", withID(c.UpdateVendor))
	r.Delete("/vendors/{id}", withID(c.DeleteVendor))

	r.Get("/locations", c.ListLocations)
	r.Post("/locations", c.CreateLocation)
	r.With(manager).Post("/locations/merge", c.MergeLocations)
	r.Get("/locations/{id}", withID(c.GetLocation))
	r.Put("/locations/{id}", withID(c.UpdateLocation))
	r.Delete("/locations/{id}", withID(c.DeleteLocation))

	r.Group(func(r chi.Router) {
		r.Use(manager)
		r.Get("/distributors/digikey/tokens", c.GetDistributorTokens)
		r.Put("/distributors/digikey/tokens", c.PutDistributorTokens)
	})
}

func (a *App) productRoutes(r chi.Router) {
	p := a.Products
	r.Get("/products", p.ListProducts)
	r.Post("/products", p.CreateProduct)
	r.Get("/products/{id}", withID(p.GetProduct))
	r.Put("/products/{id}", withID(p.UpdateProduct))
	r.Delete("/products/{id}", withID(p.DeleteProduct))
	r.Post("/products/{id}/parts", withID(p.AddProductPart))
	r.Post("/products/{id}/components", withID(p.AddProductComponent))
	r.Put("/products/{id}/stock", withID(p.SetProductStock))
	r.Get("/products/{id}/bom", withID(p.ProductBOM))
	r.Get("/products/{id}/bom/export", withID(p.ExportBOM))
	r.Delete("/product-parts/{id}", withID(p.DeleteProductPart))
	r.Delete("/product-components/{id}", withID(p.DeleteProductComponent))
	r.Delete("/product-stock/{id}", withID(p.DeleteProductStock))

	m := a.Manufacturing
	r.Get("/mos", m.ListOrders)
	r.Post("/mos", m.CreateOrder)
	r.Get("/mos/{id}", withID(m.GetOrder))
	r.Put("/mos/{id}", withID(m.UpdateOrder))
	r.Delete("/mos/{id}", withID(m.DeleteOrder))
	r.Get("/mos/{id}/shortfall", withID(m.Shortfall))
	r.Get("/mos/{id}/shortfall/export", withID(m.ExportShortfall))
}

func (a *App) timesheetRoutes(r chi.Router) {
	t := a.Timesheet

	r.Get("/users", t.ListUsers)
	r.Post("/users", t.CreateUser)
	r.Get("/users/{id}", withID(t.GetUser))
	r.Put("/users/{id}/profile", withID(t.UpdateProfile))

	r.Get("/projects", t.ListProjects)
	r.Post("/projects", t.CreateProject)
	r.Get("/projects/{id}", withID(t.GetProject))
	r.Put("/projects/{id}", withID(t.UpdateProject))
	r.Delete("/projects/{id}", withID(t.DeleteProject))
	r.Post("/projects/{id}/members", withID(t.AddMember))
	r.Delete("/projects/{id}/members/{user}", func(w http.ResponseWriter, r *http.Request) {
		t.RemoveMember(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "user"))
	})
	r.Get("/projects/{id}/timesheet", withID(t.ProjectTimesheet))
	r.Get("/projects/{id}/timesheet.csv", withID(t.ProjectTimesheetCSV))

	r.Get("/entries", t.ListEntries)
	r.Post("/entries", t.CreateEntry)
	r.Get("/entries/{id}", withID(t.GetEntry))
	r.Put("/entries/{id}", withID(t.UpdateEntry))
	r.Delete("/entries/{id}", withID(t.DeleteEntry))

	r.Get("/clock", t.ActiveEntry)
	r.Post("/clock/in", t.ClockIn)
	r.Post("/clock/out", t.ClockOut)

	r.Get("/project-hours", t.ListProjectHours)
	r.Post("/project-hours", t.CreateProjectHours)
	r.Post("/project-hours/publish", t.PublishWeek)
	r.Put("/project-hours/{id}", withID(t.UpdateProjectHours))
	r.Delete("/project-hours/{id}", withID(t.DeleteProjectHours))

	r.Get("/todos", t.ListTodos)
	r.Post("/todos", t.CreateTodo)
	r.Put("/todos/{id}", withID(t.UpdateTodo))
	r.Post("/todos/{id}/toggle", withID(t.ToggleTodo))
	r.Delete("/todos/{id}", withID(t.DeleteTodo))

	r.Get("/timesheet/week", t.WeekTimesheet)
	r.With(RequireRole(auth.RoleManager)).Get("/payroll/{date}", func(w http.ResponseWriter, r *http.Request) {
		t.PayrollCSV(w, r, chi.URLParam(r, "date"))
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.PingContext(r.Context()); err != nil {
		a.Log.WithError(err).Error("health check failed")
		response.Err(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	response.JSON(w, map[string]interface{}{"status": "ok", "clients": a.Hub.ClientCount()})
}

func (a *App) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	response.JSON(w, map[string]interface{}{"user_id": id.UserID, "username": id.Username, "role": id.Role})
}

// listAudit returns audit rows filtered by ?module=, ?record_id= and ?limit=.
func (a *App) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := audit.List(r.Context(), a.DB, q.Get("module"), q.Get("record_id"), limit)
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSON(w, rows)
}
