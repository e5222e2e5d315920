package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Fantasim/paysync/internal/api/handlers"
	"github.com/Fantasim/paysync/internal/api/middleware"
	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/gateway"
	"github.com/Fantasim/paysync/internal/poller"
	"github.com/Fantasim/paysync/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Dependencies holds every service the HTTP layer needs.
type Dependencies struct {
	Config  *config.Config
	Gateway *gateway.Gateway
	Core    handlers.BreakerStater
	Tracker *poller.Tracker
	Hub     *poller.Hub
	Store   store.InvoiceStore
}

// NewRouter creates the chi router with all middleware and routes.
func NewRouter(deps *Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogging)
	r.Use(middleware.CORS(deps.Config.AllowedOrigins))

	slog.Info("router initialized",
		"middleware", []string{"realIP", "recoverer", "requestLogging", "cors"},
	)

	// Storefront gateway.
	r.Get(config.GatewayPathStatus, handlers.StatusHandler(deps.Gateway))
	r.Post(config.GatewayPathConfirm, handlers.ConfirmHandler(deps.Gateway))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(deps.Config, Version, deps.Core, deps.Tracker, deps.Hub))

		r.Post("/demo/invoices", handlers.CreateDemoInvoiceHandler(deps.Store))
		r.Get("/demo/invoices/{id}", handlers.GetDemoInvoiceHandler(deps.Store))

		r.Route("/track", func(r chi.Router) {
			r.Post("/", handlers.TrackHandler(deps.Tracker, deps.Store))
			r.Get("/", handlers.ListTrackedHandler(deps.Tracker))
			r.Get("/events", handlers.EventsHandler(deps.Hub, deps.Tracker))
			r.Get("/{id}", handlers.GetTrackedHandler(deps.Tracker))
			r.Delete("/{id}", handlers.CancelTrackedHandler(deps.Tracker))
		})
	})

	return r
}
