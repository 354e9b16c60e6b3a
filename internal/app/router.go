package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/purchasing"
	"github.com/altamar-retail/altamar-retail/internal/sales"
	"github.com/altamar-retail/altamar-retail/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	InventoryHandler  *inventory.Handler
	PurchasingHandler *purchasing.Handler
	SalesHandler      *sales.Handler
	ClientsHandler    *clients.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.InventoryHandler.MountRoutes(r)
	params.PurchasingHandler.MountRoutes(r)
	params.SalesHandler.MountRoutes(r)
	params.ClientsHandler.MountRoutes(r)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
