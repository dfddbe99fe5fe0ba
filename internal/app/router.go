package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cascadeprojects/crm221/internal/auth"
	"github.com/cascadeprojects/crm221/internal/observability"
	"github.com/cascadeprojects/crm221/internal/platform/httpx"
	"github.com/cascadeprojects/crm221/internal/portfolio"
	"github.com/cascadeprojects/crm221/internal/records"
	"github.com/cascadeprojects/crm221/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Sessions         *auth.Sessions
	AuthHandler      *auth.Handler
	DashboardHandler *portfolio.Handler
	RecordsHandler   *records.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with crm221 defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionStack(params.Sessions, params.Metrics)...)

		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		r.Route("/api", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.RecordsHandler != nil {
				r.Route("/records", params.RecordsHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
