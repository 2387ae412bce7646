package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/consolidate/internal/audit/http"
	consolhttp "github.com/odyssey-erp/consolidate/internal/consol/http"
	intercompanyhttp "github.com/odyssey-erp/consolidate/internal/intercompany/http"
	"github.com/odyssey-erp/consolidate/internal/observability"
	"github.com/odyssey-erp/consolidate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	ConsolHandler       *consolhttp.Handler
	IntercompanyHandler *intercompanyhttp.Handler
	AuditHandler        *audithttp.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router for the consolidation service.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.ConsolHandler != nil {
			params.ConsolHandler.MountRoutes(r)
		}
		if params.IntercompanyHandler != nil {
			params.IntercompanyHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
