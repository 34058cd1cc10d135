package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	apimiddleware "github.com/phrazzld/pintask/internal/api/middleware"
	"github.com/phrazzld/pintask/internal/redact"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects the handlers and options the router mounts.
type RouterConfig struct {
	Tasks    *TaskHandler
	Location *LocationHandler
	App      *AppHandler

	// Health is optional; when set, GET /health answers 503 while it fails.
	Health HealthCheck

	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowedOrigins []string
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Trace-ID"},
			MaxAge:         300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		// Task endpoints
		r.Post("/tasks", cfg.Tasks.CreateTask)
		r.Get("/tasks", cfg.Tasks.ListTasks)
		r.Get("/tasks/{id}", cfg.Tasks.GetTask)
		r.Delete("/tasks/{id}", cfg.Tasks.DismissTask)
		r.Post("/tasks/{id}/honor", cfg.Tasks.HonorPrice)
		r.Post("/tasks/{id}/false-failure", cfg.Tasks.FalseFailure)

		// Location provider callbacks
		r.Post("/location", cfg.Location.UpdateLocation)
		r.Post("/location/authorization", cfg.Location.UpdateAuthorization)
		r.Get("/regions", cfg.Location.ListRegions)
		r.Post("/regions/{id}/enter", cfg.Location.EnterRegion)

		// App lifecycle
		r.Post("/app/foreground", cfg.App.Foreground)
		r.Post("/app/background", cfg.App.Background)
		r.Post("/reconcile", cfg.App.Reconcile)
		r.Get("/notifications", cfg.App.Notifications)
		r.Get("/alerts", cfg.App.Alerts)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				logger.Warn("health check failed", slog.String("error", redact.Error(err)))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("Failed to write health check response", slog.String("error", err.Error()))
		}
	})

	return r
}
