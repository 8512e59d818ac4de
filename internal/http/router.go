package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"audio-event-pipeline/internal/app"
	"audio-event-pipeline/internal/observability"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestMetrics(application.Metrics))

	h := &notificationHandler{
		notifications: application.Notifications,
		ready:         application.Ready,
		serviceName:   application.Cfg.Service.Name,
		kfpEndpoint:   application.Cfg.Orchestration.Endpoint,
	}

	r.Post("/", h.HandleEvent)
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	return r
}
