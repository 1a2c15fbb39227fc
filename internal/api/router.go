package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/services/intake"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the trigger/status HTTP surface. It stays thin: all
// pipeline behavior lives in the intake service.
func NewRouter(service *intake.Service, health func() map[string]interface{}, logger *slog.Logger) http.Handler {
	h := &Handlers{
		service: service,
		health:  health,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1/batches", func(r chi.Router) {
		r.Post("/", h.StartUpload)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Post("/reupload", h.Reupload)
			r.Get("/", h.GetBatchStatus)
			r.Get("/errors", h.GetBatchErrors)
			r.Get("/errors/export", h.ExportFailedRows)
		})
	})

	return r
}
