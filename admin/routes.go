package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/commitlog-cdc/commitlog"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the admin API under /admin on r
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Get("/health", handlers.handleHealth)
		r.Get("/queues", handlers.handleQueues)
		r.Get("/segments/pending", handlers.handlePending)

		r.Route("/offsets", func(r chi.Router) {
			r.Get("/", handlers.handleOffsets)
			r.Get("/latest", handlers.handleLatest)
			r.Get("/{segment}", handlers.withSegment(handlers.handleOffset))
			r.Delete("/{segment}", handlers.withSegment(handlers.handleForget))
		})

		r.Route("/schema/cache", func(r chi.Router) {
			r.Get("/", handlers.handleSchemaCache)
			r.Delete("/", handlers.handlePurgeSchemaCache)
			r.Delete("/{table}", handlers.handleInvalidateTable)
		})
	})

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}

// withSegment extracts and validates the {segment} URL param
func (h *Handlers) withSegment(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segment := chi.URLParam(r, "segment")
		if !commitlog.IsSegment(segment) {
			writeErrorResponse(w, http.StatusBadRequest, "not a commit log segment name: "+segment)
			return
		}
		fn(w, r, segment)
	}
}
