package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/recompute-all", h.HandleRecomputeAll)
		r.Get("/{instrumentID}", h.HandleGet)
		r.Post("/{instrumentID}/recompute", h.HandleRecompute)
	})
}
