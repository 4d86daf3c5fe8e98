package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all transaction log routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/instruments/{instrumentID}/transactions", func(r chi.Router) {
		r.Post("/", h.HandleCreateTransaction)
		r.Get("/", h.HandleListTransactions)
	})

	r.Route("/transactions/{id}", func(r chi.Router) {
		r.Put("/", h.HandleUpdateTransaction)
		r.Delete("/", h.HandleDeleteTransaction)
	})
}
