// Package handlers provides HTTP handlers for realized-profit reports.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/costbook/internal/modules/ledger"
	"github.com/aristath/costbook/internal/modules/reports"
)

// Handler handles report HTTP requests
type Handler struct {
	service *reports.Service
	log     zerolog.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *reports.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "reports").Logger(),
	}
}

// RegisterRoutes registers all report routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/daywise", h.HandleDaywise)
	})
}

// HandleDaywise returns realized profit bucketed by day.
// Query params: from=YYYY-MM-DD, to=YYYY-MM-DD, instrument=<id> (optional)
func (h *Handler) HandleDaywise(w http.ResponseWriter, r *http.Request) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		h.writeError(w, http.StatusBadRequest, "from and to query parameters are required (YYYY-MM-DD)")
		return
	}

	from, err := ledger.ParseDate(fromStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := ledger.ParseDate(toStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if to.Before(from) {
		h.writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	instrumentID := r.URL.Query().Get("instrument")

	buckets, err := h.service.Daywise(from, to, instrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, buckets)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
