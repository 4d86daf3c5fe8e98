// Package handlers provides HTTP handlers for position aggregates.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/costbook/internal/modules/instruments"
	"github.com/aristath/costbook/internal/modules/positions"
)

// Handler handles position aggregate HTTP requests
type Handler struct {
	service *positions.Service
	log     zerolog.Logger
}

// NewHandler creates a new positions handler
func NewHandler(service *positions.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "positions").Logger(),
	}
}

// HandleList returns every cached aggregate
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.service.GetAllAggregates()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if aggs == nil {
		aggs = []positions.Aggregate{}
	}

	h.writeJSON(w, http.StatusOK, aggs)
}

// HandleGet returns the cached aggregate for one instrument
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")

	agg, err := h.service.GetAggregate(instrumentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agg)
}

// HandleRecompute forces a full replay for one instrument
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")

	agg, err := h.service.Recompute(instrumentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, agg)
}

// HandleRecomputeAll forces a full replay for every instrument. Partial
// failures are reported in the response body, not as an HTTP error.
func (h *Handler) HandleRecomputeAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RecomputeAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, instruments.ErrInstrumentNotFound):
		h.writeError(w, http.StatusNotFound, "instrument not found")
	case errors.Is(err, positions.ErrAggregateNotFound):
		h.writeError(w, http.StatusNotFound, "position aggregate not found")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
