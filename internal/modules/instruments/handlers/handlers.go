// Package handlers provides HTTP handlers for the instrument registry.
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

// Recomputer manages the cached aggregate attached to an instrument.
// Registration seeds the zero aggregate through the same recompute path
// as every log mutation; deregistration drops it.
type Recomputer interface {
	Recompute(instrumentID string) (*positions.Aggregate, error)
	DropAggregate(instrumentID string) error
}

// Handler handles instrument HTTP requests
type Handler struct {
	repo       *instruments.Repository
	recomputer Recomputer
	log        zerolog.Logger
}

// NewHandler creates a new instrument handler
func NewHandler(repo *instruments.Repository, recomputer Recomputer, log zerolog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		recomputer: recomputer,
		log:        log.With().Str("handler", "instruments").Logger(),
	}
}

type instrumentRequest struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// HandleCreate registers a new instrument with a zero position aggregate
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inst := instruments.Instrument{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Currency: req.Currency,
	}

	if err := h.repo.Create(&inst); err != nil {
		h.writeRepoError(w, err)
		return
	}

	agg, err := h.recomputer.Recompute(inst.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "instrument registered but aggregate seeding failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"instrument": inst,
		"aggregate":  agg,
	})
}

// HandleList returns all registered instruments
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if all == nil {
		all = []instruments.Instrument{}
	}

	h.writeJSON(w, http.StatusOK, all)
}

// HandleGet returns one instrument by id
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := h.repo.GetByID(id)
	if errors.Is(err, instruments.ErrInstrumentNotFound) {
		h.writeError(w, http.StatusNotFound, "instrument not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, inst)
}

// HandleDelete deregisters an instrument: the instrument and its whole
// transaction history go in one database transaction, then the cached
// aggregate is dropped
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteWithHistory(id); err != nil {
		h.writeRepoError(w, err)
		return
	}

	if err := h.recomputer.DropAggregate(id); err != nil {
		h.writeError(w, http.StatusInternalServerError, "instrument deleted but aggregate cleanup failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// writeRepoError maps repository errors to HTTP statuses. Bad input is
// the client's fault; a failing database is not.
func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, instruments.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, instruments.ErrSymbolTaken):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, instruments.ErrInstrumentNotFound):
		h.writeError(w, http.StatusNotFound, "instrument not found")
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
