// Package handlers provides HTTP handlers for the transaction log.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/costbook/internal/modules/instruments"
	"github.com/aristath/costbook/internal/modules/ledger"
	"github.com/aristath/costbook/internal/modules/positions"
)

// Recomputer re-derives an instrument's cached aggregate after a log
// mutation. Satisfied by *positions.Service.
type Recomputer interface {
	Recompute(instrumentID string) (*positions.Aggregate, error)
}

// Handler handles transaction HTTP requests. Every mutation recomputes
// the instrument's aggregate before replying, so callers always observe
// an aggregate consistent with the log they just changed.
type Handler struct {
	txRepo     *ledger.TransactionRepository
	instRepo   *instruments.Repository
	recomputer Recomputer
	log        zerolog.Logger
}

// NewHandler creates a new transaction handler
func NewHandler(txRepo *ledger.TransactionRepository, instRepo *instruments.Repository, recomputer Recomputer, log zerolog.Logger) *Handler {
	return &Handler{
		txRepo:     txRepo,
		instRepo:   instRepo,
		recomputer: recomputer,
		log:        log.With().Str("handler", "ledger").Logger(),
	}
}

// transactionRequest is the wire form of a transaction mutation. Decimal
// fields travel as strings so values are never routed through binary
// floats.
type transactionRequest struct {
	Kind          string  `json:"kind"`
	EffectiveDate string  `json:"effective_date"` // YYYY-MM-DD
	Quantity      *string `json:"quantity,omitempty"`
	TotalAmount   string  `json:"total_amount"`
	Note          string  `json:"note"`
}

// mutationResponse returns the stored transaction together with the
// freshly recomputed aggregate
type mutationResponse struct {
	Transaction ledger.Transaction   `json:"transaction"`
	Aggregate   *positions.Aggregate `json:"aggregate"`
}

// toTransaction parses the request into a domain transaction for the
// given instrument
func (req transactionRequest) toTransaction(instrumentID string) (ledger.Transaction, error) {
	kind, err := ledger.KindFromString(req.Kind)
	if err != nil {
		return ledger.Transaction{}, err
	}

	date, err := ledger.ParseDate(req.EffectiveDate)
	if err != nil {
		return ledger.Transaction{}, err
	}

	amount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		return ledger.Transaction{}, errors.New("invalid total_amount: " + req.TotalAmount)
	}

	tx := ledger.Transaction{
		InstrumentID:  instrumentID,
		Kind:          kind,
		EffectiveDate: date,
		TotalAmount:   amount,
		Note:          req.Note,
	}

	if req.Quantity != nil {
		q, err := decimal.NewFromString(*req.Quantity)
		if err != nil {
			return ledger.Transaction{}, errors.New("invalid quantity: " + *req.Quantity)
		}
		tx.Quantity = &q
	}

	return tx, nil
}

// HandleCreateTransaction records a new transaction and synchronously
// recomputes the instrument's aggregate
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")

	exists, err := h.instRepo.Exists(instrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		h.writeError(w, http.StatusNotFound, "instrument not found")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := req.toTransaction(instrumentID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.txRepo.Create(&tx); err != nil {
		h.writeMutationError(w, err)
		return
	}

	agg, err := h.recomputer.Recompute(instrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "transaction stored but recompute failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, mutationResponse{Transaction: tx, Aggregate: agg})
}

// HandleListTransactions returns an instrument's transactions in replay
// order
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")

	exists, err := h.instRepo.Exists(instrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		h.writeError(w, http.StatusNotFound, "instrument not found")
		return
	}

	txs, err := h.txRepo.GetOrderedByInstrument(instrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, txs)
}

// HandleUpdateTransaction edits a transaction and synchronously
// recomputes the instrument's aggregate. The transaction stays on its
// instrument; its id (and with it the tie-break position among same-date
// events) is preserved.
func (h *Handler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	existing, err := h.txRepo.GetByID(id)
	if err != nil {
		h.writeMutationError(w, err)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := req.toTransaction(existing.InstrumentID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx.ID = existing.ID
	tx.CreatedAt = existing.CreatedAt

	if err := h.txRepo.Update(tx); err != nil {
		h.writeMutationError(w, err)
		return
	}

	agg, err := h.recomputer.Recompute(tx.InstrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "transaction updated but recompute failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, mutationResponse{Transaction: tx, Aggregate: agg})
}

// HandleDeleteTransaction removes a transaction and synchronously
// recomputes the instrument's aggregate - the result is identical to a
// history in which the transaction never existed.
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	existing, err := h.txRepo.GetByID(id)
	if err != nil {
		h.writeMutationError(w, err)
		return
	}

	if err := h.txRepo.Delete(id); err != nil {
		h.writeMutationError(w, err)
		return
	}

	agg, err := h.recomputer.Recompute(existing.InstrumentID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "transaction deleted but recompute failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":   id,
		"aggregate": agg,
	})
}

// writeMutationError maps repository errors to HTTP statuses
func (h *Handler) writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "transaction not found")
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
