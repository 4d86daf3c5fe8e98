// Package positions maintains the derived position aggregate per
// instrument and the coordinator that recomputes it from the ledger.
package positions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/costbook/internal/modules/ledger"
)

// Persisted precision scales. Currency amounts keep 2 decimal places,
// share counts and per-share prices keep 8, so fractional shares and
// sub-unit prices survive repeated replays without rounding loss.
const (
	MoneyScale = 2
	ShareScale = 8
)

// ErrAggregateNotFound is returned when an instrument is registered but
// has no cached aggregate row yet
var ErrAggregateNotFound = errors.New("position aggregate not found")

// Aggregate is the derived position summary for one instrument. It is
// wholly derived: only ever produced by a full replay of the instrument's
// transaction log and persisted as a whole-row replacement, never patched.
type Aggregate struct {
	InstrumentID   string          `json:"instrument_id"`
	TotalShares    decimal.Decimal `json:"total_shares"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	TxCount        int             `json:"tx_count"`
	LastRecomputed time.Time       `json:"last_recomputed"`
}

// NewAggregate builds the persisted aggregate from a replay result,
// rounding to the storage scales. The replay itself runs at full
// precision; rounding happens only here, at the persistence edge.
func NewAggregate(instrumentID string, state ledger.State, txCount int, now time.Time) Aggregate {
	return Aggregate{
		InstrumentID:   instrumentID,
		TotalShares:    state.Shares.Round(ShareScale),
		TotalInvested:  state.Invested.Round(MoneyScale),
		AverageCost:    state.AvgCost.Round(ShareScale),
		RealizedProfit: state.RealizedProfit.Round(MoneyScale),
		TxCount:        txCount,
		LastRecomputed: now.UTC(),
	}
}

// InstrumentError records a single instrument's failure during a batch
// recompute
type InstrumentError struct {
	InstrumentID string `json:"instrument_id"`
	Message      string `json:"message"`
}

// RecomputeAllResult summarizes a batch recompute. One bad instrument
// never aborts the batch; its error lands here instead.
type RecomputeAllResult struct {
	Succeeded int               `json:"succeeded"`
	Errors    []InstrumentError `json:"errors"`
}
