package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// State is the running position state threaded through a replay.
// It is ephemeral: it exists only during a fold and is never persisted
// directly (the positions module persists a rounded snapshot of it).
type State struct {
	Shares         decimal.Decimal
	Invested       decimal.Decimal
	AvgCost        decimal.Decimal
	RealizedProfit decimal.Decimal
}

// ZeroState returns the starting point of every replay
func ZeroState() State {
	return State{
		Shares:         decimal.Zero,
		Invested:       decimal.Zero,
		AvgCost:        decimal.Zero,
		RealizedProfit: decimal.Zero,
	}
}

// Effect is the outcome of applying a single transaction to a state.
// Realized and CostRemoved carry the per-event figures the report engine
// needs; a plain replay only keeps State.
type Effect struct {
	State       State
	Realized    decimal.Decimal // Realized profit contributed by this event (SELL, INCOME)
	CostRemoved decimal.Decimal // Cost basis removed by this event (SELL only)
}

// Apply advances the state by one transaction using moving-average costing.
//
// The method is non-commutative: a SELL is costed against the average cost
// at that point in history, so the same set of events in a different order
// produces different results. Callers must apply transactions in ascending
// (effective_date, id) order.
//
// A SELL larger than the current holding is not rejected here; it proceeds
// arithmetically and can drive shares negative. Guarding against oversell,
// if wanted, belongs to the layer above the fold.
func (s State) Apply(tx Transaction) (Effect, error) {
	switch tx.Kind {
	case KindBuy:
		if tx.Quantity == nil || !tx.Quantity.IsPositive() {
			return Effect{}, fmt.Errorf("%w: BUY transaction %d has no positive quantity", ErrValidation, tx.ID)
		}
		next := s
		next.Shares = s.Shares.Add(*tx.Quantity)
		next.Invested = s.Invested.Add(tx.TotalAmount)
		// Shares is strictly positive here unless a prior oversell drove it
		// negative far enough to cancel this buy exactly.
		if next.Shares.IsZero() {
			next.AvgCost = decimal.Zero
		} else {
			next.AvgCost = next.Invested.Div(next.Shares)
		}
		return Effect{State: next}, nil

	case KindSell:
		if tx.Quantity == nil || !tx.Quantity.IsPositive() {
			return Effect{}, fmt.Errorf("%w: SELL transaction %d has no positive quantity", ErrValidation, tx.ID)
		}
		next := s
		next.Shares = s.Shares.Sub(*tx.Quantity)

		// Cost removed at the average cost at the moment of sale. When the
		// sale empties the position, remove the entire remaining basis so
		// the zero-share state is exactly zero, not division residue.
		costRemoved := s.AvgCost.Mul(*tx.Quantity)
		if next.Shares.IsZero() {
			costRemoved = s.Invested
		}

		realized := tx.TotalAmount.Sub(costRemoved)
		next.Invested = s.Invested.Sub(costRemoved)
		if next.Shares.IsZero() {
			next.AvgCost = decimal.Zero
		} else {
			next.AvgCost = next.Invested.Div(next.Shares)
		}
		next.RealizedProfit = s.RealizedProfit.Add(realized)
		return Effect{State: next, Realized: realized, CostRemoved: costRemoved}, nil

	case KindIncome:
		next := s
		next.RealizedProfit = s.RealizedProfit.Add(tx.TotalAmount)
		return Effect{State: next, Realized: tx.TotalAmount}, nil

	default:
		return Effect{}, fmt.Errorf("%w: unknown kind %q on transaction %d", ErrValidation, string(tx.Kind), tx.ID)
	}
}

// Replay folds an ordered transaction list into its final state, starting
// from zero. It is a pure function: no I/O, no mutation of the input, and
// the same input always yields the same output.
func Replay(ordered []Transaction) (State, error) {
	state := ZeroState()
	for _, tx := range ordered {
		effect, err := state.Apply(tx)
		if err != nil {
			return State{}, err
		}
		state = effect.State
	}
	return state, nil
}

// SortTransactions sorts in ascending effective date, with insertion order
// (id) as the tie-break for same-date events. The repository already
// returns rows in this order; this exists for callers that assemble
// transaction lists from other sources.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].EffectiveDate.Equal(txs[j].EffectiveDate) {
			return txs[i].EffectiveDate.Before(txs[j].EffectiveDate)
		}
		return txs[i].ID < txs[j].ID
	})
}
