package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func date(s string) time.Time {
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return ts
}

func buy(id int64, day, qty, amount string) Transaction {
	return Transaction{ID: id, InstrumentID: "inst-1", Kind: KindBuy, EffectiveDate: date(day), Quantity: dp(qty), TotalAmount: d(amount)}
}

func sell(id int64, day, qty, amount string) Transaction {
	return Transaction{ID: id, InstrumentID: "inst-1", Kind: KindSell, EffectiveDate: date(day), Quantity: dp(qty), TotalAmount: d(amount)}
}

func income(id int64, day, amount string) Transaction {
	return Transaction{ID: id, InstrumentID: "inst-1", Kind: KindIncome, EffectiveDate: date(day), TotalAmount: d(amount)}
}

// TestReplay_ReferenceScenario walks the canonical four-event history:
// two buys blending the average cost, a sale costed at that average, and
// a dividend-like income event.
func TestReplay_ReferenceScenario(t *testing.T) {
	state := ZeroState()

	// BUY 100 shares for 50000
	effect, err := state.Apply(buy(1, "2024-01-02", "100", "50000"))
	require.NoError(t, err)
	state = effect.State
	assert.True(t, state.Shares.Equal(d("100")), "shares = %s", state.Shares)
	assert.True(t, state.Invested.Equal(d("50000")), "invested = %s", state.Invested)
	assert.True(t, state.AvgCost.Equal(d("500")), "avgCost = %s", state.AvgCost)

	// BUY 50 shares for 30000 - average cost blends to 533.33(3)
	effect, err = state.Apply(buy(2, "2024-01-03", "50", "30000"))
	require.NoError(t, err)
	state = effect.State
	assert.True(t, state.Shares.Equal(d("150")))
	assert.True(t, state.Invested.Equal(d("80000")))
	assert.True(t, state.AvgCost.Round(8).Equal(d("533.33333333")), "avgCost = %s", state.AvgCost)

	// SELL 75 shares for 52500 - costed at the running average, not the
	// original purchase prices
	effect, err = state.Apply(sell(3, "2024-01-10", "75", "52500"))
	require.NoError(t, err)
	state = effect.State
	assert.True(t, effect.CostRemoved.Round(2).Equal(d("40000")), "costRemoved = %s", effect.CostRemoved)
	assert.True(t, effect.Realized.Round(2).Equal(d("12500")), "realized = %s", effect.Realized)
	assert.True(t, state.Shares.Equal(d("75")))
	assert.True(t, state.Invested.Round(2).Equal(d("40000")), "invested = %s", state.Invested)
	assert.True(t, state.AvgCost.Round(8).Equal(d("533.33333333")), "avgCost unchanged by sale, got %s", state.AvgCost)
	assert.True(t, state.RealizedProfit.Round(2).Equal(d("12500")))

	// INCOME 500 - only realized profit moves
	effect, err = state.Apply(income(4, "2024-01-15", "500"))
	require.NoError(t, err)
	state = effect.State
	assert.True(t, state.RealizedProfit.Round(2).Equal(d("13000")))
	assert.True(t, state.Shares.Equal(d("75")))
	assert.True(t, state.Invested.Round(2).Equal(d("40000")))
	assert.True(t, state.AvgCost.Round(8).Equal(d("533.33333333")))
}

// TestReplay_ZeroOutExact verifies that selling the entire holding drives
// shares, invested and average cost to exactly zero, with no division
// residue left behind.
func TestReplay_ZeroOutExact(t *testing.T) {
	state, err := Replay([]Transaction{
		buy(1, "2024-01-02", "3", "1000"),
		buy(2, "2024-01-03", "4", "1500"),
		sell(3, "2024-01-04", "7", "3000"),
	})
	require.NoError(t, err)

	assert.True(t, state.Shares.IsZero(), "shares = %s", state.Shares)
	assert.True(t, state.Invested.IsZero(), "invested = %s", state.Invested)
	assert.True(t, state.AvgCost.IsZero(), "avgCost = %s", state.AvgCost)
	// Realized = 3000 - 2500 exactly, because the full basis was removed
	assert.True(t, state.RealizedProfit.Equal(d("500")), "realized = %s", state.RealizedProfit)
}

// TestReplay_RestartAfterZero checks the average resets cleanly: a buy
// after a full exit starts a fresh average unpolluted by history.
func TestReplay_RestartAfterZero(t *testing.T) {
	state, err := Replay([]Transaction{
		buy(1, "2024-01-02", "10", "1000"),
		sell(2, "2024-01-03", "10", "1100"),
		buy(3, "2024-01-04", "5", "700"),
	})
	require.NoError(t, err)

	assert.True(t, state.Shares.Equal(d("5")))
	assert.True(t, state.Invested.Equal(d("700")))
	assert.True(t, state.AvgCost.Equal(d("140")), "avgCost = %s", state.AvgCost)
	assert.True(t, state.RealizedProfit.Equal(d("100")))
}

// TestReplay_OversellProceeds documents the permissive edge: a SELL
// larger than the holding is not rejected by the fold and drives the
// share count negative. Guards, if any, live above the engine.
func TestReplay_OversellProceeds(t *testing.T) {
	state, err := Replay([]Transaction{
		buy(1, "2024-01-02", "10", "1000"),
		sell(2, "2024-01-03", "15", "1800"),
	})
	require.NoError(t, err)

	assert.True(t, state.Shares.Equal(d("-5")), "shares = %s", state.Shares)
	assert.True(t, state.Shares.IsNegative())
}

func TestReplay_FailsFastOnMissingQuantity(t *testing.T) {
	_, err := Replay([]Transaction{
		{ID: 1, InstrumentID: "inst-1", Kind: KindBuy, EffectiveDate: date("2024-01-02"), TotalAmount: d("1000")},
	})
	assert.ErrorIs(t, err, ErrValidation)

	zero := decimal.Zero
	_, err = Replay([]Transaction{
		{ID: 1, InstrumentID: "inst-1", Kind: KindSell, EffectiveDate: date("2024-01-02"), Quantity: &zero, TotalAmount: d("1000")},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

// TestReplay_Conservation checks that at every prefix of the history the
// invested figure equals buys minus all cost removed so far - exactly,
// with no drift.
func TestReplay_Conservation(t *testing.T) {
	history := []Transaction{
		buy(1, "2024-01-02", "100", "50000"),
		buy(2, "2024-01-03", "50", "30000"),
		sell(3, "2024-01-10", "75", "52500"),
		buy(4, "2024-02-01", "25", "14000"),
		sell(5, "2024-02-15", "60", "33000"),
		income(6, "2024-02-20", "250"),
	}

	state := ZeroState()
	expectedInvested := decimal.Zero
	for _, tx := range history {
		effect, err := state.Apply(tx)
		require.NoError(t, err)
		state = effect.State

		switch tx.Kind {
		case KindBuy:
			expectedInvested = expectedInvested.Add(tx.TotalAmount)
		case KindSell:
			expectedInvested = expectedInvested.Sub(effect.CostRemoved)
		}

		assert.True(t, state.Invested.Equal(expectedInvested),
			"prefix through tx %d: invested = %s, want %s", tx.ID, state.Invested, expectedInvested)
	}
}

// TestReplay_Deterministic re-runs the same fold and expects bit-identical
// results.
func TestReplay_Deterministic(t *testing.T) {
	history := []Transaction{
		buy(1, "2024-01-02", "33.333", "1234.56"),
		sell(2, "2024-01-05", "11.111", "500.01"),
		income(3, "2024-01-06", "7.77"),
		buy(4, "2024-01-07", "0.00000001", "0.01"),
	}

	first, err := Replay(history)
	require.NoError(t, err)
	second, err := Replay(history)
	require.NoError(t, err)

	assert.True(t, first.Shares.Equal(second.Shares))
	assert.True(t, first.Invested.Equal(second.Invested))
	assert.True(t, first.AvgCost.Equal(second.AvgCost))
	assert.True(t, first.RealizedProfit.Equal(second.RealizedProfit))
}

// TestReplay_NoteChangesNothing: the note is pure metadata. Two histories
// differing only in notes must fold to the same state in every field.
func TestReplay_NoteChangesNothing(t *testing.T) {
	base := []Transaction{
		buy(1, "2024-01-02", "100", "50000"),
		sell(2, "2024-01-10", "40", "21000"),
		income(3, "2024-01-15", "500"),
	}

	annotated := make([]Transaction, len(base))
	copy(annotated, base)
	annotated[0].Note = "initial lot"
	annotated[1].Note = "partial exit, corrected later"
	annotated[2].Note = "dividend"

	plain, err := Replay(base)
	require.NoError(t, err)
	noted, err := Replay(annotated)
	require.NoError(t, err)

	assert.True(t, plain.Shares.Equal(noted.Shares))
	assert.True(t, plain.Invested.Equal(noted.Invested))
	assert.True(t, plain.AvgCost.Equal(noted.AvgCost))
	assert.True(t, plain.RealizedProfit.Equal(noted.RealizedProfit))
}

// TestSortTransactions_TieBreak checks ordering: ascending effective date,
// insertion id within a date. The fold is non-commutative, so this order
// is part of the contract.
func TestSortTransactions_TieBreak(t *testing.T) {
	txs := []Transaction{
		sell(5, "2024-01-03", "10", "1500"),
		buy(2, "2024-01-03", "10", "1200"),
		buy(1, "2024-01-02", "10", "1000"),
	}

	SortTransactions(txs)

	assert.Equal(t, int64(1), txs[0].ID)
	assert.Equal(t, int64(2), txs[1].ID)
	assert.Equal(t, int64(5), txs[2].ID)
}

// TestReplay_OrderSensitivity shows that moving a transaction to a
// different date changes the outcome: the same events in a different
// order produce a different realized profit.
func TestReplay_OrderSensitivity(t *testing.T) {
	// Sell after the second (expensive) buy: costed at the blended average
	blended := []Transaction{
		buy(1, "2024-01-02", "10", "1000"),
		buy(2, "2024-01-03", "10", "3000"),
		sell(3, "2024-01-04", "10", "2500"),
	}
	// Same events, but the sale happens before the second buy
	early := []Transaction{
		buy(1, "2024-01-02", "10", "1000"),
		sell(3, "2024-01-03", "10", "2500"),
		buy(2, "2024-01-04", "10", "3000"),
	}

	SortTransactions(blended)
	SortTransactions(early)

	a, err := Replay(blended)
	require.NoError(t, err)
	b, err := Replay(early)
	require.NoError(t, err)

	assert.False(t, a.RealizedProfit.Equal(b.RealizedProfit),
		"reordering must change realized profit: both %s", a.RealizedProfit)
	// blended: avg 200, costRemoved 2000, realized 500
	assert.True(t, a.RealizedProfit.Equal(d("500")))
	// early: avg 100, full exit removes 1000, realized 1500
	assert.True(t, b.RealizedProfit.Equal(d("1500")))
}

func TestTransaction_Validate(t *testing.T) {
	valid := buy(1, "2024-01-02", "10", "1000")
	assert.NoError(t, valid.Validate())

	missingQty := Transaction{InstrumentID: "i", Kind: KindSell, EffectiveDate: date("2024-01-02"), TotalAmount: d("10")}
	assert.ErrorIs(t, missingQty.Validate(), ErrValidation)

	negativeQty := sell(1, "2024-01-02", "-5", "10")
	assert.ErrorIs(t, negativeQty.Validate(), ErrValidation)

	incomeWithQty := Transaction{InstrumentID: "i", Kind: KindIncome, EffectiveDate: date("2024-01-02"), Quantity: dp("1"), TotalAmount: d("10")}
	assert.ErrorIs(t, incomeWithQty.Validate(), ErrValidation)

	negativeAmount := Transaction{InstrumentID: "i", Kind: KindIncome, EffectiveDate: date("2024-01-02"), TotalAmount: d("-10")}
	assert.ErrorIs(t, negativeAmount.Validate(), ErrValidation)

	badKind := Transaction{InstrumentID: "i", Kind: "TRANSFER", EffectiveDate: date("2024-01-02"), TotalAmount: d("10")}
	assert.ErrorIs(t, badKind.Validate(), ErrValidation)
}
