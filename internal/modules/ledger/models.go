// Package ledger owns the transaction log and the replay engine that
// derives position state from it. Transactions are the authoritative
// record; everything a position shows is recomputed from them.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction type
type Kind string

const (
	KindBuy    Kind = "BUY"
	KindSell   Kind = "SELL"
	KindIncome Kind = "INCOME"
)

// KindFromString converts a string to a Kind
func KindFromString(s string) (Kind, error) {
	switch s {
	case "BUY":
		return KindBuy, nil
	case "SELL":
		return KindSell, nil
	case "INCOME":
		return KindIncome, nil
	default:
		return "", fmt.Errorf("invalid transaction kind: %s", s)
	}
}

// ErrValidation marks data-integrity faults on a transaction. Callers can
// use errors.Is to distinguish them from infrastructure errors.
var ErrValidation = errors.New("invalid transaction")

// ErrTransactionNotFound is returned when a transaction id does not exist
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction represents one buy/sell/income event for an instrument.
// Once read by a replay it is treated as immutable; edits go through the
// repository and trigger a full recompute of the instrument's position.
type Transaction struct {
	ID            int64            `json:"id"` // Insertion order, the tie-break for same-date events
	InstrumentID  string           `json:"instrument_id"`
	Kind          Kind             `json:"kind"`
	EffectiveDate time.Time        `json:"effective_date"` // Midnight UTC
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	TotalAmount   decimal.Decimal  `json:"total_amount"` // Magnitude of cash moved, always positive
	Note          string           `json:"note,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Validate checks the transaction invariants before it enters the log.
// A BUY/SELL without a positive quantity is a data-integrity fault and is
// rejected here rather than silently coerced inside a replay.
func (t Transaction) Validate() error {
	if t.InstrumentID == "" {
		return fmt.Errorf("%w: instrument_id is required", ErrValidation)
	}

	switch t.Kind {
	case KindBuy, KindSell:
		if t.Quantity == nil {
			return fmt.Errorf("%w: quantity is required for %s", ErrValidation, t.Kind)
		}
		if !t.Quantity.IsPositive() {
			return fmt.Errorf("%w: quantity must be positive for %s, got %s", ErrValidation, t.Kind, t.Quantity)
		}
	case KindIncome:
		if t.Quantity != nil {
			return fmt.Errorf("%w: quantity must be absent for INCOME", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, string(t.Kind))
	}

	if t.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: total_amount must not be negative, got %s", ErrValidation, t.TotalAmount)
	}

	if t.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective_date is required", ErrValidation)
	}

	return nil
}

// DateKey returns the effective date as YYYY-MM-DD (UTC), the key used by
// date-bucketed reports.
func (t Transaction) DateKey() string {
	return t.EffectiveDate.UTC().Format("2006-01-02")
}

// NormalizeDate truncates a timestamp to midnight UTC. Effective dates are
// civil dates; storing them normalized keeps ordering comparisons exact.
func NormalizeDate(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string into a midnight-UTC timestamp
func ParseDate(s string) (time.Time, error) {
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return ts, nil
}
