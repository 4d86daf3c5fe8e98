// Package instruments provides the tracked-instrument registry.
package instruments

import (
	"errors"
	"time"
)

// ErrInstrumentNotFound is returned for lookups of unregistered instruments
var ErrInstrumentNotFound = errors.New("instrument not found")

// ErrValidation marks bad registration input. Callers can use errors.Is
// to distinguish it from infrastructure errors.
var ErrValidation = errors.New("invalid instrument")

// ErrSymbolTaken is returned when registering a symbol that already exists
var ErrSymbolTaken = errors.New("symbol already registered")

// Instrument is a tracked security. Position state is never stored here;
// it is derived from the instrument's transaction log.
type Instrument struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}
