// Package reports produces date-bucketed realized-profit analytics by
// independently replaying transaction history.
package reports

import (
	"github.com/shopspring/decimal"
)

// LossDetail records one loss-making sale inside a report range
type LossDetail struct {
	InstrumentID  string          `json:"instrument_id"`
	Symbol        string          `json:"symbol,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`        // Sale amount / quantity
	AvgCostAtSale decimal.Decimal `json:"avg_cost_at_sale"`  // Running average cost when the sale folded
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Loss          decimal.Decimal `json:"loss"` // Positive magnitude of the realized loss
}

// DayBucket is one day's realized profit with its loss breakdown. Output
// is sparse: days with no qualifying SELL or INCOME produce no bucket.
type DayBucket struct {
	Date        string          `json:"date"` // YYYY-MM-DD
	Profit      decimal.Decimal `json:"profit"`
	LossDetails []LossDetail    `json:"loss_details"`
}
