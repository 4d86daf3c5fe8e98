package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/costbook/internal/modules/instruments"
	"github.com/aristath/costbook/internal/modules/ledger"
	"github.com/aristath/costbook/internal/modules/positions"
)

// TransactionSource provides the snapshot the report replays. A single
// query per report keeps the snapshot consistent for every instrument in
// the filter.
type TransactionSource interface {
	GetAllUpTo(to time.Time, instrumentID string) ([]ledger.Transaction, error)
}

// InstrumentProvider resolves instrument ids to registry entries for
// display fields. Optional; ids are reported as-is without it.
type InstrumentProvider interface {
	GetByID(id string) (*instruments.Instrument, error)
}

// Service is the report replay engine. It never reads the cached position
// aggregates: it needs the running average cost at every point in time,
// not just the final value, so each report replays history from zero
// using the same ordering and transition rules as the recompute fold.
type Service struct {
	txSource TransactionSource
	registry InstrumentProvider
	log      zerolog.Logger
}

// NewService creates a new report service
func NewService(txSource TransactionSource, registry InstrumentProvider, log zerolog.Logger) *Service {
	return &Service{
		txSource: txSource,
		registry: registry,
		log:      log.With().Str("service", "reports").Logger(),
	}
}

// Daywise returns realized profit bucketed by effective date over
// [from, to], optionally restricted to one instrument.
//
// Every instrument's history is replayed from zero up to the range end;
// SELL and INCOME events inside the range contribute to their date's
// bucket, BUY events only advance the running state. Loss-making sales
// carry a detail record. Buckets are date-ascending and sparse.
func (s *Service) Daywise(from, to time.Time, instrumentID string) ([]DayBucket, error) {
	from = ledger.NormalizeDate(from)
	to = ledger.NormalizeDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: to %s is before from %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	txs, err := s.txSource.GetAllUpTo(to, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for report: %w", err)
	}

	// Partition by instrument, preserving the replay order within each
	byInstrument := make(map[string][]ledger.Transaction)
	for _, tx := range txs {
		byInstrument[tx.InstrumentID] = append(byInstrument[tx.InstrumentID], tx)
	}

	// Replay instruments in a fixed order so output is deterministic
	ids := make([]string, 0, len(byInstrument))
	for id := range byInstrument {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	buckets := make(map[string]*DayBucket)
	for _, id := range ids {
		if err := s.replayInstrument(byInstrument[id], from, buckets); err != nil {
			return nil, err
		}
	}

	// Sparse, date-ascending output
	result := make([]DayBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Profit = b.Profit.Round(positions.MoneyScale)
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })

	return result, nil
}

// replayInstrument folds one instrument's history from zero, filling the
// shared bucket map for events whose effective date is >= from. The
// transactions arrive already truncated at the range end.
func (s *Service) replayInstrument(txs []ledger.Transaction, from time.Time, buckets map[string]*DayBucket) error {
	state := ledger.ZeroState()
	for _, tx := range txs {
		avgBefore := state.AvgCost

		effect, err := state.Apply(tx)
		if err != nil {
			return fmt.Errorf("failed to replay transaction %d: %w", tx.ID, err)
		}
		state = effect.State

		if tx.EffectiveDate.Before(from) {
			continue
		}

		switch tx.Kind {
		case ledger.KindSell:
			bucket := bucketFor(buckets, tx.DateKey())
			bucket.Profit = bucket.Profit.Add(effect.Realized)
			if effect.Realized.IsNegative() {
				bucket.LossDetails = append(bucket.LossDetails, s.lossDetail(tx, avgBefore, effect.Realized))
			}
		case ledger.KindIncome:
			bucket := bucketFor(buckets, tx.DateKey())
			bucket.Profit = bucket.Profit.Add(effect.Realized)
		}
	}
	return nil
}

func (s *Service) lossDetail(tx ledger.Transaction, avgCostAtSale, realized decimal.Decimal) LossDetail {
	detail := LossDetail{
		InstrumentID:  tx.InstrumentID,
		Quantity:      tx.Quantity.Round(positions.ShareScale),
		UnitPrice:     tx.TotalAmount.Div(*tx.Quantity).Round(positions.ShareScale),
		AvgCostAtSale: avgCostAtSale.Round(positions.ShareScale),
		TotalAmount:   tx.TotalAmount.Round(positions.MoneyScale),
		Loss:          realized.Neg().Round(positions.MoneyScale),
	}

	if s.registry != nil {
		if inst, err := s.registry.GetByID(tx.InstrumentID); err == nil {
			detail.Symbol = inst.Symbol
		}
	}

	return detail
}

func bucketFor(buckets map[string]*DayBucket, date string) *DayBucket {
	b, ok := buckets[date]
	if !ok {
		b = &DayBucket{Date: date, Profit: decimal.Zero, LossDetails: []LossDetail{}}
		buckets[date] = b
	}
	return b
}
