package positions

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/costbook/internal/modules/instruments"
	"github.com/aristath/costbook/internal/modules/ledger"
)

// TransactionSource is the slice of the transaction store the coordinator
// consumes. Defined here so tests can substitute a failing store.
type TransactionSource interface {
	GetOrderedByInstrument(instrumentID string) ([]ledger.Transaction, error)
}

// InstrumentRegistry is the slice of the instrument registry the
// coordinator consumes
type InstrumentRegistry interface {
	Exists(id string) (bool, error)
	GetAll() ([]instruments.Instrument, error)
}

// AggregateStore persists position aggregates as whole-row replacements
type AggregateStore interface {
	Get(instrumentID string) (*Aggregate, error)
	GetAll() ([]Aggregate, error)
	Replace(agg Aggregate) error
	Delete(instrumentID string) error
}

// Service is the aggregate recomputation coordinator. Every transaction
// mutation funnels through Recompute, which re-derives the instrument's
// aggregate from scratch and replaces the cached row.
//
// Full replay instead of incremental patching is deliberate: a SELL is
// costed at the average cost at that point in history, so editing or
// deleting an earlier transaction changes every later average-cost value.
// An incremental "undo old delta, apply new delta" update cannot unwind
// that dependency; replaying from zero sidesteps it entirely.
type Service struct {
	txSource TransactionSource
	registry InstrumentRegistry
	store    AggregateStore
	log      zerolog.Logger

	// Per-instrument locks serializing fetch -> fold -> persist. Without
	// this, two concurrent mutations on one instrument can interleave a
	// stale fetch with a later write and silently revert the aggregate.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new recompute coordinator
func NewService(txSource TransactionSource, registry InstrumentRegistry, store AggregateStore, log zerolog.Logger) *Service {
	return &Service{
		txSource: txSource,
		registry: registry,
		store:    store,
		log:      log.With().Str("service", "positions").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing recomputes for one instrument.
// Recomputation across different instruments stays fully independent.
func (s *Service) lockFor(instrumentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[instrumentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[instrumentID] = lock
	}
	return lock
}

// Recompute re-derives the instrument's aggregate from its full
// transaction history and replaces the cached row. It runs synchronously:
// when it returns, the stored aggregate reflects the current log.
//
// On any failure the previous aggregate row is left untouched - a partial
// or zeroed aggregate is never persisted.
func (s *Service) Recompute(instrumentID string) (*Aggregate, error) {
	exists, err := s.registry.Exists(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check instrument: %w", err)
	}
	if !exists {
		return nil, instruments.ErrInstrumentNotFound
	}

	lock := s.lockFor(instrumentID)
	lock.Lock()
	defer lock.Unlock()

	txs, err := s.txSource.GetOrderedByInstrument(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for recompute: %w", err)
	}

	state, err := ledger.Replay(txs)
	if err != nil {
		return nil, fmt.Errorf("failed to replay transactions for %s: %w", instrumentID, err)
	}

	agg := NewAggregate(instrumentID, state, len(txs), time.Now())
	if err := s.store.Replace(agg); err != nil {
		return nil, fmt.Errorf("failed to persist aggregate for %s: %w", instrumentID, err)
	}

	s.log.Debug().
		Str("instrument_id", instrumentID).
		Int("tx_count", agg.TxCount).
		Str("shares", agg.TotalShares.String()).
		Str("realized", agg.RealizedProfit.String()).
		Msg("Position recomputed")

	return &agg, nil
}

// RecomputeAll recomputes every registered instrument. Per-instrument
// failures are recorded and skipped, never fatal to the batch.
func (s *Service) RecomputeAll() (*RecomputeAllResult, error) {
	all, err := s.registry.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	result := &RecomputeAllResult{Errors: []InstrumentError{}}
	for _, inst := range all {
		if _, err := s.Recompute(inst.ID); err != nil {
			s.log.Error().Err(err).Str("instrument_id", inst.ID).Msg("Recompute failed")
			result.Errors = append(result.Errors, InstrumentError{
				InstrumentID: inst.ID,
				Message:      err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	s.log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Errors)).
		Msg("Batch recompute finished")

	return result, nil
}

// GetAggregate returns the cached aggregate for an instrument. The cached
// row is only ever written by Recompute, so read-only callers get a value
// consistent with some complete replay.
func (s *Service) GetAggregate(instrumentID string) (*Aggregate, error) {
	exists, err := s.registry.Exists(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check instrument: %w", err)
	}
	if !exists {
		return nil, instruments.ErrInstrumentNotFound
	}

	agg, err := s.store.Get(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	if agg == nil {
		return nil, ErrAggregateNotFound
	}

	return agg, nil
}

// DropAggregate removes an instrument's cached aggregate. Used when the
// instrument itself is deregistered; the per-instrument lock keeps a
// concurrent recompute from resurrecting the row mid-delete.
func (s *Service) DropAggregate(instrumentID string) error {
	lock := s.lockFor(instrumentID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Delete(instrumentID); err != nil {
		return fmt.Errorf("failed to drop aggregate for %s: %w", instrumentID, err)
	}

	s.log.Info().Str("instrument_id", instrumentID).Msg("Position aggregate dropped")
	return nil
}

// GetAllAggregates returns every cached aggregate
func (s *Service) GetAllAggregates() ([]Aggregate, error) {
	return s.store.GetAll()
}
