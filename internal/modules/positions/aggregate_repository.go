package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// positionsColumns is the list of columns for the positions table.
// Column order must match scanAggregate() expectations.
const positionsColumns = `instrument_id, total_shares, total_invested, average_cost, realized_profit, tx_count, last_recomputed`

// AggregateRepository handles position aggregate database operations.
// Rows are only ever written as whole-row replacements by the recompute
// coordinator; no caller patches individual fields.
type AggregateRepository struct {
	portfolioDB *sql.DB // portfolio.db - positions table
	log         zerolog.Logger
}

// NewAggregateRepository creates a new aggregate repository
func NewAggregateRepository(portfolioDB *sql.DB, log zerolog.Logger) *AggregateRepository {
	return &AggregateRepository{
		portfolioDB: portfolioDB,
		log:         log.With().Str("repo", "aggregate").Logger(),
	}
}

// Get returns the cached aggregate for an instrument, or nil when no row
// exists yet
func (r *AggregateRepository) Get(instrumentID string) (*Aggregate, error) {
	query := "SELECT " + positionsColumns + " FROM positions WHERE instrument_id = ?"

	rows, err := r.portfolioDB.Query(query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position aggregate: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query position aggregate: %w", err)
		}
		return nil, nil
	}

	agg, err := scanAggregate(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position aggregate: %w", err)
	}

	return &agg, nil
}

// GetAll returns all cached aggregates
func (r *AggregateRepository) GetAll() ([]Aggregate, error) {
	query := "SELECT " + positionsColumns + " FROM positions ORDER BY instrument_id ASC"

	rows, err := r.portfolioDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query position aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []Aggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position aggregates: %w", err)
	}

	return aggs, nil
}

// Replace persists an aggregate as a full row replacement. Partial or
// merge updates are deliberately not offered: a cached aggregate is only
// valid as the complete output of one replay.
func (r *AggregateRepository) Replace(agg Aggregate) error {
	query := `
		INSERT OR REPLACE INTO positions
		(instrument_id, total_shares, total_invested, average_cost, realized_profit, tx_count, last_recomputed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.portfolioDB.Exec(query,
		agg.InstrumentID,
		agg.TotalShares.String(),
		agg.TotalInvested.String(),
		agg.AverageCost.String(),
		agg.RealizedProfit.String(),
		agg.TxCount,
		agg.LastRecomputed.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to replace position aggregate: %w", err)
	}

	r.log.Debug().
		Str("instrument_id", agg.InstrumentID).
		Str("shares", agg.TotalShares.String()).
		Str("invested", agg.TotalInvested.String()).
		Msg("Position aggregate replaced")
	return nil
}

// Delete removes an instrument's cached aggregate
func (r *AggregateRepository) Delete(instrumentID string) error {
	_, err := r.portfolioDB.Exec("DELETE FROM positions WHERE instrument_id = ?", instrumentID)
	if err != nil {
		return fmt.Errorf("failed to delete position aggregate: %w", err)
	}
	return nil
}

// scanAggregate scans a database row into an Aggregate
func scanAggregate(rows *sql.Rows) (Aggregate, error) {
	var agg Aggregate
	var shares, invested, avgCost, realized string
	var lastRecomputed int64

	err := rows.Scan(
		&agg.InstrumentID,
		&shares,
		&invested,
		&avgCost,
		&realized,
		&agg.TxCount,
		&lastRecomputed,
	)
	if err != nil {
		return agg, err
	}

	if agg.TotalShares, err = decimal.NewFromString(shares); err != nil {
		return agg, fmt.Errorf("invalid total_shares %q: %w", shares, err)
	}
	if agg.TotalInvested, err = decimal.NewFromString(invested); err != nil {
		return agg, fmt.Errorf("invalid total_invested %q: %w", invested, err)
	}
	if agg.AverageCost, err = decimal.NewFromString(avgCost); err != nil {
		return agg, fmt.Errorf("invalid average_cost %q: %w", avgCost, err)
	}
	if agg.RealizedProfit, err = decimal.NewFromString(realized); err != nil {
		return agg, fmt.Errorf("invalid realized_profit %q: %w", realized, err)
	}

	agg.LastRecomputed = time.Unix(lastRecomputed, 0).UTC()
	return agg, nil
}
