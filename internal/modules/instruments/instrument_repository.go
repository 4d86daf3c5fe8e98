package instruments

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/costbook/internal/database"
)

// instrumentsColumns is the list of columns for the instruments table.
// Column order must match scanInstrument() expectations.
const instrumentsColumns = `id, symbol, name, currency, created_at`

// Repository handles instrument registry database operations
type Repository struct {
	ledgerDB *sql.DB // ledger.db - instruments table
	log      zerolog.Logger
}

// NewRepository creates a new instrument repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "instrument").Logger(),
	}
}

// Create registers a new instrument. A fresh uuid is assigned and written
// back into the struct along with the creation time.
func (r *Repository) Create(inst *Instrument) error {
	inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
	if inst.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if inst.Currency == "" {
		inst.Currency = "EUR"
	}

	inst.ID = uuid.NewString()
	inst.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO instruments (id, symbol, name, currency, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.ledgerDB.Exec(query,
		inst.ID,
		inst.Symbol,
		inst.Name,
		inst.Currency,
		inst.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrSymbolTaken, inst.Symbol)
		}
		return fmt.Errorf("failed to create instrument: %w", err)
	}

	r.log.Info().Str("id", inst.ID).Str("symbol", inst.Symbol).Msg("Instrument registered")
	return nil
}

// GetByID retrieves an instrument by id
func (r *Repository) GetByID(id string) (*Instrument, error) {
	query := "SELECT " + instrumentsColumns + " FROM instruments WHERE id = ?"

	row := r.ledgerDB.QueryRow(query, id)
	inst, err := scanInstrumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstrumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by id: %w", err)
	}

	return &inst, nil
}

// GetBySymbol retrieves an instrument by symbol
func (r *Repository) GetBySymbol(symbol string) (*Instrument, error) {
	query := "SELECT " + instrumentsColumns + " FROM instruments WHERE symbol = ?"

	row := r.ledgerDB.QueryRow(query, strings.ToUpper(strings.TrimSpace(symbol)))
	inst, err := scanInstrumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstrumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by symbol: %w", err)
	}

	return &inst, nil
}

// GetAll returns all registered instruments, oldest first
func (r *Repository) GetAll() ([]Instrument, error) {
	query := "SELECT " + instrumentsColumns + " FROM instruments ORDER BY created_at ASC, id ASC"

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

// DeleteWithHistory removes an instrument together with its entire
// transaction log in one database transaction. Either both disappear or
// neither does; a half-deleted instrument would leave orphaned log rows
// that replays could never reach.
func (r *Repository) DeleteWithHistory(id string) error {
	err := database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		result, err := tx.Exec("DELETE FROM instruments WHERE id = ?", id)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInstrumentNotFound
		}

		if _, err := tx.Exec("DELETE FROM transactions WHERE instrument_id = ?", id); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, ErrInstrumentNotFound) {
		return ErrInstrumentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete instrument: %w", err)
	}

	r.log.Info().Str("id", id).Msg("Instrument and transaction history deleted")
	return nil
}

// Exists checks whether an instrument id is registered
func (r *Repository) Exists(id string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM instruments WHERE id = ? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check instrument existence: %w", err)
	}
	return true, nil
}

// Helper methods

func scanInstrument(rows *sql.Rows) (Instrument, error) {
	var inst Instrument
	var createdAt int64

	err := rows.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Currency, &createdAt)
	if err != nil {
		return inst, err
	}

	inst.CreatedAt = time.Unix(createdAt, 0).UTC()
	return inst, nil
}

func scanInstrumentRow(row *sql.Row) (Instrument, error) {
	var inst Instrument
	var createdAt int64

	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Currency, &createdAt)
	if err != nil {
		return inst, err
	}

	inst.CreatedAt = time.Unix(createdAt, 0).UTC()
	return inst, nil
}
