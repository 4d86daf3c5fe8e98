package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// transactionsColumns is the list of columns for the transactions table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanTransaction() expectations.
const transactionsColumns = `id, instrument_id, kind, effective_date, quantity, total_amount, note, created_at`

// TransactionRepository handles transaction log database operations.
// It is the only writer to the transactions table; replays consume its
// ordered reads and never write back.
type TransactionRepository struct {
	ledgerDB *sql.DB // ledger.db - transactions table
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transaction").Logger(),
	}
}

// Create inserts a new transaction record. The transaction is validated
// before insertion; the assigned id (the insertion-order tie-break) and
// creation time are written back into tx.
func (r *TransactionRepository) Create(tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	now := time.Now().UTC()
	tx.EffectiveDate = NormalizeDate(tx.EffectiveDate)

	query := `
		INSERT INTO transactions
		(instrument_id, kind, effective_date, quantity, total_amount, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.ledgerDB.Exec(query,
		tx.InstrumentID,
		string(tx.Kind),
		tx.EffectiveDate.Unix(),
		nullDecimal(tx.Quantity),
		tx.TotalAmount.String(),
		tx.Note,
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	tx.ID = id
	tx.CreatedAt = now

	r.log.Info().
		Int64("id", tx.ID).
		Str("instrument_id", tx.InstrumentID).
		Str("kind", string(tx.Kind)).
		Str("date", tx.DateKey()).
		Msg("Transaction created")

	return nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(id int64) (*Transaction, error) {
	query := "SELECT " + transactionsColumns + " FROM transactions WHERE id = ?"

	row := r.ledgerDB.QueryRow(query, id)
	tx, err := scanTransactionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}

	return &tx, nil
}

// GetOrderedByInstrument retrieves every transaction for an instrument in
// replay order: ascending effective date, insertion order as tie-break.
// This ordering is mandatory for correctness - moving-average costing is
// non-commutative, so same-date events must fold in a fixed order.
func (r *TransactionRepository) GetOrderedByInstrument(instrumentID string) ([]Transaction, error) {
	query := `
		SELECT ` + transactionsColumns + ` FROM transactions
		WHERE instrument_id = ?
		ORDER BY effective_date ASC, id ASC
	`

	rows, err := r.ledgerDB.Query(query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for instrument: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// GetAllUpTo retrieves all transactions with effective_date <= to, in
// replay order, optionally restricted to one instrument. The report
// engine uses this: one query gives it a consistent snapshot across all
// instruments inside its filter.
func (r *TransactionRepository) GetAllUpTo(to time.Time, instrumentID string) ([]Transaction, error) {
	toUnix := endOfDay(to)

	var rows *sql.Rows
	var err error
	if instrumentID != "" {
		query := `
			SELECT ` + transactionsColumns + ` FROM transactions
			WHERE instrument_id = ? AND effective_date <= ?
			ORDER BY effective_date ASC, id ASC
		`
		rows, err = r.ledgerDB.Query(query, instrumentID, toUnix)
	} else {
		query := `
			SELECT ` + transactionsColumns + ` FROM transactions
			WHERE effective_date <= ?
			ORDER BY effective_date ASC, id ASC
		`
		rows, err = r.ledgerDB.Query(query, toUnix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions up to date: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// Update replaces a transaction's mutable fields by id. The id itself is
// never reassigned - it stays the insertion-order tie-break even when the
// effective date moves.
func (r *TransactionRepository) Update(tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	tx.EffectiveDate = NormalizeDate(tx.EffectiveDate)

	query := `
		UPDATE transactions
		SET instrument_id = ?, kind = ?, effective_date = ?, quantity = ?, total_amount = ?, note = ?
		WHERE id = ?
	`

	result, err := r.ledgerDB.Exec(query,
		tx.InstrumentID,
		string(tx.Kind),
		tx.EffectiveDate.Unix(),
		nullDecimal(tx.Quantity),
		tx.TotalAmount.String(),
		tx.Note,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	r.log.Info().Int64("id", tx.ID).Str("instrument_id", tx.InstrumentID).Msg("Transaction updated")
	return nil
}

// Delete removes a transaction by id
func (r *TransactionRepository) Delete(id int64) error {
	result, err := r.ledgerDB.Exec("DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	r.log.Info().Int64("id", id).Msg("Transaction deleted")
	return nil
}

// CountByInstrument returns the number of transactions for an instrument
func (r *TransactionRepository) CountByInstrument(instrumentID string) (int, error) {
	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM transactions WHERE instrument_id = ?",
		instrumentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Helper functions

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var tx Transaction
	var kind string
	var effectiveDate, createdAt int64
	var quantity sql.NullString
	var totalAmount string

	err := rows.Scan(
		&tx.ID,
		&tx.InstrumentID,
		&kind,
		&effectiveDate,
		&quantity,
		&totalAmount,
		&tx.Note,
		&createdAt,
	)
	if err != nil {
		return tx, err
	}

	return decodeTransaction(tx, kind, effectiveDate, createdAt, quantity, totalAmount)
}

func scanTransactionRow(row *sql.Row) (Transaction, error) {
	var tx Transaction
	var kind string
	var effectiveDate, createdAt int64
	var quantity sql.NullString
	var totalAmount string

	err := row.Scan(
		&tx.ID,
		&tx.InstrumentID,
		&kind,
		&effectiveDate,
		&quantity,
		&totalAmount,
		&tx.Note,
		&createdAt,
	)
	if err != nil {
		return tx, err
	}

	return decodeTransaction(tx, kind, effectiveDate, createdAt, quantity, totalAmount)
}

func decodeTransaction(tx Transaction, kind string, effectiveDate, createdAt int64, quantity sql.NullString, totalAmount string) (Transaction, error) {
	k, err := KindFromString(kind)
	if err != nil {
		return tx, err
	}
	tx.Kind = k

	tx.EffectiveDate = time.Unix(effectiveDate, 0).UTC()
	tx.CreatedAt = time.Unix(createdAt, 0).UTC()

	if quantity.Valid {
		q, err := decimal.NewFromString(quantity.String)
		if err != nil {
			return tx, fmt.Errorf("invalid quantity %q on transaction %d: %w", quantity.String, tx.ID, err)
		}
		tx.Quantity = &q
	}

	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return tx, fmt.Errorf("invalid total_amount %q on transaction %d: %w", totalAmount, tx.ID, err)
	}
	tx.TotalAmount = amount

	return tx, nil
}

// nullDecimal converts an optional decimal into its nullable string form
func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// endOfDay returns the last second of the given date in Unix time, so
// date-inclusive range filters match every normalized effective date on
// that day.
func endOfDay(ts time.Time) int64 {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 23, 59, 59, 0, time.UTC).Unix()
}
