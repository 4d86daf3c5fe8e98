package database

// Embedded schemas, keyed by database name. The ledger database is the
// authoritative record; the portfolio database holds derived aggregates
// and can be rebuilt from the ledger at any time.
var schemas = map[string]string{
	"ledger":    ledgerSchema,
	"portfolio": portfolioSchema,
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS instruments (
    id         TEXT PRIMARY KEY,
    symbol     TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL DEFAULT 'EUR',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    instrument_id  TEXT NOT NULL REFERENCES instruments(id),
    kind           TEXT NOT NULL CHECK(kind IN ('BUY','SELL','INCOME')),
    effective_date INTEGER NOT NULL,
    quantity       TEXT,
    total_amount   TEXT NOT NULL,
    note           TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_instrument_date
    ON transactions(instrument_id, effective_date, id);

CREATE INDEX IF NOT EXISTS idx_transactions_date
    ON transactions(effective_date);
`

const portfolioSchema = `
CREATE TABLE IF NOT EXISTS positions (
    instrument_id   TEXT PRIMARY KEY,
    total_shares    TEXT NOT NULL DEFAULT '0',
    total_invested  TEXT NOT NULL DEFAULT '0',
    average_cost    TEXT NOT NULL DEFAULT '0',
    realized_profit TEXT NOT NULL DEFAULT '0',
    tx_count        INTEGER NOT NULL DEFAULT 0,
    last_recomputed INTEGER NOT NULL
);
`
