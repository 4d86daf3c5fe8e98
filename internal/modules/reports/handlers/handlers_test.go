package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/costbook/internal/modules/instruments"
	"github.com/aristath/costbook/internal/modules/ledger"
	"github.com/aristath/costbook/internal/modules/reports"
)

func setupTestRouter(t *testing.T) chi.Router {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE instruments (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'EUR',
			created_at INTEGER NOT NULL
		);
		CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('BUY', 'SELL', 'INCOME')),
			effective_date INTEGER NOT NULL,
			quantity TEXT,
			total_amount TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	log := zerolog.Nop()
	instRepo := instruments.NewRepository(db, log)
	txRepo := ledger.NewTransactionRepository(db, log)

	inst := instruments.Instrument{Symbol: "VUSA"}
	require.NoError(t, instRepo.Create(&inst))

	mustCreate := func(kind ledger.Kind, day, quantity, amount string) {
		ts, err := ledger.ParseDate(day)
		require.NoError(t, err)
		tx := ledger.Transaction{InstrumentID: inst.ID, Kind: kind, EffectiveDate: ts, TotalAmount: mustDecimal(amount)}
		if quantity != "" {
			q := mustDecimal(quantity)
			tx.Quantity = &q
		}
		require.NoError(t, txRepo.Create(&tx))
	}

	mustCreate(ledger.KindBuy, "2024-01-02", "100", "50000")
	mustCreate(ledger.KindSell, "2024-01-10", "75", "52500")
	mustCreate(ledger.KindIncome, "2024-01-15", "", "500")

	router := chi.NewRouter()
	NewHandler(reports.NewService(txRepo, instRepo, log), log).RegisterRoutes(router)
	return router
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func get(t *testing.T, router chi.Router, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleDaywise(t *testing.T) {
	router := setupTestRouter(t)

	w := get(t, router, "/reports/daywise?from=2024-01-01&to=2024-01-31")
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var buckets []reports.DayBucket
	require.NoError(t, json.NewDecoder(w.Body).Decode(&buckets))
	require.Len(t, buckets, 2)
	assert.Equal(t, "2024-01-10", buckets[0].Date)
	assert.Equal(t, "2024-01-15", buckets[1].Date)
}

func TestHandleDaywise_ParamValidation(t *testing.T) {
	router := setupTestRouter(t)

	cases := []struct {
		name string
		url  string
	}{
		{"missing params", "/reports/daywise"},
		{"missing to", "/reports/daywise?from=2024-01-01"},
		{"bad date format", "/reports/daywise?from=01/01/2024&to=2024-01-31"},
		{"reversed range", "/reports/daywise?from=2024-02-01&to=2024-01-01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(t, router, tc.url)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
