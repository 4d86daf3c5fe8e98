package instruments

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

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
			kind TEXT NOT NULL,
			effective_date INTEGER NOT NULL,
			quantity TEXT,
			total_amount TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	return db
}

func newTestRepo(t *testing.T) (*Repository, *sql.DB) {
	db := setupTestDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, log), db
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	inst := Instrument{Symbol: " vusa ", Name: "Vanguard S&P 500"}
	require.NoError(t, repo.Create(&inst))
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, "VUSA", inst.Symbol, "symbol is normalized on create")
	assert.Equal(t, "EUR", inst.Currency, "currency defaults to EUR")

	got, err := repo.GetByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
	assert.Equal(t, "VUSA", got.Symbol)
	assert.Equal(t, "Vanguard S&P 500", got.Name)

	bySym, err := repo.GetBySymbol("vusa")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, bySym.ID)
}

func TestRepository_CreateRequiresSymbol(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	inst := Instrument{Symbol: "   "}
	err := repo.Create(&inst)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRepository_CreateRejectsDuplicateSymbol(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	first := Instrument{Symbol: "VUSA"}
	require.NoError(t, repo.Create(&first))

	// Same symbol after normalization
	dup := Instrument{Symbol: " vusa "}
	err := repo.Create(&dup)
	assert.ErrorIs(t, err, ErrSymbolTaken)
}

func TestRepository_DeleteWithHistory(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	inst := Instrument{Symbol: "VUSA"}
	require.NoError(t, repo.Create(&inst))
	other := Instrument{Symbol: "VWCE"}
	require.NoError(t, repo.Create(&other))

	// Seed transaction rows for both instruments
	for _, id := range []string{inst.ID, inst.ID, other.ID} {
		_, err := db.Exec(
			"INSERT INTO transactions (instrument_id, kind, effective_date, quantity, total_amount, created_at) VALUES (?, 'BUY', 0, '1', '100', 0)",
			id,
		)
		require.NoError(t, err)
	}

	require.NoError(t, repo.DeleteWithHistory(inst.ID))

	_, err := repo.GetByID(inst.ID)
	assert.ErrorIs(t, err, ErrInstrumentNotFound)

	// The deleted instrument's log is gone, the other instrument's is not
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions WHERE instrument_id = ?", inst.ID).Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM transactions WHERE instrument_id = ?", other.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRepository_DeleteWithHistory_NotFound(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	assert.ErrorIs(t, repo.DeleteWithHistory("ghost"), ErrInstrumentNotFound)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	_, err := repo.GetByID("missing")
	assert.ErrorIs(t, err, ErrInstrumentNotFound)

	_, err = repo.GetBySymbol("MISSING")
	assert.ErrorIs(t, err, ErrInstrumentNotFound)
}

func TestRepository_GetAll(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	a := Instrument{Symbol: "AAA"}
	require.NoError(t, repo.Create(&a))
	b := Instrument{Symbol: "BBB", Currency: "USD"}
	require.NoError(t, repo.Create(&b))

	all, err = repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)

	bySymbol := map[string]Instrument{}
	for _, inst := range all {
		bySymbol[inst.Symbol] = inst
	}
	assert.Equal(t, "EUR", bySymbol["AAA"].Currency)
	assert.Equal(t, "USD", bySymbol["BBB"].Currency)
}

func TestRepository_Exists(t *testing.T) {
	repo, db := newTestRepo(t)
	defer db.Close()

	ok, err := repo.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	inst := Instrument{Symbol: "AAA"}
	require.NoError(t, repo.Create(&inst))

	ok, err = repo.Exists(inst.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
