package positions

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE positions (
			instrument_id TEXT PRIMARY KEY,
			total_shares TEXT NOT NULL,
			total_invested TEXT NOT NULL,
			average_cost TEXT NOT NULL,
			realized_profit TEXT NOT NULL,
			tx_count INTEGER NOT NULL DEFAULT 0,
			last_recomputed INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func newTestAggRepo(t *testing.T) (*AggregateRepository, *sql.DB) {
	db := setupTestDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewAggregateRepository(db, log), db
}

func testAggregate(instrumentID string) Aggregate {
	return Aggregate{
		InstrumentID:   instrumentID,
		TotalShares:    d("75"),
		TotalInvested:  d("40000.00"),
		AverageCost:    d("533.33333333"),
		RealizedProfit: d("13000.00"),
		TxCount:        4,
		LastRecomputed: time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC),
	}
}

func TestAggregateRepository_ReplaceAndGet(t *testing.T) {
	repo, db := newTestAggRepo(t)
	defer db.Close()

	require.NoError(t, repo.Replace(testAggregate("inst-1")))

	got, err := repo.Get("inst-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalShares.Equal(d("75")))
	assert.True(t, got.TotalInvested.Equal(d("40000")))
	assert.True(t, got.AverageCost.Equal(d("533.33333333")), "decimal text must round-trip exactly, got %s", got.AverageCost)
	assert.True(t, got.RealizedProfit.Equal(d("13000")))
	assert.Equal(t, 4, got.TxCount)
	assert.Equal(t, time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC), got.LastRecomputed)
}

func TestAggregateRepository_GetMissingReturnsNil(t *testing.T) {
	repo, db := newTestAggRepo(t)
	defer db.Close()

	got, err := repo.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestAggregateRepository_ReplaceOverwritesWholeRow checks that a second
// Replace leaves nothing of the first row behind.
func TestAggregateRepository_ReplaceOverwritesWholeRow(t *testing.T) {
	repo, db := newTestAggRepo(t)
	defer db.Close()

	require.NoError(t, repo.Replace(testAggregate("inst-1")))

	updated := Aggregate{
		InstrumentID:   "inst-1",
		TotalShares:    d("0"),
		TotalInvested:  d("0"),
		AverageCost:    d("0"),
		RealizedProfit: d("15500.00"),
		TxCount:        5,
		LastRecomputed: time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Replace(updated))

	got, err := repo.Get("inst-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalShares.IsZero())
	assert.True(t, got.TotalInvested.IsZero())
	assert.True(t, got.RealizedProfit.Equal(d("15500")))
	assert.Equal(t, 5, got.TxCount)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count))
	assert.Equal(t, 1, count, "replace must not duplicate rows")
}

func TestAggregateRepository_GetAll(t *testing.T) {
	repo, db := newTestAggRepo(t)
	defer db.Close()

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, repo.Replace(testAggregate("inst-b")))
	require.NoError(t, repo.Replace(testAggregate("inst-a")))

	all, err = repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "inst-a", all[0].InstrumentID, "ordered by instrument id")
	assert.Equal(t, "inst-b", all[1].InstrumentID)
}

func TestAggregateRepository_Delete(t *testing.T) {
	repo, db := newTestAggRepo(t)
	defer db.Close()

	require.NoError(t, repo.Replace(testAggregate("inst-1")))
	require.NoError(t, repo.Delete("inst-1"))

	got, err := repo.Get("inst-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent row is not an error
	assert.NoError(t, repo.Delete("inst-1"))
}
