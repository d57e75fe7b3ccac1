package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := persistence.OpenInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestRecordAndAll(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(models.TradeRecord{
		Market: "crypto", Symbol: "BTCUSDT", PnL: 120, Time: base.Add(2 * time.Hour),
	}))
	require.NoError(t, store.Record(models.TradeRecord{
		Market: "crypto", Symbol: "ETHUSDT", PnL: -40, Time: base,
	}))
	require.NoError(t, store.Record(models.TradeRecord{
		Market: "stocks", Symbol: "AAPL", PnL: 10, Time: base.Add(time.Hour),
	}))

	trades, err := store.All("crypto")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// Time-ordered regardless of insertion order.
	assert.Equal(t, "ETHUSDT", trades[0].Symbol)
	assert.Equal(t, "BTCUSDT", trades[1].Symbol)
	for _, tr := range trades {
		assert.NotEmpty(t, tr.ID)
	}
}

func TestSinceSeeksCutoff(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(models.TradeRecord{
			Market: "crypto", Symbol: "BTCUSDT", PnL: float64(i),
			Time: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	trades, err := store.Since("crypto", base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 3.0, trades[0].PnL)
	assert.Equal(t, 4.0, trades[1].PnL)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	pnls := []float64{100, -50, 30, 0}
	for i, p := range pnls {
		require.NoError(t, store.Record(models.TradeRecord{
			Market: "crypto", Symbol: "BTCUSDT", PnL: p,
			Time: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	stats, err := store.Stats("crypto")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 80.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)

	empty, err := store.Stats("stocks")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.WinRate)
}
