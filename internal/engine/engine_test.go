package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"regime-trade-bot-go/internal/exchange"
	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/preset"
)

type memRecorder struct {
	trades []models.TradeRecord
}

func (m *memRecorder) Record(t models.TradeRecord) error {
	m.trades = append(m.trades, t)
	return nil
}

func testEngine(t *testing.T, paper *exchange.PaperExchange) (*Engine, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	eng := New("test", paper, paper, rec, zap.NewNop().Sugar())
	return eng, rec
}

// closedCandle builds a bar whose interval has already elapsed relative
// to the fixed test clock.
var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func closedCandle(barsAgo int, tf models.Timeframe, open, high, low, close, volume float64) models.Candle {
	openTime := testNow.Add(-time.Duration(barsAgo) * tf.Duration())
	return models.Candle{
		OpenTime: openTime.UnixMilli(),
		Open:     open, High: high, Low: low, Close: close, Volume: volume,
	}
}

func TestShouldEvaluate(t *testing.T) {
	tf := models.Timeframe15m
	pos := &models.Position{}

	closed := []models.Candle{closedCandle(2, tf, 100, 101, 99, 100, 10)}
	assert.True(t, ShouldEvaluate(closed, pos, tf, testNow))

	// The newest bar is still forming.
	forming := []models.Candle{{OpenTime: testNow.Add(-time.Minute).UnixMilli(), Close: 100}}
	assert.False(t, ShouldEvaluate(forming, pos, tf, testNow))

	// Already evaluated on this bar.
	pos.LastEvaluatedAt = closed[0].OpenTime
	assert.False(t, ShouldEvaluate(closed, pos, tf, testNow))

	assert.False(t, ShouldEvaluate(nil, pos, tf, testNow))
}

func TestPercentTrailingScenario(t *testing.T) {
	cfg := preset.ExitConfig{
		StopLossPct:      0.012,
		TakeProfitPct:    0.024,
		TrailStartPct:    0.012,
		TrailDistancePct: 0.006,
	}
	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100}

	// 100: nothing armed, no exit.
	assert.False(t, evalPercentExit(cfg, pos, 100))

	// 101.3 arms the trailing stop (>= 101.2) but stays above it.
	pos.MaxPrice = 101.3
	assert.False(t, evalPercentExit(cfg, pos, 101.3))

	// 103 is above the take profit level, raw exit is on.
	pos.MaxPrice = 103
	assert.True(t, evalPercentExit(cfg, pos, 103))

	// 101 is under the trailed stop 103*(1-0.006), raw exit fires.
	assert.True(t, evalPercentExit(cfg, pos, 101))
}

func TestPercentStopBeforeTrailingArms(t *testing.T) {
	cfg := preset.ExitConfig{
		StopLossPct:      0.012,
		TakeProfitPct:    0.024,
		TrailStartPct:    0.012,
		TrailDistancePct: 0.006,
	}
	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100.5}

	// Above the base stop, below trail start: no exit.
	assert.False(t, evalPercentExit(cfg, pos, 99))
	// Through the base stop.
	assert.True(t, evalPercentExit(cfg, pos, 98.7))
}

func TestGreenCandleBlocksTriggeredExit(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 0)
	paper.SetBalance("BTC", 1)
	eng, rec := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	// Price collapsed through the stop but the last bar is green.
	candles := []models.Candle{
		closedCandle(2, tf, 100, 101, 95, 96, 10),
		closedCandle(1, tf, 95, 98.5, 94, 98, 10), // green
	}
	paper.SetCandles("BTCUSDT", candles)

	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100}
	opts := EvalOptions{
		Symbol: "BTCUSDT", Quote: "USDT", Timeframe: tf,
		Exit: preset.ExitConfig{
			StopLossPct: 0.012, TakeProfitPct: 0.024,
			TrailStartPct: 0.012, TrailDistancePct: 0.006,
			CandleExitEnabled: true, CandleRedTriggerPct: 0.4,
		},
	}

	require.NoError(t, eng.handleExit(context.Background(), opts, pos, candles))
	assert.True(t, pos.HasPosition, "green candle must block the exit")
	assert.Empty(t, rec.trades)

	// Same levels with a decisive red bar: the exit fires.
	candles[1] = closedCandle(1, tf, 99, 99.5, 94, 95, 10) // red, body 4 vs prev body 4
	paper.SetCandles("BTCUSDT", candles)
	require.NoError(t, eng.handleExit(context.Background(), opts, pos, candles))
	assert.False(t, pos.HasPosition)
	require.Len(t, rec.trades, 1)
	assert.InDelta(t, -5.0, rec.trades[0].PnL, 1e-9)
}

func TestSellAllOverridesCandleGate(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 0)
	paper.SetBalance("BTC", 2)
	eng, rec := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	// Price is fine and the bar is green: no organic exit signal at all.
	candles := []models.Candle{
		closedCandle(2, tf, 100, 101, 99, 100, 10),
		closedCandle(1, tf, 100, 102, 99.5, 101.5, 10),
	}
	paper.SetCandles("BTCUSDT", candles)

	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 2, MaxPrice: 100}
	opts := EvalOptions{
		Symbol: "BTCUSDT", Quote: "USDT", Timeframe: tf,
		SellAll: true,
		Exit: preset.ExitConfig{
			StopLossPct: 0.012, TakeProfitPct: 0.5,
			CandleExitEnabled: true, CandleRedTriggerPct: 0.4,
		},
	}

	require.NoError(t, eng.handleExit(context.Background(), opts, pos, candles))
	assert.False(t, pos.HasPosition)
	require.Len(t, rec.trades, 1)
	assert.InDelta(t, 3.0, rec.trades[0].PnL, 1e-9)
}

func TestATRExitFreezesEntryATRAndTrailsMonotonically(t *testing.T) {
	tf := models.Timeframe15m
	eng, _ := testEngine(t, exchange.NewPaperExchange("USDT", 0))
	eng.now = func() time.Time { return testNow }

	mkCandles := func(n int, base, rng float64) []models.Candle {
		out := make([]models.Candle, n)
		for i := range out {
			out[i] = closedCandle(n-i, tf, base, base+rng/2, base-rng/2, base, 10)
		}
		return out
	}

	p := &preset.ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 2.0, TakeProfitR: 10,
		TrailStartR: 1.0, TrailATRMult: 1.5,
	}
	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100}

	// First evaluation freezes EntryATR at the current ATR (range 2 => ATR 2).
	candles := mkCandles(30, 100, 2)
	assert.False(t, eng.evalATRExit(p, pos, candles, 100))
	require.InDelta(t, 2.0, pos.EntryATR, 1e-9)
	assert.InDelta(t, 96.0, pos.InitialStop, 1e-9) // 100 - 2*2
	assert.InDelta(t, 4.0, pos.EntryR, 1e-9)

	// Later bars are wilder, but the frozen R must not change.
	candles = mkCandles(30, 100, 8)
	assert.False(t, eng.evalATRExit(p, pos, candles, 103))
	assert.InDelta(t, 2.0, pos.EntryATR, 1e-9)
	assert.InDelta(t, 4.0, pos.EntryR, 1e-9)

	// Price over entry+R arms the trail: stop = price - entryATR*1.5.
	assert.False(t, eng.evalATRExit(p, pos, candles, 105))
	assert.InDelta(t, 102.0, pos.TrailingStop, 1e-9)

	// A pullback never lowers the trailing stop.
	assert.False(t, eng.evalATRExit(p, pos, candles, 104.5))
	assert.InDelta(t, 102.0, pos.TrailingStop, 1e-9)

	// Dropping through the trailed stop raises the raw exit.
	assert.True(t, eng.evalATRExit(p, pos, candles, 101.5))
}

func TestATRTimeStop(t *testing.T) {
	tf := models.Timeframe15m
	eng, _ := testEngine(t, exchange.NewPaperExchange("USDT", 0))

	p := &preset.ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 2.0,
		TimeStopBars: 5, TimeStopMinR: 0.5,
	}
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = closedCandle(30-i, tf, 100, 101, 99, 100, 10)
	}
	entryBar := candles[20].OpenTime

	pos := &models.Position{
		HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100,
		EntryBarTs: entryBar,
	}

	// Nine bars elapsed, price below entry + 0.5R => stale trade exits.
	assert.True(t, eng.evalATRExit(p, pos, candles, 100.2))

	// Same age but above the minimum R multiple keeps the trade.
	pos2 := &models.Position{
		HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 103,
		EntryBarTs: entryBar, EntryATR: 2, EntryR: 4, InitialStop: 96,
	}
	assert.False(t, eng.evalATRExit(p, pos2, candles, 102.5))
}

func TestBreakoutInvalidation(t *testing.T) {
	tf := models.Timeframe15m
	eng, _ := testEngine(t, exchange.NewPaperExchange("USDT", 0))

	p := &preset.ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 2.0, InvalidationBars: 3,
	}
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = closedCandle(30-i, tf, 100, 101, 99, 100, 10)
	}

	pos := &models.Position{
		HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100,
		EntryBarTs:    candles[27].OpenTime, // two bars since entry
		BreakoutLevel: 99.8,
	}
	// Inside the window and back under the breakout level.
	assert.True(t, eng.evalATRExit(p, pos, candles, 99.5))

	// Outside the window the invalidation no longer applies.
	pos.EntryBarTs = candles[10].OpenTime
	pos.TrailingStop = 0
	assert.False(t, eng.evalATRExit(p, pos, candles, 99.5))
}

func TestEvaluateSymbolOpensOnGoldenCross(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 10_000)
	eng, _ := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	// Declining closes, then a surge: fast SMA(2) crosses slow SMA(3).
	closes := []float64{5, 4, 3, 2, 1, 10}
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = closedCandle(len(closes)-i, tf, c, c+0.1, c-0.1, c, 10)
	}
	paper.SetCandles("ETHUSDT", candles)

	entry, err := preset.ResolveEntry(1, 2, 3)
	require.NoError(t, err)

	pos := &models.Position{}
	lastPrices := map[string]float64{}
	opts := EvalOptions{
		Symbol: "ETHUSDT", Quote: "USDT", Timeframe: tf, KlinesLimit: 50,
		AllowEntries: true, StrategyID: 1, Entry: entry,
		OrderFraction: 0.5,
		Exit:          preset.ExitConfig{StopLossPct: 0.012, TakeProfitPct: 0.024},
	}

	require.NoError(t, eng.EvaluateSymbol(context.Background(), opts, pos, lastPrices))
	assert.True(t, pos.HasPosition)
	assert.Equal(t, 10.0, pos.EntryPrice)
	assert.Equal(t, models.StopModelPercent, pos.StopModel)
	assert.Equal(t, 10.0, lastPrices["ETHUSDT"])
	assert.Equal(t, candles[len(candles)-1].OpenTime, pos.LastEvaluatedAt)
	require.Len(t, paper.Fills(), 1)
	assert.InDelta(t, 500.0, paper.Fills()[0].Qty*paper.Fills()[0].Price, 1e-6)

	// The same bar must not be evaluated twice.
	fillsBefore := len(paper.Fills())
	require.NoError(t, eng.EvaluateSymbol(context.Background(), opts, pos, lastPrices))
	assert.Len(t, paper.Fills(), fillsBefore)
}

func TestClosedTradeKeepsOpeningPresetIDs(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 10_000)
	eng, rec := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	closes := []float64{5, 4, 3, 2, 1, 10}
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = closedCandle(len(closes)-i, tf, c, c+0.1, c-0.1, c, 10)
	}
	paper.SetCandles("ETHUSDT", candles)

	entry, err := preset.ResolveEntry(1, 2, 3)
	require.NoError(t, err)

	pos := &models.Position{}
	open := EvalOptions{
		Symbol: "ETHUSDT", Quote: "USDT", Timeframe: tf, KlinesLimit: 50,
		AllowEntries: true, StrategyID: 1, Entry: entry,
		Exit:          preset.ExitConfig{StopLossPct: 0.012, TakeProfitPct: 0.024},
		ExitPresetID:  3,
		OrderFraction: 0.5,
	}
	require.NoError(t, eng.EvaluateSymbol(context.Background(), open, pos, map[string]float64{}))
	require.True(t, pos.HasPosition)
	assert.Equal(t, 1, pos.EntryPresetID)
	assert.Equal(t, 3, pos.ExitPresetID)

	// A rebinding on later cycles must not rewrite the attribution the
	// trade was opened under.
	liquidate := open
	liquidate.AllowEntries = false
	liquidate.ExitPresetID = 5
	liquidate.SellAll = true
	require.NoError(t, eng.handleExit(context.Background(), liquidate, pos, candles))

	assert.False(t, pos.HasPosition)
	require.Len(t, rec.trades, 1)
	assert.Equal(t, 1, rec.trades[0].EntryPresetID)
	assert.Equal(t, 3, rec.trades[0].ExitPresetID)
}

func TestEvaluateSymbolKillSwitch(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 10_000)
	eng, _ := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	closes := []float64{5, 4, 3, 2, 1, 10}
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = closedCandle(len(closes)-i, tf, c, c+0.1, c-0.1, c, 10)
	}
	paper.SetCandles("ETHUSDT", candles)

	entry, err := preset.ResolveEntry(1, 2, 3)
	require.NoError(t, err)

	pos := &models.Position{}
	opts := EvalOptions{
		Symbol: "ETHUSDT", Quote: "USDT", Timeframe: tf, KlinesLimit: 50,
		AllowEntries: true, KillSwitch: true, StrategyID: 1, Entry: entry,
		OrderFraction: 0.5,
	}

	require.NoError(t, eng.EvaluateSymbol(context.Background(), opts, pos, map[string]float64{}))
	assert.False(t, pos.HasPosition)
	assert.Empty(t, paper.Fills())
}

func TestDisabledCandleGateConfirmsImmediately(t *testing.T) {
	tf := models.Timeframe15m
	paper := exchange.NewPaperExchange("USDT", 0)
	paper.SetBalance("BTC", 1)
	eng, rec := testEngine(t, paper)
	eng.now = func() time.Time { return testNow }

	// Stop hit on a green candle, but the gate is disabled.
	candles := []models.Candle{
		closedCandle(2, tf, 100, 101, 95, 96, 10),
		closedCandle(1, tf, 95, 98.5, 94, 98, 10),
	}
	paper.SetCandles("BTCUSDT", candles)

	pos := &models.Position{HasPosition: true, EntryPrice: 100, Qty: 1, MaxPrice: 100}
	opts := EvalOptions{
		Symbol: "BTCUSDT", Quote: "USDT", Timeframe: tf,
		Exit: preset.ExitConfig{StopLossPct: 0.012, TakeProfitPct: 0.024},
	}

	require.NoError(t, eng.handleExit(context.Background(), opts, pos, candles))
	assert.False(t, pos.HasPosition)
	assert.Len(t, rec.trades, 1)
}
