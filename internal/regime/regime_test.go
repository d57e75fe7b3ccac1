package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trade-bot-go/internal/models"
)

func trendMetrics() Metrics {
	return Metrics{ATRRatio: 1.0, VolumeRatio: 1.0, RSI: 58, SlopePct: 0.15}
}

func TestClassifyTrend(t *testing.T) {
	cfg := DefaultSettings()
	res := classify(trendMetrics(), cfg)

	assert.Equal(t, Trend, res.Regime)
	assert.Equal(t, 1.0, res.Confidence)
	assert.True(t, res.Rules[Trend].Matched)
}

func TestClassifyBreakoutOutranksTrend(t *testing.T) {
	cfg := DefaultSettings()
	// Metrics satisfying breakout fully; trend fails on the RSI band.
	m := Metrics{ATRRatio: 1.5, VolumeRatio: 1.4, RSI: 70, SlopePct: 0.3}
	res := classify(m, cfg)

	assert.Equal(t, Breakout, res.Regime)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestClassifyPartialMatchFallsToNoTrade(t *testing.T) {
	cfg := DefaultSettings()
	// Two of three trend conditions met, nothing fully matched.
	m := Metrics{ATRRatio: 1.0, VolumeRatio: 1.0, RSI: 72, SlopePct: 0.15}
	res := classify(m, cfg)

	assert.Equal(t, NoTrade, res.Regime)
	assert.InDelta(t, 2.0/3.0, res.Confidence, 1e-9)
	assert.Contains(t, res.Reason, "no regime matched")
}

func TestClassifyConfidenceBounds(t *testing.T) {
	cfg := DefaultSettings()
	for _, m := range []Metrics{
		{},
		trendMetrics(),
		{ATRRatio: 2.0, VolumeRatio: 2.0, RSI: 80, SlopePct: 1.0},
	} {
		res := classify(m, cfg)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		for _, summary := range res.Rules {
			assert.GreaterOrEqual(t, summary.Confidence, 0.0)
			assert.LessOrEqual(t, summary.Confidence, 1.0)
		}
	}
}

func TestDetectMissingData(t *testing.T) {
	cfg := DefaultSettings()
	candles := make([]models.Candle, 50)
	res := Detect(candles, cfg)

	assert.Equal(t, NoTrade, res.Regime)
	assert.Contains(t, res.Reason, "missing data")
}

func TestDetectIsPure(t *testing.T) {
	cfg := DefaultSettings()
	candles := make([]models.Candle, 0, 260)
	price := 100.0
	for i := 0; i < 260; i++ {
		price *= 1.0005
		candles = append(candles, models.Candle{
			OpenTime: int64(i) * 900_000,
			Open:     price, High: price * 1.002, Low: price * 0.998, Close: price,
			Volume: 1000,
		})
	}
	first := Detect(candles, cfg)
	second := Detect(candles, cfg)
	assert.Equal(t, first, second)
}

func TestApplyLockHoldsAndSwitches(t *testing.T) {
	minHold := 3
	state := ApplyLock(models.RegimeLockState{}, Trend, minHold)
	require.Equal(t, "TREND", state.Current)
	require.Equal(t, 1, state.HoldCount)
	require.True(t, state.Switched)

	// A range detection arrives before the hold window elapsed.
	state = ApplyLock(state, Range, minHold)
	assert.Equal(t, "TREND", state.Current)
	assert.Equal(t, "held", state.Status)
	assert.False(t, state.Switched)
	assert.Equal(t, 2, state.HoldCount)

	state = ApplyLock(state, Range, minHold)
	assert.Equal(t, "TREND", state.Current)
	assert.Equal(t, 3, state.HoldCount)

	// Hold satisfied, the next divergent detection switches.
	state = ApplyLock(state, Range, minHold)
	assert.Equal(t, "RANGE", state.Current)
	assert.Equal(t, "TREND", state.Previous)
	assert.Equal(t, 1, state.HoldCount)
	assert.True(t, state.Switched)
}

func TestApplyLockSameRegimeAccumulates(t *testing.T) {
	state := ApplyLock(models.RegimeLockState{}, Trend, 3)
	for i := 0; i < 5; i++ {
		state = ApplyLock(state, Trend, 3)
		assert.Equal(t, "held", state.Status)
	}
	assert.Equal(t, 6, state.HoldCount)
	assert.Equal(t, "TREND", state.Current)
}

func TestApplyLockBreakoutPreempts(t *testing.T) {
	state := ApplyLock(models.RegimeLockState{}, Trend, 3)
	state = ApplyLock(state, Breakout, 3)

	assert.Equal(t, "BREAKOUT", state.Current)
	assert.Equal(t, "TREND", state.Previous)
	assert.Equal(t, 1, state.HoldCount)
	assert.True(t, state.Switched)
}

func TestPickStrategyPackTrendVariants(t *testing.T) {
	cfg := DefaultSettings()

	// Baseline trend.
	res := classify(trendMetrics(), cfg)
	sel := PickStrategyPack(Trend, res, cfg)
	require.True(t, sel.Allowed)
	assert.Equal(t, 101, sel.Pack.EntryStrategyID)
	assert.Equal(t, 1, sel.Pack.ExitPresetID)

	// RSI just above the lower band edge opens the pullback window.
	res.Metrics.RSI = cfg.TrendRSIMin + 1
	sel = PickStrategyPack(Trend, res, cfg)
	require.True(t, sel.Allowed)
	assert.Equal(t, 104, sel.Pack.EntryStrategyID)
	assert.Equal(t, 6, sel.Pack.ExitPresetID)

	// Steep slope upgrades to the aggressive pack.
	res.Metrics.RSI = 58
	res.Metrics.SlopePct = 2 * cfg.TrendSlopeMin
	sel = PickStrategyPack(Trend, res, cfg)
	require.True(t, sel.Allowed)
	assert.Equal(t, 102, sel.Pack.EntryStrategyID)
	assert.Equal(t, 4, sel.Pack.ExitPresetID)
}

func TestPickStrategyPackRangeVolatilityGate(t *testing.T) {
	cfg := DefaultSettings()
	res := Result{Metrics: Metrics{ATRRatio: 0.9 * cfg.RangeATRRatioMax}}

	sel := PickStrategyPack(Range, res, cfg)
	require.True(t, sel.Allowed)
	assert.Equal(t, 103, sel.Pack.EntryStrategyID)

	res.Metrics.ATRRatio = cfg.RangeATRRatioMax
	sel = PickStrategyPack(Range, res, cfg)
	assert.False(t, sel.Allowed)
	assert.Equal(t, "range volatility too high", sel.Reason)
}

func TestPickStrategyPackBlocksNoTrade(t *testing.T) {
	cfg := DefaultSettings()
	sel := PickStrategyPack(NoTrade, Result{Reason: "no regime matched, best TREND at 0.67"}, cfg)
	assert.False(t, sel.Allowed)
	assert.Contains(t, sel.Reason, "no regime matched")
}

func TestDetectMacro(t *testing.T) {
	cfg := DefaultMacroConfig()

	// Too little history turns the portfolio off.
	assert.Equal(t, MacroOff, DetectMacro(make([]models.Candle, 100), cfg))

	// Steady low-volatility uptrend classifies as TREND.
	up := make([]models.Candle, 0, 300)
	price := 100.0
	for i := 0; i < 300; i++ {
		price *= 1.002
		up = append(up, models.Candle{
			Open: price, High: price * 1.001, Low: price * 0.999, Close: price, Volume: 1000,
		})
	}
	assert.Equal(t, MacroTrend, DetectMacro(up, cfg))

	// Same shape with huge bar ranges classifies as VOLATILE.
	wild := make([]models.Candle, len(up))
	copy(wild, up)
	for i := range wild {
		wild[i].High = wild[i].Close * 1.05
		wild[i].Low = wild[i].Close * 0.95
	}
	assert.Equal(t, MacroVolatile, DetectMacro(wild, cfg))
}
