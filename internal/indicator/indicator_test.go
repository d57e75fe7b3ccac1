package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trade-bot-go/internal/models"
)

func flatCandles(n int, price float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: price, Low: price, Close: price,
			Volume: 100,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.True(t, ok)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, ok = SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
}

func TestEMASeededWithSMA(t *testing.T) {
	// With a constant series the EMA must equal the constant.
	v, ok := EMA([]float64{5, 5, 5, 5, 5, 5}, 3)
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)

	// On a rising series the EMA sits between the seed and the last value.
	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ema, ok := EMA(rising, 5)
	require.True(t, ok)
	assert.Greater(t, ema, 3.0)
	assert.Less(t, ema, 10.0)
}

func TestRSI(t *testing.T) {
	// Monotonically rising closes: no losses, RSI pegs at 100.
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	v, ok := RSI(up, 14)
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 1e-9)

	// Equal gains and losses land at 50.
	alternating := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}
	v, ok = RSI(alternating, 14)
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)

	_, ok = RSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)
}

func TestATR(t *testing.T) {
	candles := flatCandles(20, 100)
	v, ok := ATR(candles, 14)
	require.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	// Widen the last bar's range to 2; the mean TR over 14 bars moves by 2/14.
	candles[len(candles)-1].High = 101
	candles[len(candles)-1].Low = 99
	v, ok = ATR(candles, 14)
	require.True(t, ok)
	assert.InDelta(t, 2.0/14.0, v, 1e-9)

	_, ok = ATR(candles[:10], 14)
	assert.False(t, ok)
}

func TestATRSeriesGrowsByPrefix(t *testing.T) {
	candles := flatCandles(30, 100)
	series := ATRSeries(candles, 14, 10)
	require.Len(t, series, 10)

	// Short input still yields what it can.
	series = ATRSeries(candles[:16], 14, 10)
	assert.Len(t, series, 2)
}

func TestHighestHighLowestLow(t *testing.T) {
	candles := flatCandles(10, 100)
	candles[7].High = 120
	candles[3].Low = 80

	hh, ok := HighestHigh(candles, 5)
	require.True(t, ok)
	assert.Equal(t, 120.0, hh)

	// Lookback of 5 does not reach index 3.
	ll, ok := LowestLow(candles, 5)
	require.True(t, ok)
	assert.Equal(t, 100.0, ll)
}

func TestVWAP(t *testing.T) {
	candles := []models.Candle{
		{High: 102, Low: 98, Close: 100, Volume: 10},
		{High: 112, Low: 108, Close: 110, Volume: 30},
	}
	v, ok := VWAP(candles)
	require.True(t, ok)
	assert.InDelta(t, (100.0*10+110.0*30)/40.0, v, 1e-9)

	_, ok = VWAP(flatCandles(3, 100)[:0])
	assert.False(t, ok)
}

func TestADXTrendingVsFlat(t *testing.T) {
	// Steady uptrend with expanding highs should produce a strong ADX.
	trend := make([]models.Candle, 60)
	for i := range trend {
		base := 100 + float64(i)
		trend[i] = models.Candle{Open: base, High: base + 1, Low: base - 0.2, Close: base + 0.8, Volume: 100}
	}
	v, ok := ADX(trend, 14)
	require.True(t, ok)
	assert.Greater(t, v, 25.0)

	_, ok = ADX(trend[:20], 14)
	assert.False(t, ok)
}

func TestBullishPatterns(t *testing.T) {
	red := models.Candle{Open: 105, High: 106, Low: 99, Close: 100}
	engulf := models.Candle{Open: 99.5, High: 107, Low: 99, Close: 106}
	assert.True(t, IsBullishEngulfing(red, engulf))
	assert.False(t, IsBullishEngulfing(engulf, red))

	// Bodies touching at the boundary still engulf.
	touching := models.Candle{Open: 100, High: 107, Low: 99, Close: 106}
	assert.True(t, IsBullishEngulfing(red, touching))

	// An equal-sized green body does not.
	equalBody := models.Candle{Open: 100, High: 106, Low: 99, Close: 105}
	assert.False(t, IsBullishEngulfing(red, equalBody))

	hammer := models.Candle{Open: 100, High: 100.6, Low: 97, Close: 100.5}
	assert.True(t, IsBullishHammer(hammer))

	inverted := models.Candle{Open: 100, High: 103, Low: 99.9, Close: 100.4}
	assert.False(t, IsBullishHammer(inverted))

	// A close exactly on the range midpoint is not a hammer.
	midpoint := models.Candle{Open: 100.05, High: 100.1, Low: 99.9, Close: 100}
	assert.False(t, IsBullishHammer(midpoint))
}
