// Package indicator implements the technical indicators the engine and
// the regime detectors evaluate over closed candles. Every function
// reports ok=false when the input window is too short instead of
// extrapolating from partial data.
package indicator

import (
	"math"

	"regime-trade-bot-go/internal/models"
)

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average over the whole slice,
// seeded with the SMA of the first period values.
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	seed, _ := SMA(values[:period], period)
	k := 2.0 / (float64(period) + 1.0)
	ema := seed
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// RSI computes the relative strength index from the last period+1
// closes using a single-pass average of gains and losses.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	window := closes[len(closes)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		diff := window[i] - window[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

func trueRange(c, prev models.Candle) float64 {
	tr := c.High - c.Low
	if v := math.Abs(c.High - prev.Close); v > tr {
		tr = v
	}
	if v := math.Abs(c.Low - prev.Close); v > tr {
		tr = v
	}
	return tr
}

// ATR returns the mean true range of the last period bars. Needs
// period+1 candles for the first previous close.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	window := candles[len(candles)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1])
	}
	return sum / float64(period), true
}

// ATRSeries recomputes ATR on growing prefixes of the candle slice,
// yielding up to samples values ending at the full slice. This is what
// the ATR moving average is taken over.
func ATRSeries(candles []models.Candle, period, samples int) []float64 {
	if period <= 0 || samples <= 0 {
		return nil
	}
	start := period + 1
	if s := len(candles) - samples + 1; s > start {
		start = s
	}
	var series []float64
	for i := start; i <= len(candles); i++ {
		if v, ok := ATR(candles[:i], period); ok {
			series = append(series, v)
		}
	}
	return series
}

// ATRMA is the simple average of an ATRSeries with maPeriod samples.
func ATRMA(candles []models.Candle, atrPeriod, maPeriod int) (float64, bool) {
	series := ATRSeries(candles, atrPeriod, maPeriod)
	if len(series) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series)), true
}

// VolumeMA is the simple moving average of volume.
func VolumeMA(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period {
		return 0, false
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return sum / float64(period), true
}

// HighestHigh returns the highest high of the last lookback candles.
func HighestHigh(candles []models.Candle, lookback int) (float64, bool) {
	if lookback <= 0 || len(candles) < lookback {
		return 0, false
	}
	hh := candles[len(candles)-lookback].High
	for _, c := range candles[len(candles)-lookback:] {
		if c.High > hh {
			hh = c.High
		}
	}
	return hh, true
}

// LowestLow returns the lowest low of the last lookback candles.
func LowestLow(candles []models.Candle, lookback int) (float64, bool) {
	if lookback <= 0 || len(candles) < lookback {
		return 0, false
	}
	ll := candles[len(candles)-lookback].Low
	for _, c := range candles[len(candles)-lookback:] {
		if c.Low < ll {
			ll = c.Low
		}
	}
	return ll, true
}

// VWAP is the volume weighted average of the typical price over the
// given window. Zero total volume yields ok=false.
func VWAP(candles []models.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	var pv, vol float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}

// ADX computes Wilder's average directional index. Needs at least
// 2*period+1 candles for the DI smoothing plus the ADX seed.
func ADX(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < 2*period+1 {
		return 0, false
	}
	var trs, plusDMs, minusDMs []float64
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		plus, minus := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plus = upMove
		}
		if downMove > upMove && downMove > 0 {
			minus = downMove
		}
		trs = append(trs, trueRange(cur, prev))
		plusDMs = append(plusDMs, plus)
		minusDMs = append(minusDMs, minus)
	}

	wilder := func(values []float64) []float64 {
		smoothed := make([]float64, 0, len(values)-period+1)
		sum := 0.0
		for _, v := range values[:period] {
			sum += v
		}
		smoothed = append(smoothed, sum)
		for _, v := range values[period:] {
			sum = sum - sum/float64(period) + v
			smoothed = append(smoothed, sum)
		}
		return smoothed
	}

	trS := wilder(trs)
	plusS := wilder(plusDMs)
	minusS := wilder(minusDMs)

	var dxs []float64
	for i := range trS {
		if trS[i] == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI := 100 * plusS[i] / trS[i]
		minusDI := 100 * minusS[i] / trS[i]
		sum := plusDI + minusDI
		if sum == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/sum)
	}
	if len(dxs) < period {
		return 0, false
	}

	adx := 0.0
	for _, v := range dxs[:period] {
		adx += v
	}
	adx /= float64(period)
	for _, v := range dxs[period:] {
		adx = (adx*float64(period-1) + v) / float64(period)
	}
	return adx, true
}

// Closes extracts the close series from a candle slice.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
