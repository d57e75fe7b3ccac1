package engine

import (
	"go.uber.org/zap"

	"regime-trade-bot-go/internal/indicator"
	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/preset"
)

// entrySignal is the outcome of an entry predicate. BreakoutLevel is
// only set by breakout-family entries and is recorded on the position
// for the invalidation exit.
type entrySignal struct {
	Enter         bool
	BreakoutLevel float64
}

// evaluateEntry dispatches on the preset family. Unknown families never
// enter.
func evaluateEntry(candles []models.Candle, p preset.EntryPreset, log *zap.SugaredLogger) entrySignal {
	switch p.Family {
	case preset.FamilyGoldenCross:
		return entrySignal{Enter: checkGoldenCross(indicator.Closes(candles), p.GoldenCross, log)}
	case preset.FamilyTrendPullback:
		return entrySignal{Enter: checkTrendPullback(candles, p.TrendPullback, log)}
	case preset.FamilyEMAMomentum:
		return entrySignal{Enter: checkEMAMomentum(candles, p.EMAMomentum, log)}
	case preset.FamilyBreakout:
		return checkBreakout(candles, p.Breakout, log)
	case preset.FamilyCoreTrend:
		return entrySignal{Enter: checkCoreTrend(candles, p.CoreTrend, log)}
	case preset.FamilySwingPullback:
		return entrySignal{Enter: checkSwingPullback(candles, p.SwingPullback, log)}
	default:
		log.Warnf("unknown entry family %q", p.Family)
		return entrySignal{}
	}
}

// checkGoldenCross fires when the fast SMA crosses above the slow SMA
// on the newest bar.
func checkGoldenCross(closes []float64, s *preset.GoldenCrossParams, log *zap.SugaredLogger) bool {
	fastNow, ok1 := indicator.SMA(closes, s.MAFastPeriod)
	slowNow, ok2 := indicator.SMA(closes, s.MASlowPeriod)
	fastPrev, ok3 := indicator.SMA(closes[:len(closes)-1], s.MAFastPeriod)
	slowPrev, ok4 := indicator.SMA(closes[:len(closes)-1], s.MASlowPeriod)
	if !(ok1 && ok2 && ok3 && ok4) {
		return false
	}

	crossed := fastPrev <= slowPrev && fastNow > slowNow
	log.Debugf("entry goldenCross fast=%.3f slow=%.3f cross=%v", fastNow, slowNow, crossed)
	return crossed
}

// checkTrendPullback fires on a pullback to the fast MA inside an
// uptrend, optionally confirmed by candle pattern, ATR and volume
// filters.
func checkTrendPullback(candles []models.Candle, s *preset.TrendPullbackParams, log *zap.SugaredLogger) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	closes := indicator.Closes(candles)

	maFast, ok1 := indicator.SMA(closes, s.MAFastPeriod)
	maSlow, ok2 := indicator.SMA(closes, s.MASlowPeriod)
	rsi, ok3 := indicator.RSI(closes, s.RSIPeriod)
	if !(ok1 && ok2 && ok3) || maFast == 0 {
		return false
	}

	trendUp := maFast > maSlow && last.Close > maSlow

	pullbackPct := (maFast - prev.Low) / maFast * 100
	pullbackBandOk := pullbackPct >= s.PullbackMinPct && pullbackPct <= s.PullbackMaxPct
	reclaimOk := last.Close >= maFast*(1-s.PullbackMinPct/100)
	pullbackOk := pullbackBandOk && reclaimOk

	rsiOk := rsi >= s.RSIMin && rsi <= s.RSIMax

	candleOk := indicator.IsBullishReversal(prev, last)

	atrOk := true
	if s.ATRFilterEnabled {
		atr, okA := indicator.ATR(candles, s.ATRPeriod)
		atrMA, okM := indicator.ATRMA(candles, s.ATRPeriod, s.ATRMAPeriod)
		atrOk = okA && okM && atrMA > 0 && atr >= atrMA*s.ATRMinRatio
	}

	volumeOk := true
	if s.VolumeMultiplier > 0 {
		volMA, okV := indicator.VolumeMA(candles, s.VolumeMAPeriod)
		volumeOk = okV && volMA > 0 && last.Volume >= s.VolumeMultiplier*volMA
	}

	met := trendUp && pullbackOk && rsiOk && atrOk && volumeOk &&
		(!s.RequireCandlePattern || candleOk)

	log.Debugf("entry trendPullback trend=%v pullback=%v rsi=%.0f atr=%v vol=%v",
		trendUp, pullbackOk, rsi, atrOk, volumeOk)
	return met
}

// checkEMAMomentum fires on a fast/slow EMA crossover on the newest bar
// with a meaningful candle body relative to ATR.
func checkEMAMomentum(candles []models.Candle, s *preset.EMAMomentumParams, log *zap.SugaredLogger) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1]
	closes := indicator.Closes(candles)

	emaFast, ok1 := indicator.EMA(closes, s.EMAFast)
	emaSlow, ok2 := indicator.EMA(closes, s.EMASlow)
	prevFast, ok3 := indicator.EMA(closes[:len(closes)-1], s.EMAFast)
	prevSlow, ok4 := indicator.EMA(closes[:len(closes)-1], s.EMASlow)
	atr, ok5 := indicator.ATR(candles, s.ATRPeriod)
	rsi, ok6 := indicator.RSI(closes, s.RSIPeriod)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return false
	}

	crossed := prevFast <= prevSlow && emaFast > emaSlow
	aboveEMA := last.Close > emaSlow
	volatilityOk := last.Body() > s.BodyATRMult*atr
	rsiOk := rsi >= s.RSIMin && rsi <= s.RSIMax

	volumeOk := true
	if s.VolumeMultiplier > 0 {
		volMA, okV := indicator.VolumeMA(candles, s.VolumeMAPeriod)
		volumeOk = okV && volMA > 0 && last.Volume >= s.VolumeMultiplier*volMA
	}

	met := crossed &&
		(!s.RequireAboveEMA || aboveEMA) &&
		volatilityOk && rsiOk && volumeOk

	log.Debugf("entry emaMomentum cross=%v above=%v body=%v rsi=%.0f vol=%v",
		crossed, aboveEMA, volatilityOk, rsi, volumeOk)
	return met
}

// checkBreakout fires when price clears the prior N-bar high on volume
// with either VWAP or EMA slope confirmation. The cleared high is
// returned as the breakout level.
func checkBreakout(candles []models.Candle, s *preset.BreakoutParams, log *zap.SugaredLogger) entrySignal {
	if len(candles) < 2 {
		return entrySignal{}
	}
	last := candles[len(candles)-1]
	closes := indicator.Closes(candles)

	ema, ok1 := indicator.EMA(closes, s.EMAPeriod)
	emaPrev, ok2 := indicator.EMA(closes[:len(closes)-1], s.EMAPeriod)
	rsi, ok3 := indicator.RSI(closes, s.RSIPeriod)
	// The forming bar's high must not count toward its own breakout.
	breakoutHigh, ok4 := indicator.HighestHigh(candles[:len(candles)-1], s.BreakoutLookback)
	volMA, ok5 := indicator.VolumeMA(candles, s.VolumeMAPeriod)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) || volMA == 0 {
		return entrySignal{}
	}

	vwap, vwapOk := indicator.VWAP(candles)
	trendOk := (vwapOk && last.Close > vwap) || ema > emaPrev
	breakoutOk := last.Close > breakoutHigh
	volOk := last.Volume >= s.VolumeMultiplier*volMA
	rsiOk := rsi >= s.RSIMin && rsi <= s.RSIMax

	met := trendOk && breakoutOk && volOk && rsiOk
	log.Debugf("entry breakout trend=%v breakout=%v vol=%v rsi=%.0f",
		trendOk, breakoutOk, volOk, rsi)
	return entrySignal{Enter: met, BreakoutLevel: breakoutHigh}
}

// checkCoreTrend fires on an ADX-confirmed uptrend where the previous
// bar dipped below the fast EMA and the newest bar reclaimed it.
func checkCoreTrend(candles []models.Candle, s *preset.CoreTrendParams, log *zap.SugaredLogger) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	closes := indicator.Closes(candles)

	emaFast, ok1 := indicator.EMA(closes, s.EMAFast)
	emaSlow, ok2 := indicator.EMA(closes, s.EMASlow)
	adx, ok3 := indicator.ADX(candles, s.ADXPeriod)
	rsi, ok4 := indicator.RSI(closes, s.RSIPeriod)
	if !(ok1 && ok2 && ok3 && ok4) {
		return false
	}

	trendOk := emaFast > emaSlow && last.Close > emaFast
	adxOk := adx >= s.ADXMin
	rsiOk := rsi >= s.RSIMin && rsi <= s.RSIMax
	pullback := !s.PullbackToEMA || (prev.Close < emaFast && last.Close > emaFast)

	met := trendOk && adxOk && rsiOk && pullback
	log.Debugf("entry coreTrend trend=%v adx=%.1f rsi=%.0f pullback=%v",
		trendOk, adx, rsi, pullback)
	return met
}

// checkSwingPullback fires on a bounded pullback from the swing high
// inside an uptrend, confirmed by a green reclaim bar over the fast EMA
// and an ATR% band.
func checkSwingPullback(candles []models.Candle, s *preset.SwingPullbackParams, log *zap.SugaredLogger) bool {
	if len(candles) < 2 {
		return false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	closes := indicator.Closes(candles)

	emaFast, ok1 := indicator.EMA(closes, s.EMAFast)
	emaSlow, ok2 := indicator.EMA(closes, s.EMASlow)
	rsi, ok3 := indicator.RSI(closes, s.RSIPeriod)
	atr, ok4 := indicator.ATR(candles, s.ATRPeriod)
	swingHigh, ok5 := indicator.HighestHigh(candles[:len(candles)-1], s.SwingLookback)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) || swingHigh == 0 || last.Close == 0 {
		return false
	}

	trendOk := emaFast > emaSlow
	pullbackPct := (swingHigh - last.Close) / swingHigh * 100
	pullbackOk := pullbackPct >= s.PullbackMinPct && pullbackPct <= s.PullbackMaxPct
	rsiOk := rsi >= s.RSIMin && rsi <= s.RSIMax
	atrPct := atr / last.Close * 100
	atrOk := atrPct >= s.ATRPctMin && atrPct <= s.ATRPctMax
	reclaim := prev.Close <= emaFast && last.Close > emaFast && last.Close > last.Open

	met := trendOk && pullbackOk && rsiOk && atrOk && reclaim
	log.Debugf("entry swingPullback trend=%v pullback=%.2f%% rsi=%.0f atrPct=%.2f reclaim=%v",
		trendOk, pullbackPct, rsi, atrPct, reclaim)
	return met
}
