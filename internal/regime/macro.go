package regime

import (
	"regime-trade-bot-go/internal/indicator"
	"regime-trade-bot-go/internal/models"
)

// MacroRegime is the coarse classification on the benchmark symbol that
// decides which portfolio layers are allowed to trade.
type MacroRegime string

const (
	MacroTrend    MacroRegime = "TREND"
	MacroRange    MacroRegime = "RANGE"
	MacroVolatile MacroRegime = "VOLATILE"
	MacroOff      MacroRegime = "OFF"
)

// MacroConfig holds the macro classifier thresholds.
type MacroConfig struct {
	MinCandles  int     `mapstructure:"min_candles"`
	EMAFast     int     `mapstructure:"ema_fast"`
	EMASlow     int     `mapstructure:"ema_slow"`
	ADXPeriod   int     `mapstructure:"adx_period"`
	ADXTrendMin float64 `mapstructure:"adx_trend_min"`
	ADXChopMax  float64 `mapstructure:"adx_chop_max"`
	ATRPeriod   int     `mapstructure:"atr_period"`
	ATRPctHigh  float64 `mapstructure:"atr_pct_high"`
}

// DefaultMacroConfig returns the production macro thresholds.
func DefaultMacroConfig() MacroConfig {
	return MacroConfig{
		MinCandles:  220,
		EMAFast:     50,
		EMASlow:     200,
		ADXPeriod:   14,
		ADXTrendMin: 18,
		ADXChopMax:  16,
		ATRPeriod:   14,
		ATRPctHigh:  1.2,
	}
}

// DetectMacro classifies the benchmark series. Insufficient history
// turns the portfolio OFF rather than guessing; elevated volatility is
// checked before the trend/chop split.
func DetectMacro(candles []models.Candle, cfg MacroConfig) MacroRegime {
	if len(candles) < cfg.MinCandles {
		return MacroOff
	}

	closes := indicator.Closes(candles)
	lastClose := closes[len(closes)-1]

	atr, okATR := indicator.ATR(candles, cfg.ATRPeriod)
	emaFast, okF := indicator.EMA(closes, cfg.EMAFast)
	emaSlow, okS := indicator.EMA(closes, cfg.EMASlow)
	adx, okADX := indicator.ADX(candles, cfg.ADXPeriod)
	if !(okATR && okF && okS && okADX) || lastClose == 0 {
		return MacroOff
	}

	if atr/lastClose*100 > cfg.ATRPctHigh {
		return MacroVolatile
	}
	if emaFast > emaSlow && adx >= cfg.ADXTrendMin {
		return MacroTrend
	}
	if adx < cfg.ADXChopMax {
		return MacroRange
	}
	return MacroRange
}
