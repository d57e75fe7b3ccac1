// Package regime classifies market conditions. It carries two
// deliberately separate classifiers: the fine-grained rule detector that
// drives strategy pack selection for the active timeframe, and the macro
// classifier that gates which portfolio layers may trade at all.
package regime

import "regime-trade-bot-go/internal/models"

// Regime is the fine-grained market state on the trading timeframe.
type Regime string

const (
	Trend    Regime = "TREND"
	Range    Regime = "RANGE"
	Breakout Regime = "BREAKOUT"
	NoTrade  Regime = "NO_TRADE"
)

// Pack binds a detected regime to the strategy ids it should trade.
type Pack struct {
	EntryStrategyID int `json:"entryStrategyId" mapstructure:"entry_strategy_id"`
	ExitPresetID    int `json:"exitPresetId" mapstructure:"exit_preset_id"`
}

// Settings holds every threshold of the rule detector. Zero values are
// never used directly; callers start from DefaultSettings and override.
type Settings struct {
	ProxySymbol   string           `mapstructure:"proxy_symbol"`
	Timeframe     models.Timeframe `mapstructure:"timeframe"`
	MinConfidence float64          `mapstructure:"min_confidence"`
	MinHold       int              `mapstructure:"min_hold"`

	RSIPeriod      int `mapstructure:"rsi_period"`
	ATRPeriod      int `mapstructure:"atr_period"`
	ATRMAPeriod    int `mapstructure:"atr_ma_period"`
	VolumeMAPeriod int `mapstructure:"volume_ma_period"`
	SlowMAPeriod   int `mapstructure:"slow_ma_period"`
	SlopeWindow    int `mapstructure:"slope_window"`

	BreakoutATRRatioMin float64 `mapstructure:"breakout_atr_ratio_min"`
	BreakoutVolRatioMin float64 `mapstructure:"breakout_vol_ratio_min"`
	BreakoutRSIMin      float64 `mapstructure:"breakout_rsi_min"`

	TrendSlopeMin    float64 `mapstructure:"trend_slope_min"`
	TrendRSIMin      float64 `mapstructure:"trend_rsi_min"`
	TrendRSIMax      float64 `mapstructure:"trend_rsi_max"`
	TrendATRRatioMin float64 `mapstructure:"trend_atr_ratio_min"`
	TrendATRRatioMax float64 `mapstructure:"trend_atr_ratio_max"`

	RangeSlopeMax    float64 `mapstructure:"range_slope_max"`
	RangeRSIMin      float64 `mapstructure:"range_rsi_min"`
	RangeRSIMax      float64 `mapstructure:"range_rsi_max"`
	RangeATRRatioMax float64 `mapstructure:"range_atr_ratio_max"`

	Packs map[Regime]Pack `mapstructure:"packs"`
}

// DefaultSettings returns the production thresholds.
func DefaultSettings() Settings {
	return Settings{
		ProxySymbol:   "BTCUSDT",
		Timeframe:     models.Timeframe15m,
		MinConfidence: 0.55,
		MinHold:       3,

		RSIPeriod:      14,
		ATRPeriod:      14,
		ATRMAPeriod:    14,
		VolumeMAPeriod: 10,
		SlowMAPeriod:   200,
		SlopeWindow:    20,

		BreakoutATRRatioMin: 1.35,
		BreakoutVolRatioMin: 1.2,
		BreakoutRSIMin:      60,

		TrendSlopeMin:    0.1,
		TrendRSIMin:      50,
		TrendRSIMax:      65,
		TrendATRRatioMin: 0.9,
		TrendATRRatioMax: 1.3,

		RangeSlopeMax:    0.03,
		RangeRSIMin:      45,
		RangeRSIMax:      55,
		RangeATRRatioMax: 1.05,

		Packs: map[Regime]Pack{
			Trend:    {EntryStrategyID: 101, ExitPresetID: 1},
			Range:    {EntryStrategyID: 103, ExitPresetID: 3},
			Breakout: {EntryStrategyID: 105, ExitPresetID: 7},
		},
	}
}

// MinCandles returns how many closed bars the detector needs before it
// can produce metrics.
func (s Settings) MinCandles() int {
	need := s.SlowMAPeriod + s.SlopeWindow
	if v := s.ATRPeriod + s.ATRMAPeriod; v > need {
		need = v
	}
	if v := s.RSIPeriod + 1; v > need {
		need = v
	}
	return need
}
