package preset

// ExitConfig is the resolved percent-model exit configuration, with all
// percentages expressed as fractions (0.012 = 1.2%).
type ExitConfig struct {
	StopLossPct         float64 `json:"stopLossPct"`
	TakeProfitPct       float64 `json:"takeProfitPct"`
	TrailStartPct       float64 `json:"trailStartPct"`
	TrailDistancePct    float64 `json:"trailDistancePct"`
	CandleExitEnabled   bool    `json:"candleExitEnabled"`
	CandleRedTriggerPct float64 `json:"candleRedTriggerPct"`
}

// ATRExitParams is the ATR-model exit payload. R is the initial stop
// distance (EntryATR * InitialATRMult); targets and the trailing arm
// level are expressed in multiples of R.
type ATRExitParams struct {
	ATRPeriod        int     `json:"atrPeriod"`
	InitialATRMult   float64 `json:"initialAtrMult"`
	TakeProfitR      float64 `json:"takeProfitR"`
	TrailStartR      float64 `json:"trailStartR"`
	TrailATRMult     float64 `json:"trailAtrMult"`
	TrendExitFastEMA int     `json:"trendExitFastEma"`
	TrendExitSlowEMA int     `json:"trendExitSlowEma"`
	TimeStopBars     int     `json:"timeStopBars"`
	TimeStopMinR     float64 `json:"timeStopMinR"`
	InvalidationBars int     `json:"invalidationBars"`
}

// ExitPreset is one catalog entry. Percent fields are whole percents as
// configured (1.2 = 1.2%); ResolveExitConfig normalizes them. A non-nil
// ATR payload switches the engine to the ATR stop model.
type ExitPreset struct {
	ID            int
	Name          string
	SL            float64
	TP            float64
	TrailStart    float64
	TrailDistance float64
	CandleRed     float64
	ATR           *ATRExitParams
}

var exitPresets = map[int]ExitPreset{
	1: {ID: 1, Name: "Conservative", SL: 1.2, TP: 2.4, TrailStart: 1.2, TrailDistance: 0.6, CandleRed: 60},
	2: {ID: 2, Name: "Aggressive Trend", SL: 0.9, TP: 3.2, TrailStart: 1.6, TrailDistance: 0.8, CandleRed: 40},
	3: {ID: 3, Name: "Safe Scalping", SL: 0.6, TP: 1.2, TrailStart: 0.8, TrailDistance: 0.4, CandleRed: 50},
	4: {ID: 4, Name: "Momentum Rider", SL: 1.0, TP: 4.0, TrailStart: 2.0, TrailDistance: 1.0, CandleRed: 30},
	5: {ID: 5, Name: "ATR Mixed (semi-dynamic)", SL: 0.6, TP: 1.4, TrailStart: 2.0, TrailDistance: 1.0, CandleRed: 40},
	6: {ID: 6, Name: "Volatility Shield", SL: 1.5, TP: 2.5, TrailStart: 2.2, TrailDistance: 1.2, CandleRed: 70},
	7: {ID: 7, Name: "Breakout Mode", SL: 0.8, TP: 5.0, TrailStart: 3.0, TrailDistance: 1.5, CandleRed: 20},
	8: {ID: 8, Name: "Ultra Tight", SL: 0.4, TP: 0.8, TrailStart: 0.6, TrailDistance: 0.3, CandleRed: 35},

	// ATR family, used by the portfolio layers.
	11: {ID: 11, Name: "ATR Trend Rider", ATR: &ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 2.0, TakeProfitR: 3.0,
		TrailStartR: 1.5, TrailATRMult: 2.5,
		TrendExitFastEMA: 21, TrendExitSlowEMA: 50,
	}},
	12: {ID: 12, Name: "ATR Swing", ATR: &ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 2.5, TakeProfitR: 2.5,
		TrailStartR: 1.0, TrailATRMult: 3.0,
		TimeStopBars: 10, TimeStopMinR: 0.5,
	}},
	13: {ID: 13, Name: "ATR Breakout Guard", ATR: &ATRExitParams{
		ATRPeriod: 14, InitialATRMult: 1.5, TakeProfitR: 4.0,
		TrailStartR: 2.0, TrailATRMult: 2.0,
		InvalidationBars: 3,
	}},
}

// exitAliases remaps deprecated exit preset ids onto the catalog.
var exitAliases = map[int]int{
	9:  7,
	10: 5,
}

// ExitPresetByID looks up a preset, following the alias table.
func ExitPresetByID(id int) (ExitPreset, bool) {
	if canonical, ok := exitAliases[id]; ok {
		id = canonical
	}
	p, ok := exitPresets[id]
	return p, ok
}

// ResolveExitConfig resolves an exit preset id into a normalized
// ExitConfig. Unknown ids (including 0) fall back to the base config
// unchanged; candle exit enablement always comes from the base. The
// function is pure, so resolution is idempotent.
func ResolveExitConfig(id int, base ExitConfig) ExitConfig {
	p, ok := ExitPresetByID(id)
	if !ok || p.ATR != nil {
		return base
	}
	return ExitConfig{
		StopLossPct:         p.SL / 100,
		TakeProfitPct:       p.TP / 100,
		TrailStartPct:       p.TrailStart / 100,
		TrailDistancePct:    p.TrailDistance / 100,
		CandleExitEnabled:   base.CandleExitEnabled,
		CandleRedTriggerPct: p.CandleRed / 100,
	}
}
