// Package preset holds the entry and exit strategy catalogs. Strategies
// are addressed by numeric id everywhere else in the system; this
// package owns the canonical definitions, the legacy alias table and the
// normalization of preset percentages into fractions.
package preset

import "fmt"

// EntryFamily selects which parameter payload of an EntryPreset is live
// and which predicate the engine runs.
type EntryFamily string

const (
	FamilyGoldenCross   EntryFamily = "goldenCross"
	FamilyTrendPullback EntryFamily = "trendPullback"
	FamilyEMAMomentum   EntryFamily = "emaMomentum"
	FamilyBreakout      EntryFamily = "breakout"
	FamilyCoreTrend     EntryFamily = "coreTrend"
	FamilySwingPullback EntryFamily = "swingPullback"
)

// GoldenCrossParams drives the legacy SMA crossover entry (strategy 1).
type GoldenCrossParams struct {
	MAFastPeriod int
	MASlowPeriod int
}

// TrendPullbackParams drives the trend pullback entries (101, 102, 104).
type TrendPullbackParams struct {
	MAFastPeriod         int
	MASlowPeriod         int
	PullbackMinPct       float64
	PullbackMaxPct       float64
	RSIPeriod            int
	RSIMin               float64
	RSIMax               float64
	RequireCandlePattern bool
	ATRFilterEnabled     bool
	ATRPeriod            int
	ATRMAPeriod          int
	ATRMinRatio          float64
	VolumeMultiplier     float64
	VolumeMAPeriod       int
}

// EMAMomentumParams drives the micro-momentum entry (103).
type EMAMomentumParams struct {
	EMAFast          int
	EMASlow          int
	ATRPeriod        int
	BodyATRMult      float64
	RSIPeriod        int
	RSIMin           float64
	RSIMax           float64
	RequireAboveEMA  bool
	VolumeMultiplier float64
	VolumeMAPeriod   int
}

// BreakoutParams drives the breakout entry (105).
type BreakoutParams struct {
	EMAPeriod        int
	RSIPeriod        int
	RSIMin           float64
	RSIMax           float64
	BreakoutLookback int
	VolumeMultiplier float64
	VolumeMAPeriod   int
}

// CoreTrendParams drives the ADX-confirmed trend entry used by the CORE
// portfolio layer.
type CoreTrendParams struct {
	EMAFast       int
	EMASlow       int
	ADXPeriod     int
	ADXMin        float64
	RSIPeriod     int
	RSIMin        float64
	RSIMax        float64
	PullbackToEMA bool
}

// SwingPullbackParams drives the swing-high pullback entry used by the
// SWING portfolio layer.
type SwingPullbackParams struct {
	EMAFast        int
	EMASlow        int
	RSIPeriod      int
	RSIMin         float64
	RSIMax         float64
	ATRPeriod      int
	ATRPctMin      float64
	ATRPctMax      float64
	SwingLookback  int
	PullbackMinPct float64
	PullbackMaxPct float64
}

// EntryPreset is a tagged variant: Family names the one non-nil
// parameter payload.
type EntryPreset struct {
	Key    string
	Name   string
	ID     int
	Family EntryFamily

	GoldenCross   *GoldenCrossParams
	TrendPullback *TrendPullbackParams
	EMAMomentum   *EMAMomentumParams
	Breakout      *BreakoutParams
	CoreTrend     *CoreTrendParams
	SwingPullback *SwingPullbackParams
}

// Canonical entry strategy ids.
const (
	EntryGoldenCross       = 1
	EntryTrendConservative = 101
	EntryTrendAggressive   = 102
	EntryScalping          = 103
	EntrySwingDeepPullback = 104
	EntryBreakout          = 105
	EntryCoreTrend         = 111
	EntrySwingPullback     = 112
)

var entryPresets = map[int]EntryPreset{
	EntryTrendConservative: {
		Key: "TREND_CONSERVATIVE", Name: "Trend Conservative",
		ID: EntryTrendConservative, Family: FamilyTrendPullback,
		TrendPullback: &TrendPullbackParams{
			MAFastPeriod: 20, MASlowPeriod: 200,
			PullbackMinPct: 1.0, PullbackMaxPct: 2.0,
			RSIPeriod: 14, RSIMin: 50, RSIMax: 60,
			RequireCandlePattern: true,
			ATRFilterEnabled:     true, ATRPeriod: 14, ATRMAPeriod: 14, ATRMinRatio: 0.7,
			VolumeMultiplier: 0, VolumeMAPeriod: 10,
		},
	},
	EntryTrendAggressive: {
		Key: "TREND_AGGRESSIVE", Name: "Trend Aggressive",
		ID: EntryTrendAggressive, Family: FamilyTrendPullback,
		TrendPullback: &TrendPullbackParams{
			MAFastPeriod: 10, MASlowPeriod: 50,
			PullbackMinPct: 2.5, PullbackMaxPct: 4.0,
			RSIPeriod: 14, RSIMin: 55, RSIMax: 70,
			RequireCandlePattern: false,
			ATRFilterEnabled:     false, ATRPeriod: 14, ATRMAPeriod: 14, ATRMinRatio: 0.7,
			VolumeMultiplier: 1.2, VolumeMAPeriod: 10,
		},
	},
	EntryScalping: {
		Key: "SCALPING", Name: "Scalping / Micro-Momentum",
		ID: EntryScalping, Family: FamilyEMAMomentum,
		EMAMomentum: &EMAMomentumParams{
			EMAFast: 9, EMASlow: 21,
			ATRPeriod: 14, BodyATRMult: 0.7,
			RSIPeriod: 14, RSIMin: 45, RSIMax: 55,
			RequireAboveEMA:  true,
			VolumeMultiplier: 1.1, VolumeMAPeriod: 10,
		},
	},
	EntrySwingDeepPullback: {
		Key: "SWING_DEEP_PULLBACK", Name: "Swing Deep Pullback",
		ID: EntrySwingDeepPullback, Family: FamilyTrendPullback,
		TrendPullback: &TrendPullbackParams{
			MAFastPeriod: 50, MASlowPeriod: 200,
			PullbackMinPct: 3.0, PullbackMaxPct: 6.0,
			RSIPeriod: 14, RSIMin: 28, RSIMax: 40,
			RequireCandlePattern: false,
			ATRFilterEnabled:     true, ATRPeriod: 14, ATRMAPeriod: 14, ATRMinRatio: 0.7,
			VolumeMultiplier: 0, VolumeMAPeriod: 10,
		},
	},
	EntryBreakout: {
		Key: "BREAKOUT", Name: "Breakout",
		ID: EntryBreakout, Family: FamilyBreakout,
		Breakout: &BreakoutParams{
			EMAPeriod: 20,
			RSIPeriod: 14, RSIMin: 60, RSIMax: 80,
			BreakoutLookback: 20,
			VolumeMultiplier: 1.3, VolumeMAPeriod: 10,
		},
	},

	// Layer-routed entries for the portfolio buckets.
	EntryCoreTrend: {
		Key: "CORE_TREND", Name: "Core Trend",
		ID: EntryCoreTrend, Family: FamilyCoreTrend,
		CoreTrend: &CoreTrendParams{
			EMAFast: 21, EMASlow: 50,
			ADXPeriod: 14, ADXMin: 18,
			RSIPeriod: 14, RSIMin: 45, RSIMax: 65,
			PullbackToEMA: true,
		},
	},
	EntrySwingPullback: {
		Key: "SWING_PULLBACK", Name: "Swing Pullback",
		ID: EntrySwingPullback, Family: FamilySwingPullback,
		SwingPullback: &SwingPullbackParams{
			EMAFast: 20, EMASlow: 50,
			RSIPeriod: 14, RSIMin: 35, RSIMax: 55,
			ATRPeriod: 14, ATRPctMin: 0.8, ATRPctMax: 3.0,
			SwingLookback: 20,
			PullbackMinPct: 2.0, PullbackMaxPct: 8.0,
		},
	},
}

// entryAliases remaps deprecated strategy ids onto canonical ones.
// Unknown ids stay unknown.
var entryAliases = map[int]int{
	2:   EntryTrendConservative,
	3:   EntryScalping,
	101: EntryTrendConservative,
	102: EntryTrendAggressive,
	103: EntryScalping,
	104: EntrySwingDeepPullback,
	105: EntryBreakout,
	106: EntryScalping,
	107: EntryTrendAggressive,
	108: EntryScalping,
	111: EntryCoreTrend,
	112: EntrySwingPullback,
}

// ResolveEntry maps a strategy id (canonical or legacy alias) onto its
// entry preset. Id 1 is the legacy golden cross, built from the base
// config moving average periods.
func ResolveEntry(strategyID, fastMA, slowMA int) (EntryPreset, error) {
	if strategyID == EntryGoldenCross {
		return EntryPreset{
			Key: "LEGACY_GOLDEN_CROSS", Name: "Legacy Golden Cross",
			ID: EntryGoldenCross, Family: FamilyGoldenCross,
			GoldenCross: &GoldenCrossParams{MAFastPeriod: fastMA, MASlowPeriod: slowMA},
		}, nil
	}
	canonical, ok := entryAliases[strategyID]
	if !ok {
		return EntryPreset{}, fmt.Errorf("unknown entry strategy id %d", strategyID)
	}
	return entryPresets[canonical], nil
}

// MinCandles returns the shortest candle history the preset's predicate
// can be evaluated on.
func (p EntryPreset) MinCandles() int {
	need := 2
	maxOf := func(vals ...int) {
		for _, v := range vals {
			if v > need {
				need = v
			}
		}
	}
	switch p.Family {
	case FamilyGoldenCross:
		maxOf(p.GoldenCross.MAFastPeriod+1, p.GoldenCross.MASlowPeriod+1)
	case FamilyTrendPullback:
		s := p.TrendPullback
		maxOf(s.MASlowPeriod, s.RSIPeriod+1, s.ATRPeriod+s.ATRMAPeriod, s.VolumeMAPeriod)
	case FamilyEMAMomentum:
		s := p.EMAMomentum
		maxOf(s.EMASlow+1, s.RSIPeriod+1, s.ATRPeriod+1, s.VolumeMAPeriod)
	case FamilyBreakout:
		s := p.Breakout
		maxOf(s.BreakoutLookback+1, s.EMAPeriod+1, s.RSIPeriod+1, s.VolumeMAPeriod)
	case FamilyCoreTrend:
		s := p.CoreTrend
		maxOf(s.EMASlow, 2*s.ADXPeriod+1, s.RSIPeriod+1)
	case FamilySwingPullback:
		s := p.SwingPullback
		maxOf(s.EMASlow, s.SwingLookback+1, s.RSIPeriod+1, s.ATRPeriod+1)
	}
	return need
}
