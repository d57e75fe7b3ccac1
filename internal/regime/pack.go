package regime

import "fmt"

// Selection is the strategy pack chosen for a confirmed regime, or a
// block with the reason no entries should be taken this cycle.
type Selection struct {
	Pack    Pack   `json:"pack"`
	Allowed bool   `json:"allowed"`
	Variant string `json:"variant,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// PickStrategyPack maps a locked regime plus its metrics onto concrete
// entry/exit strategy ids. Trend regimes split into three variants on
// the metrics; ranges with elevated volatility are blocked outright.
func PickStrategyPack(current Regime, res Result, cfg Settings) Selection {
	switch current {
	case Breakout:
		return Selection{Pack: cfg.Packs[Breakout], Allowed: true, Variant: "breakout"}

	case Trend:
		m := res.Metrics
		if m.RSI <= cfg.TrendRSIMin+2 {
			return Selection{
				Pack:    Pack{EntryStrategyID: 104, ExitPresetID: 6},
				Allowed: true,
				Variant: "trend pullback opportunity",
			}
		}
		if m.SlopePct >= 2*cfg.TrendSlopeMin || m.ATRRatio >= cfg.TrendATRRatioMax {
			return Selection{
				Pack:    Pack{EntryStrategyID: 102, ExitPresetID: 4},
				Allowed: true,
				Variant: "strong trend",
			}
		}
		return Selection{Pack: cfg.Packs[Trend], Allowed: true, Variant: "baseline trend"}

	case Range:
		if res.Metrics.ATRRatio <= 0.9*cfg.RangeATRRatioMax {
			return Selection{Pack: cfg.Packs[Range], Allowed: true, Variant: "quiet range"}
		}
		return Selection{Allowed: false, Reason: "range volatility too high"}

	default:
		reason := res.Reason
		if reason == "" {
			reason = fmt.Sprintf("no tradable regime (%s)", current)
		}
		return Selection{Allowed: false, Reason: reason}
	}
}
