package regime

import (
	"fmt"
	"math"

	"regime-trade-bot-go/internal/indicator"
	"regime-trade-bot-go/internal/models"
)

// Metrics are the raw measurements one detection is based on. They are
// carried on the Result so callers can log the evidence.
type Metrics struct {
	ATR         float64 `json:"atr"`
	ATRMA       float64 `json:"atrMa"`
	ATRRatio    float64 `json:"atrRatio"`
	Volume      float64 `json:"volume"`
	VolumeAvg   float64 `json:"volumeAvg"`
	VolumeRatio float64 `json:"volumeRatio"`
	RSI         float64 `json:"rsi"`
	SlopePct    float64 `json:"slopePct"`
}

// Check is one rule condition with its outcome.
type Check struct {
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
}

// RuleSummary is the scorecard of one candidate regime.
type RuleSummary struct {
	Met        int     `json:"met"`
	Total      int     `json:"total"`
	Confidence float64 `json:"confidence"`
	Matched    bool    `json:"matched"`
	Checks     []Check `json:"checks"`
}

// Result is one detection. The function is pure: same candles and
// settings always yield the same Result, and nothing is mutated.
type Result struct {
	Regime     Regime                 `json:"regime"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	Metrics    Metrics                `json:"metrics"`
	Rules      map[Regime]RuleSummary `json:"rules,omitempty"`
}

// Detect classifies the market from closed candles. A regime matches
// only when every one of its conditions holds; partial scores surface as
// confidence diagnostics on the NO_TRADE fallback.
func Detect(candles []models.Candle, cfg Settings) Result {
	if len(candles) < cfg.MinCandles() {
		return Result{
			Regime: NoTrade,
			Reason: fmt.Sprintf("missing data: %d candles, need %d", len(candles), cfg.MinCandles()),
		}
	}

	m, ok := computeMetrics(candles, cfg)
	if !ok {
		return Result{Regime: NoTrade, Reason: "missing data: indicator windows not filled"}
	}
	return classify(m, cfg)
}

// classify scores the candidate regimes against the metrics and picks
// the first full match in priority order.
func classify(m Metrics, cfg Settings) Result {
	rules := map[Regime]RuleSummary{
		Breakout: score([]Check{
			{"atrRatio>=breakoutMin", m.ATRRatio >= cfg.BreakoutATRRatioMin},
			{"volRatio>=breakoutMin", m.VolumeRatio >= cfg.BreakoutVolRatioMin},
			{"rsi>=breakoutMin", m.RSI >= cfg.BreakoutRSIMin},
		}),
		Trend: score([]Check{
			{"abs(slope)>=trendMin", math.Abs(m.SlopePct) >= cfg.TrendSlopeMin},
			{"rsi in trend band", m.RSI >= cfg.TrendRSIMin && m.RSI <= cfg.TrendRSIMax},
			{"atrRatio in trend band", m.ATRRatio >= cfg.TrendATRRatioMin && m.ATRRatio <= cfg.TrendATRRatioMax},
		}),
		Range: score([]Check{
			{"abs(slope)<=rangeMax", math.Abs(m.SlopePct) <= cfg.RangeSlopeMax},
			{"rsi in range band", m.RSI >= cfg.RangeRSIMin && m.RSI <= cfg.RangeRSIMax},
			{"atrRatio<=rangeMax", m.ATRRatio <= cfg.RangeATRRatioMax},
		}),
	}

	// Priority order matters: breakout outranks trend outranks range.
	for _, candidate := range []Regime{Breakout, Trend, Range} {
		summary := rules[candidate]
		if !summary.Matched {
			continue
		}
		if summary.Confidence < cfg.MinConfidence {
			break
		}
		return Result{
			Regime:     candidate,
			Confidence: summary.Confidence,
			Reason:     fmt.Sprintf("%s rules fully met", candidate),
			Metrics:    m,
			Rules:      rules,
		}
	}

	best, bestConf := bestCandidate(rules)
	return Result{
		Regime:     NoTrade,
		Confidence: bestConf,
		Reason:     fmt.Sprintf("no regime matched, best %s at %.2f", best, bestConf),
		Metrics:    m,
		Rules:      rules,
	}
}

func score(checks []Check) RuleSummary {
	met := 0
	for _, c := range checks {
		if c.Passed {
			met++
		}
	}
	return RuleSummary{
		Met:        met,
		Total:      len(checks),
		Confidence: float64(met) / float64(len(checks)),
		Matched:    met == len(checks),
		Checks:     checks,
	}
}

func bestCandidate(rules map[Regime]RuleSummary) (Regime, float64) {
	best, bestConf := NoTrade, 0.0
	for _, candidate := range []Regime{Breakout, Trend, Range} {
		if c := rules[candidate].Confidence; c > bestConf {
			best, bestConf = candidate, c
		}
	}
	return best, bestConf
}

func computeMetrics(candles []models.Candle, cfg Settings) (Metrics, bool) {
	closes := indicator.Closes(candles)

	atr, ok1 := indicator.ATR(candles, cfg.ATRPeriod)
	atrMA, ok2 := indicator.ATRMA(candles, cfg.ATRPeriod, cfg.ATRMAPeriod)
	volAvg, ok3 := indicator.VolumeMA(candles, cfg.VolumeMAPeriod)
	rsi, ok4 := indicator.RSI(closes, cfg.RSIPeriod)
	emaNow, ok5 := indicator.EMA(closes, cfg.SlowMAPeriod)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return Metrics{}, false
	}
	if len(closes) <= cfg.SlopeWindow {
		return Metrics{}, false
	}
	emaPrev, ok := indicator.EMA(closes[:len(closes)-cfg.SlopeWindow], cfg.SlowMAPeriod)
	if !ok || emaPrev == 0 || atrMA == 0 || volAvg == 0 {
		return Metrics{}, false
	}

	lastVol := candles[len(candles)-1].Volume
	return Metrics{
		ATR:         atr,
		ATRMA:       atrMA,
		ATRRatio:    atr / atrMA,
		Volume:      lastVol,
		VolumeAvg:   volAvg,
		VolumeRatio: lastVol / volAvg,
		RSI:         rsi,
		SlopePct:    (emaNow - emaPrev) / emaPrev * 100,
	}, true
}
