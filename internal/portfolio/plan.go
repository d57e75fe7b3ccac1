package portfolio

import (
	"time"

	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/regime"
)

// Rules maps a macro regime to the layer ids allowed to trade in it.
// A regime with no entry enables nothing.
type Rules map[string][]string

// DefaultRules trades all configured layers in a trend, only the first
// in a range, and nothing when volatile or off. Production deployments
// override this per market.
func DefaultRules(layers []models.Layer) Rules {
	all := make([]string, 0, len(layers))
	for _, l := range layers {
		all = append(all, NormalizeLayerID(l.ID))
	}
	rules := Rules{
		string(regime.MacroTrend): all,
		string(regime.MacroRange): nil,
	}
	if len(all) > 0 {
		rules[string(regime.MacroRange)] = all[:1]
	}
	return rules
}

// LayerPlan is one layer's slice of the trading plan.
type LayerPlan struct {
	Layer   models.Layer
	State   models.LayerState
	Budget  Budget
	Enabled bool
	Reason  string
}

// Plan is the per-cycle output of the risk engine. Enabled preserves
// the configuration order of the layers cleared to open positions.
type Plan struct {
	MacroRegime  regime.MacroRegime
	DailyStopHit bool
	Layers       map[string]*LayerPlan
	Enabled      []*LayerPlan
	PlannedAt    time.Time
}

// PlanInput bundles everything BuildPlan reads. Trades should cover at
// least the trailing week for the drawdown windows to be correct.
type PlanInput struct {
	Equity       float64
	Layers       []models.Layer
	PrevStates   map[string]models.LayerState
	Trades       []models.TradeRecord
	Positions    map[string]*models.Position
	LastPrices   map[string]float64
	Rules        Rules
	DailyStopPct float64
	MacroCandles []models.Candle
	MacroConfig  regime.MacroConfig
	Now          time.Time
}

// BuildPlan classifies the macro regime, recomputes every layer's risk
// state and budget, applies the global circuit breaker and marks which
// layers may open positions this cycle.
func BuildPlan(in PlanInput) *Plan {
	plan := &Plan{
		MacroRegime: regime.DetectMacro(in.MacroCandles, in.MacroConfig),
		Layers:      make(map[string]*LayerPlan, len(in.Layers)),
		PlannedAt:   in.Now,
	}

	budgets := ComputeBudgets(in.Equity, in.Layers, in.Positions, in.LastPrices)

	// Global circuit breaker: aggregate daily realized loss against
	// total equity.
	if in.DailyStopPct > 0 && in.Equity > 0 {
		dayCut := in.Now.Add(-dayWindow)
		dailyPnL := 0.0
		for _, t := range in.Trades {
			if !t.Time.Before(dayCut) {
				dailyPnL += t.PnL
			}
		}
		if dailyPnL < 0 && -dailyPnL/in.Equity >= in.DailyStopPct/100 {
			plan.DailyStopHit = true
		}
	}

	allowed := make(map[string]bool)
	for _, id := range in.Rules[string(plan.MacroRegime)] {
		allowed[NormalizeLayerID(id)] = true
	}

	for _, layer := range in.Layers {
		id := NormalizeLayerID(layer.ID)
		lp := &LayerPlan{
			Layer:  layer,
			State:  ComputeLayerState(layer, in.PrevStates[id], in.Trades, in.Equity, in.Now),
			Budget: budgets[id],
		}

		switch {
		case plan.DailyStopHit:
			lp.Reason = "daily circuit breaker"
		case plan.MacroRegime == regime.MacroOff:
			lp.Reason = "macro regime off"
		case !allowed[id]:
			lp.Reason = "macro regime excludes layer"
		case lp.State.PausedAt(in.Now):
			lp.Reason = "layer paused: " + lp.State.PauseReason
		default:
			lp.Enabled = true
		}

		plan.Layers[id] = lp
		if lp.Enabled {
			plan.Enabled = append(plan.Enabled, lp)
		}
	}
	return plan
}

// Snapshot reduces the plan to the persistable portion of bot state.
func (p *Plan) Snapshot() models.PortfolioSnapshot {
	snap := models.PortfolioSnapshot{
		MacroRegime:  string(p.MacroRegime),
		DailyStopHit: p.DailyStopHit,
		Layers:       make(map[string]models.LayerState, len(p.Layers)),
		PlannedAt:    p.PlannedAt,
	}
	for id, lp := range p.Layers {
		snap.Layers[id] = lp.State
	}
	return snap
}

// States extracts the layer states for the next cycle's PrevStates.
func (p *Plan) States() map[string]models.LayerState {
	out := make(map[string]models.LayerState, len(p.Layers))
	for id, lp := range p.Layers {
		out[id] = lp.State
	}
	return out
}
