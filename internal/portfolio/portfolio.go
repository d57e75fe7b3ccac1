// Package portfolio is the layer risk engine: per-layer budgets and
// exposure, trailing drawdown windows with sticky pauses, the global
// circuit breaker and order-fraction sizing. It produces one Plan per
// cycle; the decision engine consumes the plan and never computes risk
// on its own.
package portfolio

import (
	"strings"
	"time"

	"regime-trade-bot-go/internal/models"
)

const (
	dayWindow  = 24 * time.Hour
	weekWindow = 7 * 24 * time.Hour
)

// NormalizeLayerID canonicalizes a layer id for map keys. Trade records
// and configuration may carry stray whitespace or mixed case; both must
// land in the same bucket.
func NormalizeLayerID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Budget is one layer's capital picture for the cycle. All amounts are
// in quote currency.
type Budget struct {
	BudgetUSD    float64 `json:"budgetUsd"`
	ExposureUSD  float64 `json:"exposureUsd"`
	AvailableUSD float64 `json:"availableUsd"`
}

// OpenCounts tallies open positions globally and per layer.
func OpenCounts(positions map[string]*models.Position) (total int, perLayer map[string]int) {
	perLayer = make(map[string]int)
	for _, pos := range positions {
		if pos == nil || !pos.HasPosition {
			continue
		}
		total++
		perLayer[NormalizeLayerID(pos.LayerID)]++
	}
	return total, perLayer
}

// LayerExposure sums the marked value of open positions tagged to a
// layer. Positions without a known last price fall back to their entry
// price.
func LayerExposure(layerID string, positions map[string]*models.Position, lastPrices map[string]float64) float64 {
	layerID = NormalizeLayerID(layerID)
	exposure := 0.0
	for symbol, pos := range positions {
		if pos == nil || !pos.HasPosition {
			continue
		}
		if NormalizeLayerID(pos.LayerID) != layerID {
			continue
		}
		price := lastPrices[symbol]
		if price <= 0 {
			price = pos.EntryPrice
		}
		exposure += price * pos.Qty
	}
	return exposure
}

// ComputeBudgets builds the per-layer budget table:
// budget = equity * allocationPct, available = max(0, budget - exposure).
func ComputeBudgets(equity float64, layers []models.Layer, positions map[string]*models.Position, lastPrices map[string]float64) map[string]Budget {
	out := make(map[string]Budget, len(layers))
	for _, layer := range layers {
		id := NormalizeLayerID(layer.ID)
		budget := equity * layer.AllocationPct
		exposure := LayerExposure(id, positions, lastPrices)
		available := budget - exposure
		if available < 0 {
			available = 0
		}
		out[id] = Budget{BudgetUSD: budget, ExposureUSD: exposure, AvailableUSD: available}
	}
	return out
}

// GlobalMaxOpenPositions is the portfolio-wide ceiling: the sum of the
// layer ceilings.
func GlobalMaxOpenPositions(layers []models.Layer) int {
	total := 0
	for _, layer := range layers {
		total += layer.MaxOpenPositions
	}
	return total
}

// windowPnL sums realized PnL of a layer's trades newer than the cutoff.
func windowPnL(layerID string, trades []models.TradeRecord, cutoff time.Time) float64 {
	pnl := 0.0
	for _, t := range trades {
		if NormalizeLayerID(t.LayerID) != layerID {
			continue
		}
		if t.Time.Before(cutoff) {
			continue
		}
		pnl += t.PnL
	}
	return pnl
}

// ComputeLayerState recomputes a layer's drawdown windows and pause
// state. A pause is sticky: once PauseUntil is set it is never moved or
// cleared early, even if PnL recovers inside the cooldown window.
func ComputeLayerState(layer models.Layer, prev models.LayerState, trades []models.TradeRecord, equity float64, now time.Time) models.LayerState {
	id := NormalizeLayerID(layer.ID)
	state := models.LayerState{
		PnLDay:  windowPnL(id, trades, now.Add(-dayWindow)),
		PnLWeek: windowPnL(id, trades, now.Add(-weekWindow)),
	}

	allocated := equity * layer.AllocationPct
	if allocated > 0 {
		state.DrawdownDay = drawdownPct(state.PnLDay, allocated)
		state.DrawdownWeek = drawdownPct(state.PnLWeek, allocated)
	}

	if prev.PausedAt(now) {
		state.Paused = true
		state.PauseUntil = prev.PauseUntil
		state.PauseReason = prev.PauseReason
		return state
	}

	if layer.LossStopDailyPct > 0 && state.DrawdownDay >= layer.LossStopDailyPct {
		pause(&state, now, layer.CooldownHours, "daily loss stop")
	} else if layer.LossStopWeeklyPct > 0 && state.DrawdownWeek >= layer.LossStopWeeklyPct {
		pause(&state, now, layer.CooldownHours, "weekly loss stop")
	}
	return state
}

func drawdownPct(pnl, allocated float64) float64 {
	if pnl >= 0 {
		return 0
	}
	return -pnl / allocated * 100
}

func pause(state *models.LayerState, now time.Time, cooldownHours float64, reason string) {
	state.Paused = true
	state.PauseUntil = now.Add(time.Duration(cooldownHours * float64(time.Hour)))
	state.PauseReason = reason
}

// CanOpen runs the eligibility chain for opening a new position in a
// layer. The checks run in a fixed order so the returned reason names
// the first gate that failed.
func CanOpen(state models.LayerState, budget Budget, layer models.Layer, totalOpen, layerOpen, globalMax int, now time.Time) (bool, string) {
	if state.PausedAt(now) {
		return false, "layer paused"
	}
	if globalMax > 0 && totalOpen >= globalMax {
		return false, "global position limit reached"
	}
	if layer.MaxOpenPositions > 0 && layerOpen >= layer.MaxOpenPositions {
		return false, "layer position limit reached"
	}
	if budget.AvailableUSD <= 0 {
		return false, "no available budget"
	}
	return true, ""
}

// OrderFraction sizes one order as a fraction of free cash:
// orderBudget = min(available, equity*allocationPct*maxRiskPerTradePct/100),
// fraction = min(1, orderBudget/freeCash).
func OrderFraction(equity, freeCash float64, layer models.Layer, availableUSD float64) float64 {
	if freeCash <= 0 {
		return 0
	}
	maxRiskUSD := equity * layer.AllocationPct * layer.MaxRiskPerTradePct / 100
	orderBudget := availableUSD
	if maxRiskUSD < orderBudget {
		orderBudget = maxRiskUSD
	}
	if orderBudget <= 0 {
		return 0
	}
	fraction := orderBudget / freeCash
	if fraction > 1 {
		fraction = 1
	}
	return fraction
}
