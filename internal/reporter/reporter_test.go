package reporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/portfolio"
)

func TestPortfolioTable(t *testing.T) {
	plan := &portfolio.Plan{
		MacroRegime: "TREND",
		Layers: map[string]*portfolio.LayerPlan{
			"core": {
				Layer:   models.Layer{ID: "core", Name: "Core Trend", AllocationPct: 0.5},
				Budget:  portfolio.Budget{BudgetUSD: 50_000, AvailableUSD: 50_000},
				Enabled: true,
			},
			"swing": {
				Layer:  models.Layer{ID: "swing", Name: "Swing", AllocationPct: 0.35},
				Budget: portfolio.Budget{BudgetUSD: 35_000, ExposureUSD: 10_000, AvailableUSD: 25_000},
				Reason: "layer paused: daily loss stop",
			},
		},
	}

	out := PortfolioTable(plan, 100_000)
	assert.Contains(t, out, "Core Trend")
	assert.Contains(t, out, "enabled")
	assert.Contains(t, out, "layer paused: daily loss stop")
	assert.Contains(t, out, "25000.00")
	assert.NotContains(t, out, "DAILY CIRCUIT BREAKER")

	plan.DailyStopHit = true
	assert.Contains(t, PortfolioTable(plan, 100_000), "DAILY CIRCUIT BREAKER")
}

func TestPositionsTable(t *testing.T) {
	positions := map[string]*models.Position{
		"BTCUSDT": {HasPosition: true, EntryPrice: 50_000, Qty: 0.1, MaxPrice: 51_000, LayerID: "core", StrategyID: 101},
		"ETHUSDT": {HasPosition: false},
	}
	out := PositionsTable(positions, map[string]float64{"BTCUSDT": 50_500})
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "50.00") // 0.1 * 500 unrealized
	assert.NotContains(t, out, "ETHUSDT")

	empty := PositionsTable(map[string]*models.Position{}, nil)
	assert.NotEmpty(t, empty)
}

func TestPerformanceLine(t *testing.T) {
	line := PerformanceLine(models.Performance{LastEquity: 101_000, LastPnLPct: 1.0}, "TREND", 1500*time.Millisecond)
	assert.Contains(t, line, "regime=TREND")
	assert.Contains(t, line, "101000.00")
}
