// Package reporter renders the per-cycle console summaries: portfolio
// plan, open positions and performance. Output is plain text tables,
// written through the logger so file output captures them too.
package reporter

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/portfolio"
)

// PortfolioTable renders the layer plan for one cycle.
func PortfolioTable(plan *portfolio.Plan, equity float64) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Portfolio  macro=%s  equity=%.2f", plan.MacroRegime, equity))
	t.AppendHeader(table.Row{"Layer", "Alloc%", "Budget", "Exposure", "Available", "PnL 24h", "DD 24h%", "Status"})

	ids := make([]string, 0, len(plan.Layers))
	for id := range plan.Layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		lp := plan.Layers[id]
		status := "enabled"
		if !lp.Enabled {
			status = lp.Reason
		}
		t.AppendRow(table.Row{
			lp.Layer.Name,
			fmt.Sprintf("%.0f", lp.Layer.AllocationPct*100),
			fmt.Sprintf("%.2f", lp.Budget.BudgetUSD),
			fmt.Sprintf("%.2f", lp.Budget.ExposureUSD),
			fmt.Sprintf("%.2f", lp.Budget.AvailableUSD),
			fmt.Sprintf("%.2f", lp.State.PnLDay),
			fmt.Sprintf("%.2f", lp.State.DrawdownDay),
			status,
		})
	}
	if plan.DailyStopHit {
		t.AppendFooter(table.Row{"", "", "", "", "", "", "", "DAILY CIRCUIT BREAKER"})
	}
	return t.Render()
}

// PositionsTable renders the open positions with marked PnL.
func PositionsTable(positions map[string]*models.Position, lastPrices map[string]float64) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "Qty", "Entry", "Last", "Max", "PnL", "Layer", "Strategy"})

	symbols := make([]string, 0, len(positions))
	for s, p := range positions {
		if p != nil && p.HasPosition {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		p := positions[s]
		last := lastPrices[s]
		if last <= 0 {
			last = p.EntryPrice
		}
		t.AppendRow(table.Row{
			s,
			fmt.Sprintf("%.6f", p.Qty),
			fmt.Sprintf("%.6f", p.EntryPrice),
			fmt.Sprintf("%.6f", last),
			fmt.Sprintf("%.6f", p.MaxPrice),
			fmt.Sprintf("%.2f", p.UnrealizedPnL(last)),
			p.LayerID,
			fmt.Sprintf("%d", p.StrategyID),
		})
	}
	if len(symbols) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-", "-", "-", "-", "-"})
	}
	return t.Render()
}

// PerformanceLine is the one-line cycle footer.
func PerformanceLine(perf models.Performance, regime string, cycleDur time.Duration) string {
	return fmt.Sprintf("regime=%s equity=%.2f pnl=%.2f%% cycle=%s",
		regime, perf.LastEquity, perf.LastPnLPct, cycleDur.Round(time.Millisecond))
}
