package models

import "time"

// RegimeLockState carries the hysteresis state of the regime detector
// across cycles.
type RegimeLockState struct {
	Current   string `json:"current"`
	Previous  string `json:"previous,omitempty"`
	HoldCount int    `json:"holdCount"`
	// Status is "held" when the lock suppressed a switch this cycle,
	// "switched" when a new regime took over, "" otherwise.
	Status   string `json:"status,omitempty"`
	Switched bool   `json:"switched,omitempty"`
}

// RuntimeConfig is the hot-reloadable slice of configuration. Every
// field is validated against an allow-list before it replaces the
// previous value.
type RuntimeConfig struct {
	ActiveStrategyID    int           `json:"activeStrategyId"`
	LoopInterval        time.Duration `json:"loopInterval"`
	StopLossPct         float64       `json:"stopLossPct"`
	TakeProfitPct       float64       `json:"takeProfitPct"`
	TrailStartPct       float64       `json:"trailStartPct"`
	TrailDistancePct    float64       `json:"trailDistancePct"`
	UseCandleExit       bool          `json:"useCandleExit"`
	CandleRedTriggerPct float64       `json:"candleRedTriggerPct"`
}

// PortfolioSnapshot is the portion of the last trading plan worth
// persisting: which macro regime was in force, whether the daily stop
// tripped, and each layer's risk state.
type PortfolioSnapshot struct {
	MacroRegime  string                `json:"macroRegime,omitempty"`
	DailyStopHit bool                  `json:"dailyStopHit"`
	Layers       map[string]LayerState `json:"layers,omitempty"`
	PlannedAt    time.Time             `json:"plannedAt,omitempty"`
}

// BotState is everything one market needs to survive a restart. It is
// saved as a whole after every cycle and loaded once on startup.
type BotState struct {
	Market      string               `json:"market"`
	Positions   map[string]*Position `json:"positions"`
	RegimeLock  RegimeLockState      `json:"regimeLock"`
	Runtime     RuntimeConfig        `json:"runtime"`
	Portfolio   PortfolioSnapshot    `json:"portfolio"`
	Performance Performance          `json:"performance"`
	LastUpdate  time.Time            `json:"lastUpdate"`
}

// NewBotState returns an empty state for a market.
func NewBotState(market string) *BotState {
	return &BotState{
		Market:    market,
		Positions: make(map[string]*Position),
	}
}

// Position returns the lifecycle record for a symbol, creating a flat
// one on first use.
func (s *BotState) Position(symbol string) *Position {
	if s.Positions == nil {
		s.Positions = make(map[string]*Position)
	}
	p, ok := s.Positions[symbol]
	if !ok {
		p = &Position{}
		s.Positions[symbol] = p
	}
	return p
}
