package models

import "time"

// Layer is a capital allocation bucket with its own strategy binding and
// risk limits. Layers are configured statically; their runtime state
// lives in LayerState.
type Layer struct {
	ID                 string    `json:"id" mapstructure:"id"`
	Name               string    `json:"name" mapstructure:"name"`
	AllocationPct      float64   `json:"allocationPct" mapstructure:"allocation_pct"`
	MaxRiskPerTradePct float64   `json:"maxRiskPerTradePct" mapstructure:"max_risk_per_trade_pct"`
	MaxOpenPositions   int       `json:"maxOpenPositions" mapstructure:"max_open_positions"`
	EntryStrategyID    int       `json:"entryStrategyId" mapstructure:"entry_strategy_id"`
	ExitPresetID       int       `json:"exitPresetId" mapstructure:"exit_preset_id"`
	Timeframe          Timeframe `json:"timeframe" mapstructure:"timeframe"`
	// Drawdown limits in percent of the layer's allocated capital.
	LossStopDailyPct  float64 `json:"lossStopDailyPct" mapstructure:"loss_stop_daily_pct"`
	LossStopWeeklyPct float64 `json:"lossStopWeeklyPct" mapstructure:"loss_stop_weekly_pct"`
	CooldownHours     float64 `json:"cooldownHours" mapstructure:"cooldown_hours"`
}

// LayerState is the mutable risk state of one layer, recomputed every
// cycle and persisted with the bot state.
type LayerState struct {
	PnLDay       float64   `json:"pnlDay"`
	PnLWeek      float64   `json:"pnlWeek"`
	DrawdownDay  float64   `json:"drawdownDay"`
	DrawdownWeek float64   `json:"drawdownWeek"`
	Paused       bool      `json:"paused"`
	PauseUntil   time.Time `json:"pauseUntil,omitempty"`
	PauseReason  string    `json:"pauseReason,omitempty"`
}

// PausedAt reports whether the layer is paused at the given instant.
// A pause is sticky: it only lifts once PauseUntil has passed.
func (s LayerState) PausedAt(now time.Time) bool {
	return s.Paused && now.Before(s.PauseUntil)
}
