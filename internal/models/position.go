package models

import "time"

// StopModel selects which exit payload on a Position is live.
type StopModel string

const (
	StopModelPercent StopModel = "percent"
	StopModelATR     StopModel = "atr"
)

// Position is the per-symbol lifecycle record. Exactly one position per
// symbol; a flat symbol keeps a zeroed record with HasPosition false.
//
// Fields after StopModel belong to exactly one of the two exit models.
// The inactive model's fields stay zero and everything is cleared on
// Reset when the position closes.
type Position struct {
	HasPosition bool    `json:"hasPosition"`
	EntryPrice  float64 `json:"entryPrice"`
	Qty         float64 `json:"qty"`
	// MaxPrice is the highest price seen since entry, drives trailing.
	MaxPrice float64 `json:"maxPrice"`

	LayerID    string `json:"layerId,omitempty"`
	StrategyID int    `json:"strategyId,omitempty"`
	// Preset ids are frozen at open so a closed trade reports the
	// bindings it was actually opened under, not the current config.
	EntryPresetID int     `json:"entryPresetId,omitempty"`
	ExitPresetID  int     `json:"exitPresetId,omitempty"`
	RiskUSD       float64 `json:"riskUsd,omitempty"`

	OpenedAt   time.Time `json:"openedAt,omitempty"`
	EntryBarTs int64     `json:"entryBarTs,omitempty"`
	// LastEvaluatedAt is the open time of the last bar this symbol was
	// evaluated on, in milliseconds. Guards against double evaluation of
	// the same closed bar.
	LastEvaluatedAt int64 `json:"lastEvaluatedAt,omitempty"`

	StopModel StopModel `json:"stopModel,omitempty"`

	// ATR model payload. EntryATR is frozen on the first exit evaluation
	// after entry and never recomputed.
	EntryATR     float64 `json:"entryAtr,omitempty"`
	EntryR       float64 `json:"entryR,omitempty"`
	InitialStop  float64 `json:"initialStop,omitempty"`
	TrailingStop float64 `json:"trailingStop,omitempty"`

	// BreakoutLevel is the breakout price recorded at entry by breakout
	// strategies, used by the invalidation exit.
	BreakoutLevel float64 `json:"breakoutLevel,omitempty"`
}

// Reset returns the position to the flat state. LastEvaluatedAt is kept
// so the symbol is not re-evaluated on the same bar it just closed on.
func (p *Position) Reset() {
	last := p.LastEvaluatedAt
	*p = Position{LastEvaluatedAt: last}
}

// UnrealizedPnL returns the open PnL at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if !p.HasPosition {
		return 0
	}
	return (price - p.EntryPrice) * p.Qty
}
