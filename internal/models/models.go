package models

import (
	"fmt"
	"time"
)

// Candle is a single closed OHLCV bar. OpenTime is the bar's open
// timestamp in milliseconds since epoch, matching the exchange payload.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

// IsRed reports whether the candle closed below its open.
func (c Candle) IsRed() bool {
	return c.Close < c.Open
}

// Timeframe is a bar interval in exchange notation ("1m", "15m", "1h", "4h").
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// Duration returns the bar length. Unknown timeframes fall back to one
// hour so a misconfigured layer degrades to slower evaluation instead of
// evaluating every tick.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := timeframeDurations[tf]; ok {
		return d
	}
	return time.Hour
}

// Valid reports whether the timeframe is one the exchange serves.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// TradeSide is the direction of a fill.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
	// SideLong marks a closed long round trip in the trade history.
	SideLong TradeSide = "LONG"
)

// TradeRecord is one closed round trip, persisted to the trade history
// store and used by the portfolio drawdown windows.
type TradeRecord struct {
	ID            string    `json:"id"`
	Market        string    `json:"market"`
	Symbol        string    `json:"symbol"`
	Side          TradeSide `json:"side"`
	EntryPrice    float64   `json:"entryPrice"`
	ExitPrice     float64   `json:"exitPrice"`
	Qty           float64   `json:"qty"`
	PnL           float64   `json:"pnl"`
	PnLPct        float64   `json:"pnlPct"`
	LayerID       string    `json:"layerId,omitempty"`
	StrategyID    int       `json:"strategyId"`
	EntryPresetID int       `json:"entryPresetId,omitempty"`
	ExitPresetID  int       `json:"exitPresetId,omitempty"`
	ExitReason    string    `json:"exitReason,omitempty"`
	Time          time.Time `json:"time"`
}

// EquitySample is a point on the performance curve.
type EquitySample struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Performance tracks realized performance against the initial capital
// baseline across restarts.
type Performance struct {
	InitialCapital float64        `json:"initialCapital"`
	LastEquity     float64        `json:"lastEquity"`
	LastPnLPct     float64        `json:"lastPnlPct"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Samples        []EquitySample `json:"samples,omitempty"`
}

// Update appends an equity sample and refreshes the PnL line.
func (p *Performance) Update(equity float64, now time.Time) {
	if p.InitialCapital <= 0 {
		p.InitialCapital = equity
	}
	p.LastEquity = equity
	if p.InitialCapital > 0 {
		p.LastPnLPct = (equity - p.InitialCapital) / p.InitialCapital * 100
	}
	p.UpdatedAt = now
	p.Samples = append(p.Samples, EquitySample{Time: now, Equity: equity})
	if len(p.Samples) > 500 {
		p.Samples = p.Samples[len(p.Samples)-500:]
	}
}

func (p *Performance) String() string {
	return fmt.Sprintf("equity=%.2f pnl=%.2f%%", p.LastEquity, p.LastPnLPct)
}
