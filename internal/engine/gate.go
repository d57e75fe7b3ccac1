package engine

import (
	"time"

	"regime-trade-bot-go/internal/models"
)

// barClosed reports whether a candle's interval has fully elapsed.
func barClosed(c models.Candle, tf models.Timeframe, now time.Time) bool {
	if c.OpenTime == 0 {
		return true
	}
	closeAt := time.UnixMilli(c.OpenTime).Add(tf.Duration())
	return !now.Before(closeAt)
}

// ShouldEvaluate decides whether a symbol gets a decision pass this
// cycle: the newest candle must be closed and must not have been
// evaluated before. Signals fire at most once per closed bar regardless
// of how often the cycle loop runs.
func ShouldEvaluate(candles []models.Candle, pos *models.Position, tf models.Timeframe, now time.Time) bool {
	if len(candles) == 0 {
		return false
	}
	last := candles[len(candles)-1]
	if !barClosed(last, tf, now) {
		return false
	}
	if last.OpenTime == 0 {
		return true
	}
	if pos != nil && pos.LastEvaluatedAt == last.OpenTime {
		return false
	}
	return true
}

// barsSinceEntry counts closed bars strictly after the entry bar.
func barsSinceEntry(candles []models.Candle, entryBarTs int64) int {
	if entryBarTs == 0 {
		return 0
	}
	n := 0
	for _, c := range candles {
		if c.OpenTime > entryBarTs {
			n++
		}
	}
	return n
}
