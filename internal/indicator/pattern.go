package indicator

import "regime-trade-bot-go/internal/models"

// IsBullishEngulfing reports whether cur is a green candle whose body
// engulfs the body of the preceding red candle. Bodies touching at the
// boundary still engulf; an equal-sized body does not.
func IsBullishEngulfing(prev, cur models.Candle) bool {
	if prev.Close >= prev.Open || cur.Close <= cur.Open {
		return false
	}
	if cur.Body() <= prev.Body() {
		return false
	}
	return cur.Open <= prev.Close && cur.Close >= prev.Open
}

// IsBullishHammer reports whether the candle is a hammer: long lower
// wick, small upper wick, close strictly above the range midpoint.
func IsBullishHammer(c models.Candle) bool {
	body := c.Body()
	if body == 0 {
		return false
	}
	lower := min(c.Open, c.Close) - c.Low
	upper := c.High - max(c.Open, c.Close)
	rng := c.High - c.Low
	if rng <= 0 {
		return false
	}
	return lower >= 2*body &&
		upper <= 1.2*body &&
		c.Close > (c.High+c.Low)/2
}

// IsBullishReversal reports either of the reversal patterns the entry
// presets accept.
func IsBullishReversal(prev, cur models.Candle) bool {
	return IsBullishEngulfing(prev, cur) || IsBullishHammer(cur)
}
