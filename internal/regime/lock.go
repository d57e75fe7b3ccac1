package regime

import "regime-trade-bot-go/internal/models"

const (
	lockHeld     = "held"
	lockSwitched = "switched"
)

// ApplyLock runs the hysteresis gate over a fresh detection. The lock
// keeps the engine from flip-flopping between regimes on consecutive
// bars: a new regime must persist (or be a breakout, which preempts)
// before it replaces the current one.
func ApplyLock(prev models.RegimeLockState, detected Regime, minHold int) models.RegimeLockState {
	// First detection ever: adopt immediately.
	if prev.Current == "" {
		return models.RegimeLockState{
			Current:   string(detected),
			HoldCount: 1,
			Status:    lockSwitched,
			Switched:  true,
		}
	}

	if string(detected) == prev.Current {
		return models.RegimeLockState{
			Current:   prev.Current,
			Previous:  prev.Previous,
			HoldCount: prev.HoldCount + 1,
			Status:    lockHeld,
		}
	}

	// Breakouts preempt the hold window.
	if detected == Breakout {
		return switchTo(prev, detected)
	}

	if prev.HoldCount < minHold {
		return models.RegimeLockState{
			Current:   prev.Current,
			Previous:  prev.Previous,
			HoldCount: prev.HoldCount + 1,
			Status:    lockHeld,
		}
	}

	return switchTo(prev, detected)
}

func switchTo(prev models.RegimeLockState, detected Regime) models.RegimeLockState {
	return models.RegimeLockState{
		Current:   string(detected),
		Previous:  prev.Current,
		HoldCount: 1,
		Status:    lockSwitched,
		Switched:  true,
	}
}
