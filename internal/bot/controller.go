// Package bot runs one MarketRunner per configured market: restore
// state, evaluate every cycle, persist, sleep. Control actions flow
// through a per-market Controller, never through shared globals.
package bot

import (
	"sync"
)

// Controller carries the control surface of one market runner: stop,
// forced liquidation, kill switch and cycle interrupt. All methods are
// safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	sellAll    bool
	resetFunds bool
	killSwitch bool

	stopOnce  sync.Once
	stopCh    chan struct{}
	interrupt chan struct{}
}

// NewController returns a fresh control surface.
func NewController() *Controller {
	return &Controller{
		stopCh:    make(chan struct{}),
		interrupt: make(chan struct{}, 1),
	}
}

// Stop requests a graceful shutdown. Idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Stopped is closed once Stop has been called.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopCh
}

// RequestSellAll marks every open position for liquidation on the next
// cycle and wakes the runner immediately.
func (c *Controller) RequestSellAll() {
	c.mu.Lock()
	c.sellAll = true
	c.mu.Unlock()
	c.Interrupt()
}

// ConsumeSellAll reports and clears the pending sell-all request.
func (c *Controller) ConsumeSellAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.sellAll
	c.sellAll = false
	return v
}

// RequestResetFunds asks a simulated venue to restore its seed balance
// on the next cycle. Ignored by live brokers.
func (c *Controller) RequestResetFunds() {
	c.mu.Lock()
	c.resetFunds = true
	c.mu.Unlock()
	c.Interrupt()
}

// ConsumeResetFunds reports and clears the pending reset request.
func (c *Controller) ConsumeResetFunds() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.resetFunds
	c.resetFunds = false
	return v
}

// SetKillSwitch blocks all order placement while set. Evaluation still
// runs so state and metrics stay current.
func (c *Controller) SetKillSwitch(on bool) {
	c.mu.Lock()
	c.killSwitch = on
	c.mu.Unlock()
}

// KillSwitch reports the current kill switch state.
func (c *Controller) KillSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killSwitch
}

// Interrupt wakes the runner out of its inter-cycle sleep. Coalesces
// when one is already pending.
func (c *Controller) Interrupt() {
	select {
	case c.interrupt <- struct{}{}:
	default:
	}
}

// Interrupted returns the wakeup channel.
func (c *Controller) Interrupted() <-chan struct{} {
	return c.interrupt
}
