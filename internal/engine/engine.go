// Package engine runs the per-symbol position lifecycle: bar-close
// gating, entry evaluation, exit evaluation for both stop models, and
// trade recording. One call to EvaluateSymbol is one decision pass for
// one symbol on closed candles.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"regime-trade-bot-go/internal/exchange"
	"regime-trade-bot-go/internal/indicator"
	"regime-trade-bot-go/internal/metrics"
	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/preset"
)

// TradeRecorder receives closed round trips. Implemented by the badger
// history store; tests plug in an in-memory recorder.
type TradeRecorder interface {
	Record(trade models.TradeRecord) error
}

// Engine evaluates symbols for one market.
type Engine struct {
	market string
	data   exchange.DataProvider
	broker exchange.Broker
	trades TradeRecorder
	log    *zap.SugaredLogger
	now    func() time.Time
}

// New creates an engine for a market.
func New(market string, data exchange.DataProvider, broker exchange.Broker, trades TradeRecorder, log *zap.SugaredLogger) *Engine {
	return &Engine{
		market: market,
		data:   data,
		broker: broker,
		trades: trades,
		log:    log,
		now:    time.Now,
	}
}

// EvalOptions parameterizes one decision pass.
type EvalOptions struct {
	Symbol      string
	Timeframe   models.Timeframe
	KlinesLimit int
	Quote       string

	AllowEntries bool
	KillSwitch   bool
	// SellAll force-closes the position regardless of exit signals and
	// the candle confirmation gate.
	SellAll bool

	StrategyID int
	Entry      preset.EntryPreset
	// Exit is the resolved percent-model configuration. ExitATR, when
	// non-nil, switches the position to the ATR stop model.
	Exit         preset.ExitConfig
	ExitPresetID int
	ExitATR      *preset.ATRExitParams

	OrderFraction float64
	LayerID       string
	RiskUSD       float64
}

// minRequired is the candle history floor for this pass: the entry
// preset's own requirement plus whatever the exit model needs.
func (o EvalOptions) minRequired() int {
	need := o.Entry.MinCandles()
	if o.ExitATR != nil {
		if v := o.ExitATR.ATRPeriod + 1; v > need {
			need = v
		}
		if v := o.ExitATR.TrendExitSlowEMA; v > need {
			need = v
		}
		if v := o.ExitATR.TrendExitFastEMA; v > need {
			need = v
		}
	}
	return need
}

// EvaluateSymbol performs one decision pass for a symbol. It mutates
// pos in place and updates lastPrices with the newest close. Errors are
// returned to the caller, which isolates them per symbol.
func (e *Engine) EvaluateSymbol(ctx context.Context, opts EvalOptions, pos *models.Position, lastPrices map[string]float64) error {
	candles, err := e.data.GetBars(ctx, opts.Symbol, opts.Timeframe, opts.KlinesLimit)
	if err != nil {
		return err
	}

	if need := opts.minRequired(); len(candles) < need {
		e.log.Infof("[%s] not enough candles: have=%d need=%d", opts.Symbol, len(candles), need)
		return nil
	}

	last := candles[len(candles)-1]
	lastPrices[opts.Symbol] = last.Close

	// A forced liquidation must not wait for the next closed bar.
	forceExit := opts.SellAll && pos.HasPosition
	if !forceExit && !ShouldEvaluate(candles, pos, opts.Timeframe, e.now()) {
		return nil
	}

	if opts.KillSwitch {
		e.log.Infof("[%s] kill switch on, no trades", opts.Symbol)
		return nil
	}

	if pos.HasPosition {
		if err := e.handleExit(ctx, opts, pos, candles); err != nil {
			return err
		}
	}

	if !opts.AllowEntries {
		pos.LastEvaluatedAt = last.OpenTime
		return nil
	}

	if !pos.HasPosition {
		signal := evaluateEntry(candles, opts.Entry, e.log)
		if signal.Enter {
			if err := e.openPosition(ctx, opts, pos, last, signal); err != nil {
				return err
			}
		} else {
			e.log.Debugf("[%s] flat, strategy %d conditions not met", opts.Symbol, opts.StrategyID)
		}
	}

	pos.LastEvaluatedAt = last.OpenTime
	return nil
}

func (e *Engine) openPosition(ctx context.Context, opts EvalOptions, pos *models.Position, last models.Candle, signal entrySignal) error {
	e.log.Infof("[%s] entry signal: strategy %d", opts.Symbol, opts.StrategyID)

	result, err := e.broker.BuyMarket(ctx, opts.Symbol, opts.Quote, opts.OrderFraction)
	if err != nil {
		return err
	}
	if result == nil {
		// Order skipped (below notional or lot size); stay flat.
		return nil
	}

	pos.HasPosition = true
	pos.EntryPrice = result.AvgPrice
	pos.Qty = result.ExecutedQty
	pos.MaxPrice = result.AvgPrice
	pos.LayerID = opts.LayerID
	pos.StrategyID = opts.StrategyID
	pos.EntryPresetID = opts.Entry.ID
	pos.ExitPresetID = opts.ExitPresetID
	pos.RiskUSD = opts.RiskUSD
	pos.OpenedAt = e.now()
	pos.EntryBarTs = last.OpenTime
	pos.StopModel = models.StopModelPercent
	if opts.ExitATR != nil {
		pos.StopModel = models.StopModelATR
	}
	pos.EntryATR = 0
	pos.EntryR = 0
	pos.InitialStop = 0
	pos.TrailingStop = 0
	pos.BreakoutLevel = signal.BreakoutLevel

	metrics.OrdersSubmitted.WithLabelValues(e.market, "buy").Inc()
	e.log.Infof("[%s] LONG opened qty=%.8f avg=%.6f", opts.Symbol, pos.Qty, pos.EntryPrice)
	return nil
}

// handleExit evaluates the exit model, runs the candle confirmation
// gate and liquidates when a confirmed signal (or SellAll) fires.
func (e *Engine) handleExit(ctx context.Context, opts EvalOptions, pos *models.Position, candles []models.Candle) error {
	if len(candles) < 2 {
		return nil
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	price := last.Close

	if price > pos.MaxPrice {
		pos.MaxPrice = price
	}

	var rawExit bool
	if opts.ExitATR != nil {
		rawExit = e.evalATRExit(opts.ExitATR, pos, candles, price)
	} else {
		rawExit = evalPercentExit(opts.Exit, pos, price)
	}

	// Candle confirmation: a raw exit only executes on a decisively red
	// bar. A green bar blocks even a triggered stop.
	candleOK := !opts.Exit.CandleExitEnabled
	if opts.Exit.CandleExitEnabled {
		prevBody := prev.Body()
		if last.IsRed() && prevBody > 0 {
			candleOK = last.Body()/prevBody >= opts.Exit.CandleRedTriggerPct
		}
	}

	exitSignal := (rawExit && candleOK) || opts.SellAll
	if !exitSignal {
		if rawExit && opts.Exit.CandleExitEnabled && !candleOK {
			e.log.Infof("[%s] exit triggered but candle confirmation failed, holding", opts.Symbol)
		}
		return nil
	}

	result, err := e.broker.SellMarketAll(ctx, opts.Symbol, opts.Quote)
	if err != nil {
		return err
	}
	if result == nil {
		e.log.Warnf("[%s] exit signal but nothing to sell", opts.Symbol)
		return nil
	}

	e.recordClose(opts, pos, result)
	pos.Reset()
	metrics.OrdersSubmitted.WithLabelValues(e.market, "sell").Inc()
	e.log.Infof("[%s] LONG closed avg=%.6f", opts.Symbol, result.AvgPrice)
	return nil
}

// evalPercentExit computes the percent-model stop, target and trailing
// levels and reports whether any of them is hit.
func evalPercentExit(cfg preset.ExitConfig, pos *models.Position, price float64) bool {
	entry := pos.EntryPrice
	baseSL := entry * (1 - cfg.StopLossPct)
	baseTP := entry * (1 + cfg.TakeProfitPct)
	dynSL := baseSL

	// Trailing arms once price clears the start level; the stop then
	// follows the high-water mark and never moves down.
	if price >= entry*(1+cfg.TrailStartPct) {
		trailSL := pos.MaxPrice * (1 - cfg.TrailDistancePct)
		if trailSL > dynSL {
			dynSL = trailSL
		}
	}

	return price >= baseTP || price <= dynSL
}

// evalATRExit computes the ATR-model exit. The entry ATR freezes on the
// first evaluation after entry so the R unit stays constant for the
// life of the position.
func (e *Engine) evalATRExit(p *preset.ATRExitParams, pos *models.Position, candles []models.Candle, price float64) bool {
	period := p.ATRPeriod
	if period <= 0 {
		period = 14
	}
	atr, ok := indicator.ATR(candles, period)
	if !ok || atr <= 0 {
		return false
	}

	if pos.EntryATR == 0 {
		pos.EntryATR = atr
	}
	stopDistance := pos.EntryATR * p.InitialATRMult
	if pos.InitialStop == 0 {
		pos.InitialStop = pos.EntryPrice - stopDistance
	}
	if pos.EntryR == 0 {
		pos.EntryR = stopDistance
	}

	r := pos.EntryR
	baseSL := pos.InitialStop
	var baseTP float64
	if p.TakeProfitR > 0 {
		baseTP = pos.EntryPrice + r*p.TakeProfitR
	}

	if p.TrailStartR > 0 && price >= pos.EntryPrice+r*p.TrailStartR {
		trail := price - pos.EntryATR*p.TrailATRMult
		if trail > pos.TrailingStop {
			pos.TrailingStop = trail
		}
	}

	dynSL := baseSL
	if pos.TrailingStop > dynSL {
		dynSL = pos.TrailingStop
	}

	rawExit := price <= dynSL
	if baseTP > 0 && price >= baseTP {
		rawExit = true
	}

	// Trend flip: the fast exit EMA dropping below the slow one ends
	// the trade regardless of levels.
	if p.TrendExitFastEMA > 0 && p.TrendExitSlowEMA > 0 {
		closes := indicator.Closes(candles)
		emaFast, okF := indicator.EMA(closes, p.TrendExitFastEMA)
		emaSlow, okS := indicator.EMA(closes, p.TrendExitSlowEMA)
		if okF && okS && emaFast < emaSlow {
			rawExit = true
		}
	}

	// Time stop: too many bars without reaching the minimum R multiple.
	if p.TimeStopBars > 0 {
		if bars := barsSinceEntry(candles, pos.EntryBarTs); bars >= p.TimeStopBars {
			if price < pos.EntryPrice+r*p.TimeStopMinR {
				rawExit = true
			}
		}
	}

	// Breakout invalidation: price back under the breakout level within
	// the invalidation window.
	if p.InvalidationBars > 0 && pos.BreakoutLevel > 0 {
		if bars := barsSinceEntry(candles, pos.EntryBarTs); bars <= p.InvalidationBars {
			if price < pos.BreakoutLevel {
				rawExit = true
			}
		}
	}

	return rawExit
}

func (e *Engine) recordClose(opts EvalOptions, pos *models.Position, result *exchange.OrderResult) {
	entry := pos.EntryPrice
	qty := pos.Qty
	if qty == 0 {
		qty = result.ExecutedQty
	}
	// Positions restored with a broken entry price produce garbage PnL;
	// skip the record rather than pollute the drawdown windows.
	if qty <= 0 || entry <= 0 {
		return
	}

	exit := result.AvgPrice
	record := models.TradeRecord{
		Market:        e.market,
		Symbol:        opts.Symbol,
		Side:          models.SideLong,
		EntryPrice:    entry,
		ExitPrice:     exit,
		Qty:           qty,
		PnL:           (exit - entry) * qty,
		PnLPct:        (exit - entry) / entry * 100,
		LayerID:       pos.LayerID,
		StrategyID:    pos.StrategyID,
		EntryPresetID: pos.EntryPresetID,
		ExitPresetID:  pos.ExitPresetID,
		Time:          e.now(),
	}
	if err := e.trades.Record(record); err != nil {
		e.log.Warnf("[%s] failed to record trade: %v", opts.Symbol, err)
	}
}
