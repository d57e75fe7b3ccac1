package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"regime-trade-bot-go/internal/config"
	"regime-trade-bot-go/internal/engine"
	"regime-trade-bot-go/internal/exchange"
	"regime-trade-bot-go/internal/metrics"
	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/persistence"
	"regime-trade-bot-go/internal/portfolio"
	"regime-trade-bot-go/internal/preset"
	"regime-trade-bot-go/internal/regime"
	"regime-trade-bot-go/internal/reporter"
)

const sleepPoll = 500 * time.Millisecond

// TradeLog is the slice of the history store the runner needs.
type TradeLog interface {
	engine.TradeRecorder
	Since(market string, cutoff time.Time) ([]models.TradeRecord, error)
}

// PriceSource provides streamed last prices, keyed by symbol. Optional;
// candle closes fill the gaps.
type PriceSource interface {
	Snapshot() map[string]float64
}

// Runner owns one market's cycle loop and all of its mutable state.
type Runner struct {
	market string
	cfgFn  func() *config.Config
	data   exchange.DataProvider
	broker exchange.Broker
	repo   persistence.StateRepository
	trades TradeLog
	ctrl   *Controller
	engine *engine.Engine
	prices PriceSource
	log    *zap.SugaredLogger
	now    func() time.Time

	state       *models.BotState
	universe    []string
	universeDay string
	lastPrices  map[string]float64
}

// NewRunner wires a market runner. cfgFn is called at the top of every
// cycle so hot-reloaded configuration takes effect on the next pass.
func NewRunner(market string, cfgFn func() *config.Config, data exchange.DataProvider, broker exchange.Broker,
	repo persistence.StateRepository, trades TradeLog, ctrl *Controller, log *zap.SugaredLogger) *Runner {
	return &Runner{
		market:     market,
		cfgFn:      cfgFn,
		data:       data,
		broker:     broker,
		repo:       repo,
		trades:     trades,
		ctrl:       ctrl,
		engine:     engine.New(market, data, broker, trades, log),
		log:        log,
		now:        time.Now,
		lastPrices: make(map[string]float64),
	}
}

// SetPriceSource attaches a streamed price feed.
func (r *Runner) SetPriceSource(src PriceSource) {
	r.prices = src
}

// Controller returns the runner's control surface.
func (r *Runner) Controller() *Controller {
	return r.ctrl
}

// Run restores state and loops cycles until the context is cancelled or
// the controller stops. The final state save happens here, not in the
// caller.
func (r *Runner) Run(ctx context.Context) {
	if err := r.restore(); err != nil {
		r.log.Warnf("could not restore state, starting fresh: %v", err)
	}
	r.log.Infof("runner started, loop interval %s", r.cfgFn().Runtime.LoopInterval)

	for {
		if err := r.RunCycle(ctx); err != nil {
			r.log.Errorf("cycle failed: %v", err)
		}
		metrics.CyclesTotal.WithLabelValues(r.market).Inc()

		if !r.sleep(ctx, r.cfgFn().Runtime.LoopInterval) {
			break
		}
	}

	if err := r.saveState(); err != nil {
		r.log.Errorf("final state save failed: %v", err)
	}
	r.log.Info("runner stopped")
}

func (r *Runner) restore() error {
	cfg := r.cfgFn()
	state, err := r.repo.LoadState(r.market)
	if err != nil {
		return err
	}
	if state == nil {
		state = models.NewBotState(r.market)
		state.Runtime = cfg.Runtime.Model()
		state.Performance.InitialCapital = cfg.Trading.InitialCapital
		r.log.Info("no saved state, starting fresh")
	} else {
		open, _ := portfolio.OpenCounts(state.Positions)
		r.log.Infof("state restored: %d open positions, regime=%s", open, state.RegimeLock.Current)
	}
	r.state = state
	return nil
}

// sleep waits out the loop interval in short polls so stop and
// interrupt requests take effect within half a second. Returns false
// when the runner should exit.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	deadline := r.now().Add(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.ctrl.Stopped():
			return false
		case <-r.ctrl.Interrupted():
			return true
		case <-time.After(sleepPoll):
			if !r.now().Before(deadline) {
				return true
			}
		}
	}
}

// RunCycle executes one full decision pass over the market.
func (r *Runner) RunCycle(ctx context.Context) error {
	cfg := r.cfgFn()
	now := r.now()
	start := now
	sellAll := r.ctrl.ConsumeSellAll()
	kill := r.ctrl.KillSwitch()

	if r.state == nil {
		r.state = models.NewBotState(r.market)
	}

	if r.ctrl.ConsumeResetFunds() {
		if rf, ok := r.broker.(interface{ ResetFunds() }); ok {
			rf.ResetFunds()
			r.state.Positions = make(map[string]*models.Position)
			r.state.Performance = models.Performance{InitialCapital: cfg.Trading.InitialCapital}
			r.log.Warn("funds reset: seed balance restored, open positions cleared")
		} else {
			r.log.Warn("funds reset requested but the broker does not support it")
		}
	}

	cal, err := r.data.GetCalendar(ctx)
	if err != nil {
		return err
	}
	if !cal.Open && !sellAll {
		r.log.Infof("session closed, next open %s", cal.NextOpen.Format(time.RFC3339))
		return nil
	}

	if r.prices != nil {
		for symbol, price := range r.prices.Snapshot() {
			r.lastPrices[symbol] = price
		}
	}

	r.refreshUniverse(ctx, cfg, now)
	symbols := r.cycleSymbols()

	selection, proxyCandles := r.classifyRegime(ctx, cfg)

	account, err := r.broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	quote := cfg.Universe.Quote
	equity := r.computeEquity(account, quote)
	freeCash := account.Balance(quote).Free

	plan := r.buildPlan(ctx, cfg, equity, proxyCandles, now)

	for _, symbol := range symbols {
		pos := r.state.Position(symbol)
		if err := r.evaluateSymbol(ctx, cfg, symbol, pos, selection, plan, equity, freeCash, sellAll, kill, now); err != nil {
			// Symbol errors never abort the cycle.
			r.log.Errorf("[%s] evaluation failed: %v", symbol, err)
		}
	}

	r.state.Performance.Update(equity, now)
	r.publishMetrics(equity, plan, now)
	r.report(plan, equity, start)

	r.state.Runtime = cfg.Runtime.Model()
	if plan != nil {
		r.state.Portfolio = plan.Snapshot()
	}
	r.state.LastUpdate = now
	return r.saveState()
}

func (r *Runner) refreshUniverse(ctx context.Context, cfg *config.Config, now time.Time) {
	day := now.Format("2006-01-02")
	if day == r.universeDay && len(r.universe) > 0 {
		return
	}
	symbols, err := r.data.TopSymbols(ctx, exchange.UniverseFilter{
		MaxSymbols:      cfg.Universe.MaxSymbols,
		Quote:           cfg.Universe.Quote,
		ExcludeKeywords: cfg.Universe.ExcludeKeywords,
		StableBases:     cfg.Universe.StableBases,
		FiatBases:       cfg.Universe.FiatBases,
	})
	if err != nil {
		r.log.Warnf("universe refresh failed, keeping previous list: %v", err)
		return
	}
	r.universe = symbols
	r.universeDay = day
	r.log.Infof("universe refreshed: %d symbols", len(symbols))
}

// cycleSymbols is the universe plus any symbol still holding a position
// after dropping out of it. Open positions must keep being managed.
func (r *Runner) cycleSymbols() []string {
	seen := make(map[string]bool, len(r.universe))
	out := make([]string, 0, len(r.universe))
	for _, s := range r.universe {
		seen[s] = true
		out = append(out, s)
	}
	for symbol, pos := range r.state.Positions {
		if pos != nil && pos.HasPosition && !seen[symbol] {
			out = append(out, symbol)
		}
	}
	return out
}

// classifyRegime runs detection, the hysteresis lock and pack selection
// on the proxy symbol. With the regime engine disabled every cycle
// trades the configured active strategy.
func (r *Runner) classifyRegime(ctx context.Context, cfg *config.Config) (regime.Selection, []models.Candle) {
	fallback := regime.Selection{
		Allowed: true,
		Pack:    regime.Pack{EntryStrategyID: cfg.Runtime.ActiveStrategyID},
	}

	needProxy := cfg.Regime.Enabled || len(cfg.Layers) > 0
	if !needProxy {
		return fallback, nil
	}

	s := cfg.Regime.Settings
	bars, err := r.data.GetBars(ctx, s.ProxySymbol, s.Timeframe, cfg.Trading.KlinesLimit)
	if err != nil {
		r.log.Warnf("regime proxy %s unavailable: %v", s.ProxySymbol, err)
		if cfg.Regime.Enabled {
			return regime.Selection{Allowed: false, Reason: "regime proxy unavailable"}, nil
		}
		return fallback, nil
	}

	if !cfg.Regime.Enabled {
		return fallback, bars
	}

	res := regime.Detect(bars, s)
	lock := regime.ApplyLock(r.state.RegimeLock, res.Regime, s.MinHold)
	if lock.Switched {
		metrics.RegimeSwitches.WithLabelValues(r.market, lock.Current).Inc()
		r.log.Infof("regime switched %s -> %s (confidence %.2f)", lock.Previous, lock.Current, res.Confidence)
	}
	r.state.RegimeLock = lock

	sel := regime.PickStrategyPack(regime.Regime(lock.Current), res, s)
	if sel.Allowed {
		r.log.Infof("regime %s (%s): strategy %d / exit %d",
			lock.Current, sel.Variant, sel.Pack.EntryStrategyID, sel.Pack.ExitPresetID)
	} else {
		r.log.Infof("regime %s: entries blocked (%s)", lock.Current, sel.Reason)
	}
	return sel, bars
}

func (r *Runner) buildPlan(ctx context.Context, cfg *config.Config, equity float64, proxyCandles []models.Candle, now time.Time) *portfolio.Plan {
	if len(cfg.Layers) == 0 {
		return nil
	}
	trades, err := r.trades.Since(r.market, now.Add(-7*24*time.Hour))
	if err != nil {
		r.log.Warnf("trade history unavailable, drawdown windows empty: %v", err)
	}
	return portfolio.BuildPlan(portfolio.PlanInput{
		Equity:       equity,
		Layers:       cfg.Layers,
		PrevStates:   r.state.Portfolio.Layers,
		Trades:       trades,
		Positions:    r.state.Positions,
		LastPrices:   r.lastPrices,
		Rules:        cfg.Rules(),
		DailyStopPct: cfg.Risk.DailyStopPct,
		MacroCandles: proxyCandles,
		MacroConfig:  cfg.Macro,
		Now:          now,
	})
}

func baseExitConfig(cfg *config.Config) preset.ExitConfig {
	return preset.ExitConfig{
		StopLossPct:         cfg.Runtime.StopLossPct,
		TakeProfitPct:       cfg.Runtime.TakeProfitPct,
		TrailStartPct:       cfg.Runtime.TrailStartPct,
		TrailDistancePct:    cfg.Runtime.TrailDistancePct,
		CandleExitEnabled:   cfg.Runtime.UseCandleExit,
		CandleRedTriggerPct: cfg.Runtime.CandleRedTriggerPct,
	}
}

func atrParams(exitPresetID int) *preset.ATRExitParams {
	if p, ok := preset.ExitPresetByID(exitPresetID); ok && p.ATR != nil {
		return p.ATR
	}
	return nil
}

func (r *Runner) evaluateSymbol(ctx context.Context, cfg *config.Config, symbol string, pos *models.Position,
	selection regime.Selection, plan *portfolio.Plan, equity, freeCash float64, sellAll, kill bool, now time.Time) error {

	base := baseExitConfig(cfg)

	// Held positions keep evaluating with their stored exit binding;
	// entries stay closed for the symbol until it is flat again.
	if pos.HasPosition {
		opts := engine.EvalOptions{
			Symbol:       symbol,
			Timeframe:    r.positionTimeframe(cfg, pos),
			KlinesLimit:  cfg.Trading.KlinesLimit,
			Quote:        cfg.Universe.Quote,
			AllowEntries: false,
			KillSwitch:   kill,
			SellAll:      sellAll,
			Exit:         preset.ResolveExitConfig(pos.ExitPresetID, base),
			ExitPresetID: pos.ExitPresetID,
		}
		if pos.StopModel == models.StopModelATR {
			opts.ExitATR = atrParams(pos.ExitPresetID)
		}
		return r.engine.EvaluateSymbol(ctx, opts, pos, r.lastPrices)
	}

	if sellAll || kill {
		return nil
	}

	if plan != nil {
		return r.evaluateLayered(ctx, cfg, symbol, pos, plan, equity, freeCash, now)
	}

	if !selection.Allowed {
		return nil
	}
	strategyID := selection.Pack.EntryStrategyID
	if strategyID == 0 {
		strategyID = cfg.Runtime.ActiveStrategyID
	}
	entry, err := preset.ResolveEntry(strategyID, cfg.Trading.FastMA, cfg.Trading.SlowMA)
	if err != nil {
		return err
	}
	opts := engine.EvalOptions{
		Symbol:        symbol,
		Timeframe:     cfg.Trading.Interval,
		KlinesLimit:   cfg.Trading.KlinesLimit,
		Quote:         cfg.Universe.Quote,
		AllowEntries:  true,
		StrategyID:    strategyID,
		Entry:         entry,
		Exit:          preset.ResolveExitConfig(selection.Pack.ExitPresetID, base),
		ExitPresetID:  selection.Pack.ExitPresetID,
		OrderFraction: cfg.Trading.QuoteOrderFraction,
	}
	return r.engine.EvaluateSymbol(ctx, opts, pos, r.lastPrices)
}

// evaluateLayered walks the enabled layers in configuration order and
// opens at most one position for the symbol: the first layer whose
// eligibility chain passes and whose entry predicate fires wins.
func (r *Runner) evaluateLayered(ctx context.Context, cfg *config.Config, symbol string, pos *models.Position,
	plan *portfolio.Plan, equity, freeCash float64, now time.Time) error {

	base := baseExitConfig(cfg)
	globalMax := cfg.Risk.MaxOpenPositions
	if globalMax <= 0 {
		globalMax = portfolio.GlobalMaxOpenPositions(cfg.Layers)
	}

	for _, lp := range plan.Enabled {
		layerID := portfolio.NormalizeLayerID(lp.Layer.ID)
		totalOpen, perLayer := portfolio.OpenCounts(r.state.Positions)
		ok, reason := portfolio.CanOpen(lp.State, lp.Budget, lp.Layer, totalOpen, perLayer[layerID], globalMax, now)
		if !ok {
			r.log.Debugf("[%s] layer %s skipped: %s", symbol, layerID, reason)
			continue
		}

		entry, err := preset.ResolveEntry(lp.Layer.EntryStrategyID, cfg.Trading.FastMA, cfg.Trading.SlowMA)
		if err != nil {
			r.log.Warnf("layer %s has unknown entry strategy %d: %v", layerID, lp.Layer.EntryStrategyID, err)
			continue
		}

		fraction := portfolio.OrderFraction(equity, freeCash, lp.Layer, lp.Budget.AvailableUSD)
		if fraction <= 0 {
			continue
		}

		tf := lp.Layer.Timeframe
		if !tf.Valid() {
			tf = cfg.Trading.Interval
		}

		opts := engine.EvalOptions{
			Symbol:        symbol,
			Timeframe:     tf,
			KlinesLimit:   cfg.Trading.KlinesLimit,
			Quote:         cfg.Universe.Quote,
			AllowEntries:  true,
			StrategyID:    lp.Layer.EntryStrategyID,
			Entry:         entry,
			Exit:          preset.ResolveExitConfig(lp.Layer.ExitPresetID, base),
			ExitPresetID:  lp.Layer.ExitPresetID,
			ExitATR:       atrParams(lp.Layer.ExitPresetID),
			OrderFraction: fraction,
			LayerID:       layerID,
			RiskUSD:       fraction * freeCash,
		}
		if err := r.engine.EvaluateSymbol(ctx, opts, pos, r.lastPrices); err != nil {
			return err
		}
		if pos.HasPosition {
			break
		}
	}
	return nil
}

// positionTimeframe resolves the timeframe a held position was opened
// on: its layer's timeframe when it has one, the market default
// otherwise.
func (r *Runner) positionTimeframe(cfg *config.Config, pos *models.Position) models.Timeframe {
	if pos.LayerID != "" {
		for _, layer := range cfg.Layers {
			if portfolio.NormalizeLayerID(layer.ID) == portfolio.NormalizeLayerID(pos.LayerID) && layer.Timeframe.Valid() {
				return layer.Timeframe
			}
		}
	}
	return cfg.Trading.Interval
}

func (r *Runner) computeEquity(account *exchange.Account, quote string) float64 {
	q := account.Balance(quote)
	total := q.Free + q.Locked
	for _, b := range account.Balances {
		if b.Asset == quote {
			continue
		}
		qty := b.Free + b.Locked
		if qty == 0 {
			continue
		}
		if price := r.lastPrices[b.Asset+quote]; price > 0 {
			total += qty * price
		}
	}
	return total
}

func (r *Runner) publishMetrics(equity float64, plan *portfolio.Plan, now time.Time) {
	open, _ := portfolio.OpenCounts(r.state.Positions)
	metrics.PositionsOpen.WithLabelValues(r.market).Set(float64(open))
	metrics.EquityGauge.WithLabelValues(r.market).Set(equity)

	paused := 0
	if plan != nil {
		for _, lp := range plan.Layers {
			if lp.State.PausedAt(now) {
				paused++
			}
		}
	}
	metrics.LayersPaused.WithLabelValues(r.market).Set(float64(paused))
}

func (r *Runner) report(plan *portfolio.Plan, equity float64, start time.Time) {
	if plan != nil {
		r.log.Infof("portfolio plan:\n%s", reporter.PortfolioTable(plan, equity))
	}
	r.log.Infof("positions:\n%s", reporter.PositionsTable(r.state.Positions, r.lastPrices))
	r.log.Info(reporter.PerformanceLine(r.state.Performance, r.state.RegimeLock.Current, r.now().Sub(start)))
}

func (r *Runner) saveState() error {
	if r.state == nil {
		return nil
	}
	return r.repo.SaveState(r.state)
}
