package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"regime-trade-bot-go/internal/models"
)

// Fill records one simulated execution for inspection.
type Fill struct {
	Symbol string
	Side   models.TradeSide
	Qty    float64
	Price  float64
}

// PaperExchange is an in-memory DataProvider and Broker. It fills
// market orders at the last close of the injected candle series and
// keeps a plain balance sheet, mirroring the live broker's skip
// semantics (nil result below minimum notional or with nothing to sell).
type PaperExchange struct {
	mu          sync.Mutex
	quote       string
	initialCash float64
	candles     map[string][]models.Candle
	balances    map[string]float64
	fills       []Fill
	// live, when set, serves candles and the universe from the real
	// venue; fills stay simulated. Fetched series are cached so fill
	// prices come from the same data the engine saw.
	live DataProvider
}

// NewPaperExchange creates a paper venue seeded with quote cash.
func NewPaperExchange(quote string, cash float64) *PaperExchange {
	return &PaperExchange{
		quote:       quote,
		initialCash: cash,
		candles:     make(map[string][]models.Candle),
		balances:    map[string]float64{quote: cash},
	}
}

// ResetFunds wipes all holdings and restores the seed quote balance.
func (p *PaperExchange) ResetFunds() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = map[string]float64{p.quote: p.initialCash}
	p.fills = nil
}

// SetDataDelegate routes market data through a live provider. Used by
// paper mode to trade real data with simulated executions.
func (p *PaperExchange) SetDataDelegate(d DataProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = d
}

// SetCandles replaces the candle series for a symbol.
func (p *PaperExchange) SetCandles(symbol string, candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol] = candles
}

// SetBalance sets one asset balance directly.
func (p *PaperExchange) SetBalance(asset string, free float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = free
}

// Fills returns the executions recorded so far.
func (p *PaperExchange) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

func (p *PaperExchange) GetBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()

	if live != nil {
		series, err := live.GetBars(ctx, symbol, tf, limit)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.candles[symbol] = series
		p.mu.Unlock()
		return series, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	series, ok := p.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]models.Candle, len(series))
	copy(out, series)
	return out, nil
}

func (p *PaperExchange) TopSymbols(ctx context.Context, filter UniverseFilter) ([]string, error) {
	p.mu.Lock()
	if p.live != nil {
		live := p.live
		p.mu.Unlock()
		return live.TopSymbols(ctx, filter)
	}
	defer p.mu.Unlock()
	symbols := make([]string, 0, len(p.candles))
	for s := range p.candles {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if filter.MaxSymbols > 0 && len(symbols) > filter.MaxSymbols {
		symbols = symbols[:filter.MaxSymbols]
	}
	return symbols, nil
}

func (p *PaperExchange) GetCalendar(ctx context.Context) (Calendar, error) {
	return Calendar{Open: true}, nil
}

func (p *PaperExchange) GetAccount(ctx context.Context) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct := &Account{}
	assets := make([]string, 0, len(p.balances))
	for a := range p.balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, a := range assets {
		acct.Balances = append(acct.Balances, Balance{Asset: a, Free: p.balances[a]})
	}
	return acct, nil
}

func (p *PaperExchange) BuyMarket(ctx context.Context, symbol, quote string, fraction float64) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	freeQuote := p.balances[quote]
	quoteQty := freeQuote * fraction
	if quoteQty < minNotionalUSD {
		return nil, nil
	}
	price, err := p.lastClose(symbol)
	if err != nil {
		return nil, err
	}

	qty := quoteQty / price
	base := strings.TrimSuffix(symbol, quote)
	p.balances[quote] -= quoteQty
	p.balances[base] += qty
	p.fills = append(p.fills, Fill{Symbol: symbol, Side: models.SideBuy, Qty: qty, Price: price})

	return &OrderResult{ExecutedQty: qty, AvgPrice: price}, nil
}

func (p *PaperExchange) SellMarketAll(ctx context.Context, symbol, quote string) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := strings.TrimSuffix(symbol, quote)
	qty := p.balances[base]
	if qty <= dustThreshold {
		return nil, nil
	}
	price, err := p.lastClose(symbol)
	if err != nil {
		return nil, err
	}

	p.balances[base] = 0
	p.balances[quote] += qty * price
	p.fills = append(p.fills, Fill{Symbol: symbol, Side: models.SideSell, Qty: qty, Price: price})

	return &OrderResult{ExecutedQty: qty, AvgPrice: price}, nil
}

// Equity values all balances at the last close, quote cash at par.
func (p *PaperExchange) Equity(quote string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.balances[quote]
	for asset, qty := range p.balances {
		if asset == quote || qty == 0 {
			continue
		}
		if price, err := p.lastClose(asset + quote); err == nil {
			total += qty * price
		}
	}
	return math.Round(total*1e8) / 1e8
}

func (p *PaperExchange) lastClose(symbol string) (float64, error) {
	series := p.candles[symbol]
	if len(series) == 0 {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}
	return series[len(series)-1].Close, nil
}
