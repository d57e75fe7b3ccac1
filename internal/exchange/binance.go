package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jxskiss/base62"

	"regime-trade-bot-go/internal/logger"
	"regime-trade-bot-go/internal/models"
)

// minNotionalUSD is the venue's floor for market orders. Orders sized
// below it are skipped instead of rejected.
const minNotionalUSD = 5.0

// dustThreshold is the base balance below which there is nothing to sell.
const dustThreshold = 0.000001

// BinanceExchange implements DataProvider and Broker against the spot
// REST API.
type BinanceExchange struct {
	client *binance.Client
}

// NewBinanceExchange creates a live exchange. An empty baseURL keeps the
// library default (production); the testnet URL goes through here.
func NewBinanceExchange(apiKey, secretKey, baseURL string) *BinanceExchange {
	client := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceExchange{client: client}
}

// GetBars fetches closed klines. The exchange returns the forming bar
// last; it is dropped so the engine only ever sees closed bars.
func (e *BinanceExchange) GetBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	klines, err := e.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(tf)).
		Limit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	now := time.Now().UnixMilli()
	for _, k := range klines {
		if k.CloseTime > now {
			continue
		}
		candles = append(candles, models.Candle{
			OpenTime: k.OpenTime,
			Open:     parseF(k.Open),
			High:     parseF(k.High),
			Low:      parseF(k.Low),
			Close:    parseF(k.Close),
			Volume:   parseF(k.Volume),
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// TopSymbols ranks the quote-denominated pairs by 24h quote volume and
// returns the top of the list after the exclusion filters.
func (e *BinanceExchange) TopSymbols(ctx context.Context, filter UniverseFilter) ([]string, error) {
	stats, err := e.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch 24h tickers: %w", err)
	}

	type ranked struct {
		symbol   string
		quoteVol float64
	}
	var candidates []ranked
	for _, s := range stats {
		if !strings.HasSuffix(s.Symbol, filter.Quote) {
			continue
		}
		if containsAny(s.Symbol, filter.ExcludeKeywords) {
			continue
		}
		base := strings.TrimSuffix(s.Symbol, filter.Quote)
		if containsString(filter.StableBases, base) || containsString(filter.FiatBases, base) {
			continue
		}
		candidates = append(candidates, ranked{symbol: s.Symbol, quoteVol: parseF(s.QuoteVolume)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].quoteVol > candidates[j].quoteVol
	})
	if filter.MaxSymbols > 0 && len(candidates) > filter.MaxSymbols {
		candidates = candidates[:filter.MaxSymbols]
	}

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.symbol
		logger.S().Infof("[UNIVERSE] %d. %s quoteVol=%.0f", i+1, c.symbol, c.quoteVol)
	}
	return symbols, nil
}

// GetCalendar reports the venue session. Spot crypto trades around the
// clock.
func (e *BinanceExchange) GetCalendar(ctx context.Context) (Calendar, error) {
	return Calendar{Open: true}, nil
}

// GetAccount fetches the spot account balances.
func (e *BinanceExchange) GetAccount(ctx context.Context) (*Account, error) {
	res, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	acct := &Account{Balances: make([]Balance, 0, len(res.Balances))}
	for _, b := range res.Balances {
		acct.Balances = append(acct.Balances, Balance{
			Asset:  b.Asset,
			Free:   parseF(b.Free),
			Locked: parseF(b.Locked),
		})
	}
	return acct, nil
}

// BuyMarket spends fraction of the free quote balance on a market buy,
// adjusted down to the symbol's lot step. Returns (nil, nil) when the
// resulting order would be below the minimum notional or lot size.
func (e *BinanceExchange) BuyMarket(ctx context.Context, symbol, quote string, fraction float64) (*OrderResult, error) {
	acct, err := e.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	freeQuote := acct.Balance(quote).Free
	if freeQuote <= 0 {
		logger.S().Infof("[%s] no free %s, skipping buy", symbol, quote)
		return nil, nil
	}

	quoteQty := freeQuote * fraction
	if quoteQty < minNotionalUSD {
		logger.S().Infof("[%s] quoteQty=%.2f below min notional, skipping buy", symbol, quoteQty)
		return nil, nil
	}

	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		return nil, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	price := parseF(prices[0].Price)
	if price <= 0 {
		return nil, fmt.Errorf("invalid price for %s", symbol)
	}

	minQty, stepSize, err := e.lotSizeFilter(ctx, symbol)
	if err != nil {
		return nil, err
	}

	baseQty := quoteQty / price
	if stepSize > 0 {
		baseQty = math.Floor(baseQty/stepSize) * stepSize
	}
	if baseQty < minQty || baseQty <= 0 {
		logger.S().Infof("[%s] qty=%.8f below lot size minimum, skipping buy", symbol, baseQty)
		return nil, nil
	}

	res, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(baseQty, 'f', 8, 64)).
		NewClientOrderID(clientOrderID("B", symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", symbol, err)
	}
	return fillFromResponse(res)
}

// SellMarketAll liquidates the whole free base balance of a symbol.
func (e *BinanceExchange) SellMarketAll(ctx context.Context, symbol, quote string) (*OrderResult, error) {
	base := strings.TrimSuffix(symbol, quote)
	acct, err := e.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	free := acct.Balance(base).Free
	if free <= dustThreshold {
		logger.S().Infof("[%s] nothing to sell (%s free=%.8f)", symbol, base, free)
		return nil, nil
	}

	qty := math.Floor(free*1e6) / 1e6

	res, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(qty, 'f', 6, 64)).
		NewClientOrderID(clientOrderID("S", symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", symbol, err)
	}
	return fillFromResponse(res)
}

func (e *BinanceExchange) lotSizeFilter(ctx context.Context, symbol string) (minQty, stepSize float64, err error) {
	info, err := e.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch exchange info for %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if f := s.LotSizeFilter(); f != nil {
			return parseF(f.MinQuantity), parseF(f.StepSize), nil
		}
	}
	return 0, 0, fmt.Errorf("no LOT_SIZE filter for %s", symbol)
}

func fillFromResponse(res *binance.CreateOrderResponse) (*OrderResult, error) {
	executed := parseF(res.ExecutedQuantity)
	if executed <= 0 {
		return nil, fmt.Errorf("order %d filled nothing", res.OrderID)
	}
	return &OrderResult{
		ExecutedQty: executed,
		AvgPrice:    parseF(res.CummulativeQuoteQuantity) / executed,
	}, nil
}

// clientOrderID builds a compact, unique client order id. The nanosecond
// timestamp is base62-encoded to stay within the venue's length limit.
func clientOrderID(side, symbol string) string {
	return side + "-" + symbol + "-" + string(base62.FormatInt(time.Now().UnixNano()))
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
