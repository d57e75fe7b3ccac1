// Package exchange abstracts market data and order execution behind two
// interfaces so the trading engine runs unchanged against the live
// venue or the in-memory paper implementation.
package exchange

import (
	"context"
	"time"

	"regime-trade-bot-go/internal/models"
)

// OrderResult is the fill summary of a market order.
type OrderResult struct {
	ExecutedQty float64
	AvgPrice    float64
}

// Balance is one asset's spot balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Account is a snapshot of all balances.
type Account struct {
	Balances []Balance
}

// Balance returns the balance for an asset, zero if absent.
func (a *Account) Balance(asset string) Balance {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b
		}
	}
	return Balance{Asset: asset}
}

// Calendar reports whether the venue currently accepts orders. Crypto
// venues are always open; session-gated venues fill the bounds.
type Calendar struct {
	Open      bool
	NextOpen  time.Time
	NextClose time.Time
}

// UniverseFilter narrows the tradable symbol list.
type UniverseFilter struct {
	MaxSymbols      int      `mapstructure:"max_symbols"`
	Quote           string   `mapstructure:"quote"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords"`
	StableBases     []string `mapstructure:"stable_bases"`
	FiatBases       []string `mapstructure:"fiat_bases"`
}

// DataProvider serves closed candles and the symbol universe.
type DataProvider interface {
	GetBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error)
	TopSymbols(ctx context.Context, filter UniverseFilter) ([]string, error)
	GetCalendar(ctx context.Context) (Calendar, error)
}

// Broker executes market orders. Both order methods return (nil, nil)
// when the order is skipped without error: balance too small, below the
// venue's minimum notional or lot size. Callers treat nil as a no-op.
type Broker interface {
	BuyMarket(ctx context.Context, symbol, quote string, fraction float64) (*OrderResult, error)
	SellMarketAll(ctx context.Context, symbol, quote string) (*OrderResult, error)
	GetAccount(ctx context.Context) (*Account, error)
}
