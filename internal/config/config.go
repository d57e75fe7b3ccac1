// Package config loads and validates the bot configuration with viper.
// Every value is validated before use; a hot reload that fails
// validation is rejected and the previous configuration stays in force.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"regime-trade-bot-go/internal/logger"
	"regime-trade-bot-go/internal/models"
	"regime-trade-bot-go/internal/regime"
)

// Mode selects the execution venue.
const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// BinanceConfig carries venue credentials and endpoints. Credentials
// come from the environment, never from the config file.
type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
	WSBaseURL string `mapstructure:"ws_base_url"`
}

// UniverseConfig filters the tradable symbol universe.
type UniverseConfig struct {
	MaxSymbols      int      `mapstructure:"max_symbols"`
	Quote           string   `mapstructure:"quote"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords"`
	StableBases     []string `mapstructure:"stable_bases"`
	FiatBases       []string `mapstructure:"fiat_bases"`
}

// TradingConfig is the per-cycle evaluation setup shared by all symbols
// that are not routed through a portfolio layer.
type TradingConfig struct {
	Interval           models.Timeframe `mapstructure:"interval"`
	KlinesLimit        int              `mapstructure:"klines_limit"`
	FastMA             int              `mapstructure:"fast_ma"`
	SlowMA             int              `mapstructure:"slow_ma"`
	QuoteOrderFraction float64          `mapstructure:"quote_order_fraction"`
	InitialCapital     float64          `mapstructure:"initial_capital"`
}

// RuntimeConfig is the hot-reloadable trade management slice. All
// fields are checked against allow-lists or bounded ranges.
type RuntimeConfig struct {
	ActiveStrategyID    int           `mapstructure:"active_strategy_id"`
	LoopInterval        time.Duration `mapstructure:"loop_interval"`
	StopLossPct         float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64       `mapstructure:"take_profit_pct"`
	TrailStartPct       float64       `mapstructure:"trail_start_pct"`
	TrailDistancePct    float64       `mapstructure:"trail_distance_pct"`
	UseCandleExit       bool          `mapstructure:"use_candle_exit"`
	CandleRedTriggerPct float64       `mapstructure:"candle_red_trigger_pct"`
}

// Model converts to the persisted runtime config shape.
func (r RuntimeConfig) Model() models.RuntimeConfig {
	return models.RuntimeConfig{
		ActiveStrategyID:    r.ActiveStrategyID,
		LoopInterval:        r.LoopInterval,
		StopLossPct:         r.StopLossPct,
		TakeProfitPct:       r.TakeProfitPct,
		TrailStartPct:       r.TrailStartPct,
		TrailDistancePct:    r.TrailDistancePct,
		UseCandleExit:       r.UseCandleExit,
		CandleRedTriggerPct: r.CandleRedTriggerPct,
	}
}

// RiskConfig is the portfolio-wide risk surface.
type RiskConfig struct {
	DailyStopPct     float64 `mapstructure:"daily_stop_pct"`
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
}

// RegimeConfig wraps the rule-detector settings with an enable switch.
type RegimeConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Settings regime.Settings `mapstructure:",squash"`
}

// Config is the whole configuration tree.
type Config struct {
	Mode        string              `mapstructure:"mode"`
	Market      string              `mapstructure:"market"`
	MetricsAddr string              `mapstructure:"metrics_addr"`
	DBPath      string              `mapstructure:"db_path"`
	Binance     BinanceConfig       `mapstructure:"binance"`
	Universe    UniverseConfig      `mapstructure:"universe"`
	Trading     TradingConfig       `mapstructure:"trading"`
	Runtime     RuntimeConfig       `mapstructure:"runtime"`
	Regime      RegimeConfig        `mapstructure:"regime"`
	Macro       regime.MacroConfig  `mapstructure:"macro"`
	Layers      []models.Layer      `mapstructure:"layers"`
	RegimeRules map[string][]string `mapstructure:"regime_rules"`
	Risk        RiskConfig          `mapstructure:"risk"`
	Log         logger.Config       `mapstructure:"log"`
}

// Default returns the full configuration with production defaults. A
// config file overrides individual fields.
func Default() *Config {
	return &Config{
		Mode:        ModePaper,
		Market:      "crypto",
		MetricsAddr: "",
		DBPath:      "data/botdb",
		Binance: BinanceConfig{
			BaseURL:   "https://testnet.binance.vision",
			WSBaseURL: "wss://stream.binance.com:9443",
		},
		Universe: UniverseConfig{
			MaxSymbols:      10,
			Quote:           "USDT",
			ExcludeKeywords: []string{"UP", "DOWN", "BULL", "BEAR", "2L", "2S", "3L", "3S", "BANANA"},
			StableBases:     []string{"USDC", "FDUSD", "TUSD", "USDP", "DAI", "BUSD"},
			FiatBases:       []string{"EUR", "TRY", "BRL", "PLN", "ARS", "ZAR", "JPY", "MXN"},
		},
		Trading: TradingConfig{
			Interval:           models.Timeframe15m,
			KlinesLimit:        250,
			FastMA:             25,
			SlowMA:             100,
			QuoteOrderFraction: 0.5,
			InitialCapital:     100_000,
		},
		Runtime: RuntimeConfig{
			ActiveStrategyID:    1,
			LoopInterval:        15 * time.Minute,
			StopLossPct:         0.012,
			TakeProfitPct:       0.024,
			TrailStartPct:       0.012,
			TrailDistancePct:    0.006,
			UseCandleExit:       true,
			CandleRedTriggerPct: 0.4,
		},
		Regime: RegimeConfig{
			Enabled:  true,
			Settings: regime.DefaultSettings(),
		},
		Macro: regime.DefaultMacroConfig(),
		Risk: RiskConfig{
			DailyStopPct: 5,
		},
		Log: logger.Config{
			Level:      "info",
			Output:     "console",
			File:       "logs/bot.log",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
	}
}

// Allow-lists for the hot-reloadable runtime fields.
var (
	allowedStrategyIDs = map[int]bool{
		1: true, 2: true, 3: true,
		101: true, 102: true, 103: true, 104: true, 105: true,
	}
	allowedLoopIntervals = map[time.Duration]bool{
		time.Minute:      true,
		5 * time.Minute:  true,
		15 * time.Minute: true,
	}
)

// Validate rejects configuration a running bot cannot safely use.
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModePaper {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLive, ModePaper, c.Mode)
	}
	if c.Market == "" {
		return fmt.Errorf("market name must not be empty")
	}
	if c.Mode == ModeLive && (c.Binance.APIKey == "" || c.Binance.SecretKey == "") {
		return fmt.Errorf("live mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}

	if !c.Trading.Interval.Valid() {
		return fmt.Errorf("invalid trading interval %q", c.Trading.Interval)
	}
	if c.Trading.KlinesLimit < 50 || c.Trading.KlinesLimit > 1000 {
		return fmt.Errorf("klines_limit must be in [50, 1000], got %d", c.Trading.KlinesLimit)
	}
	if c.Trading.FastMA <= 0 || c.Trading.SlowMA <= c.Trading.FastMA {
		return fmt.Errorf("moving averages must satisfy 0 < fast_ma < slow_ma")
	}
	if c.Trading.QuoteOrderFraction <= 0 || c.Trading.QuoteOrderFraction > 1 {
		return fmt.Errorf("quote_order_fraction must be in (0, 1], got %g", c.Trading.QuoteOrderFraction)
	}

	if err := c.Runtime.validate(); err != nil {
		return err
	}

	totalAlloc := 0.0
	for i, layer := range c.Layers {
		if layer.ID == "" {
			return fmt.Errorf("layer %d has no id", i)
		}
		if layer.AllocationPct <= 0 || layer.AllocationPct > 1 {
			return fmt.Errorf("layer %q allocation_pct must be in (0, 1], got %g", layer.ID, layer.AllocationPct)
		}
		if layer.MaxRiskPerTradePct <= 0 || layer.MaxRiskPerTradePct > 100 {
			return fmt.Errorf("layer %q max_risk_per_trade_pct must be in (0, 100], got %g", layer.ID, layer.MaxRiskPerTradePct)
		}
		if layer.MaxOpenPositions <= 0 {
			return fmt.Errorf("layer %q max_open_positions must be positive", layer.ID)
		}
		if !layer.Timeframe.Valid() {
			return fmt.Errorf("layer %q has invalid timeframe %q", layer.ID, layer.Timeframe)
		}
		totalAlloc += layer.AllocationPct
	}
	if totalAlloc > 1.0+1e-9 {
		return fmt.Errorf("layer allocations sum to %g, must not exceed 1", totalAlloc)
	}

	if c.Risk.DailyStopPct < 0 || c.Risk.DailyStopPct > 100 {
		return fmt.Errorf("risk.daily_stop_pct must be in [0, 100], got %g", c.Risk.DailyStopPct)
	}
	return nil
}

func (r RuntimeConfig) validate() error {
	if !allowedStrategyIDs[r.ActiveStrategyID] {
		return fmt.Errorf("active_strategy_id %d is not on the allow-list", r.ActiveStrategyID)
	}
	if !allowedLoopIntervals[r.LoopInterval] {
		return fmt.Errorf("loop_interval %s is not on the allow-list", r.LoopInterval)
	}
	if r.StopLossPct <= 0 || r.StopLossPct > 0.5 {
		return fmt.Errorf("stop_loss_pct must be in (0, 0.5], got %g", r.StopLossPct)
	}
	if r.TakeProfitPct <= 0 || r.TakeProfitPct > 1 {
		return fmt.Errorf("take_profit_pct must be in (0, 1], got %g", r.TakeProfitPct)
	}
	if r.TrailStartPct < 0 || r.TrailStartPct > 0.5 {
		return fmt.Errorf("trail_start_pct must be in [0, 0.5], got %g", r.TrailStartPct)
	}
	if r.TrailDistancePct <= 0 || r.TrailDistancePct > 0.5 {
		return fmt.Errorf("trail_distance_pct must be in (0, 0.5], got %g", r.TrailDistancePct)
	}
	if r.CandleRedTriggerPct < 0 || r.CandleRedTriggerPct > 1 {
		return fmt.Errorf("candle_red_trigger_pct must be in [0, 1], got %g", r.CandleRedTriggerPct)
	}
	return nil
}

// Manager owns the viper instance, the current validated configuration
// and the hot reload subscription.
type Manager struct {
	v  *viper.Viper
	mu sync.RWMutex

	current *Config
}

// NewManager reads, decodes and validates the configuration file. A
// missing file is fine: defaults plus environment apply.
func NewManager(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("BOT")
	v.AutomaticEnv()
	// Credentials always come from the canonical env vars.
	_ = v.BindEnv("binance.api_key", "BINANCE_API_KEY")
	_ = v.BindEnv("binance.secret_key", "BINANCE_SECRET_KEY")

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{v: v, current: cfg}, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Config returns the current validated configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch installs the hot reload handler. A changed file that fails
// decoding or validation is logged and dropped; the previous
// configuration stays in force. onChange runs with the new config after
// it has been accepted.
func (m *Manager) Watch(onChange func(*Config)) {
	m.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(m.v)
		if err != nil {
			logger.S().Warnf("config reload rejected: %v", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.S().Warnf("config reload rejected: %v", err)
			return
		}

		m.mu.Lock()
		m.current = cfg
		m.mu.Unlock()

		logger.S().Info("configuration reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	m.v.WatchConfig()
}

// Rules returns the macro regime to layers mapping, falling back to a
// permissive default when the file does not configure one.
func (c *Config) Rules() map[string][]string {
	if len(c.RegimeRules) > 0 {
		return c.RegimeRules
	}
	ids := make([]string, 0, len(c.Layers))
	for _, l := range c.Layers {
		ids = append(ids, l.ID)
	}
	return map[string][]string{
		string(regime.MacroTrend): ids,
		string(regime.MacroRange): ids,
	}
}
