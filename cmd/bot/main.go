package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"regime-trade-bot-go/internal/bot"
	"regime-trade-bot-go/internal/config"
	"regime-trade-bot-go/internal/exchange"
	"regime-trade-bot-go/internal/history"
	"regime-trade-bot-go/internal/logger"
	"regime-trade-bot-go/internal/metrics"
	"regime-trade-bot-go/internal/persistence"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	mode := flag.String("mode", "", "override run mode: live or paper")
	flag.Parse()

	// Default logger so config loading itself can log; reconfigured
	// from file below.
	logger.InitLogger(logger.Config{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, using system environment")
	}

	mgr, err := config.NewManager(*configPath)
	if err != nil {
		logger.S().Fatalf("failed to load configuration: %v", err)
	}
	cfg := mgr.Config()
	if *mode != "" {
		cfg.Mode = *mode
		if err := cfg.Validate(); err != nil {
			logger.S().Fatalf("invalid configuration: %v", err)
		}
	}

	logger.InitLogger(cfg.Log)
	defer func() { _ = logger.S().Sync() }()
	logger.S().Infof("starting in %s mode, market %s", cfg.Mode, cfg.Market)

	db, err := persistence.OpenDB(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("failed to open database at %s: %v", cfg.DBPath, err)
	}
	defer db.Close()
	repo := persistence.NewBadgerRepository(db)
	trades := history.NewStore(db)

	if cfg.MetricsAddr != "" {
		go func() {
			logger.S().Infof("metrics listening on %s", cfg.MetricsAddr)
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.S().Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	var (
		data   exchange.DataProvider
		broker exchange.Broker
	)
	if cfg.Mode == config.ModeLive {
		live := exchange.NewBinanceExchange(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.BaseURL)
		data, broker = live, live
	} else {
		// Paper mode trades real market data with simulated fills.
		paper := exchange.NewPaperExchange(cfg.Universe.Quote, cfg.Trading.InitialCapital)
		paper.SetDataDelegate(exchange.NewBinanceExchange("", "", cfg.Binance.BaseURL))
		data, broker = paper, paper
	}

	stream := exchange.NewPriceStream(cfg.Binance.WSBaseURL)
	stream.Start()
	defer stream.Stop()

	ctrl := bot.NewController()
	runner := bot.NewRunner(cfg.Market, mgr.Config, data, broker, repo, trades, ctrl, logger.Market(cfg.Market))
	runner.SetPriceSource(stream)

	// Hot reloads apply on the next cycle; wake the runner so they do
	// not wait out a full loop interval.
	mgr.Watch(func(*config.Config) { ctrl.Interrupt() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			// Operational escape hatch: liquidate everything, keep running.
			logger.S().Warn("SIGHUP received, liquidating all positions")
			ctrl.RequestSellAll()
			continue
		}
		if sig == syscall.SIGUSR1 {
			logger.S().Warn("SIGUSR1 received, resetting simulated funds")
			ctrl.RequestResetFunds()
			continue
		}
		logger.S().Infof("%s received, shutting down", sig)
		break
	}

	ctrl.Stop()
	<-done
	logger.S().Info("shutdown complete, state saved")
}
