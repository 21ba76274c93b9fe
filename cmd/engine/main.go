package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cryptostrategist/internal/adminapi"
	"cryptostrategist/internal/advisory"
	"cryptostrategist/internal/broker"
	"cryptostrategist/internal/config"
	"cryptostrategist/internal/database"
	"cryptostrategist/internal/logger"
	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/notify"
	"cryptostrategist/internal/providers"
	"cryptostrategist/internal/risk"
	"cryptostrategist/internal/scheduler"
	"cryptostrategist/internal/strategy"
	"cryptostrategist/internal/strategy/grid"
	"cryptostrategist/internal/strategy/macro"
	"cryptostrategist/internal/strategy/ta"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("configuration loaded")

	store, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := store.EnsureAccount(cfg.Account.InitialCash); err != nil {
		log.Fatal("failed to seed account", zap.Error(err))
	}
	log.Info("database ready", zap.String("dsn", cfg.Database.DSN))

	exchange := providers.NewExchange(providers.ExchangeConfig{
		BaseURL:        cfg.Exchange.BaseURL,
		Testnet:        cfg.Exchange.Testnet,
		RateLimit:      cfg.Exchange.RateLimit,
		RateLimitBurst: cfg.Exchange.RateLimitBurst,
		TimeoutSeconds: cfg.Exchange.TimeoutSeconds,
	}, log)

	cache := marketdata.New(cacheTTLs(cfg.Cache.TTLs), time.Duration(cfg.Cache.UpstreamTimeoutS)*time.Second, log)
	cache.Register(marketdata.SourceTicker24h, exchange)

	smallCfg := providers.SmallProviderConfig{TimeoutSeconds: cfg.Cache.UpstreamTimeoutS}
	cache.Register(marketdata.SourceMacroFred, providers.NewMacroFred(smallCfg, log))
	cache.Register(marketdata.SourceFearGreed, providers.NewFearGreedIndex(smallCfg, log))
	cache.Register(marketdata.SourceEtfFlows, providers.NewETFFlowsProvider(smallCfg, log))
	cache.Register(marketdata.SourceOnchainBTC, providers.NewOnchainBTCProvider(smallCfg, log))
	cache.Register(marketdata.SourceMiners, providers.NewMinersProvider(smallCfg, log))
	cache.Register(marketdata.SourceStablecoinSupply, providers.NewStablecoinSupplyProvider(smallCfg, log))
	cache.Register(marketdata.SourceMstrMnav, providers.NewMstrMnavProvider(smallCfg, log))

	klines := marketdata.NewKlines(store, exchange, cfg.Cache.KlinesBackfillCap)

	prices := &scheduler.CachePriceLookup{Cache: cache}
	brk := broker.New(store, prices, cfg.Account.FeeBps, cfg.Account.SlippageBps)

	riskFilter := risk.New(risk.Thresholds{
		MaxTradeNotionalPct:  cfg.Risk.MaxTradeNotionalPct / 100,
		MaxSymbolExposurePct: cfg.Risk.MaxSymbolExposurePct / 100,
		SoftDrawdownPct:      cfg.Risk.SoftDrawdownPct / 100,
		HardDrawdownPct:      cfg.Risk.HardDrawdownPct / 100,
	}, &scheduler.AccountBreakerSetter{Store: store})

	var advisoryClient macro.AdvisoryClient = advisory.NopClient{}
	if cfg.Advisory.Enabled {
		advisoryClient = advisory.New(cfg.Advisory.BaseURL, cfg.Advisory.APIKey, time.Duration(cfg.Advisory.TimeoutS)*time.Second)
	}

	evaluators := map[models.StrategyKind]strategy.Evaluator{
		models.StrategyTA:    ta.New(),
		models.StrategyMacro: macro.New(advisoryClient),
		models.StrategyGrid:  grid.New(),
	}

	var notifier notify.Sink = notify.NopSink{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookSink(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutS)*time.Second, log)
	}

	sched := scheduler.New(
		store, cache, klines, brk, riskFilter, notifier, prices, evaluators,
		cfg.Scheduler.WorkerPoolSize, time.Duration(cfg.Scheduler.ShutdownGraceS)*time.Second, log,
	)

	admin := adminapi.New(log, store, brk, riskFilter, sched, fmt.Sprintf(":%d", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := admin.Start(ctx); err != nil {
			log.Error("admin api stopped with error", zap.Error(err))
		}
	}()

	wg.Wait()
	log.Info("engine has been shut down")
}

func cacheTTLs(ttls config.CacheTTLs) map[marketdata.Source]time.Duration {
	return map[marketdata.Source]time.Duration{
		marketdata.SourceTicker24h:        time.Duration(ttls.Ticker24h) * time.Second,
		marketdata.SourceKlines:           time.Duration(ttls.Klines) * time.Second,
		marketdata.SourceMacroFred:        time.Duration(ttls.MacroFred) * time.Second,
		marketdata.SourceFearGreed:        time.Duration(ttls.FearGreed) * time.Second,
		marketdata.SourceEtfFlows:         time.Duration(ttls.EtfFlows) * time.Second,
		marketdata.SourceOnchainBTC:       time.Duration(ttls.OnchainBTC) * time.Second,
		marketdata.SourceMiners:           time.Duration(ttls.Miners) * time.Second,
		marketdata.SourceStablecoinSupply: time.Duration(ttls.StablecoinSupply) * time.Second,
		marketdata.SourceMstrMnav:         time.Duration(ttls.MstrMnav) * time.Second,
	}
}
