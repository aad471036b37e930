package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raidenblackout/CTB/internal/config"
	"github.com/raidenblackout/CTB/internal/engine"
	"github.com/raidenblackout/CTB/internal/exchange"
	"github.com/raidenblackout/CTB/internal/logger"
	"github.com/raidenblackout/CTB/internal/market"
	"github.com/raidenblackout/CTB/internal/news"
	"github.com/raidenblackout/CTB/internal/portfolio"
	"github.com/raidenblackout/CTB/internal/recorder"
	"github.com/raidenblackout/CTB/internal/risk"
	"github.com/raidenblackout/CTB/internal/sentiment"
	"github.com/raidenblackout/CTB/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the agent config file")
	flag.Parse()

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config error", zap.Error(err))
	}
	settings := cfg.AgentSettings

	marketSource, err := market.NewSource(settings.MarketDataSource)
	if err != nil {
		log.Fatal("market data source error", zap.Error(err))
	}
	marketCache := market.NewCache(marketSource, log)

	newsSources := make([]news.Source, 0, len(settings.NewsSources))
	for _, sc := range settings.NewsSources {
		src, err := news.NewSource(sc)
		if err != nil {
			log.Fatal("news source error", zap.String("type", sc.Type), zap.Error(err))
		}
		newsSources = append(newsSources, src)
	}
	aggregator := news.NewAggregator(newsSources, log)
	analyzer := sentiment.NewLLMAnalyzer(settings.OllamaClient, settings.SentimentAnalyzer)
	sentimentCache := sentiment.NewCache(aggregator, analyzer, log)

	ledger := portfolio.NewLedger(settings.PortfolioBaseCurrency, settings.InitialCapital)
	if settings.CheckpointPath != "" {
		if err := ledger.Load(settings.CheckpointPath); err == nil {
			log.Info("loaded portfolio checkpoint", zap.String("path", settings.CheckpointPath))
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Fatal("checkpoint load error", zap.Error(err))
		}
	}

	registry := strategy.DefaultRegistry()
	strategies := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		strat, err := registry.Build(sc.ClassName, sc.Name, sc.Parameters)
		if err != nil {
			log.Fatal("strategy config error", zap.String("name", sc.Name), zap.Error(err))
		}
		strategies = append(strategies, strat)
	}

	var client exchange.Client
	var paper *exchange.PaperClient
	// Live fills can print above the sizing price, so keep a small reserve.
	costHeadroom := 1.005
	switch settings.ExecutionMode {
	case config.ModeAlpaca:
		client = exchange.NewAlpacaClient(settings.Alpaca, log)
	default:
		paper = exchange.NewPaperClient(settings.PaperExchange)
		client = paper
		costHeadroom = paper.CostHeadroom()
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if settings.RecorderDBPath != "" {
		sqlRec, err := recorder.NewSQLiteRecorder(settings.RecorderDBPath)
		if err != nil {
			log.Fatal("recorder error", zap.Error(err))
		}
		rec = sqlRec
		log.Info("sqlite recorder opened", zap.String("path", settings.RecorderDBPath))
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Warn("recorder close failed", zap.Error(err))
		}
	}()

	eng := engine.New(engine.Deps{
		Strategies:     strategies,
		Market:         marketCache,
		Sentiment:      sentimentCache,
		Ledger:         ledger,
		Gate:           risk.NewGate(settings.Risk, log),
		Resolver:       engine.NewResolver(cfg.StrategyOrder(), log, engine.WithCostHeadroom(costHeadroom)),
		Executor:       engine.NewExecutor(client, ledger, log),
		Paper:          paper,
		Recorder:       rec,
		Logger:         log,
		CheckpointPath: settings.CheckpointPath,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("agent starting",
		zap.String("mode", string(settings.ExecutionMode)),
		zap.Duration("interval", cfg.Interval()),
		zap.Int("strategies", len(strategies)))

	scheduler := engine.NewScheduler(cfg.Interval(), log)
	if err := scheduler.Run(ctx, eng.Tick); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped", zap.Error(err))
	}

	if settings.CheckpointPath != "" {
		if err := ledger.Save(settings.CheckpointPath); err != nil {
			log.Error("checkpoint save failed", zap.Error(err))
		}
	}
	log.Info("agent shutdown complete")
}
