package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stratd/src/adapters"
	"stratd/src/allocation"
	"stratd/src/config"
	"stratd/src/database"
	"stratd/src/ledger"
	"stratd/src/lifecycle"
	"stratd/src/marketdata"
	"stratd/src/metrics"
	"stratd/src/runtime"
	"stratd/src/server"
	"stratd/src/sizing"
	"stratd/src/statistics"
	"stratd/src/utils/errors"
	"stratd/src/utils/granularity"
	"stratd/src/version"
)

const defaultStartPrice = 100.0

func main() {
	initializeLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stratdConfig, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Ramping up stratd", "version", version.GetBuildInfo()["version"])

	engineConfig := stratdConfig.EngineConfig
	grain, err := granularity.Parse(engineConfig.Granularity)
	if err != nil {
		slog.Error("Bad granularity in config", "granularity", engineConfig.Granularity, "error", err)
		os.Exit(1)
	}

	// allocation registry and trade ledger
	mode := allocation.ModeFraction
	if engineConfig.AbsoluteAllocations {
		mode = allocation.ModeAmount
	}
	registry := allocation.NewRegistry(mode, engineConfig.AllocationTolerance, engineConfig.StrictAllocation)
	tradeLedger := ledger.NewTradeLedger()

	// optional database persistence
	var statsStore metrics.StatsStore
	if stratdConfig.DatabaseConfig != nil {
		db, err := database.NewDBConnection(*stratdConfig.DatabaseConfig)
		if err != nil {
			slog.Error("Failed to connect to database, continuing without persistence", "error", err)
		} else {
			if err := db.Migrate(); err != nil {
				slog.Error("Failed to migrate tables", "error", err)
				os.Exit(1)
			}
			tradeLedger.WithPersistenceSink(db)
			statsStore = db
		}
	}

	// market data
	prices := marketdata.NewPriceCache(engineConfig.PriceFreshnessWindow)
	feed := marketdata.NewDemoFeed(grain.Duration())

	// metrics writers and statistics bus
	metricsWriter, err := metrics.BuildMetricsWriter(stratdConfig.MetricsWriter)
	if err != nil {
		slog.Error("Failed to build metrics writers", "error", err)
		os.Exit(1)
	}
	defer metricsWriter.Close()
	if statsStore != nil {
		dbWriter, err := metrics.NewDatabaseMetricsWriter(statsStore)
		if err != nil {
			slog.Error("Failed to build database metrics writer", "error", err)
			os.Exit(1)
		}
		metricsWriter.AddWriter(dbWriter)
	}

	bus := statistics.NewBus("stratd").WithSink(metricsWriter)
	bus.Register(statistics.NewPnlTracker())
	bus.Register(statistics.NewWinLossTracker())
	bus.Register(statistics.NewDrawdownTracker())
	bus.Register(statistics.NewVolumeTracker())

	// broker
	var broker adapters.BrokerAdapter = adapters.NewPaperBroker(prices, engineConfig.InitialEquity).
		WithCommissionBps(engineConfig.CommissionBps)
	if engineConfig.BrokerOrdersPerSec > 0 {
		broker = adapters.NewRateLimitedBroker(broker, engineConfig.BrokerOrdersPerSec)
	}

	// lifecycle and runtime
	manager := lifecycle.NewManager(registry, builtinAdapterFactory, engineConfig.Mode)
	sizer := sizing.NewOrderSizer(registry, prices, tradeLedger)
	coordinator := runtime.NewCoordinator(
		engineConfig, registry, manager, sizer, broker, tradeLedger, prices, bus, grain.Duration()).
		WithBars(feed.Subscribe())
	manager.SetLiquidator(coordinator)
	manager.SetMarketData(feed)

	// bulk deploy from the strategies file; deploys subscribe their
	// symbols on the feed as they bind
	if stratdConfig.StrategiesFile != "" {
		requests, err := config.ParseStrategiesFile(stratdConfig.StrategiesFile)
		if err != nil {
			slog.Error("Failed to parse strategies file", "error", err)
			os.Exit(1)
		}
		if _, err := manager.DeployBatch(ctx, requests); err != nil {
			slog.Error("Failed to deploy strategies", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("No strategies file configured, waiting for deploys via the API")
		feed.EnsureInstrument("BTC-USD", defaultStartPrice)
	}

	if err := feed.Start(ctx); err != nil {
		slog.Error("Failed to start demo feed", "error", err)
		os.Exit(1)
	}
	if err := coordinator.Start(ctx); err != nil {
		slog.Error("Failed to start coordinator", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(":" + stratdConfig.ServerConfig.Port).
		WithMetricsWriter(metricsWriter.WebsocketWriter()).
		WithLifecycleManager(manager).
		WithCoordinator(coordinator).
		WithStatsBus(bus)
	go func() {
		slog.Info("Starting server")
		if err := srv.Start(ctx); err != nil {
			slog.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	coordinator.Stop(shutdownCtx)
}

// builtinAdapterFactory resolves a deploy request's strategy reference to
// one of the built-in adapters.
func builtinAdapterFactory(strategyRef string, strategyId string) (adapters.StrategyAdapter, error) {
	name := strings.ToLower(strategyRef)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ".py")

	switch name {
	case "momentum":
		return adapters.NewMomentumStrategy(strategyId, 10), nil
	case "random":
		return adapters.NewRandomStrategy(strategyId), nil
	default:
		return nil, errors.Newf("unknown strategy reference %q", strategyRef)
	}
}

func initializeLogging() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	switch strings.ToLower(logLevel) {
	case "debug":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})))
	case "info":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	default:
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	}
}
