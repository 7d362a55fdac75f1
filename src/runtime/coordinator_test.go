//go:build unit

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stratd/src/adapters"
	"stratd/src/allocation"
	"stratd/src/datamodels"
	"stratd/src/ledger"
	"stratd/src/lifecycle"
	"stratd/src/marketdata"
	"stratd/src/sizing"
	"stratd/src/statistics"
)

// scriptedAdapter emits a fixed set of signals on its first evaluation.
type scriptedAdapter struct {
	signals []datamodels.PureSignal
	delay   time.Duration
	emitted bool
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.emitted {
		return nil, nil
	}
	a.emitted = true
	return a.signals, nil
}

// stubbornAdapter blocks without ever checking its context.
type stubbornAdapter struct {
	delay time.Duration
}

func (a *stubbornAdapter) Name() string { return "stubborn" }

func (a *stubbornAdapter) Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error) {
	time.Sleep(a.delay)
	return nil, nil
}

type CoordinatorTestSuite struct {
	suite.Suite
	ctx           context.Context
	registry      *allocation.Registry
	manager       *lifecycle.Manager
	prices        *marketdata.PriceCache
	tradeLedger   *ledger.TradeLedger
	broker        *adapters.PaperBroker
	bus           *statistics.Bus
	adaptersByRef map[string]adapters.StrategyAdapter
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = allocation.NewRegistry(allocation.ModeFraction, 0.001, true)
	s.prices = marketdata.NewPriceCache(time.Minute)
	s.tradeLedger = ledger.NewTradeLedger()
	s.broker = adapters.NewPaperBroker(s.prices, 10000)
	s.bus = statistics.NewBus("test")
	s.bus.Register(statistics.NewVolumeTracker())
	s.adaptersByRef = make(map[string]adapters.StrategyAdapter)
	s.manager = lifecycle.NewManager(s.registry, func(strategyRef, strategyId string) (adapters.StrategyAdapter, error) {
		return s.adaptersByRef[strategyRef], nil
	}, datamodels.ExecutionModePaperTrading)
}

func (s *CoordinatorTestSuite) newCoordinator(mode datamodels.ExecutionMode, cycleTimeout time.Duration) *Coordinator {
	engineConfig := datamodels.EngineConfig{
		InitialEquity:        10000,
		Mode:                 mode,
		Granularity:          "1m",
		PriceFreshnessWindow: time.Minute,
		CycleTimeout:         cycleTimeout,
	}
	sizer := sizing.NewOrderSizer(s.registry, s.prices, s.tradeLedger)
	return NewCoordinator(engineConfig, s.registry, s.manager, sizer,
		s.broker, s.tradeLedger, s.prices, s.bus, time.Minute)
}

func (s *CoordinatorTestSuite) deployScripted(id string, allocation float64, adapter adapters.StrategyAdapter) {
	s.deployScriptedWithMode(id, allocation, "", adapter)
}

func (s *CoordinatorTestSuite) deployScriptedWithMode(id string, allocation float64, mode datamodels.ExecutionMode, adapter adapters.StrategyAdapter) {
	s.adaptersByRef[id] = adapter
	_, err := s.manager.Deploy(s.ctx, lifecycle.DeployRequest{
		StrategyRef: id,
		StrategyId:  id,
		Allocation:  allocation,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
		Mode:        mode,
	})
	s.Require().NoError(err)
}

func (s *CoordinatorTestSuite) feedBar(c *Coordinator, price float64) {
	bar := datamodels.MarketBar{
		Instrument: "BTC-USD",
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		Timestamp:  time.Now(),
	}
	s.prices.ApplyBar(bar)
	c.mutex.Lock()
	c.latestBars[bar.Instrument] = bar
	c.mutex.Unlock()
}

func buySignalFor(strategyId string, relativeSize float64) datamodels.PureSignal {
	return datamodels.PureSignal{
		SignalId:     "sig_" + strategyId,
		StrategyId:   strategyId,
		Instrument:   "BTC-USD",
		Direction:    datamodels.DirectionBuy,
		RelativeSize: relativeSize,
		Timestamp:    time.Now(),
	}
}

func (s *CoordinatorTestSuite) TestCycleExecutesAndRecordsFills() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 0.5)},
	})
	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)

	c.runCycle(s.ctx)

	// 0.6 x 10000 x 0.5 at price 100 is 30 units
	position, open := s.tradeLedger.PositionFor("momo", "BTC-USD")
	s.Require().True(open)
	s.InDelta(30, position.Quantity, 1e-9)

	// the fill reached the stats bus
	stats := s.bus.StatsFor("momo")
	s.Require().Contains(stats, "volume")
	s.InDelta(3000, stats["volume"]["tradedNotional"], 1e-9)
}

func (s *CoordinatorTestSuite) TestSignalsOnlyModeSkipsExecution() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 0.5)},
	})
	c := s.newCoordinator(datamodels.ExecutionModeSignalsOnly, time.Second)
	s.feedBar(c, 100)

	c.runCycle(s.ctx)

	s.Equal(0, s.tradeLedger.EventCount())
	s.InDelta(10000, s.broker.Cash(), 1e-9)
}

func (s *CoordinatorTestSuite) TestPausedStrategyIsNotEvaluated() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 0.5)},
	})
	_, err := s.manager.Pause("momo")
	s.Require().NoError(err)

	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	s.Equal(0, s.tradeLedger.EventCount())
}

func (s *CoordinatorTestSuite) TestSlowAdapterLosesItsCycle() {
	s.deployScripted("slow", 0.3, &scriptedAdapter{
		delay:   200 * time.Millisecond,
		signals: []datamodels.PureSignal{buySignalFor("slow", 1.0)},
	})
	s.deployScripted("fast", 0.3, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("fast", 1.0)},
	})

	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, 20*time.Millisecond)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	_, slowOpen := s.tradeLedger.PositionFor("slow", "BTC-USD")
	s.False(slowOpen)
	_, fastOpen := s.tradeLedger.PositionFor("fast", "BTC-USD")
	s.True(fastOpen)
}

func (s *CoordinatorTestSuite) TestHungAdapterDoesNotStallCycle() {
	s.deployScripted("hung", 0.3, &stubbornAdapter{delay: 2 * time.Second})
	s.deployScripted("fast", 0.3, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("fast", 1.0)},
	})

	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, 20*time.Millisecond)
	s.feedBar(c, 100)

	start := time.Now()
	c.runCycle(s.ctx)
	s.Less(time.Since(start), time.Second)

	_, hungOpen := s.tradeLedger.PositionFor("hung", "BTC-USD")
	s.False(hungOpen)
	_, fastOpen := s.tradeLedger.PositionFor("fast", "BTC-USD")
	s.True(fastOpen)
}

func (s *CoordinatorTestSuite) TestSignalsOnlyStrategyCoexistsWithPaper() {
	s.deployScriptedWithMode("shadow", 0.3, datamodels.ExecutionModeSignalsOnly, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("shadow", 1.0)},
	})
	s.deployScripted("momo", 0.3, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 1.0)},
	})

	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	_, shadowOpen := s.tradeLedger.PositionFor("shadow", "BTC-USD")
	s.False(shadowOpen)
	position, momoOpen := s.tradeLedger.PositionFor("momo", "BTC-USD")
	s.Require().True(momoOpen)
	s.InDelta(30, position.Quantity, 1e-9)
	s.Equal(1, s.tradeLedger.EventCount())
}

func (s *CoordinatorTestSuite) TestMismatchedStrategyIdDropped() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("someone_else", 0.5)},
	})
	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	s.Equal(0, s.tradeLedger.EventCount())
}

func (s *CoordinatorTestSuite) TestLiquidateStrategyClosesAllPositions() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 0.5)},
	})
	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	position, open := s.tradeLedger.PositionFor("momo", "BTC-USD")
	s.Require().True(open)
	s.InDelta(30, position.Quantity, 1e-9)

	s.Require().NoError(c.LiquidateStrategy(s.ctx, "momo"))
	_, open = s.tradeLedger.PositionFor("momo", "BTC-USD")
	s.False(open)
}

func (s *CoordinatorTestSuite) TestStatusReport() {
	s.deployScripted("momo", 0.6, &scriptedAdapter{
		signals: []datamodels.PureSignal{buySignalFor("momo", 0.5)},
	})
	c := s.newCoordinator(datamodels.ExecutionModePaperTrading, time.Second)
	s.feedBar(c, 100)
	c.runCycle(s.ctx)

	report, err := c.Status(s.ctx)
	s.Require().NoError(err)
	s.Equal(datamodels.ExecutionModePaperTrading, report.Mode)
	s.InDelta(0.6, report.TotalAllocated, 1e-9)
	s.Require().Len(report.Strategies, 1)
	row := report.Strategies[0]
	s.Equal("momo", row.StrategyId)
	s.Equal(datamodels.StrategyStatusActive, row.Status)
	s.Equal(1, row.OpenPositions)
	s.Equal(int64(1), report.CycleCount)
}
