/*
Package runtime runs the evaluation loop that ties everything together:
bars in, signals gathered from active strategies, conflict-ordered, sized
against allocations, executed, recorded, and fanned out to statistics. One
cycle per granularity tick; a slow strategy adapter loses its cycle, never
the whole loop.
*/
package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stratd/src/adapters"
	"stratd/src/allocation"
	"stratd/src/conflict"
	"stratd/src/datamodels"
	"stratd/src/ledger"
	"stratd/src/lifecycle"
	"stratd/src/marketdata"
	"stratd/src/sizing"
	"stratd/src/statistics"
	"stratd/src/utils/errors"
)

type Coordinator struct {
	engineConfig datamodels.EngineConfig
	registry     *allocation.Registry
	manager      *lifecycle.Manager
	resolver     *conflict.Resolver
	sizer        *sizing.OrderSizer
	broker       adapters.BrokerAdapter
	tradeLedger  *ledger.TradeLedger
	prices       *marketdata.PriceCache
	bus          *statistics.Bus
	bars         <-chan datamodels.MarketBar
	cycleEvery   time.Duration

	mutex      sync.RWMutex
	latestBars map[datamodels.Instrument]datamodels.MarketBar
	lastCycle  time.Time
	cycleCount int64
	started    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewCoordinator(
	engineConfig datamodels.EngineConfig,
	registry *allocation.Registry,
	manager *lifecycle.Manager,
	sizer *sizing.OrderSizer,
	broker adapters.BrokerAdapter,
	tradeLedger *ledger.TradeLedger,
	prices *marketdata.PriceCache,
	bus *statistics.Bus,
	cycleEvery time.Duration,
) *Coordinator {
	return &Coordinator{
		engineConfig: engineConfig,
		registry:     registry,
		manager:      manager,
		resolver:     conflict.NewResolver(),
		sizer:        sizer,
		broker:       broker,
		tradeLedger:  tradeLedger,
		prices:       prices,
		bus:          bus,
		cycleEvery:   cycleEvery,
		latestBars:   make(map[datamodels.Instrument]datamodels.MarketBar),
		done:         make(chan struct{}),
	}
}

func (c *Coordinator) WithBars(bars <-chan datamodels.MarketBar) *Coordinator {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.bars = bars
	return c
}

func (c *Coordinator) IsStarted() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.started
}

func (c *Coordinator) Start(ctx context.Context) error {
	c.mutex.Lock()
	if c.started {
		c.mutex.Unlock()
		slog.Warn("Coordinator already started, skipping start")
		return nil
	}
	if c.bars == nil {
		c.mutex.Unlock()
		return errors.New("coordinator has no bar source")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mutex.Unlock()

	go c.run(runCtx)
	return nil
}

// Stop ends the loop, optionally liquidating every open position first,
// and blocks until the loop goroutine has exited.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mutex.Lock()
	if !c.started {
		c.mutex.Unlock()
		return
	}
	cancel := c.cancel
	c.mutex.Unlock()

	if c.engineConfig.LiquidateOnShutdown {
		if err := c.LiquidateAll(ctx); err != nil {
			slog.Error("Shutdown liquidation incomplete", "error", err)
		}
	}
	cancel()
	<-c.done

	c.mutex.Lock()
	c.started = false
	c.mutex.Unlock()
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cycleEvery)
	defer ticker.Stop()

	slog.Info("Coordinator started",
		"cycleEvery", c.cycleEvery,
		"mode", c.engineConfig.Mode)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Coordinator context done, stopping loop")
			return
		case bar, ok := <-c.bars:
			if !ok {
				slog.Warn("Bar source closed, stopping coordinator loop")
				return
			}
			c.prices.ApplyBar(bar)
			c.mutex.Lock()
			c.latestBars[bar.Instrument] = bar
			c.mutex.Unlock()
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle performs one full evaluation pass. Each strategy gets its own
// goroutine bounded by the cycle timeout; one that overruns is skipped
// this cycle and its signals discarded.
func (c *Coordinator) runCycle(ctx context.Context) {
	cycleStart := time.Now()

	c.mutex.Lock()
	barsByInstrument := make(map[datamodels.Instrument]datamodels.MarketBar, len(c.latestBars))
	for instrument, bar := range c.latestBars {
		barsByInstrument[instrument] = bar
	}
	c.cycleCount++
	c.lastCycle = cycleStart
	c.mutex.Unlock()

	if len(barsByInstrument) == 0 {
		return
	}

	signals := c.gatherSignals(ctx, barsByInstrument)
	resolved := c.resolver.Resolve(signals)

	equity, err := c.broker.CurrentEquity(ctx)
	if err != nil {
		slog.Error("Failed to read account equity, skipping cycle", "error", err)
		return
	}

	for _, signal := range resolved {
		c.executeSignal(ctx, signal.PureSignal, equity)
	}

	c.publishPortfolioState(ctx, equity, cycleStart)
}

// gatherSignals evaluates every active strategy against the latest bar of
// each of its symbols.
func (c *Coordinator) gatherSignals(ctx context.Context, barsByInstrument map[datamodels.Instrument]datamodels.MarketBar) []datamodels.PureSignal {
	records := c.registry.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].Id < records[j].Id })

	type evalResult struct {
		strategyId string
		signals    []datamodels.PureSignal
		err        error
	}

	results := make(chan evalResult, len(records))
	launched := 0
	for _, record := range records {
		if record.Status != datamodels.StrategyStatusActive {
			continue
		}
		adapter, ok := c.manager.AdapterFor(record.Id)
		if !ok {
			slog.Warn("Active strategy has no bound adapter", "strategyId", record.Id)
			continue
		}
		launched++
		go func(record datamodels.StrategyRecord, adapter adapters.StrategyAdapter) {
			evalCtx, cancel := context.WithTimeout(ctx, c.engineConfig.CycleTimeout)
			defer cancel()

			// the evaluation runs in its own goroutine so the deadline
			// holds even when an adapter ignores its context; an
			// abandoned evaluation's late result lands in the buffered
			// channel and is discarded
			evalDone := make(chan evalResult, 1)
			go func() {
				var collected []datamodels.PureSignal
				for _, symbol := range record.Symbols {
					bar, ok := barsByInstrument[symbol]
					if !ok {
						continue
					}
					signals, err := adapter.Evaluate(evalCtx, bar)
					if err != nil {
						evalDone <- evalResult{strategyId: record.Id, err: err}
						return
					}
					collected = append(collected, signals...)
				}
				evalDone <- evalResult{strategyId: record.Id, signals: collected}
			}()

			select {
			case result := <-evalDone:
				if result.err != nil && evalCtx.Err() != nil {
					result.err = errors.Wrapf(errors.ErrAdapterTimeout,
						"strategy %s overran the cycle timeout", record.Id)
				}
				results <- result
			case <-evalCtx.Done():
				results <- evalResult{strategyId: record.Id,
					err: errors.Wrapf(errors.ErrAdapterTimeout,
						"strategy %s overran the cycle timeout", record.Id)}
			}
		}(record, adapter)
	}

	var signals []datamodels.PureSignal
	for i := 0; i < launched; i++ {
		result := <-results
		if result.err != nil {
			slog.Warn("Strategy evaluation failed, skipping its cycle",
				"strategyId", result.strategyId, "error", result.err)
			continue
		}
		for _, signal := range result.signals {
			// only signals claiming the emitting strategy's own id pass
			if signal.StrategyId != result.strategyId {
				slog.Warn("Dropping signal with mismatched strategy id",
					"emitter", result.strategyId, "claimed", signal.StrategyId)
				continue
			}
			signals = append(signals, signal)
		}
	}
	return signals
}

func (c *Coordinator) executeSignal(ctx context.Context, signal datamodels.PureSignal, equity float64) {
	instruction, ok, err := c.sizer.Size(signal, equity)
	if err != nil {
		slog.Warn("Failed to size signal",
			"strategyId", signal.StrategyId,
			"signalId", signal.SignalId,
			"error", err)
		return
	}
	if !ok {
		return
	}

	if c.modeFor(instruction.StrategyId) == datamodels.ExecutionModeSignalsOnly {
		slog.Info("Signal (execution disabled)",
			"strategyId", instruction.StrategyId,
			"instrument", instruction.Instrument,
			"side", instruction.Side,
			"quantity", instruction.Quantity,
			"notional", instruction.Notional)
		return
	}

	fill, err := c.broker.Submit(ctx, instruction)
	if err != nil {
		slog.Warn("Broker rejected order",
			"strategyId", instruction.StrategyId,
			"instrument", instruction.Instrument,
			"error", err)
		return
	}

	event := datamodels.TradeEvent{
		TradeId:    fill.TradeId,
		StrategyId: instruction.StrategyId,
		Instrument: fill.Instrument,
		Direction:  fill.Side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
		Timestamp:  fill.Timestamp,
	}
	if err := c.tradeLedger.RecordFill(ctx, event); err != nil {
		slog.Error("Failed to record fill", "tradeId", fill.TradeId, "error", err)
		return
	}
	c.bus.PublishTrade(event)
}

// publishPortfolioState emits per-strategy and portfolio-wide equity
// snapshots to the stats bus and flushes tracker snapshots to the writers.
func (c *Coordinator) publishPortfolioState(ctx context.Context, equity float64, at time.Time) {
	for _, record := range c.registry.Records() {
		capital, err := c.registry.CapitalFor(record.Id, equity)
		if err != nil {
			continue
		}
		positions := c.tradeLedger.MarkPositions(
			c.tradeLedger.PositionsFor(record.Id), c.latestPrice)
		var unrealized float64
		for _, position := range positions {
			unrealized += position.UnrealizedPnl
		}
		c.bus.PublishPortfolio(datamodels.PortfolioSnapshot{
			StrategyId:  record.Id,
			EquityValue: capital + c.tradeLedger.RealizedPnlFor(record.Id) + unrealized,
			Timestamp:   at,
		})
	}
	c.bus.PublishPortfolio(datamodels.PortfolioSnapshot{
		StrategyId:  datamodels.PortfolioWideId,
		EquityValue: equity,
		Timestamp:   at,
	})
	c.bus.EmitSnapshots(ctx, at)
}

func (c *Coordinator) latestPrice(instrument datamodels.Instrument) (float64, error) {
	price, _, err := c.prices.LatestPrice(instrument)
	return price, err
}

// modeFor resolves the execution mode for one strategy. A daemon-wide
// signals-only setting is a master switch; otherwise the record's own
// mode wins over the daemon default.
func (c *Coordinator) modeFor(strategyId string) datamodels.ExecutionMode {
	if c.engineConfig.Mode == datamodels.ExecutionModeSignalsOnly {
		return datamodels.ExecutionModeSignalsOnly
	}
	if record, ok := c.registry.Get(strategyId); ok && record.Mode != "" {
		return record.Mode
	}
	return c.engineConfig.Mode
}

// LiquidateStrategy closes every open position of one strategy through
// the normal sizing and execution path. Implements lifecycle.Liquidator.
func (c *Coordinator) LiquidateStrategy(ctx context.Context, strategyId string) error {
	if c.modeFor(strategyId) == datamodels.ExecutionModeSignalsOnly {
		slog.Info("Signals-only mode, nothing to liquidate", "strategyId", strategyId)
		return nil
	}

	equity, err := c.broker.CurrentEquity(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read equity before liquidation")
	}

	var lastErr error
	for _, position := range c.tradeLedger.PositionsFor(strategyId) {
		signal := datamodels.PureSignal{
			SignalId:     "liquidate_" + strategyId + "_" + string(position.Instrument),
			StrategyId:   strategyId,
			Instrument:   position.Instrument,
			Direction:    datamodels.DirectionClose,
			RelativeSize: 1.0,
			Timestamp:    time.Now(),
		}
		instruction, ok, err := c.sizer.Size(signal, equity)
		if err != nil {
			slog.Error("Failed to size liquidation order",
				"strategyId", strategyId, "instrument", position.Instrument, "error", err)
			lastErr = err
			continue
		}
		if !ok {
			continue
		}
		fill, err := c.broker.Submit(ctx, instruction)
		if err != nil {
			slog.Error("Liquidation order rejected",
				"strategyId", strategyId, "instrument", position.Instrument, "error", err)
			lastErr = err
			continue
		}
		event := datamodels.TradeEvent{
			TradeId:    fill.TradeId,
			StrategyId: strategyId,
			Instrument: fill.Instrument,
			Direction:  fill.Side,
			Quantity:   fill.Quantity,
			Price:      fill.Price,
			Commission: fill.Commission,
			Timestamp:  fill.Timestamp,
		}
		if err := c.tradeLedger.RecordFill(ctx, event); err != nil {
			slog.Error("Failed to record liquidation fill", "tradeId", fill.TradeId, "error", err)
			lastErr = err
			continue
		}
		c.bus.PublishTrade(event)
	}
	return lastErr
}

// LiquidateAll liquidates every strategy with open positions.
func (c *Coordinator) LiquidateAll(ctx context.Context) error {
	var lastErr error
	for _, record := range c.registry.Records() {
		if err := c.LiquidateStrategy(ctx, record.Id); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
