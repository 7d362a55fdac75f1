/*
Package lifecycle drives the strategy state machine:

	Pending -> Active <-> Paused -> Undeployed

Operations are serialized on one mutex, so two control-surface requests can
never interleave their registry writes. A rejected operation changes
nothing.
*/
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stratd/src/adapters"
	"stratd/src/allocation"
	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// AdapterFactory builds the strategy adapter for a deploy request.
// StrategyRef is the config-file reference, e.g. "momentum" or a path
// whose basename selects a built-in.
type AdapterFactory func(strategyRef string, strategyId string) (adapters.StrategyAdapter, error)

// Liquidator closes a strategy's open positions through the normal sizing
// and execution path. The runtime coordinator implements this.
type Liquidator interface {
	LiquidateStrategy(ctx context.Context, strategyId string) error
}

// MarketData starts and stops bar delivery for an instrument as strategies
// come and go. The market data feed implements this.
type MarketData interface {
	SubscribeInstrument(instrument datamodels.Instrument)
	UnsubscribeInstrument(instrument datamodels.Instrument)
}

type DeployRequest struct {
	StrategyRef string                  `json:"strategy_ref"`
	StrategyId  string                  `json:"strategy_id,omitempty"`
	Allocation  float64                 `json:"allocation"`
	Symbols     []datamodels.Instrument `json:"symbols"`
	// Mode overrides the daemon-wide execution mode for this strategy.
	// Empty means inherit the default.
	Mode datamodels.ExecutionMode `json:"execution_mode,omitempty"`
}

// OpResult reports a successful lifecycle operation. Rejections come back
// as errors and guarantee no state changed.
type OpResult struct {
	StrategyId string                    `json:"strategy_id"`
	Status     datamodels.StrategyStatus `json:"status"`
	Message    string                    `json:"message,omitempty"`
}

type Manager struct {
	mutex       sync.Mutex
	registry    *allocation.Registry
	factory     AdapterFactory
	liquidator  Liquidator
	marketData  MarketData
	defaultMode datamodels.ExecutionMode
	adapters    map[string]adapters.StrategyAdapter
	adaptersMu  sync.RWMutex
}

func NewManager(registry *allocation.Registry, factory AdapterFactory, defaultMode datamodels.ExecutionMode) *Manager {
	return &Manager{
		registry:    registry,
		factory:     factory,
		defaultMode: defaultMode,
		adapters:    make(map[string]adapters.StrategyAdapter),
	}
}

// SetLiquidator wires the execution path in after construction. The
// coordinator depends on this manager, so the reference arrives late.
func (m *Manager) SetLiquidator(liquidator Liquidator) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.liquidator = liquidator
}

// SetMarketData wires the feed's subscription hooks in.
func (m *Manager) SetMarketData(marketData MarketData) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.marketData = marketData
}

// Deploy registers the allocation, builds and binds the adapter, and
// activates the strategy. If adapter construction fails the registration
// is rolled back and the registry is unchanged.
func (m *Manager) Deploy(ctx context.Context, request DeployRequest) (OpResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	strategyId := request.StrategyId
	if strategyId == "" {
		strategyId = generateStrategyId(request.StrategyRef, request.Symbols)
	}

	mode := request.Mode
	if mode == "" {
		mode = m.defaultMode
	}
	switch mode {
	case datamodels.ExecutionModeSignalsOnly, datamodels.ExecutionModePaperTrading, datamodels.ExecutionModeLiveTrading:
	default:
		return OpResult{}, errors.Newf("unknown execution mode %q for strategy %s", mode, strategyId)
	}

	record := datamodels.StrategyRecord{
		Id:            strategyId,
		Symbols:       request.Symbols,
		Status:        datamodels.StrategyStatusPending,
		CreatedAt:     time.Now(),
		BrokerBinding: request.StrategyRef,
		Mode:          mode,
	}
	if m.registry.Mode() == allocation.ModeAmount {
		record.AllocationAmount = request.Allocation
	} else {
		record.AllocationFraction = request.Allocation
	}

	if err := m.registry.Register(record); err != nil {
		return OpResult{}, err
	}

	adapter, err := m.factory(request.StrategyRef, strategyId)
	if err != nil {
		if removeErr := m.registry.Remove(strategyId); removeErr != nil {
			slog.Error("Failed to roll back registration after bind failure",
				"strategyId", strategyId, "error", removeErr)
		}
		return OpResult{}, errors.Wrapf(err, "failed to bind adapter for %s", strategyId)
	}

	m.adaptersMu.Lock()
	m.adapters[strategyId] = adapter
	m.adaptersMu.Unlock()

	if m.marketData != nil {
		for _, symbol := range request.Symbols {
			m.marketData.SubscribeInstrument(symbol)
		}
	}

	if err := m.registry.SetStatus(strategyId, datamodels.StrategyStatusActive); err != nil {
		return OpResult{}, err
	}
	slog.Info("Deployed strategy",
		"strategyId", strategyId,
		"strategyRef", request.StrategyRef,
		"allocation", request.Allocation,
		"mode", mode,
		"symbols", request.Symbols)
	return OpResult{StrategyId: strategyId, Status: datamodels.StrategyStatusActive}, nil
}

// DeployBatch deploys several strategies, stopping at the first failure.
func (m *Manager) DeployBatch(ctx context.Context, requests []DeployRequest) ([]OpResult, error) {
	results := make([]OpResult, 0, len(requests))
	for _, request := range requests {
		result, err := m.Deploy(ctx, request)
		if err != nil {
			return results, errors.Wrapf(err, "batch deploy stopped at %s", request.StrategyRef)
		}
		results = append(results, result)
	}
	return results, nil
}

// Pause stops signal processing for a strategy. Open positions are kept
// and the allocation stays reserved.
func (m *Manager) Pause(id string) (OpResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.registry.Get(id)
	if !ok {
		return OpResult{}, errors.Wrapf(errors.ErrUnknownStrategy, "cannot pause %s", id)
	}
	if record.Status != datamodels.StrategyStatusActive {
		return OpResult{}, errors.Newf("cannot pause %s from status %s", id, record.Status)
	}
	if err := m.registry.SetStatus(id, datamodels.StrategyStatusPaused); err != nil {
		return OpResult{}, err
	}
	slog.Info("Paused strategy", "strategyId", id)
	return OpResult{StrategyId: id, Status: datamodels.StrategyStatusPaused}, nil
}

func (m *Manager) Resume(id string) (OpResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.registry.Get(id)
	if !ok {
		return OpResult{}, errors.Wrapf(errors.ErrUnknownStrategy, "cannot resume %s", id)
	}
	if record.Status != datamodels.StrategyStatusPaused {
		return OpResult{}, errors.Newf("cannot resume %s from status %s", id, record.Status)
	}
	if err := m.registry.SetStatus(id, datamodels.StrategyStatusActive); err != nil {
		return OpResult{}, err
	}
	slog.Info("Resumed strategy", "strategyId", id)
	return OpResult{StrategyId: id, Status: datamodels.StrategyStatusActive}, nil
}

// Undeploy permanently retires a strategy. The record is marked
// Undeployed before anything else so no new signals are accepted during
// teardown; liquidation, when requested, goes through the normal sizing
// and execution path.
func (m *Manager) Undeploy(ctx context.Context, id string, liquidate bool) (OpResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.registry.Get(id)
	if !ok {
		return OpResult{}, errors.Wrapf(errors.ErrUnknownStrategy, "cannot undeploy %s", id)
	}
	if record.Status == datamodels.StrategyStatusUndeployed {
		return OpResult{}, errors.Newf("strategy %s is already undeployed", id)
	}
	if err := m.registry.SetStatus(id, datamodels.StrategyStatusUndeployed); err != nil {
		return OpResult{}, err
	}

	message := "positions kept"
	if liquidate {
		if m.liquidator == nil {
			slog.Warn("No liquidator wired, keeping positions", "strategyId", id)
			message = "liquidation unavailable, positions kept"
		} else if err := m.liquidator.LiquidateStrategy(ctx, id); err != nil {
			slog.Error("Liquidation failed during undeploy, positions may remain",
				"strategyId", id, "error", err)
			message = "liquidation incomplete: " + err.Error()
		} else {
			message = "positions liquidated"
		}
	}

	m.adaptersMu.Lock()
	delete(m.adapters, id)
	m.adaptersMu.Unlock()

	if err := m.registry.Remove(id); err != nil {
		return OpResult{}, err
	}
	m.releaseSubscriptions(record.Symbols)
	slog.Info("Undeployed strategy", "strategyId", id, "liquidate", liquidate)
	return OpResult{StrategyId: id, Status: datamodels.StrategyStatusUndeployed, Message: message}, nil
}

// releaseSubscriptions unsubscribes the symbols no remaining strategy
// references. Shared symbols stay subscribed.
func (m *Manager) releaseSubscriptions(symbols []datamodels.Instrument) {
	if m.marketData == nil {
		return
	}
	stillUsed := make(map[datamodels.Instrument]bool)
	for _, record := range m.registry.Records() {
		for _, symbol := range record.Symbols {
			stillUsed[symbol] = true
		}
	}
	for _, symbol := range symbols {
		if !stillUsed[symbol] {
			m.marketData.UnsubscribeInstrument(symbol)
		}
	}
}

// Rebalance atomically updates allocations. Status is never touched: a
// paused strategy can be rebalanced and stays paused.
func (m *Manager) Rebalance(targets map[string]float64, redistribute bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if redistribute {
		return m.registry.RebalanceWithRemainder(targets)
	}
	return m.registry.ApplyRebalance(targets)
}

// AdapterFor returns the bound adapter for an id, if deployed.
func (m *Manager) AdapterFor(id string) (adapters.StrategyAdapter, bool) {
	m.adaptersMu.RLock()
	defer m.adaptersMu.RUnlock()
	adapter, ok := m.adapters[id]
	return adapter, ok
}

// generateStrategyId derives an id from the strategy reference and its
// first symbol, e.g. "momentum_BTCUSD_1714000000".
func generateStrategyId(strategyRef string, symbols []datamodels.Instrument) string {
	name := strings.TrimSuffix(filepath.Base(strategyRef), filepath.Ext(strategyRef))
	symbol := "multi"
	if len(symbols) > 0 {
		symbol = string(symbols[0])
	}
	return fmt.Sprintf("%s_%s_%d", name, symbol, time.Now().Unix())
}
