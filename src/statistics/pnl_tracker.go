package statistics

import (
	"sync"

	"stratd/src/datamodels"
)

// PnlTracker accumulates realized PnL and commission paid per strategy.
type PnlTracker struct {
	mutex       sync.RWMutex
	lots        map[string]map[datamodels.Instrument]*lotState
	realized    map[string]float64
	commissions map[string]float64
}

func NewPnlTracker() *PnlTracker {
	return &PnlTracker{
		lots:        make(map[string]map[datamodels.Instrument]*lotState),
		realized:    make(map[string]float64),
		commissions: make(map[string]float64),
	}
}

func (t *PnlTracker) Name() string {
	return "pnl"
}

func (t *PnlTracker) OnTrade(event datamodels.TradeEvent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	byInstrument, ok := t.lots[event.StrategyId]
	if !ok {
		byInstrument = make(map[datamodels.Instrument]*lotState)
		t.lots[event.StrategyId] = byInstrument
	}
	lot, ok := byInstrument[event.Instrument]
	if !ok {
		lot = &lotState{}
		byInstrument[event.Instrument] = lot
	}

	realized, _ := lot.apply(event)
	t.realized[event.StrategyId] += realized
	t.commissions[event.StrategyId] += event.Commission
}

func (t *PnlTracker) OnPortfolioUpdate(snapshot datamodels.PortfolioSnapshot) {}

func (t *PnlTracker) CurrentStats(strategyId string) map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if _, ok := t.realized[strategyId]; !ok {
		return nil
	}
	return map[string]float64{
		"realizedPnl":    t.realized[strategyId],
		"commissionPaid": t.commissions[strategyId],
		"netPnl":         t.realized[strategyId] - t.commissions[strategyId],
	}
}

func (t *PnlTracker) Summary() map[string]map[string]float64 {
	t.mutex.RLock()
	strategyIds := make([]string, 0, len(t.realized))
	for strategyId := range t.realized {
		strategyIds = append(strategyIds, strategyId)
	}
	t.mutex.RUnlock()

	result := make(map[string]map[string]float64, len(strategyIds))
	var totalRealized, totalCommission float64
	for _, strategyId := range strategyIds {
		stats := t.CurrentStats(strategyId)
		result[strategyId] = stats
		totalRealized += stats["realizedPnl"]
		totalCommission += stats["commissionPaid"]
	}
	if len(result) > 0 {
		result[datamodels.PortfolioWideId] = map[string]float64{
			"realizedPnl":    totalRealized,
			"commissionPaid": totalCommission,
			"netPnl":         totalRealized - totalCommission,
		}
	}
	return result
}
