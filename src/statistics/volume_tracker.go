package statistics

import (
	"sync"

	"stratd/src/datamodels"
)

// VolumeTracker counts fills and sums traded notional per strategy.
type VolumeTracker struct {
	mutex     sync.RWMutex
	trades    map[string]float64
	notionals map[string]float64
}

func NewVolumeTracker() *VolumeTracker {
	return &VolumeTracker{
		trades:    make(map[string]float64),
		notionals: make(map[string]float64),
	}
}

func (t *VolumeTracker) Name() string {
	return "volume"
}

func (t *VolumeTracker) OnTrade(event datamodels.TradeEvent) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.trades[event.StrategyId]++
	t.notionals[event.StrategyId] += event.Quantity * event.Price
}

func (t *VolumeTracker) OnPortfolioUpdate(snapshot datamodels.PortfolioSnapshot) {}

func (t *VolumeTracker) CurrentStats(strategyId string) map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	trades, ok := t.trades[strategyId]
	if !ok {
		return nil
	}
	return map[string]float64{
		"tradeCount":     trades,
		"tradedNotional": t.notionals[strategyId],
	}
}

func (t *VolumeTracker) Summary() map[string]map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make(map[string]map[string]float64, len(t.trades))
	var totalTrades, totalNotional float64
	for strategyId, trades := range t.trades {
		result[strategyId] = map[string]float64{
			"tradeCount":     trades,
			"tradedNotional": t.notionals[strategyId],
		}
		totalTrades += trades
		totalNotional += t.notionals[strategyId]
	}
	if len(result) > 0 {
		result[datamodels.PortfolioWideId] = map[string]float64{
			"tradeCount":     totalTrades,
			"tradedNotional": totalNotional,
		}
	}
	return result
}
