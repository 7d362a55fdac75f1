package statistics

import (
	"sync"

	"stratd/src/datamodels"
)

// WinLossTracker counts closing fills per strategy and classifies each as
// a win or a loss by the PnL it realizes against average cost.
type WinLossTracker struct {
	mutex  sync.RWMutex
	lots   map[string]map[datamodels.Instrument]*lotState
	wins   map[string]float64
	losses map[string]float64
}

func NewWinLossTracker() *WinLossTracker {
	return &WinLossTracker{
		lots:   make(map[string]map[datamodels.Instrument]*lotState),
		wins:   make(map[string]float64),
		losses: make(map[string]float64),
	}
}

func (t *WinLossTracker) Name() string {
	return "winloss"
}

func (t *WinLossTracker) OnTrade(event datamodels.TradeEvent) {
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

	realized, closedAny := lot.apply(event)
	if !closedAny {
		return
	}
	if realized >= 0 {
		t.wins[event.StrategyId]++
	} else {
		t.losses[event.StrategyId]++
	}
}

func (t *WinLossTracker) OnPortfolioUpdate(snapshot datamodels.PortfolioSnapshot) {}

func (t *WinLossTracker) CurrentStats(strategyId string) map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.statsLocked(strategyId)
}

func (t *WinLossTracker) statsLocked(strategyId string) map[string]float64 {
	wins := t.wins[strategyId]
	losses := t.losses[strategyId]
	total := wins + losses
	if total == 0 {
		return nil
	}
	return map[string]float64{
		"wins":    wins,
		"losses":  losses,
		"winRate": wins / total,
	}
}

func (t *WinLossTracker) Summary() map[string]map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	seen := make(map[string]bool)
	for strategyId := range t.wins {
		seen[strategyId] = true
	}
	for strategyId := range t.losses {
		seen[strategyId] = true
	}

	result := make(map[string]map[string]float64, len(seen))
	var totalWins, totalLosses float64
	for strategyId := range seen {
		stats := t.statsLocked(strategyId)
		if stats == nil {
			continue
		}
		result[strategyId] = stats
		totalWins += stats["wins"]
		totalLosses += stats["losses"]
	}
	if totalWins+totalLosses > 0 {
		result[datamodels.PortfolioWideId] = map[string]float64{
			"wins":    totalWins,
			"losses":  totalLosses,
			"winRate": totalWins / (totalWins + totalLosses),
		}
	}
	return result
}
