package statistics

import (
	"log/slog"
	"sync"

	"github.com/montanaflynn/stats"

	"stratd/src/datamodels"
)

const maxEquityPoints = 10000

// DrawdownTracker maintains an equity curve per strategy id from portfolio
// snapshots and derives peak, drawdown, and dispersion measures. The curve
// is capped; old points roll off once the cap is reached.
type DrawdownTracker struct {
	mutex    sync.RWMutex
	curves   map[string][]float64
	peaks    map[string]float64
	maxDraws map[string]float64
}

func NewDrawdownTracker() *DrawdownTracker {
	return &DrawdownTracker{
		curves:   make(map[string][]float64),
		peaks:    make(map[string]float64),
		maxDraws: make(map[string]float64),
	}
}

func (t *DrawdownTracker) Name() string {
	return "drawdown"
}

func (t *DrawdownTracker) OnTrade(event datamodels.TradeEvent) {}

func (t *DrawdownTracker) OnPortfolioUpdate(snapshot datamodels.PortfolioSnapshot) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	curve := append(t.curves[snapshot.StrategyId], snapshot.EquityValue)
	if len(curve) > maxEquityPoints {
		curve = curve[len(curve)-maxEquityPoints:]
	}
	t.curves[snapshot.StrategyId] = curve

	if snapshot.EquityValue > t.peaks[snapshot.StrategyId] {
		t.peaks[snapshot.StrategyId] = snapshot.EquityValue
	}
	peak := t.peaks[snapshot.StrategyId]
	if peak > 0 {
		drawdown := (peak - snapshot.EquityValue) / peak
		if drawdown > t.maxDraws[snapshot.StrategyId] {
			t.maxDraws[snapshot.StrategyId] = drawdown
		}
	}
}

func (t *DrawdownTracker) CurrentStats(strategyId string) map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.statsLocked(strategyId)
}

func (t *DrawdownTracker) statsLocked(strategyId string) map[string]float64 {
	curve := t.curves[strategyId]
	if len(curve) == 0 {
		return nil
	}

	mean, err := stats.Mean(curve)
	if err != nil {
		slog.Warn("Failed to compute equity mean", "strategyId", strategyId, "error", err)
		return nil
	}
	stddev, err := stats.StandardDeviation(curve)
	if err != nil {
		slog.Warn("Failed to compute equity stddev", "strategyId", strategyId, "error", err)
		return nil
	}

	return map[string]float64{
		"peakEquity":    t.peaks[strategyId],
		"latestEquity":  curve[len(curve)-1],
		"maxDrawdown":   t.maxDraws[strategyId],
		"meanEquity":    mean,
		"equityStddev":  stddev,
		"observedBars":  float64(len(curve)),
	}
}

func (t *DrawdownTracker) Summary() map[string]map[string]float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make(map[string]map[string]float64, len(t.curves))
	for strategyId := range t.curves {
		if stats := t.statsLocked(strategyId); stats != nil {
			result[strategyId] = stats
		}
	}
	return result
}
