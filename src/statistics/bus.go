/*
Package statistics fans trade and portfolio events out to pluggable
trackers. Trackers are observers only: a panicking or misbehaving tracker
is logged and skipped, and must never stall or fail the trading pipeline.
*/
package statistics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// Tracker consumes trade and portfolio events and maintains derived
// statistics keyed by strategy id. Implementations use PortfolioWideId for
// portfolio-level rows.
type Tracker interface {
	Name() string
	OnTrade(event datamodels.TradeEvent)
	OnPortfolioUpdate(snapshot datamodels.PortfolioSnapshot)
	CurrentStats(strategyId string) map[string]float64
	Summary() map[string]map[string]float64
}

// SnapshotSink receives the bus's periodic StatsSnapshot records. The
// metrics writers implement this.
type SnapshotSink interface {
	Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error
}

type Bus struct {
	mutex    sync.RWMutex
	busId    string
	trackers []Tracker
	sink     SnapshotSink
}

func NewBus(busId string) *Bus {
	return &Bus{busId: busId}
}

func (b *Bus) WithSink(sink SnapshotSink) *Bus {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.sink = sink
	return b
}

func (b *Bus) Register(tracker Tracker) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.trackers = append(b.trackers, tracker)
	slog.Info("Registered stats tracker", "tracker", tracker.Name())
}

func (b *Bus) trackerList() []Tracker {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	trackers := make([]Tracker, len(b.trackers))
	copy(trackers, b.trackers)
	return trackers
}

// PublishTrade delivers one executed fill to every tracker. Delivery
// continues past a failing tracker.
func (b *Bus) PublishTrade(event datamodels.TradeEvent) {
	for _, tracker := range b.trackerList() {
		b.dispatch(tracker.Name(), func() { tracker.OnTrade(event) })
	}
}

func (b *Bus) PublishPortfolio(snapshot datamodels.PortfolioSnapshot) {
	for _, tracker := range b.trackerList() {
		b.dispatch(tracker.Name(), func() { tracker.OnPortfolioUpdate(snapshot) })
	}
}

func (b *Bus) dispatch(trackerName string, deliver func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrapf(errors.ErrTrackerFailed, "tracker %s panicked: %v", trackerName, r)
			slog.Error("Stats tracker failed, skipping", "tracker", trackerName, "error", err)
		}
	}()
	deliver()
}

// StatsFor collects every tracker's current metrics for one strategy,
// keyed by tracker name.
func (b *Bus) StatsFor(strategyId string) map[string]map[string]float64 {
	result := make(map[string]map[string]float64)
	for _, tracker := range b.trackerList() {
		stats := tracker.CurrentStats(strategyId)
		if len(stats) > 0 {
			result[tracker.Name()] = stats
		}
	}
	return result
}

// Summary collects every tracker's full per-strategy metric table.
func (b *Bus) Summary() map[string]map[string]map[string]float64 {
	result := make(map[string]map[string]map[string]float64)
	for _, tracker := range b.trackerList() {
		result[tracker.Name()] = tracker.Summary()
	}
	return result
}

// EmitSnapshots marshals each tracker's summary into StatsSnapshot records
// and forwards them to the sink. Called by the coordinator once per cycle.
func (b *Bus) EmitSnapshots(ctx context.Context, snapshotTime time.Time) {
	b.mutex.RLock()
	sink := b.sink
	b.mutex.RUnlock()
	if sink == nil {
		return
	}

	for _, tracker := range b.trackerList() {
		summary := tracker.Summary()
		strategyIds := make([]string, 0, len(summary))
		for strategyId := range summary {
			strategyIds = append(strategyIds, strategyId)
		}
		sort.Strings(strategyIds)

		for _, strategyId := range strategyIds {
			value, err := json.Marshal(summary[strategyId])
			if err != nil {
				slog.Error("Failed to marshal tracker stats", "tracker", tracker.Name(), "error", err)
				continue
			}
			snapshot := datamodels.StatsSnapshot{
				GeneratorId:   b.busId,
				GeneratorName: tracker.Name(),
				GeneratorType: datamodels.StatsGeneratorTypeTracker,
				SnapshotTime:  snapshotTime,
				SnapshotName:  strategyId,
				SnapshotValue: value,
			}
			if err := sink.Write(ctx, snapshot); err != nil {
				slog.Error("Failed to write stats snapshot", "tracker", tracker.Name(), "error", err)
			}
		}
	}
}
