/*
Package ledger keeps the append-only TradeEvent log and the derived
per-(strategy, instrument) position table. Nothing here is ever deleted;
corrections arrive as new offsetting events, and portfolio-level views are
recomputed sums rather than separately owned state.
*/
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
	"stratd/src/utils/general"
)

const recentTradeBufferSize = 1000

// PersistenceSink receives every accepted TradeEvent. The ledger stays
// correct when the sink is nil or failing; persistence is best-effort.
type PersistenceSink interface {
	WriteTradeEvent(ctx context.Context, event datamodels.TradeEvent) error
}

type positionState struct {
	quantity    float64
	averageCost float64
	realizedPnl float64
}

type TradeLedger struct {
	mutex        sync.RWMutex
	events       []datamodels.TradeEvent
	seenTradeIds map[string]bool
	positions    map[string]map[datamodels.Instrument]positionState
	recent       *general.TimedBuffer[*datamodels.TradeEvent]
	sink         PersistenceSink
}

func NewTradeLedger() *TradeLedger {
	return &TradeLedger{
		events:       make([]datamodels.TradeEvent, 0),
		seenTradeIds: make(map[string]bool),
		positions:    make(map[string]map[datamodels.Instrument]positionState),
		recent:       general.NewTimedBuffer[*datamodels.TradeEvent](recentTradeBufferSize),
	}
}

func (l *TradeLedger) WithPersistenceSink(sink PersistenceSink) *TradeLedger {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.sink = sink
	return l
}

// RecordFill appends an executed fill and folds it into the position
// table. Idempotent on TradeId: a duplicate id is rejected, never
// double-counted.
func (l *TradeLedger) RecordFill(ctx context.Context, event datamodels.TradeEvent) error {
	if event.StrategyId == "" {
		return errors.New("trade event has no strategy id")
	}
	if event.Quantity <= 0 {
		return errors.Newf("trade event quantity must be positive, got %f", event.Quantity)
	}

	l.mutex.Lock()
	if event.TradeId != "" {
		if l.seenTradeIds[event.TradeId] {
			l.mutex.Unlock()
			return errors.Newf("duplicate trade id %s", event.TradeId)
		}
		l.seenTradeIds[event.TradeId] = true
	}
	l.events = append(l.events, event)
	l.applyToPosition(event)
	sink := l.sink
	l.mutex.Unlock()

	l.recent.AddElement(&event)

	if sink != nil {
		if err := sink.WriteTradeEvent(ctx, event); err != nil {
			slog.Error("Failed to persist trade event", "tradeId", event.TradeId, "error", err)
		}
	}
	return nil
}

// applyToPosition updates the derived position row. Caller holds the write
// lock. Average cost follows the weighted-entry convention: buys into an
// existing long re-average, sells realize PnL against the average, and a
// fill that crosses through zero restarts the average at the fill price.
func (l *TradeLedger) applyToPosition(event datamodels.TradeEvent) {
	byInstrument, ok := l.positions[event.StrategyId]
	if !ok {
		byInstrument = make(map[datamodels.Instrument]positionState)
		l.positions[event.StrategyId] = byInstrument
	}
	state := byInstrument[event.Instrument]

	signedQty := event.Quantity
	if event.Direction == datamodels.OrderSideSell {
		signedQty = -event.Quantity
	}

	switch {
	case state.quantity == 0 || sameSign(state.quantity, signedQty):
		totalCost := state.averageCost*abs(state.quantity) + event.Price*abs(signedQty)
		newQty := state.quantity + signedQty
		state.averageCost = totalCost / abs(newQty)
		state.quantity = newQty
	case abs(signedQty) <= abs(state.quantity):
		// reducing the existing position realizes PnL against average cost
		closed := abs(signedQty)
		state.realizedPnl += closed * (event.Price - state.averageCost) * sign(state.quantity)
		state.quantity += signedQty
		if state.quantity == 0 {
			state.averageCost = 0
		}
	default:
		// crossing through zero: realize the whole old side, restart at fill price
		closed := abs(state.quantity)
		state.realizedPnl += closed * (event.Price - state.averageCost) * sign(state.quantity)
		state.quantity += signedQty
		state.averageCost = event.Price
	}
	state.realizedPnl -= event.Commission
	byInstrument[event.Instrument] = state
}

// PositionsFor returns the derived position rows for one strategy, sorted
// by instrument for stable output.
func (l *TradeLedger) PositionsFor(strategyId string) []datamodels.PositionEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	byInstrument := l.positions[strategyId]
	entries := make([]datamodels.PositionEntry, 0, len(byInstrument))
	for instrument, state := range byInstrument {
		if state.quantity == 0 {
			continue
		}
		entries = append(entries, datamodels.PositionEntry{
			StrategyId:  strategyId,
			Instrument:  instrument,
			Quantity:    state.quantity,
			AverageCost: state.averageCost,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Instrument < entries[j].Instrument })
	return entries
}

// PositionFor returns the single (strategy, instrument) row, if open.
func (l *TradeLedger) PositionFor(strategyId string, instrument datamodels.Instrument) (datamodels.PositionEntry, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	state, ok := l.positions[strategyId][instrument]
	if !ok || state.quantity == 0 {
		return datamodels.PositionEntry{}, false
	}
	return datamodels.PositionEntry{
		StrategyId:  strategyId,
		Instrument:  instrument,
		Quantity:    state.quantity,
		AverageCost: state.averageCost,
	}, true
}

// PortfolioPositions aggregates across strategies per instrument. The
// aggregate is recomputed on every call; it is a projection, not state.
func (l *TradeLedger) PortfolioPositions() []datamodels.PositionEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	totals := make(map[datamodels.Instrument]positionState)
	for _, byInstrument := range l.positions {
		for instrument, state := range byInstrument {
			if state.quantity == 0 {
				continue
			}
			aggregate := totals[instrument]
			totalCost := aggregate.averageCost*abs(aggregate.quantity) + state.averageCost*abs(state.quantity)
			aggregate.quantity += state.quantity
			if aggregate.quantity != 0 {
				aggregate.averageCost = totalCost / (abs(aggregate.quantity))
			} else {
				aggregate.averageCost = 0
			}
			totals[instrument] = aggregate
		}
	}

	entries := make([]datamodels.PositionEntry, 0, len(totals))
	for instrument, state := range totals {
		if state.quantity == 0 {
			continue
		}
		entries = append(entries, datamodels.PositionEntry{
			StrategyId:  datamodels.PortfolioWideId,
			Instrument:  instrument,
			Quantity:    state.quantity,
			AverageCost: state.averageCost,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Instrument < entries[j].Instrument })
	return entries
}

// MarkPositions fills in UnrealizedPnl on the given entries using the
// supplied price lookup. Entries with no available price are returned
// unmarked.
func (l *TradeLedger) MarkPositions(entries []datamodels.PositionEntry, latestPrice func(datamodels.Instrument) (float64, error)) []datamodels.PositionEntry {
	marked := make([]datamodels.PositionEntry, len(entries))
	for i, entry := range entries {
		price, err := latestPrice(entry.Instrument)
		if err != nil {
			slog.Warn("No price available to mark position", "instrument", entry.Instrument, "error", err)
			marked[i] = entry
			continue
		}
		entry.UnrealizedPnl = (price - entry.AverageCost) * entry.Quantity
		marked[i] = entry
	}
	return marked
}

func (l *TradeLedger) RealizedPnlFor(strategyId string) float64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var total float64
	for _, state := range l.positions[strategyId] {
		total += state.realizedPnl
	}
	return total
}

func (l *TradeLedger) EventsFor(strategyId string) []datamodels.TradeEvent {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	events := make([]datamodels.TradeEvent, 0)
	for _, event := range l.events {
		if event.StrategyId == strategyId {
			events = append(events, event)
		}
	}
	return events
}

func (l *TradeLedger) AllEvents() []datamodels.TradeEvent {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	events := make([]datamodels.TradeEvent, len(l.events))
	copy(events, l.events)
	return events
}

func (l *TradeLedger) EventCount() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.events)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
