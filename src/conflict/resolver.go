/*
Package conflict orders the signals of one evaluation cycle. Strategies
keep isolated capital, so overlapping signals are never netted against each
other; this stage detects and logs the overlap and pins a deterministic
per-instrument ordering (stable sort by strategy id) so partial broker
rejections reproduce across runs. Signal content is never mutated.
*/
package conflict

import (
	"log/slog"
	"sort"
	"strings"

	"stratd/src/datamodels"
)

type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve annotates the cycle's signals with per-instrument sequence
// numbers. Input signals from paused or undeployed strategies are assumed
// to have been dropped upstream by the coordinator.
func (r *Resolver) Resolve(signals []datamodels.PureSignal) []datamodels.SequencedSignal {
	if len(signals) == 0 {
		return nil
	}

	byInstrument := make(map[datamodels.Instrument][]datamodels.PureSignal)
	instrumentOrder := make([]datamodels.Instrument, 0)
	for _, signal := range signals {
		if _, seen := byInstrument[signal.Instrument]; !seen {
			instrumentOrder = append(instrumentOrder, signal.Instrument)
		}
		byInstrument[signal.Instrument] = append(byInstrument[signal.Instrument], signal)
	}
	sort.Slice(instrumentOrder, func(i, j int) bool { return instrumentOrder[i] < instrumentOrder[j] })

	resolved := make([]datamodels.SequencedSignal, 0, len(signals))
	for _, instrument := range instrumentOrder {
		group := byInstrument[instrument]
		sort.SliceStable(group, func(i, j int) bool { return group[i].StrategyId < group[j].StrategyId })

		contested := countDistinctStrategies(group) > 1
		if contested {
			r.logOverlap(instrument, group)
		}
		for seq, signal := range group {
			resolved = append(resolved, datamodels.SequencedSignal{
				PureSignal:         signal,
				InstrumentSequence: seq,
				Contested:          contested,
			})
		}
	}
	return resolved
}

func (r *Resolver) logOverlap(instrument datamodels.Instrument, group []datamodels.PureSignal) {
	parts := make([]string, len(group))
	for i, signal := range group {
		parts[i] = signal.StrategyId + ":" + string(signal.Direction)
	}
	slog.Warn("Multiple strategies targeting the same instrument this cycle",
		"instrument", instrument,
		"strategies", strings.Join(parts, ","))
}

func countDistinctStrategies(group []datamodels.PureSignal) int {
	seen := make(map[string]bool, len(group))
	for _, signal := range group {
		seen[signal.StrategyId] = true
	}
	return len(seen)
}
