/*
Package allocation owns the strategy -> capital mapping. Lifecycle
operations are the only writers; sizing and conflict resolution read a
copy-on-write snapshot, so a concurrent reader sees either the pre-image
or the post-image of a mutation, never a partial mix.
*/
package allocation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

type Mode string

const (
	// ModeFraction allocates each strategy a fraction of account equity.
	ModeFraction Mode = "fraction"
	// ModeAmount allocates each strategy a fixed currency amount.
	ModeAmount Mode = "amount"
)

type registrySnapshot struct {
	records map[string]datamodels.StrategyRecord
	total   float64
}

type Registry struct {
	mode      Mode
	tolerance float64
	strict    bool
	writeMu   sync.Mutex
	snapshot  atomic.Pointer[registrySnapshot]
}

func NewRegistry(mode Mode, tolerance float64, strict bool) *Registry {
	r := &Registry{
		mode:      mode,
		tolerance: tolerance,
		strict:    strict,
	}
	r.snapshot.Store(&registrySnapshot{records: make(map[string]datamodels.StrategyRecord)})
	return r
}

func (r *Registry) Mode() Mode {
	return r.mode
}

func (r *Registry) allocationOf(record datamodels.StrategyRecord) float64 {
	if r.mode == ModeAmount {
		return record.AllocationAmount
	}
	return record.AllocationFraction
}

// Register adds a new strategy record. It fails with ErrAllocationConflict
// if the id already exists, if the record carries the wrong allocation kind
// for the registry's mode, or (in strict mode) if the new total would
// exceed the invariant bound. In warn mode an over-allocation is logged and
// accepted.
func (r *Registry) Register(record datamodels.StrategyRecord) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot.Load()
	if _, exists := current.records[record.Id]; exists {
		return errors.Wrapf(errors.ErrAllocationConflict, "strategy %s is already registered", record.Id)
	}
	if err := r.validateRecord(record); err != nil {
		return err
	}

	next := copySnapshot(current)
	record.LastUpdate = time.Now()
	next.records[record.Id] = record.Copy()
	next.total = sumAllocations(r, next.records)

	if err := r.checkTotal(next.total, "register", record.Id); err != nil {
		return err
	}
	r.snapshot.Store(next)
	slog.Info("Registered strategy allocation",
		"strategyId", record.Id,
		"allocation", r.allocationOf(record),
		"totalAllocated", next.total)
	return nil
}

// UpdateAllocation changes a single strategy's allocation, with the same
// validation as Register.
func (r *Registry) UpdateAllocation(id string, newAllocation float64) error {
	return r.ApplyRebalance(map[string]float64{id: newAllocation})
}

// ApplyRebalance atomically updates one or more allocations. Either every
// entry applies or none does; readers never observe an intermediate total.
func (r *Registry) ApplyRebalance(targets map[string]float64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot.Load()
	for id := range targets {
		if _, exists := current.records[id]; !exists {
			return errors.Wrapf(errors.ErrUnknownStrategy, "cannot rebalance %s", id)
		}
	}

	next := copySnapshot(current)
	now := time.Now()
	for id, allocation := range targets {
		if allocation <= 0 || (r.mode == ModeFraction && allocation > 1) {
			return errors.Wrapf(errors.ErrAllocationConflict, "invalid allocation %f for strategy %s", allocation, id)
		}
		record := next.records[id]
		if r.mode == ModeAmount {
			record.AllocationAmount = allocation
		} else {
			record.AllocationFraction = allocation
		}
		record.LastUpdate = now
		next.records[id] = record
	}
	next.total = sumAllocations(r, next.records)

	if err := r.checkTotal(next.total, "rebalance", ""); err != nil {
		return err
	}
	r.snapshot.Store(next)
	slog.Info("Applied rebalance", "strategies", len(targets), "totalAllocated", next.total)
	return nil
}

// RebalanceWithRemainder applies the given targets and evenly redistributes
// whatever fraction remains among the untouched strategies. Fraction mode
// only; it is a convenience layered on ApplyRebalance, not a separate
// mutation path.
func (r *Registry) RebalanceWithRemainder(targets map[string]float64) error {
	if r.mode != ModeFraction {
		return errors.Wrap(errors.ErrAllocationConflict, "remainder redistribution requires fraction mode")
	}

	current := r.snapshot.Load()
	var specified float64
	for id, allocation := range targets {
		if _, exists := current.records[id]; !exists {
			return errors.Wrapf(errors.ErrUnknownStrategy, "cannot rebalance %s", id)
		}
		specified += allocation
	}

	var untouched []string
	for id := range current.records {
		if _, ok := targets[id]; !ok {
			untouched = append(untouched, id)
		}
	}

	full := make(map[string]float64, len(current.records))
	for id, allocation := range targets {
		full[id] = allocation
	}
	if len(untouched) > 0 {
		remainder := 1.0 - specified
		if remainder <= 0 {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"no remainder left for %d untouched strategies (specified %f)", len(untouched), specified)
		}
		share := remainder / float64(len(untouched))
		for _, id := range untouched {
			full[id] = share
		}
	}
	return r.ApplyRebalance(full)
}

// Remove deletes a strategy's registry entry. Historical trade events stay
// in the ledger.
func (r *Registry) Remove(id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot.Load()
	if _, exists := current.records[id]; !exists {
		return errors.Wrapf(errors.ErrUnknownStrategy, "cannot remove %s", id)
	}
	next := copySnapshot(current)
	delete(next.records, id)
	next.total = sumAllocations(r, next.records)
	r.snapshot.Store(next)
	slog.Info("Removed strategy allocation", "strategyId", id, "totalAllocated", next.total)
	return nil
}

// SetStatus transitions a record's lifecycle status. Only the lifecycle
// manager calls this; external callers go through that manager.
func (r *Registry) SetStatus(id string, status datamodels.StrategyStatus) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.snapshot.Load()
	record, exists := current.records[id]
	if !exists {
		return errors.Wrapf(errors.ErrUnknownStrategy, "cannot set status of %s", id)
	}
	next := copySnapshot(current)
	record.Status = status
	record.LastUpdate = time.Now()
	next.records[id] = record
	next.total = current.total
	r.snapshot.Store(next)
	return nil
}

func (r *Registry) TotalAllocated() float64 {
	return r.snapshot.Load().total
}

func (r *Registry) FractionOf(id string) (float64, error) {
	record, exists := r.snapshot.Load().records[id]
	if !exists {
		return 0, errors.Wrapf(errors.ErrUnknownStrategy, "no allocation for %s", id)
	}
	return r.allocationOf(record), nil
}

// CapitalFor resolves a strategy's allocated capital against current
// account equity: fraction x equity, or the fixed amount in amount mode.
func (r *Registry) CapitalFor(id string, equity float64) (float64, error) {
	record, exists := r.snapshot.Load().records[id]
	if !exists {
		return 0, errors.Wrapf(errors.ErrUnknownStrategy, "no allocation for %s", id)
	}
	if r.mode == ModeAmount {
		return record.AllocationAmount, nil
	}
	return record.AllocationFraction * equity, nil
}

func (r *Registry) Get(id string) (datamodels.StrategyRecord, bool) {
	record, exists := r.snapshot.Load().records[id]
	if !exists {
		return datamodels.StrategyRecord{}, false
	}
	return record.Copy(), true
}

// Records returns a copy of every registered record.
func (r *Registry) Records() []datamodels.StrategyRecord {
	current := r.snapshot.Load()
	records := make([]datamodels.StrategyRecord, 0, len(current.records))
	for _, record := range current.records {
		records = append(records, record.Copy())
	}
	return records
}

func (r *Registry) Size() int {
	return len(r.snapshot.Load().records)
}

func (r *Registry) validateRecord(record datamodels.StrategyRecord) error {
	if record.Id == "" {
		return errors.Wrap(errors.ErrAllocationConflict, "strategy id cannot be empty")
	}
	if len(record.Symbols) == 0 {
		return errors.Wrapf(errors.ErrAllocationConflict, "strategy %s has no symbols", record.Id)
	}
	switch r.mode {
	case ModeAmount:
		if record.AllocationAmount <= 0 {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"strategy %s needs a positive allocation amount in amount mode", record.Id)
		}
		if record.AllocationFraction != 0 {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"strategy %s carries a fraction but the registry is amount-mode", record.Id)
		}
	default:
		if record.AllocationFraction <= 0 || record.AllocationFraction > 1 {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"strategy %s allocation fraction %f must be in (0, 1]", record.Id, record.AllocationFraction)
		}
		if record.AllocationAmount != 0 {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"strategy %s carries an amount but the registry is fraction-mode", record.Id)
		}
	}
	return nil
}

// checkTotal enforces the sum invariant. Fraction mode only; amount-mode
// totals are bounded by equity at sizing time instead.
func (r *Registry) checkTotal(total float64, op string, id string) error {
	if r.mode != ModeFraction {
		return nil
	}
	if total > 1.0+r.tolerance {
		if r.strict {
			return errors.Wrapf(errors.ErrAllocationConflict,
				"%s would push total allocation to %f (limit 1.0)", op, total)
		}
		slog.Warn("Total allocation exceeds 1.0", "op", op, "strategyId", id, "total", total)
		return nil
	}
	if total < 0.5 {
		slog.Warn("Total allocation is quite low, most capital stays in cash", "total", total)
	} else if total < 1.0 {
		slog.Info("Capital remains unallocated", "total", total, "unallocated", 1.0-total)
	}
	return nil
}

func copySnapshot(s *registrySnapshot) *registrySnapshot {
	records := make(map[string]datamodels.StrategyRecord, len(s.records)+1)
	for id, record := range s.records {
		records[id] = record
	}
	return &registrySnapshot{records: records, total: s.total}
}

func sumAllocations(r *Registry, records map[string]datamodels.StrategyRecord) float64 {
	var total float64
	for _, record := range records {
		if record.Status == datamodels.StrategyStatusUndeployed {
			continue
		}
		total += r.allocationOf(record)
	}
	return total
}
