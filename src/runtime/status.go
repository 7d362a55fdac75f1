package runtime

import (
	"context"
	"sort"
	"time"

	"stratd/src/datamodels"
)

// StatusRow is one strategy's line in the status report.
type StatusRow struct {
	StrategyId    string                    `json:"strategy_id"`
	Status        datamodels.StrategyStatus `json:"status"`
	Symbols       []datamodels.Instrument   `json:"symbols"`
	Allocation    float64                   `json:"allocation"`
	Capital       float64                   `json:"capital"`
	RealizedPnl   float64                   `json:"realized_pnl"`
	UnrealizedPnl float64                   `json:"unrealized_pnl"`
	OpenPositions int                       `json:"open_positions"`
	LastUpdate    time.Time                 `json:"last_update"`
}

type StatusReport struct {
	Mode           datamodels.ExecutionMode `json:"execution_mode"`
	Equity         float64                  `json:"equity"`
	TotalAllocated float64                  `json:"total_allocated"`
	CycleCount     int64                    `json:"cycle_count"`
	LastCycle      time.Time                `json:"last_cycle"`
	Strategies     []StatusRow              `json:"strategies"`
}

// Status assembles the full per-strategy and portfolio view served by the
// control surface.
func (c *Coordinator) Status(ctx context.Context) (StatusReport, error) {
	equity, err := c.broker.CurrentEquity(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	c.mutex.RLock()
	cycleCount := c.cycleCount
	lastCycle := c.lastCycle
	c.mutex.RUnlock()

	records := c.registry.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].Id < records[j].Id })

	rows := make([]StatusRow, 0, len(records))
	for _, record := range records {
		capital, _ := c.registry.CapitalFor(record.Id, equity)
		allocation, _ := c.registry.FractionOf(record.Id)
		positions := c.tradeLedger.MarkPositions(
			c.tradeLedger.PositionsFor(record.Id), c.latestPrice)
		var unrealized float64
		for _, position := range positions {
			unrealized += position.UnrealizedPnl
		}
		rows = append(rows, StatusRow{
			StrategyId:    record.Id,
			Status:        record.Status,
			Symbols:       record.Symbols,
			Allocation:    allocation,
			Capital:       capital,
			RealizedPnl:   c.tradeLedger.RealizedPnlFor(record.Id),
			UnrealizedPnl: unrealized,
			OpenPositions: len(positions),
			LastUpdate:    record.LastUpdate,
		})
	}

	return StatusReport{
		Mode:           c.engineConfig.Mode,
		Equity:         equity,
		TotalAllocated: c.registry.TotalAllocated(),
		CycleCount:     cycleCount,
		LastCycle:      lastCycle,
		Strategies:     rows,
	}, nil
}
