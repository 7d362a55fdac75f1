/*
Package adapters defines the two boundary interfaces of the daemon and the
built-in implementations. Strategy adapters turn market bars into relative
signals; broker adapters turn absolute order instructions into fills.
Everything between those two edges is deterministic orchestration.
*/
package adapters

import (
	"context"
	"time"

	"stratd/src/datamodels"
)

// StrategyAdapter wraps one trading strategy. Evaluate is called once per
// bar for each instrument the strategy is deployed on; it must respect ctx
// cancellation, the coordinator enforces a per-cycle deadline.
type StrategyAdapter interface {
	Name() string
	Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error)
}

// BrokerAdapter executes sized orders and reports account equity.
type BrokerAdapter interface {
	Submit(ctx context.Context, instruction datamodels.OrderInstruction) (datamodels.FillResult, error)
	CurrentEquity(ctx context.Context) (float64, error)
}

// PriceSource is the latest-price lookup the paper broker fills against.
type PriceSource interface {
	LatestPrice(instrument datamodels.Instrument) (float64, time.Time, error)
}
