/*
Package sizing converts relative signals into absolute broker orders. The
one rule that matters: a strategy is sized against ITS allocated slice of
equity, never against the whole account, so no strategy can reach capital
it was not given regardless of account size.
*/
package sizing

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stratd/src/allocation"
	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// PriceSource is the latest-price lookup supplied by the market data
// collaborator. Implementations reject reads past their freshness window.
type PriceSource interface {
	LatestPrice(instrument datamodels.Instrument) (float64, time.Time, error)
}

// PositionSource resolves a strategy's own open position for Close sizing.
type PositionSource interface {
	PositionFor(strategyId string, instrument datamodels.Instrument) (datamodels.PositionEntry, bool)
}

type OrderSizer struct {
	registry  *allocation.Registry
	prices    PriceSource
	positions PositionSource
}

func NewOrderSizer(registry *allocation.Registry, prices PriceSource, positions PositionSource) *OrderSizer {
	return &OrderSizer{
		registry:  registry,
		prices:    prices,
		positions: positions,
	}
}

// Size computes the broker-ready OrderInstruction for one signal against
// current account equity. The second return value is false for legitimate
// no-ops (zero relative size, zero allocated capital on Buy/Sell, Close
// with nothing open). This step performs no I/O; submission belongs to the
// broker adapter.
func (s *OrderSizer) Size(signal datamodels.PureSignal, equity float64) (datamodels.OrderInstruction, bool, error) {
	if signal.RelativeSize < 0 || signal.RelativeSize > 1 {
		return datamodels.OrderInstruction{}, false,
			errors.Newf("relative size %f out of [0,1] for signal %s", signal.RelativeSize, signal.SignalId)
	}
	if signal.RelativeSize == 0 {
		return datamodels.OrderInstruction{}, false, nil
	}

	strategyCapital, err := s.registry.CapitalFor(signal.StrategyId, equity)
	if err != nil {
		return datamodels.OrderInstruction{}, false, err
	}

	if signal.Direction == datamodels.DirectionClose {
		return s.sizeClose(signal)
	}

	// Zero capital (e.g. fully rebalanced out) degrades Buy/Sell to a
	// logged no-op; Close above still executes against open positions.
	if strategyCapital <= 0 {
		slog.Warn("Strategy has no allocated capital, dropping signal",
			"strategyId", signal.StrategyId,
			"instrument", signal.Instrument,
			"direction", signal.Direction)
		return datamodels.OrderInstruction{}, false, nil
	}

	price, _, err := s.prices.LatestPrice(signal.Instrument)
	if err != nil {
		return datamodels.OrderInstruction{}, false, err
	}

	capitalDec := decimal.NewFromFloat(strategyCapital)
	targetNotional := capitalDec.Mul(decimal.NewFromFloat(signal.RelativeSize))
	quantity := targetNotional.Div(decimal.NewFromFloat(price))

	side := datamodels.OrderSideBuy
	if signal.Direction == datamodels.DirectionSell {
		side = datamodels.OrderSideSell
	}

	instruction := datamodels.OrderInstruction{
		StrategyId: signal.StrategyId,
		SignalId:   signal.SignalId,
		Instrument: signal.Instrument,
		Side:       side,
		Quantity:   quantity.InexactFloat64(),
		Notional:   targetNotional.InexactFloat64(),
		OrderType:  orderTypeFor(signal),
		LimitPrice: signal.LimitPrice,
		StopPrice:  signal.StopPrice,
		Timestamp:  signal.Timestamp,
	}
	return instruction, true, nil
}

// sizeClose flattens (part of) the strategy's OWN position for the
// instrument. Another strategy's position in the same instrument is never
// touched.
func (s *OrderSizer) sizeClose(signal datamodels.PureSignal) (datamodels.OrderInstruction, bool, error) {
	position, open := s.positions.PositionFor(signal.StrategyId, signal.Instrument)
	if !open {
		slog.Debug("Close signal with no open position, no-op",
			"strategyId", signal.StrategyId,
			"instrument", signal.Instrument)
		return datamodels.OrderInstruction{}, false, nil
	}

	price, _, err := s.prices.LatestPrice(signal.Instrument)
	if err != nil {
		return datamodels.OrderInstruction{}, false, err
	}

	openQty := decimal.NewFromFloat(position.Quantity).Abs()
	quantity := openQty.Mul(decimal.NewFromFloat(signal.RelativeSize))
	if quantity.IsZero() {
		return datamodels.OrderInstruction{}, false, nil
	}

	side := datamodels.OrderSideSell
	if position.Quantity < 0 {
		side = datamodels.OrderSideBuy
	}

	instruction := datamodels.OrderInstruction{
		StrategyId: signal.StrategyId,
		SignalId:   signal.SignalId,
		Instrument: signal.Instrument,
		Side:       side,
		Quantity:   quantity.InexactFloat64(),
		Notional:   quantity.Mul(decimal.NewFromFloat(price)).InexactFloat64(),
		OrderType:  datamodels.OrderTypeMarket,
		Timestamp:  signal.Timestamp,
	}
	return instruction, true, nil
}

func orderTypeFor(signal datamodels.PureSignal) datamodels.OrderType {
	if signal.LimitPrice != nil {
		return datamodels.OrderTypeLimit
	}
	return datamodels.OrderTypeMarket
}
