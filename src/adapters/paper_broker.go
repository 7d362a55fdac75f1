package adapters

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// PaperBroker simulates execution against the latest cached price. Fills
// are immediate and complete; commission is charged in basis points of the
// fill notional. Equity is cash plus positions marked at the latest price.
type PaperBroker struct {
	mutex         sync.RWMutex
	prices        PriceSource
	cash          float64
	positions     map[datamodels.Instrument]float64
	commissionBps float64
}

func NewPaperBroker(prices PriceSource, initialEquity float64) *PaperBroker {
	return &PaperBroker{
		prices:    prices,
		cash:      initialEquity,
		positions: make(map[datamodels.Instrument]float64),
	}
}

func (b *PaperBroker) WithCommissionBps(bps float64) *PaperBroker {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.commissionBps = bps
	return b
}

func (b *PaperBroker) Submit(ctx context.Context, instruction datamodels.OrderInstruction) (datamodels.FillResult, error) {
	if err := ctx.Err(); err != nil {
		return datamodels.FillResult{}, errors.WrapE(errors.ErrBrokerRejection, err)
	}
	if instruction.Quantity <= 0 {
		return datamodels.FillResult{}, errors.Wrapf(errors.ErrBrokerRejection,
			"order quantity must be positive, got %f", instruction.Quantity)
	}

	price, priceTime, err := b.prices.LatestPrice(instruction.Instrument)
	if err != nil {
		return datamodels.FillResult{}, errors.WrapE(errors.ErrBrokerRejection, err)
	}
	// Limit orders fill only when the cached price is at or better than the limit.
	if instruction.OrderType == datamodels.OrderTypeLimit && instruction.LimitPrice != nil {
		limit := *instruction.LimitPrice
		if (instruction.Side == datamodels.OrderSideBuy && price > limit) ||
			(instruction.Side == datamodels.OrderSideSell && price < limit) {
			return datamodels.FillResult{}, errors.Wrapf(errors.ErrBrokerRejection,
				"limit %f not marketable against price %f", limit, price)
		}
	}

	notional := instruction.Quantity * price
	commission := notional * b.commissionBps / 10000

	b.mutex.Lock()
	if instruction.Side == datamodels.OrderSideBuy {
		b.cash -= notional + commission
		b.positions[instruction.Instrument] += instruction.Quantity
	} else {
		b.cash += notional - commission
		b.positions[instruction.Instrument] -= instruction.Quantity
	}
	b.mutex.Unlock()

	fill := datamodels.FillResult{
		TradeId:    uuid.NewString(),
		Instrument: instruction.Instrument,
		Side:       instruction.Side,
		Quantity:   instruction.Quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  priceTime,
	}
	slog.Debug("Paper broker filled order",
		"tradeId", fill.TradeId,
		"strategyId", instruction.StrategyId,
		"instrument", fill.Instrument,
		"side", fill.Side,
		"quantity", fill.Quantity,
		"price", fill.Price)
	return fill, nil
}

// CurrentEquity marks all open simulated positions at the latest cached
// price. A position with no fresh price is skipped with a warning rather
// than failing the whole read.
func (b *PaperBroker) CurrentEquity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	equity := b.cash
	for instrument, quantity := range b.positions {
		if quantity == 0 {
			continue
		}
		price, _, err := b.prices.LatestPrice(instrument)
		if err != nil {
			slog.Warn("No fresh price to mark broker position", "instrument", instrument, "error", err)
			continue
		}
		equity += quantity * price
	}
	return equity, nil
}

func (b *PaperBroker) Cash() float64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.cash
}
