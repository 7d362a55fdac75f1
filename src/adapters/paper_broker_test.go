//go:build unit

package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratd/src/datamodels"
	"stratd/src/marketdata"
	"stratd/src/utils/errors"
)

func newTestBroker(t *testing.T) (*PaperBroker, *marketdata.PriceCache) {
	t.Helper()
	prices := marketdata.NewPriceCache(time.Minute)
	prices.Update("BTC-USD", 100, time.Now())
	return NewPaperBroker(prices, 10000), prices
}

func marketOrder(quantity float64, side datamodels.OrderSide) datamodels.OrderInstruction {
	return datamodels.OrderInstruction{
		StrategyId: "momo",
		SignalId:   "sig1",
		Instrument: "BTC-USD",
		Side:       side,
		Quantity:   quantity,
		OrderType:  datamodels.OrderTypeMarket,
		Timestamp:  time.Now(),
	}
}

func TestPaperBrokerFillsAtCachedPrice(t *testing.T) {
	broker, _ := newTestBroker(t)
	fill, err := broker.Submit(context.Background(), marketOrder(30, datamodels.OrderSideBuy))
	require.NoError(t, err)
	assert.NotEmpty(t, fill.TradeId)
	assert.InDelta(t, 100, fill.Price, 1e-9)
	assert.InDelta(t, 30, fill.Quantity, 1e-9)
	assert.InDelta(t, 10000-3000, broker.Cash(), 1e-9)
}

func TestPaperBrokerChargesCommission(t *testing.T) {
	broker, _ := newTestBroker(t)
	broker.WithCommissionBps(10) // 10 bps = 0.1%

	fill, err := broker.Submit(context.Background(), marketOrder(30, datamodels.OrderSideBuy))
	require.NoError(t, err)
	assert.InDelta(t, 3, fill.Commission, 1e-9)
	assert.InDelta(t, 10000-3003, broker.Cash(), 1e-9)
}

func TestPaperBrokerEquityMarksPositions(t *testing.T) {
	broker, prices := newTestBroker(t)
	_, err := broker.Submit(context.Background(), marketOrder(30, datamodels.OrderSideBuy))
	require.NoError(t, err)

	prices.Update("BTC-USD", 110, time.Now())
	equity, err := broker.CurrentEquity(context.Background())
	require.NoError(t, err)
	// cash 7000 + 30 units at 110
	assert.InDelta(t, 7000+3300, equity, 1e-9)
}

func TestPaperBrokerRejectsStalePrices(t *testing.T) {
	prices := marketdata.NewPriceCache(time.Minute)
	prices.Update("BTC-USD", 100, time.Now().Add(-10*time.Minute))
	broker := NewPaperBroker(prices, 10000)

	_, err := broker.Submit(context.Background(), marketOrder(10, datamodels.OrderSideBuy))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBrokerRejection))
	assert.True(t, errors.Is(err, errors.ErrStalePrice))
}

func TestPaperBrokerRejectsNonMarketableLimit(t *testing.T) {
	broker, _ := newTestBroker(t)
	limit := 95.0
	order := marketOrder(10, datamodels.OrderSideBuy)
	order.OrderType = datamodels.OrderTypeLimit
	order.LimitPrice = &limit

	_, err := broker.Submit(context.Background(), order)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBrokerRejection))
}

func TestPaperBrokerRejectsNonPositiveQuantity(t *testing.T) {
	broker, _ := newTestBroker(t)
	_, err := broker.Submit(context.Background(), marketOrder(0, datamodels.OrderSideBuy))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBrokerRejection))
}

func TestRateLimitedBrokerDelegates(t *testing.T) {
	broker, _ := newTestBroker(t)
	limited := NewRateLimitedBroker(broker, 100)

	fill, err := limited.Submit(context.Background(), marketOrder(10, datamodels.OrderSideBuy))
	require.NoError(t, err)
	assert.InDelta(t, 10, fill.Quantity, 1e-9)

	equity, err := limited.CurrentEquity(context.Background())
	require.NoError(t, err)
	assert.Greater(t, equity, 0.0)
}

func TestRateLimitedBrokerHonorsContextCancellation(t *testing.T) {
	broker, _ := newTestBroker(t)
	limited := NewRateLimitedBroker(broker, 1)

	// first order consumes the burst; a cancelled context must not wait
	_, err := limited.Submit(context.Background(), marketOrder(10, datamodels.OrderSideBuy))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Submit(ctx, marketOrder(10, datamodels.OrderSideBuy))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBrokerRejection))
}
