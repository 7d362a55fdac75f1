//go:build unit

package sizing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stratd/src/allocation"
	"stratd/src/datamodels"
	"stratd/src/ledger"
	"stratd/src/marketdata"
	"stratd/src/utils/errors"
)

type SizerTestSuite struct {
	suite.Suite
	registry *allocation.Registry
	prices   *marketdata.PriceCache
	ledger   *ledger.TradeLedger
	sizer    *OrderSizer
}

func TestSizerSuite(t *testing.T) {
	suite.Run(t, new(SizerTestSuite))
}

func (s *SizerTestSuite) SetupTest() {
	s.registry = allocation.NewRegistry(allocation.ModeFraction, 0.001, true)
	s.prices = marketdata.NewPriceCache(time.Minute)
	s.ledger = ledger.NewTradeLedger()
	s.sizer = NewOrderSizer(s.registry, s.prices, s.ledger)

	s.Require().NoError(s.registry.Register(datamodels.StrategyRecord{
		Id:                 "momo",
		AllocationFraction: 0.6,
		Symbols:            []datamodels.Instrument{"BTC-USD"},
		Status:             datamodels.StrategyStatusActive,
	}))
	s.prices.Update("BTC-USD", 100, time.Now())
}

func buySignal(strategyId string, relativeSize float64) datamodels.PureSignal {
	return datamodels.PureSignal{
		SignalId:     "sig1",
		StrategyId:   strategyId,
		Instrument:   "BTC-USD",
		Direction:    datamodels.DirectionBuy,
		RelativeSize: relativeSize,
		Timestamp:    time.Now(),
	}
}

func (s *SizerTestSuite) TestBuySizedAgainstAllocatedSlice() {
	// 0.6 of 10000 equity is 6000; half of that at price 100 is 30 units
	instruction, ok, err := s.sizer.Size(buySignal("momo", 0.5), 10000)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(datamodels.OrderSideBuy, instruction.Side)
	s.InDelta(30, instruction.Quantity, 1e-9)
	s.InDelta(3000, instruction.Notional, 1e-9)
	s.Equal(datamodels.OrderTypeMarket, instruction.OrderType)
}

func (s *SizerTestSuite) TestFullSizeNeverExceedsAllocation() {
	instruction, ok, err := s.sizer.Size(buySignal("momo", 1.0), 10000)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.LessOrEqual(instruction.Notional, 6000+1e-9)
}

func (s *SizerTestSuite) TestUnknownStrategyRejected() {
	_, _, err := s.sizer.Size(buySignal("ghost", 0.5), 10000)
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrUnknownStrategy))
}

func (s *SizerTestSuite) TestStalePriceRejected() {
	s.prices.Update("BTC-USD", 100, time.Now().Add(-10*time.Minute))
	_, _, err := s.sizer.Size(buySignal("momo", 0.5), 10000)
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrStalePrice))
}

func (s *SizerTestSuite) TestZeroRelativeSizeIsNoOp() {
	_, ok, err := s.sizer.Size(buySignal("momo", 0), 10000)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SizerTestSuite) TestRelativeSizeOutOfRangeRejected() {
	_, _, err := s.sizer.Size(buySignal("momo", 1.5), 10000)
	s.Require().Error(err)
	signal := buySignal("momo", 0.5)
	signal.RelativeSize = -0.1
	_, _, err = s.sizer.Size(signal, 10000)
	s.Require().Error(err)
}

func (s *SizerTestSuite) TestCloseFlattensOwnPosition() {
	s.Require().NoError(s.ledger.RecordFill(context.Background(), datamodels.TradeEvent{
		TradeId:    "t1",
		StrategyId: "momo",
		Instrument: "BTC-USD",
		Direction:  datamodels.OrderSideBuy,
		Quantity:   30,
		Price:      100,
		Timestamp:  time.Now(),
	}))

	signal := buySignal("momo", 1.0)
	signal.Direction = datamodels.DirectionClose
	instruction, ok, err := s.sizer.Size(signal, 10000)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(datamodels.OrderSideSell, instruction.Side)
	s.InDelta(30, instruction.Quantity, 1e-9)
}

func (s *SizerTestSuite) TestPartialClose() {
	s.Require().NoError(s.ledger.RecordFill(context.Background(), datamodels.TradeEvent{
		TradeId:    "t1",
		StrategyId: "momo",
		Instrument: "BTC-USD",
		Direction:  datamodels.OrderSideBuy,
		Quantity:   30,
		Price:      100,
		Timestamp:  time.Now(),
	}))

	signal := buySignal("momo", 0.5)
	signal.Direction = datamodels.DirectionClose
	instruction, ok, err := s.sizer.Size(signal, 10000)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.InDelta(15, instruction.Quantity, 1e-9)
}

func (s *SizerTestSuite) TestCloseWithNoPositionIsNoOp() {
	signal := buySignal("momo", 1.0)
	signal.Direction = datamodels.DirectionClose
	_, ok, err := s.sizer.Size(signal, 10000)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SizerTestSuite) TestCloseIgnoresOtherStrategiesPositions() {
	s.Require().NoError(s.registry.Register(datamodels.StrategyRecord{
		Id:                 "other",
		AllocationFraction: 0.4,
		Symbols:            []datamodels.Instrument{"BTC-USD"},
	}))
	s.Require().NoError(s.ledger.RecordFill(context.Background(), datamodels.TradeEvent{
		TradeId:    "t1",
		StrategyId: "other",
		Instrument: "BTC-USD",
		Direction:  datamodels.OrderSideBuy,
		Quantity:   10,
		Price:      100,
		Timestamp:  time.Now(),
	}))

	signal := buySignal("momo", 1.0)
	signal.Direction = datamodels.DirectionClose
	_, ok, err := s.sizer.Size(signal, 10000)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SizerTestSuite) TestZeroCapitalBuyDegradesToNoOp() {
	_, ok, err := s.sizer.Size(buySignal("momo", 0.5), 0)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SizerTestSuite) TestZeroCapitalCloseStillExecutes() {
	s.Require().NoError(s.ledger.RecordFill(context.Background(), datamodels.TradeEvent{
		TradeId:    "t1",
		StrategyId: "momo",
		Instrument: "BTC-USD",
		Direction:  datamodels.OrderSideBuy,
		Quantity:   30,
		Price:      100,
		Timestamp:  time.Now(),
	}))

	signal := buySignal("momo", 1.0)
	signal.Direction = datamodels.DirectionClose
	instruction, ok, err := s.sizer.Size(signal, 0)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.InDelta(30, instruction.Quantity, 1e-9)
}

func (s *SizerTestSuite) TestLimitPriceCarriedThrough() {
	limit := 95.0
	signal := buySignal("momo", 0.5)
	signal.LimitPrice = &limit
	instruction, ok, err := s.sizer.Size(signal, 10000)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(datamodels.OrderTypeLimit, instruction.OrderType)
	s.Require().NotNil(instruction.LimitPrice)
	s.InDelta(95, *instruction.LimitPrice, 1e-9)
}
