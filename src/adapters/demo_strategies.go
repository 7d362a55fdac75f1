package adapters

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"stratd/src/datamodels"
)

// MomentumStrategy is a built-in demo strategy: buy when the latest close
// is above the short moving average, close the position when it falls
// below. Useful for exercising the full pipeline without external code.
type MomentumStrategy struct {
	mutex      sync.Mutex
	strategyId string
	window     int
	closes     map[datamodels.Instrument][]float64
	long       map[datamodels.Instrument]bool
}

func NewMomentumStrategy(strategyId string, window int) *MomentumStrategy {
	if window < 2 {
		window = 2
	}
	return &MomentumStrategy{
		strategyId: strategyId,
		window:     window,
		closes:     make(map[datamodels.Instrument][]float64),
		long:       make(map[datamodels.Instrument]bool),
	}
}

func (s *MomentumStrategy) Name() string {
	return "momentum"
}

func (s *MomentumStrategy) Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	closes := append(s.closes[bar.Instrument], bar.Close)
	if len(closes) > s.window {
		closes = closes[len(closes)-s.window:]
	}
	s.closes[bar.Instrument] = closes
	if len(closes) < s.window {
		return nil, nil
	}

	var sum float64
	for _, c := range closes {
		sum += c
	}
	average := sum / float64(len(closes))

	aboveAverage := bar.Close > average
	switch {
	case aboveAverage && !s.long[bar.Instrument]:
		s.long[bar.Instrument] = true
		return []datamodels.PureSignal{s.signal(bar, datamodels.DirectionBuy, 1.0)}, nil
	case !aboveAverage && s.long[bar.Instrument]:
		s.long[bar.Instrument] = false
		return []datamodels.PureSignal{s.signal(bar, datamodels.DirectionClose, 1.0)}, nil
	}
	return nil, nil
}

func (s *MomentumStrategy) signal(bar datamodels.MarketBar, direction datamodels.SignalDirection, size float64) datamodels.PureSignal {
	return datamodels.PureSignal{
		SignalId:     uuid.NewString(),
		StrategyId:   s.strategyId,
		Instrument:   bar.Instrument,
		Direction:    direction,
		RelativeSize: size,
		Confidence:   0.5,
		Timestamp:    bar.Timestamp,
	}
}

// RandomStrategy emits a buy, close, or nothing at random each bar. Demo
// and load-testing only.
type RandomStrategy struct {
	mutex      sync.Mutex
	strategyId string
	rng        *rand.Rand
}

func NewRandomStrategy(strategyId string) *RandomStrategy {
	return &RandomStrategy{
		strategyId: strategyId,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RandomStrategy) Name() string {
	return "random"
}

func (s *RandomStrategy) Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	roll := s.rng.Float64()
	s.mutex.Unlock()

	var direction datamodels.SignalDirection
	switch {
	case roll < 0.2:
		direction = datamodels.DirectionBuy
	case roll < 0.4:
		direction = datamodels.DirectionClose
	default:
		return nil, nil
	}
	return []datamodels.PureSignal{{
		SignalId:     uuid.NewString(),
		StrategyId:   s.strategyId,
		Instrument:   bar.Instrument,
		Direction:    direction,
		RelativeSize: 0.5,
		Confidence:   0.1,
		Timestamp:    bar.Timestamp,
	}}, nil
}
