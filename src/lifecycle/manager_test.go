//go:build unit

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"stratd/src/adapters"
	"stratd/src/allocation"
	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

type fakeAdapter struct {
	name string
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Evaluate(ctx context.Context, bar datamodels.MarketBar) ([]datamodels.PureSignal, error) {
	return nil, nil
}

type recordingLiquidator struct {
	liquidated []string
	fail       bool
}

func (l *recordingLiquidator) LiquidateStrategy(ctx context.Context, strategyId string) error {
	if l.fail {
		return errors.Newf("liquidation of %s failed", strategyId)
	}
	l.liquidated = append(l.liquidated, strategyId)
	return nil
}

type fakeMarketData struct {
	subscribed   []datamodels.Instrument
	unsubscribed []datamodels.Instrument
}

func (f *fakeMarketData) SubscribeInstrument(instrument datamodels.Instrument) {
	f.subscribed = append(f.subscribed, instrument)
}

func (f *fakeMarketData) UnsubscribeInstrument(instrument datamodels.Instrument) {
	f.unsubscribed = append(f.unsubscribed, instrument)
}

type ManagerTestSuite struct {
	suite.Suite
	ctx      context.Context
	registry *allocation.Registry
	manager  *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = allocation.NewRegistry(allocation.ModeFraction, 0.001, true)
	s.manager = NewManager(s.registry, func(strategyRef, strategyId string) (adapters.StrategyAdapter, error) {
		if strategyRef == "broken" {
			return nil, errors.New("cannot build adapter")
		}
		return &fakeAdapter{name: strategyRef}, nil
	}, datamodels.ExecutionModePaperTrading)
}

func (s *ManagerTestSuite) deploy(id string, allocation float64) string {
	result, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "momentum",
		StrategyId:  id,
		Allocation:  allocation,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
	})
	s.Require().NoError(err)
	return result.StrategyId
}

func (s *ManagerTestSuite) TestDeployActivatesAndBinds() {
	id := s.deploy("momo", 0.5)

	record, ok := s.registry.Get(id)
	s.Require().True(ok)
	s.Equal(datamodels.StrategyStatusActive, record.Status)

	adapter, bound := s.manager.AdapterFor(id)
	s.Require().True(bound)
	s.Equal("momentum", adapter.Name())
}

func (s *ManagerTestSuite) TestDeployGeneratesIdWhenAbsent() {
	result, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "strategies/momentum.py",
		Allocation:  0.5,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
	})
	s.Require().NoError(err)
	s.Regexp(`^momentum_BTC-USD_\d+$`, result.StrategyId)
}

func (s *ManagerTestSuite) TestDeployRollsBackOnBindFailure() {
	_, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "broken",
		StrategyId:  "bad",
		Allocation:  0.5,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
	})
	s.Require().Error(err)
	s.Equal(0, s.registry.Size())
	_, bound := s.manager.AdapterFor("bad")
	s.False(bound)
}

func (s *ManagerTestSuite) TestPauseResumeTransitions() {
	id := s.deploy("momo", 0.5)

	result, err := s.manager.Pause(id)
	s.Require().NoError(err)
	s.Equal(datamodels.StrategyStatusPaused, result.Status)

	// pausing a paused strategy is rejected with nothing changed
	_, err = s.manager.Pause(id)
	s.Require().Error(err)
	record, _ := s.registry.Get(id)
	s.Equal(datamodels.StrategyStatusPaused, record.Status)

	result, err = s.manager.Resume(id)
	s.Require().NoError(err)
	s.Equal(datamodels.StrategyStatusActive, result.Status)

	_, err = s.manager.Resume(id)
	s.Require().Error(err)
}

func (s *ManagerTestSuite) TestPauseUnknownStrategy() {
	_, err := s.manager.Pause("ghost")
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrUnknownStrategy))
}

func (s *ManagerTestSuite) TestUndeployRemovesAndFreesAllocation() {
	id := s.deploy("momo", 0.6)
	_, err := s.manager.Undeploy(s.ctx, id, false)
	s.Require().NoError(err)

	_, ok := s.registry.Get(id)
	s.False(ok)
	_, bound := s.manager.AdapterFor(id)
	s.False(bound)

	// the freed allocation is available again
	s.deploy("next", 0.6)
}

func (s *ManagerTestSuite) TestUndeployWithLiquidation() {
	liquidator := &recordingLiquidator{}
	s.manager.SetLiquidator(liquidator)
	id := s.deploy("momo", 0.5)

	result, err := s.manager.Undeploy(s.ctx, id, true)
	s.Require().NoError(err)
	s.Equal([]string{id}, liquidator.liquidated)
	s.Equal("positions liquidated", result.Message)
}

func (s *ManagerTestSuite) TestUndeployCompletesWhenLiquidationFails() {
	liquidator := &recordingLiquidator{fail: true}
	s.manager.SetLiquidator(liquidator)
	id := s.deploy("momo", 0.5)

	result, err := s.manager.Undeploy(s.ctx, id, true)
	s.Require().NoError(err)
	s.Contains(result.Message, "liquidation incomplete")
	_, ok := s.registry.Get(id)
	s.False(ok)
}

func (s *ManagerTestSuite) TestRebalanceRejectionLeavesAllocationsUnchanged() {
	a := s.deploy("momo", 0.5)
	s.deploy("rand", 0.5)

	err := s.manager.Rebalance(map[string]float64{a: 0.3, "ghost": 0.2}, false)
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrUnknownStrategy))

	fraction, err := s.registry.FractionOf(a)
	s.Require().NoError(err)
	s.InDelta(0.5, fraction, 1e-9)
}

func (s *ManagerTestSuite) TestRebalanceDoesNotChangeStatus() {
	id := s.deploy("momo", 0.5)
	_, err := s.manager.Pause(id)
	s.Require().NoError(err)

	s.Require().NoError(s.manager.Rebalance(map[string]float64{id: 0.7}, false))
	record, _ := s.registry.Get(id)
	s.Equal(datamodels.StrategyStatusPaused, record.Status)
	s.InDelta(0.7, record.AllocationFraction, 1e-9)
}

func (s *ManagerTestSuite) TestDeployStoresPerStrategyMode() {
	_, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "momentum",
		StrategyId:  "shadow",
		Allocation:  0.3,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
		Mode:        datamodels.ExecutionModeSignalsOnly,
	})
	s.Require().NoError(err)
	record, _ := s.registry.Get("shadow")
	s.Equal(datamodels.ExecutionModeSignalsOnly, record.Mode)

	// without an explicit mode the daemon default is inherited
	id := s.deploy("momo", 0.3)
	record, _ = s.registry.Get(id)
	s.Equal(datamodels.ExecutionModePaperTrading, record.Mode)
}

func (s *ManagerTestSuite) TestDeployRejectsUnknownMode() {
	_, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "momentum",
		StrategyId:  "bad",
		Allocation:  0.3,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
		Mode:        "turbo",
	})
	s.Require().Error(err)
	s.Equal(0, s.registry.Size())
}

func (s *ManagerTestSuite) TestDeploySubscribesMarketData() {
	feed := &fakeMarketData{}
	s.manager.SetMarketData(feed)

	s.deploy("momo", 0.5)
	s.Equal([]datamodels.Instrument{"BTC-USD"}, feed.subscribed)
}

func (s *ManagerTestSuite) TestBindFailureDoesNotSubscribe() {
	feed := &fakeMarketData{}
	s.manager.SetMarketData(feed)

	_, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "broken",
		StrategyId:  "bad",
		Allocation:  0.5,
		Symbols:     []datamodels.Instrument{"BTC-USD"},
	})
	s.Require().Error(err)
	s.Empty(feed.subscribed)
}

func (s *ManagerTestSuite) TestUndeployReleasesOnlyUnsharedSymbols() {
	feed := &fakeMarketData{}
	s.manager.SetMarketData(feed)

	s.deploy("one", 0.3)
	_, err := s.manager.Deploy(s.ctx, DeployRequest{
		StrategyRef: "momentum",
		StrategyId:  "two",
		Allocation:  0.3,
		Symbols:     []datamodels.Instrument{"BTC-USD", "ETH-USD"},
	})
	s.Require().NoError(err)

	// BTC-USD is still in use by "one" after "two" goes away
	_, err = s.manager.Undeploy(s.ctx, "two", false)
	s.Require().NoError(err)
	s.Equal([]datamodels.Instrument{"ETH-USD"}, feed.unsubscribed)

	_, err = s.manager.Undeploy(s.ctx, "one", false)
	s.Require().NoError(err)
	s.Equal([]datamodels.Instrument{"ETH-USD", "BTC-USD"}, feed.unsubscribed)
}

func (s *ManagerTestSuite) TestDeployBatchStopsAtFirstFailure() {
	requests := []DeployRequest{
		{StrategyRef: "momentum", StrategyId: "one", Allocation: 0.4, Symbols: []datamodels.Instrument{"BTC-USD"}},
		{StrategyRef: "broken", StrategyId: "two", Allocation: 0.3, Symbols: []datamodels.Instrument{"ETH-USD"}},
		{StrategyRef: "momentum", StrategyId: "three", Allocation: 0.3, Symbols: []datamodels.Instrument{"SOL-USD"}},
	}
	results, err := s.manager.DeployBatch(s.ctx, requests)
	s.Require().Error(err)
	s.Len(results, 1)
	s.Equal(1, s.registry.Size())
}
