package datamodels

import (
	"time"
)

type Instrument string

type StrategyStatus string

const (
	StrategyStatusPending    StrategyStatus = "pending"
	StrategyStatusActive     StrategyStatus = "active"
	StrategyStatusPaused     StrategyStatus = "paused"
	StrategyStatusUndeployed StrategyStatus = "undeployed"
)

type ExecutionMode string

const (
	ExecutionModeSignalsOnly  ExecutionMode = "signals_only"
	ExecutionModePaperTrading ExecutionMode = "paper_trading"
	ExecutionModeLiveTrading  ExecutionMode = "live_trading"
)

type SignalDirection string

const (
	DirectionBuy   SignalDirection = "buy"
	DirectionSell  SignalDirection = "sell"
	DirectionClose SignalDirection = "close"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket   OrderType = "market"
	OrderTypeLimit    OrderType = "limit"
	OrderTypeStopLoss OrderType = "stop-loss"
)

// StrategyRecord is the registry's row for one deployed strategy. It is
// owned by the allocation registry and the lifecycle manager; everything
// else refers to it by Id only.
type StrategyRecord struct {
	Id                 string         `json:"id"`
	AllocationFraction float64        `json:"allocation_fraction,omitempty"`
	AllocationAmount   float64        `json:"allocation_amount,omitempty"`
	Symbols            []Instrument   `json:"symbols"`
	Status             StrategyStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	LastUpdate         time.Time      `json:"last_update"`
	BrokerBinding      string         `json:"broker_binding"`
	Mode               ExecutionMode  `json:"execution_mode"`
}

func (r StrategyRecord) Copy() StrategyRecord {
	symbolsCopy := make([]Instrument, len(r.Symbols))
	copy(symbolsCopy, r.Symbols)
	r.Symbols = symbolsCopy
	return r
}

// PureSignal is the relative trading intent emitted by a strategy adapter.
// RelativeSize is a fraction of that strategy's allocated capital, never an
// absolute quantity. Immutable once emitted.
type PureSignal struct {
	SignalId     string          `json:"signal_id"`
	StrategyId   string          `json:"strategy_id"`
	Instrument   Instrument      `json:"instrument"`
	Direction    SignalDirection `json:"direction"`
	RelativeSize float64         `json:"relative_size"`
	LimitPrice   *float64        `json:"limit_price,omitempty"`
	StopPrice    *float64        `json:"stop_price,omitempty"`
	Confidence   float64         `json:"confidence"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (s *PureSignal) GetId() string {
	return s.SignalId
}

func (s *PureSignal) GetTimestamp() time.Time {
	return s.Timestamp
}

// SequencedSignal is a PureSignal annotated with its deterministic
// per-instrument ordering. Content of the embedded signal is unchanged.
type SequencedSignal struct {
	PureSignal
	InstrumentSequence int  `json:"instrument_sequence"`
	Contested          bool `json:"contested"`
}

// OrderInstruction is a broker-ready absolute order derived from one
// PureSignal and the owning strategy's allocation.
type OrderInstruction struct {
	StrategyId string     `json:"strategy_id"`
	SignalId   string     `json:"signal_id"`
	Instrument Instrument `json:"instrument"`
	Side       OrderSide  `json:"side"`
	Quantity   float64    `json:"quantity"`
	Notional   float64    `json:"notional"`
	OrderType  OrderType  `json:"order_type"`
	LimitPrice *float64   `json:"limit_price,omitempty"`
	StopPrice  *float64   `json:"stop_price,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// FillResult is a broker adapter's report of an executed order.
type FillResult struct {
	TradeId    string     `json:"trade_id"`
	Instrument Instrument `json:"instrument"`
	Side       OrderSide  `json:"side"`
	Quantity   float64    `json:"quantity"`
	Price      float64    `json:"price"`
	Commission float64    `json:"commission"`
	Timestamp  time.Time  `json:"timestamp"`
}

// PositionEntry is one (strategy, instrument) row derived from the trade
// ledger. Portfolio-level views are recomputed sums, never stored.
type PositionEntry struct {
	StrategyId    string     `json:"strategy_id"`
	Instrument    Instrument `json:"instrument"`
	Quantity      float64    `json:"quantity"`
	AverageCost   float64    `json:"average_cost"`
	UnrealizedPnl float64    `json:"unrealized_pnl"`
}

// PortfolioWideId is the sentinel strategy id used on portfolio-level
// snapshots.
const PortfolioWideId = "portfolio"

type PortfolioSnapshot struct {
	StrategyId  string    `json:"strategy_id"`
	EquityValue float64   `json:"equity_value"`
	Timestamp   time.Time `json:"timestamp"`
}

// MarketBar is one bar of market data delivered to strategy adapters.
type MarketBar struct {
	Instrument Instrument `json:"instrument"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     float64    `json:"volume"`
	Timestamp  time.Time  `json:"timestamp"`
}
