package datamodels

import (
	"encoding/json"
	"time"
)

type BaseModel struct {
	Id        int64 `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TradeEvent is the immutable record of one executed fill. The ledger is
// append-only; corrections are new offsetting events.
type TradeEvent struct {
	BaseModel
	TradeId    string     `gorm:"index" json:"trade_id,omitempty"`
	StrategyId string     `gorm:"not null;index" json:"strategy_id"`
	Instrument Instrument `gorm:"not null;index" json:"instrument"`
	Direction  OrderSide  `gorm:"not null" json:"direction"`
	Quantity   float64    `gorm:"not null" json:"quantity"`
	Price      float64    `gorm:"not null" json:"price"`
	Commission float64    `gorm:"not null" json:"commission"`
	Timestamp  time.Time  `gorm:"not null;index" json:"timestamp"`
}

func (t *TradeEvent) GetId() string {
	return t.TradeId
}

func (t *TradeEvent) GetTimestamp() time.Time {
	return t.Timestamp
}

type StatsGeneratorType string

const (
	StatsGeneratorTypeTracker     StatsGeneratorType = "tracker"
	StatsGeneratorTypeCoordinator StatsGeneratorType = "coordinator"
)

// StatsSnapshot is the wire record fanned out to the stats writers
// (websocket stream, files, database).
type StatsSnapshot struct {
	BaseModel
	GeneratorId   string             `gorm:"not null" json:"generator_id"`
	GeneratorName string             `gorm:"not null;index" json:"generator_name"`
	GeneratorType StatsGeneratorType `gorm:"not null" json:"generator_type"`
	SnapshotTime  time.Time          `gorm:"not null;index" json:"snapshot_time"`
	SnapshotName  string             `gorm:"not null" json:"snapshot_name"`
	SnapshotValue json.RawMessage    `gorm:"type:jsonb" json:"snapshot_value"`
}

func (m *StatsSnapshot) GetId() string {
	return m.GeneratorId
}

func (m *StatsSnapshot) GetTimestamp() time.Time {
	return m.SnapshotTime
}
