package datamodels

import (
	"time"

	"stratd/src/utils/errors"
)

type StratdConfig struct {
	DatabaseConfig *PostgresConfig      `mapstructure:"postgres"`
	ServerConfig   ServerConfig         `mapstructure:"server"`
	EngineConfig   EngineConfig         `mapstructure:"engine"`
	MetricsWriter  *MetricsWriterConfig `mapstructure:"metrics_writer"`
	StrategiesFile string               `mapstructure:"strategies_file"`
}

type PostgresConfig struct {
	Database string `mapstructure:"database"`
	Host     string `mapstructure:"host"`
	Password string `mapstructure:"password"`
	Port     int    `mapstructure:"port"`
	SSL      struct {
		CA   string `mapstructure:"ca"`
		Cert string `mapstructure:"cert"`
		Key  string `mapstructure:"key"`
		Mode string `mapstructure:"mode"`
	} `mapstructure:"ssl"`
	URI  string `mapstructure:"uri"`
	User string `mapstructure:"user"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// EngineConfig holds the orchestrator-wide knobs: allocation validation,
// sizing freshness, cycle timing, and broker behavior.
type EngineConfig struct {
	InitialEquity        float64       `mapstructure:"initial_equity"`
	Mode                 ExecutionMode `mapstructure:"execution_mode"`
	Granularity          string        `mapstructure:"granularity"`
	AllocationTolerance  float64       `mapstructure:"allocation_tolerance"`
	StrictAllocation     bool          `mapstructure:"strict_allocation"`
	AbsoluteAllocations  bool          `mapstructure:"absolute_allocations"`
	PriceFreshnessWindow time.Duration `mapstructure:"price_freshness_window"`
	CycleTimeout         time.Duration `mapstructure:"cycle_timeout"`
	CommissionBps        float64       `mapstructure:"commission_bps"`
	BrokerOrdersPerSec   float64       `mapstructure:"broker_orders_per_sec"`
	LiquidateOnShutdown  bool          `mapstructure:"liquidate_on_shutdown"`
}

func (c *EngineConfig) Validate() error {
	if c.InitialEquity <= 0 {
		return errors.New("initial_equity must be greater than 0")
	}
	if c.AllocationTolerance < 0 {
		return errors.New("allocation_tolerance cannot be negative")
	}
	if c.PriceFreshnessWindow <= 0 {
		return errors.New("price_freshness_window must be greater than 0")
	}
	if c.CycleTimeout <= 0 {
		return errors.New("cycle_timeout must be greater than 0")
	}
	switch c.Mode {
	case ExecutionModeSignalsOnly, ExecutionModePaperTrading, ExecutionModeLiveTrading:
	default:
		return errors.Newf("unknown execution mode: %s", c.Mode)
	}
	return nil
}

type MetricsWriterConfig struct {
	WsWriter   bool   `mapstructure:"ws_writer"`
	FileWriter bool   `mapstructure:"file_writer"`
	FilePath   string `mapstructure:"file_path"`
}
