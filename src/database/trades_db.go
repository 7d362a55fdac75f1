package database

import (
	"context"
	"log/slog"
	"time"

	"stratd/src/datamodels"
)

// TradeEventChannel is the pg_notify channel fills are announced on.
const TradeEventChannel = "trade_event"

type TradeDb interface {
	WriteTradeEvent(ctx context.Context, event datamodels.TradeEvent) error
	GetTradeEvents(ctx context.Context, startTime time.Time, endTime time.Time,
		strategyId *string, instrument *datamodels.Instrument) ([]datamodels.TradeEvent, error)
}

func (d *databaseImplementation) WriteTradeEvent(
	ctx context.Context,
	event datamodels.TradeEvent) error {
	if err := d.gormDb.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}
	// announce the fill; listeners are best-effort observers
	if err := Notify(d.gormDb, TradeEventChannel, event.StrategyId, event.TradeId); err != nil {
		slog.Warn("Failed to notify trade event", "tradeId", event.TradeId, "error", err)
	}
	return nil
}

func (d *databaseImplementation) GetTradeEvents(
	ctx context.Context,
	startTime time.Time,
	endTime time.Time,
	strategyId *string,
	instrument *datamodels.Instrument) ([]datamodels.TradeEvent, error) {

	query := d.gormDb.WithContext(ctx).Model(&datamodels.TradeEvent{})

	if strategyId != nil {
		query = query.Where("strategy_id = ?", *strategyId)
	}
	if instrument != nil {
		query = query.Where("instrument = ?", *instrument)
	}
	query = query.Where("timestamp BETWEEN ? AND ?", startTime, endTime)

	var events []datamodels.TradeEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
