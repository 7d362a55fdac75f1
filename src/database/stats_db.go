package database

import (
	"context"
	"time"

	"stratd/src/datamodels"
)

type StatsDb interface {
	WriteStatsSnapshot(ctx context.Context, snapshot datamodels.StatsSnapshot) error
	GetStatsSnapshots(ctx context.Context, generatorName string,
		startTime time.Time, endTime time.Time) ([]datamodels.StatsSnapshot, error)
}

func (d *databaseImplementation) WriteStatsSnapshot(
	ctx context.Context,
	snapshot datamodels.StatsSnapshot) error {
	return d.gormDb.WithContext(ctx).Create(&snapshot).Error
}

func (d *databaseImplementation) GetStatsSnapshots(
	ctx context.Context,
	generatorName string,
	startTime time.Time,
	endTime time.Time) ([]datamodels.StatsSnapshot, error) {

	query := d.gormDb.WithContext(ctx).Model(&datamodels.StatsSnapshot{}).
		Where("generator_name = ?", generatorName).
		Where("snapshot_time BETWEEN ? AND ?", startTime, endTime)

	var snapshots []datamodels.StatsSnapshot
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
