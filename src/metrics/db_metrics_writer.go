package metrics

import (
	"context"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

// StatsStore is the slice of the database client this writer needs.
type StatsStore interface {
	WriteStatsSnapshot(ctx context.Context, snapshot datamodels.StatsSnapshot) error
}

// DatabaseMetricsWriter persists snapshots through the database client.
type DatabaseMetricsWriter struct {
	store StatsStore
}

func NewDatabaseMetricsWriter(store StatsStore) (*DatabaseMetricsWriter, error) {
	if store == nil {
		return nil, errors.New("stats store is nil")
	}
	return &DatabaseMetricsWriter{store: store}, nil
}

func (w *DatabaseMetricsWriter) Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error {
	return w.store.WriteStatsSnapshot(ctx, snapshot)
}

func (w *DatabaseMetricsWriter) Close() error {
	return nil
}
