/*
Package metrics delivers StatsSnapshot records to their destinations: the
websocket stream for live dashboards, rolling local files, and the
database. Writers are composable through MultiMetricsWriter.
*/
package metrics

import (
	"context"
	"log/slog"

	"stratd/src/datamodels"
)

// MetricsWriter is one snapshot destination.
type MetricsWriter interface {
	Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error
	// Close cleans up any resources
	Close() error
}

// BuildMetricsWriter assembles the configured writer stack. A nil config
// disables metrics output entirely.
func BuildMetricsWriter(config *datamodels.MetricsWriterConfig) (*MultiMetricsWriter, error) {
	if config == nil {
		slog.Warn("MetricsWriterConfig is nil, skipping metrics writers")
		return NewMultiMetricsWriter(), nil
	}
	writers := []MetricsWriter{}
	if config.WsWriter {
		writers = append(writers, NewWebsocketMetricsWriter())
	}
	if config.FileWriter {
		fileWriter, err := NewFileMetricsWriter(config.FilePath, FormatCSV)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fileWriter)
	}
	return NewMultiMetricsWriter(writers...), nil
}
