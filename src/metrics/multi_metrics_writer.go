package metrics

import (
	"context"
	"log/slog"
	"sync"

	"stratd/src/datamodels"
)

// MultiMetricsWriter fans one snapshot out to several destinations. A
// failing destination is logged and does not block the others.
type MultiMetricsWriter struct {
	writers []MetricsWriter
	mu      sync.RWMutex
}

func NewMultiMetricsWriter(writers ...MetricsWriter) *MultiMetricsWriter {
	return &MultiMetricsWriter{
		writers: writers,
	}
}

func (w *MultiMetricsWriter) AddWriter(writer MetricsWriter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writers = append(w.writers, writer)
}

// WebsocketWriter returns the first websocket writer in the stack, if any,
// so the server can attach client connections to it.
func (w *MultiMetricsWriter) WebsocketWriter() *WebsocketMetricsWriter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, writer := range w.writers {
		if wsWriter, ok := writer.(*WebsocketMetricsWriter); ok {
			return wsWriter
		}
	}
	return nil
}

func (w *MultiMetricsWriter) Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var lastErr error
	for _, writer := range w.writers {
		if err := writer.Write(ctx, snapshot); err != nil {
			lastErr = err
			slog.Error("Failed to write stats snapshot",
				"writer", writer,
				"error", err)
		}
	}
	return lastErr
}

func (w *MultiMetricsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var lastErr error
	for _, writer := range w.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			slog.Error("Failed to close metrics writer",
				"writer", writer,
				"error", err)
		}
	}
	return lastErr
}
