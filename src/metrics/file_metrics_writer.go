package metrics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatJSON FileFormat = "json"
)

// FileMetricsWriter appends snapshots to per-day, per-generator local
// files in CSV or JSON lines format.
type FileMetricsWriter struct {
	mu         sync.Mutex
	dateId     string
	baseDir    string
	files      map[string]*os.File
	csvWriters map[string]*csv.Writer
	fileFormat FileFormat
}

func NewFileMetricsWriter(baseDir string, format FileFormat) (*FileMetricsWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create metrics directory")
	}
	now := time.Now()
	todaysDateId := now.Format("20060102")

	return &FileMetricsWriter{
		dateId:     todaysDateId,
		baseDir:    baseDir,
		files:      make(map[string]*os.File),
		csvWriters: make(map[string]*csv.Writer),
		fileFormat: format,
	}, nil
}

var csvHeaders = []string{"generator_id", "generator_name", "generator_type", "snapshot_time", "snapshot_name", "snapshot_value"}

func (w *FileMetricsWriter) Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	writerId := w.dateId + "_" + snapshot.GeneratorName
	file, ok := w.files[writerId]
	if !ok {
		filename := filepath.Join(w.baseDir, writerId+"."+string(w.fileFormat))
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrap(err, "failed to open metrics file")
		}
		w.files[writerId] = f
		file = f

		if w.fileFormat == FormatCSV {
			csvWriter := csv.NewWriter(f)
			w.csvWriters[writerId] = csvWriter
			if err := csvWriter.Write(csvHeaders); err != nil {
				return errors.Wrap(err, "failed to write CSV headers")
			}
			csvWriter.Flush()
		}
	}

	switch w.fileFormat {
	case FormatJSON:
		jsonBytes, err := json.Marshal(snapshot)
		if err != nil {
			return errors.Wrap(err, "failed to marshal snapshot to JSON")
		}
		if _, err := file.Write(append(jsonBytes, '\n')); err != nil {
			return errors.Wrap(err, "failed to write JSON snapshot")
		}
	case FormatCSV:
		csvWriter := w.csvWriters[writerId]
		row := []string{
			snapshot.GeneratorId,
			snapshot.GeneratorName,
			string(snapshot.GeneratorType),
			snapshot.SnapshotTime.Format(time.RFC3339),
			snapshot.SnapshotName,
			string(snapshot.SnapshotValue),
		}
		if err := csvWriter.Write(row); err != nil {
			return errors.Wrap(err, "failed to write CSV row")
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return errors.Wrap(err, "error flushing CSV writer")
		}
	default:
		return errors.New("unknown metrics file format " + strconv.Quote(string(w.fileFormat)))
	}
	return nil
}

func (w *FileMetricsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var lastErr error
	for source, file := range w.files {
		if w.fileFormat == FormatCSV {
			if writer := w.csvWriters[source]; writer != nil {
				writer.Flush()
				if err := writer.Error(); err != nil {
					slog.Error("Failed to flush CSV writer", "source", source, "error", err)
					lastErr = err
				}
			}
		}
		if err := file.Close(); err != nil {
			slog.Error("Failed to close metrics file", "source", source, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
