// Package csvwriter appends rejection audit records to a CSV file. The file
// is a write-only artifact for external review; the engine never reads it.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

var header = []string{"time", "instrument", "reason"}

// RejectionWriter is an append-only CSV audit trail.
type RejectionWriter struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewRejectionWriter opens (or creates) the audit file at filePath. A fresh
// file gets a header row.
func NewRejectionWriter(filePath string, logger *zap.Logger) (*RejectionWriter, error) {
	info, statErr := os.Stat(filePath)
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open rejection CSV file: %w", err)
	}

	w := &RejectionWriter{
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}
	if statErr != nil || info.Size() == 0 {
		if err := w.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		w.writer.Flush()
	}
	return w, nil
}

// Record appends one rejection row and flushes it to disk.
func (w *RejectionWriter) Record(ts time.Time, instrument, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{ts.UTC().Format(time.RFC3339), instrument, reason}
	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write rejection record: %w", err)
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("Failed to flush rejection CSV", zap.Error(err))
		return err
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (w *RejectionWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("Failed to flush rejection CSV on close", zap.Error(err))
	}
	return w.file.Close()
}
