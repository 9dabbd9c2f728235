// Package corpus writes accepted pages to the output corpus as JSON
// Lines, one record per line.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// JSONLWriter appends PageRecords to a single .jsonl file. Appends are
// serialized by a mutex so concurrent workers never interleave lines.
type JSONLWriter struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	logger *zap.Logger

	written int64
}

// NewJSONLWriter opens (or creates) the corpus file in append mode.
func NewJSONLWriter(path string, logger *zap.Logger) (*JSONLWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	return &JSONLWriter{
		file:   f,
		buf:    bufio.NewWriterSize(f, 1<<16),
		logger: logger,
	}, nil
}

// Append writes records as JSONL and flushes, so every accepted page is
// durable before the worker moves on.
func (w *JSONLWriter) Append(ctx context.Context, records []crawler.PageRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal corpus record: %w", err)
		}
		if _, err := w.buf.Write(line); err != nil {
			return fmt.Errorf("write corpus record: %w", err)
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("write corpus record: %w", err)
		}
		w.written++
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush corpus: %w", err)
	}
	return nil
}

// Written returns the number of records appended by this writer.
func (w *JSONLWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes and closes the underlying file.
func (w *JSONLWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close() //nolint:errcheck
		return fmt.Errorf("flush corpus: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}
	w.logger.Info("corpus closed", zap.Int64("records", w.written))
	return nil
}
