// Package runlog appends one CSV row per attempted document to a per-run log.
package runlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// File names used by the two passes.
const (
	AcquisitionFile = "acquisition_log.csv"
	ConversionFile  = "conversion_log.csv"
)

var header = []string{"key", "code"}

// Log is an append-only key,code log. It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	writer *csv.Writer
	closer io.Closer
}

// Open appends to path, creating it (and its directory) with a header row if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	l := &Log{writer: csv.NewWriter(f), closer: f}
	if fresh {
		if err := l.write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

// New writes rows to w without a header. Close is a no-op unless w is an io.Closer.
func New(w io.Writer) *Log {
	l := &Log{writer: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Record appends one row and flushes it.
func (l *Log) Record(key string, code int) error {
	return l.write([]string{key, strconv.Itoa(code)})
}

func (l *Log) write(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("write run log row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flush run log: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}
