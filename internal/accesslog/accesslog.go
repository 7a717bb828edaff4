// Package accesslog appends one NDJSON line per /v1/* request, using the
// same serialized-append-and-fsync shape as the tool bus's own log.
package accesslog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one recorded request.
type Entry struct {
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Backend    string    `json:"backend,omitempty"`
	Model      string    `json:"model,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Writer appends Entry records to a single NDJSON file, serialized by mu so
// writes are line-atomic.
type Writer struct {
	path string
	mu   sync.Mutex
}

// New creates the log file's parent directory if necessary; the file itself
// is opened for append on each Log call. A
// nil *Writer from New(false, ...) disables logging without callers needing
// a nil check at every call site.
func New(enabled bool, path string) (*Writer, error) {
	if !enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return &Writer{path: path}, nil
}

// Log appends e. Marshal/write errors are swallowed: a logging failure must
// never fail the request it describes.
func (w *Writer) Log(e Entry) {
	if w == nil {
		return
	}
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		slog.Warn("access log open failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		slog.Warn("access log write failed", slog.String("path", w.path), slog.String("error", err.Error()))
	}
	_ = f.Sync()
}
