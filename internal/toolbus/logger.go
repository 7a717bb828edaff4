package toolbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogMode selects where invocations land.
type LogMode string

const (
	LogModeNDJSON  LogMode = "ndjson"
	LogModePerFile LogMode = "per_file"
	LogModeBoth    LogMode = "both"
	LogModeNone    LogMode = "none"
)

// Logger records tool invocations. In ndjson mode every invocation is
// appended as one line to a single file, serialized by mu so writes are
// line-atomic. In per_file mode each invocation gets its own file named
// by its replay ID, so a single invocation can be fetched without
// scanning the whole log.
type Logger struct {
	mode    LogMode
	path    string
	dir     string
	mu      sync.Mutex
}

// NewLogger creates (if necessary) the directories of the configured log
// targets. An empty mode is treated as none; an unrecognized mode is an error.
func NewLogger(mode, path, dir string) (*Logger, error) {
	m := LogMode(strings.ToLower(strings.TrimSpace(mode)))
	switch m {
	case LogModeNDJSON, LogModePerFile, LogModeBoth:
	case LogModeNone, "":
		return &Logger{mode: LogModeNone}, nil
	default:
		return nil, fmt.Errorf("toolbus: unknown log mode %q", mode)
	}

	l := &Logger{mode: m, path: path, dir: dir}
	if m == LogModeNDJSON || m == LogModeBoth {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
	}
	if m == LogModePerFile || m == LogModeBoth {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Log appends inv to every configured target. Marshal/write errors are
// swallowed beyond being silently dropped from the log: a logging failure
// must never fail the tool call that already completed.
func (l *Logger) Log(inv Invocation) {
	if l == nil || l.mode == LogModeNone {
		return
	}
	line, err := json.Marshal(inv)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == LogModeNDJSON || l.mode == LogModeBoth {
		l.appendNDJSON(line)
	}
	if l.mode == LogModePerFile || l.mode == LogModeBoth {
		l.writePerFile(inv.ReplayID, line)
	}
}

func (l *Logger) appendNDJSON(line []byte) {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return
	}
	defer f.Close()
	line = append(line, '\n')
	_, _ = f.Write(line)
	_ = f.Sync()
}

func (l *Logger) writePerFile(replayID string, line []byte) {
	name := filepath.Join(l.dir, replayID+".json")
	_ = os.WriteFile(name, line, 0o640)
}
