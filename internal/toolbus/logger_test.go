package toolbus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerNDJSONAppendsOneLinePerInvocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.ndjson")
	logger, err := NewLogger("ndjson", path, "")
	require.NoError(t, err)

	logger.Log(Invocation{ToolName: "echo", ReplayID: "r1", StartedAt: time.Now(), EndedAt: time.Now(), Outcome: OutcomeOK})
	logger.Log(Invocation{ToolName: "echo", ReplayID: "r2", StartedAt: time.Now(), EndedAt: time.Now(), Outcome: OutcomeOK})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2)
}

func TestLoggerPerFileWritesOneFilePerReplayID(t *testing.T) {
	dir := t.TempDir()
	invDir := filepath.Join(dir, "invocations")
	logger, err := NewLogger("per_file", "", invDir)
	require.NoError(t, err)

	logger.Log(Invocation{ToolName: "echo", ReplayID: "abc123", StartedAt: time.Now(), EndedAt: time.Now(), Outcome: OutcomeOK})

	data, err := os.ReadFile(filepath.Join(invDir, "abc123.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc123")
}

func TestLoggerNoneModeDoesNotWriteAnything(t *testing.T) {
	logger, err := NewLogger("none", "", "")
	require.NoError(t, err)
	logger.Log(Invocation{ToolName: "echo", ReplayID: "x"})
}

func TestNewLoggerRejectsUnknownMode(t *testing.T) {
	_, err := NewLogger("bogus", "", "")
	assert.Error(t, err)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
