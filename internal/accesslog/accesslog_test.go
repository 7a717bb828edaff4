package accesslog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledReturnsNilWriter(t *testing.T) {
	w, err := New(false, "")
	require.NoError(t, err)
	assert.Nil(t, w)
	w.Log(Entry{}) // must not panic on a nil receiver
}

func TestLogAppendsNDJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "access.ndjson")
	w, err := New(true, path)
	require.NoError(t, err)
	require.NotNil(t, w)

	w.Log(Entry{Time: time.Unix(0, 0), Method: "POST", Path: "/v1/chat/completions", Status: 200, Backend: "local", DurationMS: 12})
	w.Log(Entry{Time: time.Unix(0, 0), Method: "GET", Path: "/v1/models", Status: 200})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}
