package streaming

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/models"
)

func TestWriterEmitsRouteThenDeltaThenDone(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	require.NoError(t, w.Route("local_mlx", "qwen-local", "client_pinned"))
	require.NoError(t, w.Delta("hel"))
	require.NoError(t, w.Delta("lo"))
	require.NoError(t, w.Done())

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[0], `"type":"route"`)
	assert.Contains(t, lines[1], `"type":"delta"`)
	assert.Contains(t, lines[len(lines)-1], "[DONE]")
}

func TestWriterDoneIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	require.NoError(t, w.Done())
	before := buf.String()
	require.NoError(t, w.Done())
	assert.Equal(t, before, buf.String())
}

func TestWriterErrorEndsStreamWithSentinel(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	require.NoError(t, w.Route("local_mlx", "qwen-local", "client_pinned"))
	require.NoError(t, w.Error(gatewayerr.New(gatewayerr.UpstreamTimeout, "upstream timed out")))

	out := buf.String()
	assert.Contains(t, out, `"type":"error"`)
	assert.Contains(t, out, "upstream_timeout")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "[DONE]"))
}

func TestTranslateChunkConcatenatesDeltasAndCarriesThinkingAndDone(t *testing.T) {
	chunk := models.ChatChunk{
		Choices:  []models.ChunkDelta{{Delta: models.ChatMessage{Content: "a"}}, {Delta: models.ChatMessage{Content: "b"}}},
		Thinking: "pondering",
		Done:     true,
	}
	delta, thinking, done := TranslateChunk(chunk)
	assert.Equal(t, "ab", delta)
	assert.Equal(t, "pondering", thinking)
	assert.True(t, done)
}
