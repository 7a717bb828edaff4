package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBackends() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":                   "local_mlx",
			"class":                  "local_mlx",
			"base_url":               "http://127.0.0.1:8081",
			"supported_capabilities": []interface{}{"chat", "embeddings"},
			"concurrency_limits":     map[string]interface{}{"chat": 2, "embeddings": 4},
			"health":                 map[string]interface{}{"liveness": "/health", "readiness": "/ready"},
			"kind":                   "ndjson_chat",
			"emit_thinking":          true,
		},
		{
			"name":                   "gpu_fast",
			"class":                  "gpu_fast",
			"base_url":               "http://127.0.0.1:8082",
			"supported_capabilities": []interface{}{"chat", "images"},
			"concurrency_limits":     map[string]interface{}{"chat": 4, "images": 2},
			"health":                 map[string]interface{}{"liveness": "/v1/models", "readiness": "/v1/models"},
			"kind":                   "openai",
		},
	}
}

func TestBuildValidRegistry(t *testing.T) {
	reg, err := build(sampleBackends(), map[string]string{"ollama": "gpu_fast"})
	require.NoError(t, err)

	bc, err := reg.Lookup("gpu_fast")
	require.NoError(t, err)
	assert.True(t, bc.Supports(CapabilityChat))
	assert.False(t, bc.Supports(CapabilityEmbeddings))

	limit, ok := reg.Limit("gpu_fast", "images")
	assert.True(t, ok)
	assert.Equal(t, 2, limit)

	_, ok = reg.Limit("gpu_fast", "embeddings")
	assert.False(t, ok)

	assert.Equal(t, "gpu_fast", reg.ResolveLegacy("ollama"))
	assert.Equal(t, "unknown", reg.ResolveLegacy("unknown"))

	assert.True(t, reg.EmitsThinking("local_mlx"))
	assert.False(t, reg.EmitsThinking("gpu_fast"))
}

func TestBuildRejectsMissingConcurrencyLimit(t *testing.T) {
	bad := sampleBackends()
	bad[1]["concurrency_limits"] = map[string]interface{}{"chat": 4}
	_, err := build(bad, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "images")
}

func TestBuildRejectsRelativeBaseURL(t *testing.T) {
	bad := sampleBackends()
	bad[0]["base_url"] = "127.0.0.1:8081"
	_, err := build(bad, nil)
	require.Error(t, err)
}

func TestBuildRejectsDuplicateNames(t *testing.T) {
	bad := sampleBackends()
	bad[1]["name"] = "local_mlx"
	_, err := build(bad, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLookupNotFound(t *testing.T) {
	reg, err := build(sampleBackends(), nil)
	require.NoError(t, err)
	_, err = reg.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
