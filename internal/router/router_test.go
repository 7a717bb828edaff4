package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.LoadInline([]map[string]interface{}{
		{
			"name":                   "local_mlx",
			"base_url":               "http://127.0.0.1:8081",
			"supported_capabilities": []interface{}{"chat", "embeddings"},
			"concurrency_limits":     map[string]interface{}{"chat": 2, "embeddings": 4},
			"health":                 map[string]interface{}{"liveness": "/health", "readiness": "/ready"},
			"default_model":          "qwen-local",
			"model_aliases":          map[string]interface{}{"gpt-4": "qwen-local"},
		},
		{
			"name":                   "gpu_fast",
			"base_url":               "http://127.0.0.1:8082",
			"supported_capabilities": []interface{}{"chat", "images"},
			"concurrency_limits":     map[string]interface{}{"chat": 4, "images": 2},
			"health":                 map[string]interface{}{"liveness": "/v1/models", "readiness": "/v1/models"},
			"default_model":          "llama-fast",
		},
	}, map[string]string{"ollama": "gpu_fast"})
	require.NoError(t, err)
	return reg
}

func TestRouteDirectBackendMatch(t *testing.T) {
	r := New(testRegistry(t), nil)
	d, err := r.Route("chat", "local_mlx")
	require.NoError(t, err)
	assert.Equal(t, "local_mlx", d.BackendName)
	assert.Equal(t, ReasonClientPinned, d.Reason)
	assert.Equal(t, "qwen-local", d.UpstreamModel)
}

func TestRouteLegacyAliasExpansion(t *testing.T) {
	r := New(testRegistry(t), nil)
	d, err := r.Route("chat", "ollama")
	require.NoError(t, err)
	assert.Equal(t, "gpu_fast", d.BackendName)
	assert.Equal(t, ReasonAliasExpanded, d.Reason)
}

func TestRouteDirectMatchRejectsUnsupportedCapability(t *testing.T) {
	r := New(testRegistry(t), nil)
	_, err := r.Route("images", "local_mlx")
	require.Error(t, err)
	ge := gatewayerr.As(err)
	assert.Equal(t, gatewayerr.CapabilityNotSupported, ge.Kind)
}

func TestRouteEmptyHintUsesDefaultPreference(t *testing.T) {
	routeTable := map[string][]string{"chat": {"gpu_fast", "local_mlx"}}
	r := New(testRegistry(t), routeTable)
	d, err := r.Route("chat", "")
	require.NoError(t, err)
	assert.Equal(t, "gpu_fast", d.BackendName)
	assert.Equal(t, ReasonDefaultPreference, d.Reason)
	assert.Equal(t, "llama-fast", d.UpstreamModel)
}

func TestRouteUnmatchedHintFallsBackByCapabilityOnly(t *testing.T) {
	r := New(testRegistry(t), nil)
	d, err := r.Route("images", "some-unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "gpu_fast", d.BackendName)
	assert.Equal(t, ReasonCapabilityOnly, d.Reason)
	assert.Equal(t, "some-unknown-model", d.UpstreamModel)
}

func TestRouteDirectMatchUsesEachBackendsDefaultModel(t *testing.T) {
	r := New(testRegistry(t), nil)
	d, err := r.Route("chat", "local_mlx")
	require.NoError(t, err)
	assert.Equal(t, "qwen-local", d.UpstreamModel)

	d2, err := r.Route("chat", "gpu_fast")
	require.NoError(t, err)
	assert.Equal(t, "llama-fast", d2.UpstreamModel)
}

func TestRouteNoCapableBackendReturnsCapabilityNotSupported(t *testing.T) {
	r := New(testRegistry(t), nil)
	_, err := r.Route("tts", "")
	require.Error(t, err)
	ge := gatewayerr.As(err)
	assert.Equal(t, gatewayerr.CapabilityNotSupported, ge.Kind)
}
