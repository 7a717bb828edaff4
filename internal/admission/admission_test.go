package admission

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.LoadInline([]map[string]interface{}{
		{
			"name":                   "local_mlx",
			"base_url":               "http://127.0.0.1:8081",
			"supported_capabilities": []interface{}{"chat"},
			"concurrency_limits":     map[string]interface{}{"chat": 2},
			"health":                 map[string]interface{}{"liveness": "/health", "readiness": "/ready"},
		},
	}, nil)
	require.NoError(t, err)
	return reg
}

func TestTryAcquireRespectsLimit(t *testing.T) {
	c := NewController(testRegistry(t))

	s1, err := c.TryAcquire("local_mlx", "chat")
	require.NoError(t, err)
	s2, err := c.TryAcquire("local_mlx", "chat")
	require.NoError(t, err)

	_, err = c.TryAcquire("local_mlx", "chat")
	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonOverloaded, rejected.Reason)

	require.NoError(t, c.Release(s1))

	s3, err := c.TryAcquire("local_mlx", "chat")
	require.NoError(t, err)

	require.NoError(t, c.Release(s2))
	require.NoError(t, c.Release(s3))
}

func TestTryAcquireUnknownKeyRejectsNotAdmitted(t *testing.T) {
	c := NewController(testRegistry(t))

	_, err := c.TryAcquire("local_mlx", "images")
	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonNotAdmitted, rejected.Reason)

	_, err = c.TryAcquire("missing_backend", "chat")
	require.Error(t, err)
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonNotAdmitted, rejected.Reason)
}

func TestReleaseIsIdempotentAndDetectsDoubleRelease(t *testing.T) {
	c := NewController(testRegistry(t))

	slot, err := c.TryAcquire("local_mlx", "chat")
	require.NoError(t, err)

	require.NoError(t, c.Release(slot))
	err = c.Release(slot)
	assert.ErrorIs(t, err, ErrDoubleRelease)

	stats := c.Stats()["local_mlx.chat"]
	assert.Equal(t, 0, stats.Inflight)
	assert.Equal(t, 2, stats.Available)
}

func TestReleaseNilSlotIsNoop(t *testing.T) {
	c := NewController(testRegistry(t))
	assert.NoError(t, c.Release(nil))
}

func TestStatsReflectsInflight(t *testing.T) {
	c := NewController(testRegistry(t))

	slot, err := c.TryAcquire("local_mlx", "chat")
	require.NoError(t, err)

	stats := c.Stats()["local_mlx.chat"]
	assert.Equal(t, 2, stats.Limit)
	assert.Equal(t, 1, stats.Inflight)
	assert.Equal(t, 1, stats.Available)

	require.NoError(t, c.Release(slot))
}

func TestConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	c := NewController(testRegistry(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var granted []*Slot

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if slot, err := c.TryAcquire("local_mlx", "chat"); err == nil {
				mu.Lock()
				granted = append(granted, slot)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(granted), 2)
	for _, s := range granted {
		require.NoError(t, c.Release(s))
	}
}
