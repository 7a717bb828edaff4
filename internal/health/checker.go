// Package health runs a single background probe loop over every registered
// backend and exposes the latest liveness/readiness snapshot each takes.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/localai/gateway/internal/config"
	"github.com/localai/gateway/internal/registry"
)

// Snapshot is the latest known health state for one backend.
type Snapshot struct {
	Healthy             bool
	Ready               bool
	LastCheck           time.Time
	LastError           string
	ConsecutiveFailures int
}

// Checker owns one background probe loop over the registry's backends.
// Until a backend's first probe completes it is reported routable
// ("optimistic ready") so a cold-started gateway doesn't reject every
// request while the first sweep is still in flight.
type Checker struct {
	reg      *registry.Registry
	client   *http.Client
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	snapshots map[string]Snapshot
	probed    map[string]bool

	startOnce sync.Once
}

// NewChecker builds a Checker from the registry and health configuration.
func NewChecker(reg *registry.Registry, cfg config.HealthConfig) *Checker {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 || timeout > interval {
		timeout = 2 * time.Second
	}

	snapshots := make(map[string]Snapshot, len(reg.Iter()))
	probed := make(map[string]bool, len(reg.Iter()))
	for _, bc := range reg.Iter() {
		snapshots[bc.Name] = Snapshot{}
		probed[bc.Name] = false
	}

	return &Checker{
		reg:       reg,
		client:    &http.Client{Timeout: timeout},
		interval:  interval,
		timeout:   timeout,
		snapshots: snapshots,
		probed:    probed,
	}
}

// Start launches the background probe loop. Safe to call more than once;
// only the first call takes effect.
func (c *Checker) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
	})
}

func (c *Checker) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Checker) sweep(ctx context.Context) {
	backends := c.reg.Iter()
	var wg sync.WaitGroup
	for _, bc := range backends {
		wg.Add(1)
		go func(bc *registry.BackendConfig) {
			defer wg.Done()
			c.probe(ctx, bc)
		}(bc)
	}
	wg.Wait()
}

func (c *Checker) probe(ctx context.Context, bc *registry.BackendConfig) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	liveOK, liveErr := c.ping(timeoutCtx, bc.BaseURL+bc.Health.Liveness)
	readyOK := false
	readyErr := error(nil)
	if liveOK {
		readyOK, readyErr = c.ping(timeoutCtx, bc.BaseURL+bc.Health.Readiness)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.snapshots[bc.Name]
	snap := Snapshot{Healthy: liveOK, Ready: readyOK, LastCheck: time.Now()}
	switch {
	case !liveOK:
		snap.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		snap.LastError = fmt.Sprintf("liveness check failed: %v", liveErr)
	case !readyOK:
		snap.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		snap.LastError = fmt.Sprintf("readiness check failed: %v", readyErr)
	}
	c.snapshots[bc.Name] = snap
	c.probed[bc.Name] = true
}

func (c *Checker) ping(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
	return true, nil
}

// Snapshot returns the latest known health state for a backend. A backend
// unknown to the registry reports as unhealthy.
func (c *Checker) Snapshot(name string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshots[name]
}

// IsRoutable reports whether a request may currently be routed to name: a
// backend that has not yet completed its first probe is optimistically
// routable, and thereafter must be both healthy and ready.
func (c *Checker) IsRoutable(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.probed[name] {
		return true
	}
	snap := c.snapshots[name]
	return snap.Healthy && snap.Ready
}

// Probe runs a single liveness check against name right now, independent
// of the cached snapshot — for an operator-facing forced health check.
func (c *Checker) Probe(ctx context.Context, name string) (bool, error) {
	bc, err := c.reg.Lookup(name)
	if err != nil {
		return false, err
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.ping(timeoutCtx, bc.BaseURL+bc.Health.Liveness)
	if !ok {
		return false, fmt.Errorf("liveness check failed: %w", err)
	}
	return true, nil
}

// All returns a copy of every backend's latest snapshot, keyed by name.
func (c *Checker) All() map[string]Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Snapshot, len(c.snapshots))
	for k, v := range c.snapshots {
		out[k] = v
	}
	return out
}
