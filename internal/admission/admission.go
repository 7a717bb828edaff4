// Package admission implements the non-blocking, per-(backend, route kind)
// concurrency gate. No queueing: a saturated slot rejects immediately,
// before any upstream socket is opened.
package admission

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/localai/gateway/internal/registry"
)

// RejectReason is a closed set of reasons a Rejected outcome carries.
type RejectReason string

const (
	ReasonOverloaded RejectReason = "backend_overloaded"
	ReasonNotAdmitted RejectReason = "not_admitted"
)

// RejectedError is returned by TryAcquire when no slot is available.
type RejectedError struct {
	Backend   string
	RouteKind string
	Reason    RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("admission: %s.%s rejected (%s)", e.Backend, e.RouteKind, e.Reason)
}

// ErrDoubleRelease is returned by Release when a slot has already been
// released — double-release is a programming error the caller should log
// loudly, not a condition to retry.
var ErrDoubleRelease = fmt.Errorf("admission: slot already released")

type counter struct {
	limit    int32
	inflight atomic.Int32
}

// Slot is an ephemeral admission grant. It must be released exactly once.
type Slot struct {
	backend   string
	routeKind string
	counter   *counter
	released  atomic.Bool
}

// Stats is the introspection shape for one (backend, route kind) pair.
type Stats struct {
	Limit     int
	Inflight  int
	Available int
}

// Controller is the (backend_name, route_kind) -> counted semaphore table.
// The table's key set is fixed at construction time from the registry, so
// the hot path never mutates the map itself — only the per-key atomic
// counters — and needs no locking.
type Controller struct {
	table map[string]*counter
}

func key(backend, routeKind string) string { return backend + "." + routeKind }

// NewController builds the semaphore table from every declared
// (backend, route kind, limit) triple in the registry.
func NewController(reg *registry.Registry) *Controller {
	c := &Controller{table: make(map[string]*counter)}
	for _, bc := range reg.Iter() {
		for routeKind, limit := range bc.ConcurrencyLimits {
			c.table[key(bc.Name, routeKind)] = &counter{limit: int32(limit)}
		}
	}
	return c
}

// TryAcquire attempts a non-blocking admission. It never performs I/O.
func (c *Controller) TryAcquire(backend, routeKind string) (*Slot, error) {
	cnt, ok := c.table[key(backend, routeKind)]
	if !ok {
		return nil, &RejectedError{Backend: backend, RouteKind: routeKind, Reason: ReasonNotAdmitted}
	}
	for {
		cur := cnt.inflight.Load()
		if cur >= cnt.limit {
			return nil, &RejectedError{Backend: backend, RouteKind: routeKind, Reason: ReasonOverloaded}
		}
		if cnt.inflight.CompareAndSwap(cur, cur+1) {
			return &Slot{backend: backend, routeKind: routeKind, counter: cnt}, nil
		}
	}
}

// Release returns the slot's capacity to the pool. Idempotent: a second
// call on the same slot returns ErrDoubleRelease without double-decrementing.
func (c *Controller) Release(slot *Slot) error {
	if slot == nil {
		return nil
	}
	if !slot.released.CompareAndSwap(false, true) {
		return ErrDoubleRelease
	}
	slot.counter.inflight.Add(-1)
	return nil
}

// Stats returns a snapshot of every (backend, route kind) pair for
// monitoring and the status endpoint.
func (c *Controller) Stats() map[string]Stats {
	out := make(map[string]Stats, len(c.table))
	for k, cnt := range c.table {
		inflight := int(cnt.inflight.Load())
		out[k] = Stats{
			Limit:     int(cnt.limit),
			Inflight:  inflight,
			Available: int(cnt.limit) - inflight,
		}
	}
	return out
}

// Keys returns the sorted set of "<backend>.<route_kind>" keys, useful for
// deterministic test iteration.
func (c *Controller) Keys() []string {
	keys := make([]string, 0, len(c.table))
	for k := range c.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
