package toolbus

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Outcome is the taxonomy a bus invocation resolves to. Only a tool that
// is not found, not permitted, or called with malformed arguments ever
// produces an HTTP-error-shaped response; a tool that ran and failed
// reports that failure as outcome "failed" inside a 200 body.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeDenied           Outcome = "denied"
	OutcomeFailed           Outcome = "failed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalidArguments Outcome = "invalid_arguments"
)

// Invocation records one call through the bus, independent of whether it
// succeeded, for the tool log and for replay verification.
type Invocation struct {
	ToolName    string                 `json:"tool_name"`
	Arguments   map[string]interface{} `json:"arguments"`
	RequestHash string                 `json:"request_hash"`
	ReplayID    string                 `json:"replay_id"`
	StartedAt   time.Time              `json:"started_at"`
	EndedAt     time.Time              `json:"ended_at"`
	Outcome     Outcome                `json:"outcome"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Bus dispatches named tool invocations, enforces per-token allowlists,
// computes the deterministic request hash, and logs every invocation
// regardless of outcome.
type Bus struct {
	tools  map[string]Tool
	logger *Logger
}

// New builds a bus over the given tool set. A nil logger disables logging.
func New(tools map[string]Tool, logger *Logger) *Bus {
	return &Bus{tools: tools, logger: logger}
}

// Descriptor is the listing shape returned by List, one per registered tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema"`
}

// List returns descriptors for the tools the caller is permitted to use,
// sorted by name. allowedTools being empty means "all tools".
func (b *Bus) List(allowedTools []string) []Descriptor {
	allowed := allowSet(allowedTools)
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		if allowed == nil || allowed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		t := b.tools[name]
		out = append(out, Descriptor{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// Get returns the descriptor for a single tool, or false if it doesn't
// exist or isn't in the caller's allowlist.
func (b *Bus) Get(name string, allowedTools []string) (Descriptor, bool) {
	allowed := allowSet(allowedTools)
	t, ok := b.tools[name]
	if !ok || (allowed != nil && !allowed[name]) {
		return Descriptor{}, false
	}
	return Descriptor{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}, true
}

// Invoke runs a named tool with the given arguments on behalf of a caller
// permitted to use allowedTools (empty means unrestricted). It always
// returns an Invocation describing what happened, and logs it, even on
// not_found/denied/invalid_arguments outcomes.
func (b *Bus) Invoke(ctx context.Context, name string, args map[string]interface{}, allowedTools []string) Invocation {
	started := time.Now().UTC()
	if args == nil {
		args = map[string]interface{}{}
	}

	inv := Invocation{
		ToolName:  name,
		Arguments: args,
		ReplayID:  uuid.NewString(),
		StartedAt: started,
	}

	canonical, err := CanonicalJSON(args)
	if err != nil {
		inv.Outcome = OutcomeInvalidArguments
		inv.Error = err.Error()
		inv.EndedAt = time.Now().UTC()
		b.log(inv)
		return inv
	}
	inv.RequestHash = hashCanonical(name, canonical)
	// Log the canonical form, not the raw decoded map, so the recorded
	// arguments match the bytes the hash was computed over.
	var canonicalArgs map[string]interface{}
	if err := json.Unmarshal(canonical, &canonicalArgs); err == nil {
		inv.Arguments = canonicalArgs
	}

	t, ok := b.tools[name]
	if !ok {
		inv.Outcome = OutcomeNotFound
		inv.Error = "unknown tool: " + name
		inv.EndedAt = time.Now().UTC()
		b.log(inv)
		return inv
	}

	if allowed := allowSet(allowedTools); allowed != nil && !allowed[name] {
		inv.Outcome = OutcomeDenied
		inv.Error = "tool not permitted for this caller: " + name
		inv.EndedAt = time.Now().UTC()
		b.log(inv)
		return inv
	}

	result, err := t.Invoke(ctx, args)
	inv.EndedAt = time.Now().UTC()

	switch {
	case err == nil:
		inv.Result = result
		if ok, present := result["ok"].(bool); present && !ok {
			inv.Outcome = OutcomeFailed
		} else {
			inv.Outcome = OutcomeOK
		}
	case isDisabled(err):
		inv.Outcome = OutcomeDenied
		inv.Error = err.Error()
	case isInvalidArguments(err):
		inv.Outcome = OutcomeInvalidArguments
		inv.Error = err.Error()
	default:
		inv.Outcome = OutcomeFailed
		inv.Error = err.Error()
	}

	b.log(inv)
	return inv
}

func (b *Bus) log(inv Invocation) {
	if b.logger == nil {
		return
	}
	b.logger.Log(inv)
}

func allowSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
