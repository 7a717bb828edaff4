// Package router resolves a client's (route kind, model hint) into a
// concrete backend and upstream model name. It is a pure function of the
// registry and a static preference table: no network I/O, no health or
// load input. Health and admission are gates applied after routing, never
// inputs to the routing decision itself.
package router

import (
	"strings"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/registry"
)

// Reason is a closed set of stable tokens explaining a routing outcome.
type Reason string

const (
	ReasonClientPinned      Reason = "client_pinned"
	ReasonAliasExpanded     Reason = "alias_expanded"
	ReasonCapabilityOnly    Reason = "capability_only"
	ReasonDefaultPreference Reason = "default_preference"
)

// Decision is the outcome of routing one request.
type Decision struct {
	BackendName   string
	BackendClass  string
	UpstreamModel string
	Reason        Reason
}

// Router holds the registry and the static route preference table.
type Router struct {
	reg        *registry.Registry
	routeTable map[string][]string
}

// New builds a Router. routeTable may be nil; missing route kinds fall
// back to capability-filtered registry order.
func New(reg *registry.Registry, routeTable map[string][]string) *Router {
	return &Router{reg: reg, routeTable: routeTable}
}

// Route resolves routeKind and the client's raw model hint to a Decision.
func (r *Router) Route(routeKind, clientHint string) (*Decision, error) {
	capability := registry.Capability(strings.ToLower(strings.TrimSpace(routeKind)))
	hint := strings.TrimSpace(clientHint)

	resolved := hint
	usedLegacy := false
	if hint != "" {
		resolved = r.reg.ResolveLegacy(hint)
		usedLegacy = resolved != hint
	}

	var chosen *registry.BackendConfig
	var reason Reason
	pinned := false

	if resolved != "" {
		if bc, err := r.reg.Lookup(resolved); err == nil {
			if !bc.Supports(capability) {
				return nil, capabilityError(bc, routeKind)
			}
			chosen = bc
			pinned = true
			if usedLegacy {
				reason = ReasonAliasExpanded
			} else {
				reason = ReasonClientPinned
			}
		}
	}

	if chosen == nil {
		chosen = r.pickByPreference(capability)
		if chosen == nil {
			return nil, gatewayerr.Newf(gatewayerr.CapabilityNotSupported,
				"no backend declares support for capability %q", routeKind)
		}
		if hint == "" {
			reason = ReasonDefaultPreference
		} else {
			reason = ReasonCapabilityOnly
		}
	}

	// A hint that names a backend selects the backend, not a model, so the
	// backend's default model is sent upstream.
	modelHint := hint
	if pinned {
		modelHint = ""
	}

	return &Decision{
		BackendName:   chosen.Name,
		BackendClass:  chosen.Class,
		UpstreamModel: resolveModel(chosen, modelHint),
		Reason:        reason,
	}, nil
}

func (r *Router) pickByPreference(capability registry.Capability) *registry.BackendConfig {
	for _, name := range r.routeTable[string(capability)] {
		if bc, err := r.reg.Lookup(name); err == nil && bc.Supports(capability) {
			return bc
		}
	}
	candidates := r.reg.ByCapability(capability)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func resolveModel(bc *registry.BackendConfig, hint string) string {
	if hint == "" {
		return bc.DefaultModel
	}
	if aliased, ok := bc.ModelAliases[hint]; ok {
		return aliased
	}
	return hint
}

func capabilityError(bc *registry.BackendConfig, routeKind string) *gatewayerr.Error {
	return gatewayerr.Newf(gatewayerr.CapabilityNotSupported,
		"backend %q does not support capability %q", bc.Name, routeKind).
		WithField("backend_class", bc.Class).
		WithField("supported_capabilities", bc.SupportedCapabilities)
}
