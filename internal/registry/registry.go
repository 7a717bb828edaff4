// Package registry parses the declarative backend document and exposes the
// read-only lookup surface the router, admission controller, and health
// checker are all built on top of.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Capability is a named workload kind a backend declares it can serve.
type Capability string

const (
	CapabilityChat       Capability = "chat"
	CapabilityEmbeddings Capability = "embeddings"
	CapabilityImages     Capability = "images"
	CapabilityTTS        Capability = "tts"
	CapabilityMusic      Capability = "music"
	CapabilityVideo      Capability = "video"
)

var knownCapabilities = map[Capability]bool{
	CapabilityChat: true, CapabilityEmbeddings: true, CapabilityImages: true,
	CapabilityTTS: true, CapabilityMusic: true, CapabilityVideo: true,
}

// HealthPaths names the two relative probe paths a backend exposes.
type HealthPaths struct {
	Liveness  string `mapstructure:"liveness"`
	Readiness string `mapstructure:"readiness"`
}

// PayloadPolicy governs response-format defaults and allowances.
type PayloadPolicy struct {
	ImagesFormat      string `mapstructure:"images_format"`
	ImagesAllowBase64 bool   `mapstructure:"images_allow_base64"`
}

// BackendConfig is immutable after load.
type BackendConfig struct {
	Name                 string              `mapstructure:"name"`
	Class                string              `mapstructure:"class"`
	BaseURL              string              `mapstructure:"base_url"`
	SupportedCapabilities []string           `mapstructure:"supported_capabilities"`
	ConcurrencyLimits    map[string]int       `mapstructure:"concurrency_limits"`
	Health               HealthPaths          `mapstructure:"health"`
	PayloadPolicy        PayloadPolicy        `mapstructure:"payload_policy"`
	ModelAliases         map[string]string    `mapstructure:"model_aliases"`
	DefaultModel         string               `mapstructure:"default_model"`
	EmitsThinking        bool                 `mapstructure:"emit_thinking"`
	Kind                 string               `mapstructure:"kind"` // openai | ndjson_chat | a1111_images | mock_images

	capSet map[Capability]bool
}

func (b *BackendConfig) buildCapSet() {
	b.capSet = make(map[Capability]bool, len(b.SupportedCapabilities))
	for _, c := range b.SupportedCapabilities {
		b.capSet[Capability(strings.ToLower(strings.TrimSpace(c)))] = true
	}
}

// Supports reports whether this backend declares the given capability.
func (b *BackendConfig) Supports(c Capability) bool {
	return b.capSet[c]
}

// Limit returns the configured concurrency limit for a route kind, and
// whether the route kind is admitted for this backend at all.
func (b *BackendConfig) Limit(routeKind string) (int, bool) {
	limit, ok := b.ConcurrencyLimits[routeKind]
	return limit, ok
}

// document is the on-disk shape: either a bare list or {legacy_names:..., backends:...}.
type document struct {
	LegacyNames map[string]string       `mapstructure:"legacy_names"`
	Backends    []map[string]interface{} `mapstructure:"backends"`
}

// Registry holds the validated, immutable backend set for the process.
type Registry struct {
	backends    map[string]*BackendConfig
	order       []string
	legacyNames map[string]string
}

// ErrNotFound is returned by Lookup for unknown backend names.
var ErrNotFound = fmt.Errorf("backend not found")

// Load parses a declarative document (YAML/JSON/TOML, resolved by file
// extension) into a validated Registry.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return fromViperRoot(v)
}

// LoadInline builds a Registry from entries already decoded by the main
// configuration loader (the `registry.backends` inline form).
func LoadInline(entries []map[string]interface{}, legacyNames map[string]string) (*Registry, error) {
	return build(entries, legacyNames)
}

func fromViperRoot(v *viper.Viper) (*Registry, error) {
	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		// Fall back to a bare list document.
		var list []map[string]interface{}
		if err2 := v.UnmarshalKey("backends", &list); err2 == nil && len(list) > 0 {
			return build(list, doc.LegacyNames)
		}
		return nil, fmt.Errorf("registry: unmarshal: %w", err)
	}
	if len(doc.Backends) == 0 {
		// Document might be a bare top-level array.
		var list []map[string]interface{}
		if err := v.Unmarshal(&list); err == nil && len(list) > 0 {
			return build(list, doc.LegacyNames)
		}
	}
	return build(doc.Backends, doc.LegacyNames)
}

func build(raw []map[string]interface{}, legacyNames map[string]string) (*Registry, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("registry: config_invalid: at least one backend must be declared")
	}

	reg := &Registry{
		backends:    make(map[string]*BackendConfig, len(raw)),
		legacyNames: make(map[string]string, len(legacyNames)),
	}
	for k, v := range legacyNames {
		reg.legacyNames[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	for i, entry := range raw {
		bc, err := decodeBackend(entry)
		if err != nil {
			return nil, fmt.Errorf("registry: backend[%d]: %w", i, err)
		}
		if err := validateBackend(bc); err != nil {
			return nil, fmt.Errorf("registry: backend %q: %w", bc.Name, err)
		}
		bc.buildCapSet()
		if _, dup := reg.backends[bc.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate backend name %q", bc.Name)
		}
		reg.backends[bc.Name] = bc
		reg.order = append(reg.order, bc.Name)
	}
	sort.Strings(reg.order)
	return reg, nil
}

func decodeBackend(raw map[string]interface{}) (*BackendConfig, error) {
	var bc BackendConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &bc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &bc, nil
}

func validateBackend(bc *BackendConfig) error {
	if strings.TrimSpace(bc.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.HasPrefix(bc.BaseURL, "http://") && !strings.HasPrefix(bc.BaseURL, "https://") {
		return fmt.Errorf("base_url must be absolute")
	}
	if strings.TrimSpace(bc.Health.Liveness) == "" || strings.TrimSpace(bc.Health.Readiness) == "" {
		return fmt.Errorf("health.liveness and health.readiness are both required")
	}
	if len(bc.SupportedCapabilities) == 0 {
		return fmt.Errorf("supported_capabilities must be non-empty")
	}
	for _, c := range bc.SupportedCapabilities {
		capability := Capability(strings.ToLower(strings.TrimSpace(c)))
		if !knownCapabilities[capability] {
			return fmt.Errorf("unknown capability %q", c)
		}
		if _, ok := bc.ConcurrencyLimits[string(capability)]; !ok {
			return fmt.Errorf("capability %q has no concurrency_limits entry", c)
		}
	}
	if bc.PayloadPolicy.ImagesFormat == "" {
		bc.PayloadPolicy.ImagesFormat = "url"
	}
	return nil
}

// Lookup returns the backend config for name, or ErrNotFound.
func (r *Registry) Lookup(name string) (*BackendConfig, error) {
	bc, ok := r.backends[name]
	if !ok {
		return nil, ErrNotFound
	}
	return bc, nil
}

// ResolveLegacy maps a legacy backend name to its canonical name, returning
// the input unchanged if it is already canonical or unknown.
func (r *Registry) ResolveLegacy(name string) string {
	if canon, ok := r.legacyNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canon
	}
	return name
}

// Supports reports whether the named backend declares the capability.
func (r *Registry) Supports(name string, c Capability) bool {
	bc, ok := r.backends[name]
	return ok && bc.Supports(c)
}

// Limit returns the concurrency limit configured for (backend, route kind).
func (r *Registry) Limit(name, routeKind string) (int, bool) {
	bc, ok := r.backends[name]
	if !ok {
		return 0, false
	}
	return bc.Limit(routeKind)
}

// Iter returns all backend configs in a stable (name-sorted) order.
func (r *Registry) Iter() []*BackendConfig {
	out := make([]*BackendConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.backends[name])
	}
	return out
}

// EmitsThinking reports whether the backend is configured to surface a
// chain-of-thought channel in streamed chat responses.
func (r *Registry) EmitsThinking(name string) bool {
	bc, ok := r.backends[name]
	return ok && bc.EmitsThinking
}

// ByCapability returns backends, in name-sorted order, that support c.
func (r *Registry) ByCapability(c Capability) []*BackendConfig {
	var out []*BackendConfig
	for _, name := range r.order {
		if r.backends[name].Supports(c) {
			out = append(out, r.backends[name])
		}
	}
	return out
}
