// Package registry implements the internal (in-process) plugin factory:
// a process-wide table mapping reverse-DNS plugin ids to constructors,
// satisfying pluginabi.Factory. An external dynamic-library factory
// would implement the same interface with lazy-loaded binaries instead
// of a map lookup.
package registry

import (
	"fmt"
	"sync"

	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// Descriptor is the static metadata an internal plugin registers
// alongside its constructor, enough for a directory listing without
// instantiating anything.
type Descriptor struct {
	RDN         string
	Name        string
	Vendor      string
	Version     string
	Description string
}

type entry struct {
	descriptor Descriptor
	construct  func() pluginabi.MainThread
}

// Registry is an in-process pluginabi.Factory: it constructs plugins
// that are compiled into this binary, as opposed to an external factory
// that would dynamically load plugin binaries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a constructor for rdn. Panics on duplicate registration
// since this only ever runs at process init from generated or hand-
// written registration code, never from user input.
func (r *Registry) Register(d Descriptor, construct func() pluginabi.MainThread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[d.RDN]; exists {
		panic(fmt.Sprintf("registry: duplicate registration for %q", d.RDN))
	}
	r.entries[d.RDN] = entry{descriptor: d, construct: construct}
}

// Descriptors returns every registered plugin's static metadata, for
// directory listings.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.descriptor)
	}
	return out
}

// Create implements pluginabi.Factory.
func (r *Registry) Create(rdn string) (pluginabi.MainThread, error) {
	r.mu.RLock()
	e, ok := r.entries[rdn]
	r.mu.RUnlock()
	if !ok {
		return nil, NotFoundError{RDN: rdn}
	}
	return e.construct(), nil
}

// NotFoundError reports that no plugin is registered under rdn.
type NotFoundError struct {
	RDN string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("plugin %q not found in internal registry", e.RDN)
}

var _ pluginabi.Factory = (*Registry)(nil)
