package native

import (
	"context"
	"sort"
	"sync"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/events"
)

// Exported is the surface a native module exposes across the bridge:
// invocable operations, a constants block and its named events.
type Exported interface {
	LaunchAuth(cfg authconfig.Config) error
	ClearCredentials(ctx context.Context, identifier string) (bool, error)
	Constants() map[string]any
	AddListener(event string, fn events.Listener) *events.Subscription
}

// Registry maps module names to linked native modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Exported
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Exported)}
}

// Register links m under name, replacing any previous module.
func (r *Registry) Register(name string, m Exported) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Exported, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
