package coordinator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"propsync/pkg/logger"
	"propsync/pkg/surface"
)

// DefaultScope is the scope used when callers do not name one.
const DefaultScope = "default"

// ErrScopeExists is returned when creating a scope that already has a live
// coordinator.
var ErrScopeExists = errors.New("scope already exists")

// Factory builds a coordinator for a scope. Registries use it for lazy
// construction of the default scope and for explicit scope creation.
type Factory func(scope string) (*Coordinator, error)

// Registry tracks live coordinators by scope.
type Registry struct {
	mu      sync.RWMutex
	factory Factory
	coords  map[string]*Coordinator
}

// NewRegistry builds a registry that constructs coordinators with factory.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = LibraryDefaults()
	}
	return &Registry{factory: factory, coords: make(map[string]*Coordinator)}
}

// LibraryDefaults returns a factory suitable for embedding propsync as a
// library with no daemon config: an in-memory surface, a 16ms timer
// scheduler and the heartbeat critical prefix, shared by every scope the
// registry creates.
func LibraryDefaults() Factory {
	surf := surface.NewMemory()
	sched := NewTimer(16 * time.Millisecond)
	critical := NewCriticalSet(nil, []string{"--beat-"})
	return func(scope string) (*Coordinator, error) {
		return New(surf, sched, critical, Config{Scope: scope, MaxBatchSize: DefaultMaxBatchSize})
	}
}

// Create builds and registers a coordinator for scope. Registering over a
// live coordinator fails; a destroyed one is replaced.
func (r *Registry) Create(scope string) (*Coordinator, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, fmt.Errorf("registry: scope must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.coords[scope]; ok && !existing.Destroyed() {
		return nil, fmt.Errorf("registry: scope %q: %w", scope, ErrScopeExists)
	}
	c, err := r.factory(scope)
	if err != nil {
		return nil, fmt.Errorf("registry: create scope %q: %w", scope, err)
	}
	r.coords[scope] = c
	logger.Info("scope_created", "scope", scope)
	return c, nil
}

// Get returns the live coordinator for scope.
func (r *Registry) Get(scope string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coords[scope]
	if !ok || c.Destroyed() {
		return nil, false
	}
	return c, true
}

// Default returns the default-scope coordinator, constructing it on first
// use. A destroyed default is replaced with a fresh instance on the next
// call.
func (r *Registry) Default() (*Coordinator, error) {
	r.mu.RLock()
	c, ok := r.coords[DefaultScope]
	r.mu.RUnlock()
	if ok && !c.Destroyed() {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coords[DefaultScope]; ok && !c.Destroyed() {
		return c, nil
	}
	c, err := r.factory(DefaultScope)
	if err != nil {
		return nil, fmt.Errorf("registry: create default scope: %w", err)
	}
	r.coords[DefaultScope] = c
	return c, nil
}

// Names returns the live scope names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.coords))
	for name, c := range r.coords {
		if c.Destroyed() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the live coordinators sorted by scope.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		if c.Destroyed() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope() < out[j].Scope() })
	return out
}

// Remove destroys the coordinator for scope and drops it from the registry.
// Pending values are discarded, not applied.
func (r *Registry) Remove(scope string) bool {
	r.mu.Lock()
	c, ok := r.coords[scope]
	if ok {
		delete(r.coords, scope)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	c.Destroy()
	return true
}

// FlushAll force-flushes every live coordinator. Used at shutdown and by
// the janitor so queued values reach the surface. Returns the first error
// after attempting every scope.
func (r *Registry) FlushAll() error {
	var firstErr error
	for _, c := range r.All() {
		if err := c.ForceFlush(); err != nil {
			logger.Error("flush_all_failed", "scope", c.Scope(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DestroyAll destroys every coordinator and empties the registry.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	coords := r.coords
	r.coords = make(map[string]*Coordinator)
	r.mu.Unlock()
	for _, c := range coords {
		c.Destroy()
	}
}

// ResetDefault destroys the default-scope coordinator and drops it so the
// next Default call builds a fresh instance. Test hook.
func (r *Registry) ResetDefault() {
	r.Remove(DefaultScope)
}

// process-wide registry, set once at startup
var (
	sharedMu sync.Mutex
	shared   *Registry
)

// SetShared installs r as the process-wide registry.
func SetShared(r *Registry) {
	sharedMu.Lock()
	shared = r
	sharedMu.Unlock()
}

// Shared returns the process-wide registry, building one with
// LibraryDefaults when none was installed.
func Shared() *Registry {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = NewRegistry(nil)
	}
	return shared
}

// Default returns the default-scope coordinator of the shared registry.
func Default() (*Coordinator, error) {
	return Shared().Default()
}
