package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aiswarm/orchestrator/events"
)

// Registry maps driver types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	notify    events.Notifier
}

// NewRegistry creates an empty Registry.
func NewRegistry(notify events.Notifier) *Registry {
	if notify == nil {
		notify = events.Nop{}
	}
	return &Registry{factories: make(map[string]Factory), notify: notify}
}

// Register adds factory under typ. Registering a type again replaces the
// previous factory.
func (r *Registry) Register(typ string, factory Factory) {
	r.mu.Lock()
	r.factories[typ] = factory
	r.mu.Unlock()
	r.notify.Emit(events.DriverRegistered, typ)
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typ]
	return ok
}

// Available returns the registered types, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// New builds a driver of type typ. Unknown types, factory errors and factory
// panics are all returned as errors.
func (r *Registry) New(typ string, p Params) (d Driver, err error) {
	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver type %q is not registered", typ)
	}

	defer func() {
		if rec := recover(); rec != nil {
			d, err = nil, fmt.Errorf("driver factory %q panicked: %v", typ, rec)
		}
	}()
	d, err = factory(p)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("driver factory %q returned nil", typ)
	}
	return d, nil
}
