package killswitch

import (
	"fmt"
	"sort"
	"sync"
)

// Factory describes one installable backend. Backends register themselves
// so that callers can pick an implementation without linking against it
// directly.
type Factory struct {
	Name string
	// Priority breaks ties when several backends are available; the
	// highest value wins.
	Priority int
	// Available reports whether this backend can run on the current host
	// (kernel support, privileges, daemons). Checked at selection time.
	Available func() bool
	// New constructs the backend.
	New func() (Backend, error)
}

var registry = struct {
	lock      sync.Mutex
	factories map[string]Factory
}{
	factories: map[string]Factory{},
}

// Register makes a backend selectable through FromRegistry. Registering the
// same name twice panics, same as duplicate flag registration would.
func Register(f Factory) {
	registry.lock.Lock()
	defer registry.lock.Unlock()

	if f.Name == "" || f.New == nil {
		panic("killswitch: Register with empty name or nil constructor")
	}
	if _, dup := registry.factories[f.Name]; dup {
		panic(fmt.Sprintf("killswitch: backend %q registered twice", f.Name))
	}
	registry.factories[f.Name] = f
}

// FromRegistry returns the named backend, or, with an empty name, the
// available backend with the highest priority. ErrBackendUnavailable is
// returned when nothing usable is registered.
func FromRegistry(name string) (Backend, error) {
	registry.lock.Lock()
	candidates := make([]Factory, 0, len(registry.factories))
	for _, f := range registry.factories {
		candidates = append(candidates, f)
	}
	registry.lock.Unlock()

	if name != "" {
		for _, f := range candidates {
			if f.Name != name {
				continue
			}
			if f.Available != nil && !f.Available() {
				return nil, fmt.Errorf("%w: backend %q is not usable on this host", ErrBackendUnavailable, name)
			}
			return f.New()
		}
		return nil, fmt.Errorf("%w: backend %q is not registered", ErrBackendUnavailable, name)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	for _, f := range candidates {
		if f.Available != nil && !f.Available() {
			continue
		}
		return f.New()
	}
	return nil, ErrBackendUnavailable
}
