package imagen

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a generator from the shared dependencies.
type Factory func(deps Deps) Generator

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a generator factory available under the given name.
//
// It is meant to be called from the init function of generator packages,
// the same way database drivers register themselves.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("imagen: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("imagen: Register called twice for generator %q", name))
	}
	registry[name] = f
}

// Registered returns the sorted names of all registered generators.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates every registered generator with the given dependencies.
func Build(deps Deps) map[string]Generator {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]Generator, len(registry))
	for name, f := range registry {
		out[name] = f(deps)
	}
	return out
}
