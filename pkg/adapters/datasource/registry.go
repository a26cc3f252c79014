package datasource

import (
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function. Thread-safe for
// concurrent init() calls. Aliases (e.g. timescaledb resolving to the
// PostgreSQL adapter) register once per type name.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredTypes returns info for all registered adapters, sorted by
// type name for stable listings.
func RegisteredTypes() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Info, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// Lookup returns the registration for a backend type.
func Lookup(dbType string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dbType]
	return reg, ok
}

// IsRegistered checks whether an adapter type is compiled in.
func IsRegistered(dbType string) bool {
	_, ok := Lookup(dbType)
	return ok
}
