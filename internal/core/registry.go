package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds the module constructors compiled into the binary. Modules
// add themselves from init, so the blank imports in cmd/memoryd decide what
// a configuration may name.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = newRegistry()

func newRegistry() *registry {
	return &registry{byID: make(map[ModuleID]ModuleInfo)}
}

func (r *registry) add(info ModuleInfo) error {
	switch {
	case info.ID == "":
		return fmt.Errorf("module ID must not be empty")
	case info.ID.Namespace() == string(info.ID):
		return fmt.Errorf("module %s: ID must be namespaced, e.g. memory.%s", info.ID, info.ID)
	case info.New == nil:
		return fmt.Errorf("module %s: New function must not be nil", info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[info.ID]; exists {
		return fmt.Errorf("module already registered: %s", info.ID)
	}
	r.byID[info.ID] = info
	return nil
}

func (r *registry) get(id ModuleID) (ModuleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[id]
	return info, ok
}

func (r *registry) list() []ModuleInfo {
	r.mu.RLock()
	out := make([]ModuleInfo, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, info)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// RegisterModule registers a module from its init function. It panics on
// an invalid or duplicate ID, which is a programming error.
func RegisterModule(instance Module) {
	if err := modules.add(instance.ModuleInfo()); err != nil {
		panic(err)
	}
}

// GetModule returns the ModuleInfo for the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	return modules.get(ModuleID(id))
}

// GetModules returns all compiled-in modules sorted by ID.
func GetModules() []ModuleInfo {
	return modules.list()
}

// resetRegistry swaps in an empty registry for the duration of a test.
func resetRegistry(t interface{ Cleanup(func()) }) {
	saved := modules
	modules = newRegistry()
	t.Cleanup(func() { modules = saved })
}
