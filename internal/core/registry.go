package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// catalog maps module IDs to their constructors. Modules add themselves
// from init() in their package, and cmd/pagesmith pulls them in with
// blank imports.
type catalog struct {
	mu    sync.RWMutex
	infos map[ModuleID]ModuleInfo
}

var compiled = &catalog{infos: make(map[ModuleID]ModuleInfo)}

func (c *catalog) add(info ModuleInfo) error {
	if err := checkModuleID(info.ID); err != nil {
		return err
	}
	if info.New == nil {
		return fmt.Errorf("module %s: New function must not be nil", info.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.infos[info.ID]; exists {
		return fmt.Errorf("module already registered: %s", info.ID)
	}
	c.infos[info.ID] = info
	return nil
}

// checkModuleID requires a "namespace.name" identifier, as used in the
// "modules" section of the configuration.
func checkModuleID(id ModuleID) error {
	if id == "" {
		return fmt.Errorf("module ID must not be empty")
	}
	ns, name, ok := strings.Cut(string(id), ".")
	if !ok || ns == "" || name == "" {
		return fmt.Errorf("module ID %q must have the form namespace.name", id)
	}
	return nil
}

// RegisterModule adds a module to the compiled-in catalog. It panics on an
// invalid or duplicate ID, which can only happen at init time.
func RegisterModule(instance Module) {
	if err := compiled.add(instance.ModuleInfo()); err != nil {
		panic(err.Error())
	}
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	compiled.mu.RLock()
	defer compiled.mu.RUnlock()
	info, ok := compiled.infos[ModuleID(id)]
	return info, ok
}

// GetModules returns all compiled-in modules sorted by ID.
func GetModules() []ModuleInfo {
	compiled.mu.RLock()
	defer compiled.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(compiled.infos))
	result := make([]ModuleInfo, len(ids))
	for i, id := range ids {
		result[i] = compiled.infos[id]
	}
	return result
}

// resetRegistry clears the catalog. Only for testing.
func resetRegistry() {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	compiled.infos = make(map[ModuleID]ModuleInfo)
}
