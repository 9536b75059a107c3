package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// catalog holds every module compiled into the binary, keyed by ID.
var catalog = struct {
	sync.RWMutex
	byID map[string]ModuleInfo
}{byID: make(map[string]ModuleInfo)}

// RegisterModule adds a module to the catalog. Module packages call it from
// init. It panics on an empty or undotted ID, a nil constructor, or a
// duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	id := string(info.ID)
	switch {
	case id == "":
		panic("core: module ID must not be empty")
	case !strings.Contains(id, "."):
		panic(fmt.Sprintf("core: module %s: ID must be namespaced (namespace.name)", id))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s: New must not be nil", id))
	}

	catalog.Lock()
	defer catalog.Unlock()
	if _, dup := catalog.byID[id]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", id))
	}
	catalog.byID[id] = info
}

// GetModule looks up a compiled module by ID.
func GetModule(id string) (ModuleInfo, bool) {
	catalog.RLock()
	defer catalog.RUnlock()
	info, ok := catalog.byID[id]
	return info, ok
}

// GetModules returns every compiled module ordered by ID.
func GetModules() []ModuleInfo {
	catalog.RLock()
	defer catalog.RUnlock()
	out := make([]ModuleInfo, 0, len(catalog.byID))
	for _, id := range slices.Sorted(maps.Keys(catalog.byID)) {
		out = append(out, catalog.byID[id])
	}
	return out
}

// Namespaces groups the compiled module IDs by namespace, each group
// ordered by ID. Callers use it to offer the available engines and stores.
func Namespaces() map[string][]ModuleID {
	out := make(map[string][]ModuleID)
	for _, info := range GetModules() {
		ns := info.ID.Namespace()
		out[ns] = append(out[ns], info.ID)
	}
	return out
}

func resetRegistry() {
	catalog.Lock()
	defer catalog.Unlock()
	catalog.byID = make(map[string]ModuleInfo)
}
