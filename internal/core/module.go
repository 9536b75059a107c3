package core

// ModuleID is a dotted, namespaced module identifier such as "engine.anthropic"
// or "storage.sqlite". The segment before the first dot is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Module is the minimal contract every pluggable component satisfies.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a registered module and how to build a fresh instance.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}
