package core

// ModuleID is a dotted module identifier such as "store.notion".
// The first segment is the namespace.
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

// ModuleInfo describes a registrable module.
type ModuleInfo struct {
	// ID uniquely identifies the module.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every pagesmith module. Optional behaviour is
// discovered through the lifecycle interfaces (Configurable, Provisioner,
// Validator, Starter, Stopper).
type Module interface {
	ModuleInfo() ModuleInfo
}
