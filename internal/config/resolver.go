package config

import (
	"bytes"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Resolve returns the configured module IDs in load order. Modules load
// alphabetically, so "journal.sqlite" is provisioned before "store.notion"
// and "summarizer.openai" finds the store's client already published.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}

// ModuleDiff lists how the "modules" section changed between two loads.
type ModuleDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Restart reports whether the process must restart to apply the diff.
// Modules can be reconfigured in place but not loaded or unloaded.
func (d ModuleDiff) Restart() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// DiffModules compares the module sections of two configurations after
// environment expansion. Sections are compared by their encoded YAML, so a
// rotated ${NOTION_TOKEN} shows up as a change.
func DiffModules(prev, next *Config) ModuleDiff {
	var d ModuleDiff
	for _, id := range Resolve(next) {
		old, ok := prev.Modules[id]
		if !ok {
			d.Added = append(d.Added, id)
			continue
		}
		cur := next.Modules[id]
		if !sameNode(&old, &cur) {
			d.Changed = append(d.Changed, id)
		}
	}
	for _, id := range Resolve(prev) {
		if _, ok := next.Modules[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	return d
}

func sameNode(a, b *yaml.Node) bool {
	ea, errA := yaml.Marshal(a)
	eb, errB := yaml.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
