package tool

import (
	"fmt"
	"slices"
	"strings"
)

// Access is the outcome of a policy check.
type Access string

const (
	// AccessAllow permits the invocation.
	AccessAllow Access = "allow"

	// AccessDeny blocks the invocation.
	AccessDeny Access = "deny"
)

// Policy decides which tools may run. The zero value allows everything.
type Policy struct {
	// Default is the fallback for tools not explicitly listed.
	Default Access `yaml:"default"`

	// ReadOnly denies every write tool that is not explicitly allowed.
	ReadOnly bool `yaml:"read_only"`

	// Allow lists tools that may always run.
	Allow []string `yaml:"allow"`

	// Deny lists tools that must never run.
	Deny []string `yaml:"deny"`
}

// Resolve returns the effective access for t.
// Resolution order: explicit lists > read-only mode > default.
func (p Policy) Resolve(t Tool) Access {
	name := strings.TrimSpace(t.Name())
	if inList(p.Deny, name) {
		return AccessDeny
	}
	if inList(p.Allow, name) {
		return AccessAllow
	}
	if p.ReadOnly && t.SideEffect() == SideEffectWrite {
		return AccessDeny
	}
	if p.Default != "" {
		return p.Default
	}
	return AccessAllow
}

// Validate checks the default level and that no tool is both allowed and
// denied.
func (p Policy) Validate() error {
	switch p.Default {
	case "", AccessAllow, AccessDeny:
	default:
		return fmt.Errorf("tool policy: invalid default %q", p.Default)
	}
	for _, list := range [][]string{p.Allow, p.Deny} {
		for _, name := range list {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("tool policy: list contains empty tool name")
			}
		}
	}
	for _, name := range p.Allow {
		if inList(p.Deny, strings.TrimSpace(name)) {
			return fmt.Errorf("%w: %q", ErrToolInMultipleLists, name)
		}
	}
	return nil
}

func inList(list []string, name string) bool {
	return slices.ContainsFunc(list, func(c string) bool {
		return strings.TrimSpace(c) == name
	})
}
