package credentials

import (
	"sort"
	"strings"

	"flowseed/internal/apperr"
	"flowseed/internal/config"
)

// Registry resolves aliases and canonical type names to definitions. It is the only
// place alias matching happens.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

// NewRegistry builds a registry from the catalog and the configured secrets.
func NewRegistry(keys config.CredentialKeys) *Registry {
	return NewRegistryFromDefinitions(BuildDefinitions(keys))
}

func NewRegistryFromDefinitions(defs []Definition) *Registry {
	r := &Registry{
		defs:   defs,
		byName: make(map[string]int),
	}
	for i, def := range defs {
		r.byName[strings.ToLower(def.Name)] = i
		for _, alias := range def.Aliases {
			key := strings.ToLower(alias)
			if _, taken := r.byName[key]; !taken {
				r.byName[key] = i
			}
		}
	}
	return r
}

// Resolve matches aliasOrType case-insensitively against canonical names and aliases.
func (r *Registry) Resolve(aliasOrType string) (Definition, bool) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(aliasOrType))]
	if !ok {
		return Definition{}, false
	}
	return r.defs[idx], true
}

// ValidateAliases fails with one error naming every unknown alias.
func (r *Registry) ValidateAliases(aliases []string) error {
	var unknown []string
	seen := make(map[string]bool)
	for _, alias := range aliases {
		if _, ok := r.Resolve(alias); ok || seen[alias] {
			continue
		}
		seen[alias] = true
		unknown = append(unknown, alias)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apperr.Validation("unknown credential aliases", unknown)
	}
	return nil
}

// Definitions returns every known definition in catalog order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// CanonicalNames returns every known canonical type name in catalog order.
func (r *Registry) CanonicalNames() []string {
	names := make([]string, 0, len(r.defs))
	for _, def := range r.defs {
		names = append(names, def.Name)
	}
	return names
}
