package config

import (
	"sort"
	"strings"
)

// ResolveInheritance flattens every module's `base` chain into its Config.
// A module's own values win over the values it inherits. Chains are walked
// iteratively with a visited set, so a cycle is reported instead of
// recursing forever.
func ResolveInheritance(m *Model) error {
	resolved := make(map[string]map[string]any, len(m.Modules))

	aliases := make([]string, 0, len(m.Modules))
	for alias := range m.Modules {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		if _, done := resolved[alias]; done {
			continue
		}

		// Walk up the chain until a root or an already-resolved ancestor.
		var chain []string
		visited := make(map[string]bool)
		current := alias
		for {
			if visited[current] {
				chain = append(chain, current)
				return &ConfigError{
					Module: alias,
					Reason: "cyclic config inheritance: " + strings.Join(chain, " -> "),
				}
			}
			visited[current] = true
			chain = append(chain, current)

			d, ok := m.Modules[current]
			if !ok {
				return &ConfigError{Module: chain[len(chain)-2], Reason: "unknown base module " + current}
			}
			if _, done := resolved[current]; done || d.Base == "" {
				break
			}
			current = d.Base
		}

		// Fold from the top of the chain down to the requested module.
		var inherited map[string]any
		top := chain[len(chain)-1]
		if r, done := resolved[top]; done {
			inherited = r
		} else {
			inherited = CloneMap(m.Modules[top].Config)
			resolved[top] = inherited
		}
		for i := len(chain) - 2; i >= 0; i-- {
			name := chain[i]
			inherited = Merge(inherited, m.Modules[name].Config)
			resolved[name] = inherited
		}
	}

	for alias, cfg := range resolved {
		m.Modules[alias].Config = cfg
	}
	return nil
}
