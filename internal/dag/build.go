package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
)

// ModuleInfo is what a worker reports about its dependencies during the
// handshake.
type ModuleInfo struct {
	Alias        string
	Dependencies []string
	// Declared is false when the module did not declare any dependency list,
	// which means it depends on every other enabled module.
	Declared bool
}

// Resolution is the outcome of Build.
type Resolution struct {
	Graph *Graph
	// Dependencies holds each module's dependency list as declared (or the
	// implicit list of all other modules).
	Dependencies map[string][]string
	// TargetDependencies holds each module's redirect-resolved, de-duplicated
	// dependencies.
	TargetDependencies map[string][]string
	// Dependents is the reverse of TargetDependencies.
	Dependents map[string][]string
}

// DependencyResolutionError reports a declared dependency that does not name
// an enabled module after redirect resolution. It is fatal at startup.
type DependencyResolutionError struct {
	Module     string
	Dependency string
	Target     string
}

func (e *DependencyResolutionError) Error() string {
	if e.Target != e.Dependency {
		return fmt.Sprintf("could not find dependency %s (redirected to %s) required by the %s module", e.Dependency, e.Target, e.Module)
	}
	return fmt.Sprintf("could not find dependency %s required by the %s module", e.Dependency, e.Module)
}

// Build resolves every module's dependencies through the redirect table,
// validates them and builds the dependency graph and dependents map.
func Build(ctx context.Context, modules []ModuleInfo, redirects config.Redirects) (*Resolution, error) {
	logger := ctxlog.FromContext(ctx)

	sorted := make([]ModuleInfo, len(modules))
	copy(sorted, modules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Alias < sorted[j].Alias })

	known := make(map[string]bool, len(sorted))
	aliases := make([]string, 0, len(sorted))
	for _, m := range sorted {
		known[m.Alias] = true
		aliases = append(aliases, m.Alias)
	}

	res := &Resolution{
		Graph:              New(),
		Dependencies:       make(map[string][]string, len(sorted)),
		TargetDependencies: make(map[string][]string, len(sorted)),
		Dependents:         make(map[string][]string, len(sorted)),
	}
	for _, alias := range aliases {
		res.Graph.AddNode(alias)
		res.Dependents[alias] = []string{}
	}

	for _, m := range sorted {
		declared := m.Dependencies
		if !m.Declared {
			declared = make([]string, 0, len(aliases)-1)
			for _, other := range aliases {
				if other != m.Alias {
					declared = append(declared, other)
				}
			}
		}
		res.Dependencies[m.Alias] = declared

		targets, err := ResolveTargets(m.Alias, declared, redirects, known)
		if err != nil {
			return nil, err
		}
		if len(targets) < len(declared) {
			logger.Debug("Dependencies collapsed by redirects or duplicates.", "module", m.Alias, "declared", declared, "targets", targets)
		}
		res.TargetDependencies[m.Alias] = targets

		for _, dep := range targets {
			if err := res.Graph.AddEdge(dep, m.Alias); err != nil {
				return nil, err
			}
			res.Dependents[dep] = append(res.Dependents[dep], m.Alias)
		}
	}

	logger.Debug("Dependency graph built.", "modules", len(aliases))
	return res, nil
}

// ResolveTargets maps declared dependencies to canonical aliases with a
// single redirect lookup each. Every target must be in known. Duplicates and
// self-references produced by redirects are dropped.
func ResolveTargets(alias string, declared []string, redirects config.Redirects, known map[string]bool) ([]string, error) {
	seen := make(map[string]bool, len(declared))
	targets := make([]string, 0, len(declared))
	for _, dep := range declared {
		target := redirects.Resolve(dep)
		if !known[target] {
			return nil, &DependencyResolutionError{Module: alias, Dependency: dep, Target: target}
		}
		if target == alias || seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return targets, nil
}
