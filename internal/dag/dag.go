package dag

import (
	"fmt"
	"maps"
	"slices"
)

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		deps:       make(map[string]aliasSet),
		dependents: make(map[string]aliasSet),
	}
}

// AddNode adds a module. Adding a known alias again is a no-op.
func (g *Graph) AddNode(alias string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.deps[alias]; ok {
		return
	}
	g.deps[alias] = make(aliasSet)
	g.dependents[alias] = make(aliasSet)
}

// AddEdge records that dependent depends on dependency. Both modules must
// already be in the graph and a module cannot depend on itself.
func (g *Graph) AddEdge(dependency, dependent string) error {
	if dependency == dependent {
		return fmt.Errorf("module %s cannot depend on itself", dependent)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.deps[dependency]; !ok {
		return fmt.Errorf("dependency %s: %w", dependency, ErrUnknownModule)
	}
	if _, ok := g.deps[dependent]; !ok {
		return fmt.Errorf("dependent %s: %w", dependent, ErrUnknownModule)
	}
	g.deps[dependent][dependency] = struct{}{}
	g.dependents[dependency][dependent] = struct{}{}
	return nil
}

// Nodes returns every alias, sorted.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.deps))
}

// Dependencies returns the sorted aliases alias depends on.
func (g *Graph) Dependencies(alias string) ([]string, error) {
	return g.lookup(g.deps, alias)
}

// Dependents returns the sorted aliases depending on alias.
func (g *Graph) Dependents(alias string) ([]string, error) {
	return g.lookup(g.dependents, alias)
}

func (g *Graph) lookup(edges map[string]aliasSet, alias string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set, ok := edges[alias]
	if !ok {
		return nil, fmt.Errorf("%s: %w", alias, ErrUnknownModule)
	}
	return slices.Sorted(maps.Keys(set)), nil
}
