package scheduler

import (
	"context"
	"sort"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/dag"
)

// Schedule is the computed startup order.
type Schedule struct {
	// Order lists every module exactly once: acyclic modules first, then
	// Cyclic.
	Order []string
	// Cyclic lists the modules that could not be ordered topologically.
	Cyclic []string
}

// Order computes the startup order of every node in g.
func Order(ctx context.Context, g *dag.Graph) Schedule {
	logger := ctxlog.FromContext(ctx)

	nodes := g.Nodes()
	visited := make(map[string]bool, len(nodes))
	order := make([]string, 0, len(nodes))

	var layer []string
	for _, id := range nodes {
		deps, _ := g.Dependencies(id)
		if len(deps) == 0 {
			layer = append(layer, id)
		}
	}

	for depth := 0; len(layer) > 0; depth++ {
		var next []string
		queued := make(map[string]bool)
		progressed := false

		for _, id := range layer {
			if visited[id] || !dependenciesVisited(g, id, visited) {
				continue
			}
			visited[id] = true
			order = append(order, id)
			progressed = true

			dependents, _ := g.Dependents(id)
			for _, dep := range dependents {
				if !visited[dep] && !queued[dep] {
					queued[dep] = true
					next = append(next, dep)
				}
			}
		}

		if !progressed {
			break
		}
		logger.Debug("Scheduled layer.", "depth", depth, "order_len", len(order))
		layer = next
	}

	var cyclic []string
	for _, id := range nodes {
		if !visited[id] {
			cyclic = append(cyclic, id)
		}
	}
	if len(cyclic) > 0 {
		sort.Strings(cyclic)
		logger.Warn("Dependency cycle detected, appending modules to the end of the startup order.", "modules", cyclic)
		order = append(order, cyclic...)
	}

	return Schedule{Order: order, Cyclic: cyclic}
}

func dependenciesVisited(g *dag.Graph, id string, visited map[string]bool) bool {
	deps, _ := g.Dependencies(id)
	for _, dep := range deps {
		if !visited[dep] {
			return false
		}
	}
	return true
}
