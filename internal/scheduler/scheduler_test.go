package scheduler

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/Capitalisk/ldem/internal/dag"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGraph creates a graph from a module -> dependencies map.
func buildGraph(t *testing.T, deps map[string][]string) *dag.Graph {
	t.Helper()
	g := dag.New()
	for id := range deps {
		g.AddNode(id)
	}
	for id, ds := range deps {
		for _, d := range ds {
			require.NoError(t, g.AddEdge(d, id))
		}
	}
	return g
}

func TestOrder(t *testing.T) {
	t.Run("chain of dependencies", func(t *testing.T) {
		ctx, logs := testutil.Context(t)
		g := buildGraph(t, map[string][]string{
			"A": {},
			"B": {"A"},
			"C": {"A", "B"},
		})

		s := Order(ctx, g)

		assert.Equal(t, []string{"A", "B", "C"}, s.Order)
		assert.Empty(t, s.Cyclic)
		assert.NotContains(t, logs.String(), "cycle")
	})

	t.Run("cycle is appended after acyclic modules", func(t *testing.T) {
		ctx, logs := testutil.Context(t)
		g := buildGraph(t, map[string][]string{
			"A": {},
			"B": {"A"},
			"C": {"A", "B", "D"},
			"D": {"C"},
		})

		s := Order(ctx, g)

		require.Len(t, s.Order, 4)
		assert.Equal(t, []string{"A", "B"}, s.Order[:2])
		assert.ElementsMatch(t, []string{"C", "D"}, s.Order[2:])
		assert.Equal(t, []string{"C", "D"}, s.Cyclic)
		assert.Contains(t, logs.String(), "Dependency cycle detected")
		assert.Contains(t, logs.String(), "[C D]")
	})

	t.Run("empty graph", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		s := Order(ctx, dag.New())
		assert.Empty(t, s.Order)
	})

	t.Run("order is stable between runs", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		deps := map[string][]string{
			"x": {"y"},
			"y": {"x"},
			"z": {},
			"w": {"z"},
		}
		first := Order(ctx, buildGraph(t, deps))
		for i := 0; i < 10; i++ {
			assert.Equal(t, first.Order, Order(ctx, buildGraph(t, deps)).Order)
		}
	})
}

func TestOrder_RespectsDependencies(t *testing.T) {
	ctx, _ := testutil.Context(t)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 25; round++ {
		// Random DAG: a module may only depend on modules with a lower index.
		n := 2 + rng.Intn(12)
		deps := make(map[string][]string, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("m%02d", i)
			deps[id] = nil
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps[id] = append(deps[id], fmt.Sprintf("m%02d", j))
				}
			}
		}

		s := Order(ctx, buildGraph(t, deps))

		require.Len(t, s.Order, n)
		require.Empty(t, s.Cyclic)
		position := make(map[string]int, n)
		for i, id := range s.Order {
			position[id] = i
		}
		for id, ds := range deps {
			for _, d := range ds {
				assert.Less(t, position[d], position[id], "%s must start after %s", id, d)
			}
		}
	}
}
