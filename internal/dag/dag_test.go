package dag

import (
	"errors"
	"testing"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph(t *testing.T) {
	g := New()
	assert.Empty(t, g.Nodes())

	g.AddNode("b")
	g.AddNode("a")
	g.AddNode("a")
	assert.Equal(t, []string{"a", "b"}, g.Nodes())

	deps, err := g.Dependencies("a")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")

		require.NoError(t, g.AddEdge("a", "b")) // b depends on a
		require.NoError(t, g.AddEdge("a", "c"))
		require.NoError(t, g.AddEdge("a", "c"))

		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorIs(t, err, ErrUnknownModule)
		assert.ErrorContains(t, err, "dependency dne")

		err = g.AddEdge("a", "dne")
		assert.ErrorIs(t, err, ErrUnknownModule)
		assert.ErrorContains(t, err, "dependent dne")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "cannot depend on itself")

		_, err = g.Dependencies("dne")
		assert.ErrorIs(t, err, ErrUnknownModule)
		_, err = g.Dependents("dne")
		assert.ErrorIs(t, err, ErrUnknownModule)
	})
}

func TestBuild(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("redirects are applied once and dependents are derived", func(t *testing.T) {
		modules := []ModuleInfo{
			{Alias: "app", Declared: true},
			{Alias: "one", Dependencies: []string{"app"}, Declared: true},
			{Alias: "two", Dependencies: []string{"one", "other"}, Declared: true},
			{Alias: "three", Dependencies: []string{"two", "special"}, Declared: true},
		}
		redirects := config.Redirects{"special": "one", "other": "one"}

		res, err := Build(ctx, modules, redirects)
		require.NoError(t, err)

		assert.Equal(t, []string{"one", "other"}, res.Dependencies["two"])
		assert.Equal(t, []string{"one"}, res.TargetDependencies["two"])
		assert.Equal(t, []string{"two", "one"}, res.TargetDependencies["three"])
		assert.Equal(t, []string{"three", "two"}, res.Dependents["one"])
		assert.Equal(t, []string{"one"}, res.Dependents["app"])
		assert.Empty(t, res.Dependents["three"])

		deps, err := res.Graph.Dependencies("three")
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, deps)
	})

	t.Run("undeclared dependencies mean every other module", func(t *testing.T) {
		modules := []ModuleInfo{
			{Alias: "a", Declared: true},
			{Alias: "b", Declared: true},
			{Alias: "c"},
		}

		res, err := Build(ctx, modules, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, res.TargetDependencies["c"])
		assert.Equal(t, []string{"c"}, res.Dependents["a"])
	})

	t.Run("redirect chains are not followed", func(t *testing.T) {
		modules := []ModuleInfo{
			{Alias: "a", Declared: true},
			{Alias: "b", Dependencies: []string{"x"}, Declared: true},
		}
		// x -> y is applied, y -> a is not.
		_, err := Build(ctx, modules, config.Redirects{"x": "y", "y": "a"})

		var resErr *DependencyResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, "b", resErr.Module)
		assert.Equal(t, "x", resErr.Dependency)
		assert.Equal(t, "y", resErr.Target)
	})

	t.Run("unknown dependency is rejected", func(t *testing.T) {
		modules := []ModuleInfo{
			{Alias: "a", Dependencies: []string{"ghost"}, Declared: true},
		}

		_, err := Build(ctx, modules, nil)
		assert.ErrorContains(t, err, "could not find dependency ghost required by the a module")
	})
}
