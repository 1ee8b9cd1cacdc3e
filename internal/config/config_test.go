package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectsResolve(t *testing.T) {
	r := Redirects{"special": "one", "one": "two"}

	assert.Equal(t, "one", r.Resolve("special"), "redirect applies once")
	assert.Equal(t, "two", r.Resolve("one"))
	assert.Equal(t, "app", r.Resolve("app"))
	assert.Equal(t, "x", Redirects(nil).Resolve("x"))
}

func TestApplyDefaults(t *testing.T) {
	m := &Model{}
	m.ApplyDefaults()

	assert.Equal(t, DefaultTargetAlias, m.DefaultTargetAlias)
	assert.Equal(t, DefaultIPCTimeout, m.IPCTimeout)
	assert.Equal(t, DefaultSubscribeTimeout, m.SubscribeTimeout)
	assert.Equal(t, DefaultTransportBasePort, m.TransportBasePort)
	assert.NotNil(t, m.Modules)
	assert.NotNil(t, m.Redirects)
}

func TestAliases(t *testing.T) {
	m := NewModel()
	m.Modules["b"] = &ModuleDescriptor{Alias: "b", Type: "b", Enabled: true}
	m.Modules["a"] = &ModuleDescriptor{Alias: "a", Entry: "/bin/a", Enabled: true}
	m.Modules["off"] = &ModuleDescriptor{Alias: "off", Type: "x", Enabled: false}
	m.Modules["empty"] = &ModuleDescriptor{Alias: "empty", Enabled: true}

	assert.Equal(t, []string{"a", "b"}, m.Aliases())
}

func TestMerge(t *testing.T) {
	base := map[string]any{
		"a": 1,
		"nested": map[string]any{
			"x": "keep",
			"y": "replace",
		},
		"gone": true,
	}
	overlay := map[string]any{
		"nested": map[string]any{"y": "new"},
		"gone":   nil,
		"b":      2,
	}

	out := Merge(base, overlay)

	assert.Equal(t, map[string]any{
		"a":      1,
		"b":      2,
		"nested": map[string]any{"x": "keep", "y": "new"},
	}, out)
	assert.Equal(t, "replace", base["nested"].(map[string]any)["y"], "base must not be modified")
	assert.Contains(t, base, "gone")
}

func TestResolveInheritance(t *testing.T) {
	t.Run("chain is flattened with own values winning", func(t *testing.T) {
		m := NewModel()
		m.Modules["root"] = &ModuleDescriptor{Alias: "root", Config: map[string]any{"a": 1, "b": 1}}
		m.Modules["mid"] = &ModuleDescriptor{Alias: "mid", Base: "root", Config: map[string]any{"b": 2, "c": 2}}
		m.Modules["leaf"] = &ModuleDescriptor{Alias: "leaf", Base: "mid", Config: map[string]any{"c": 3}}

		require.NoError(t, ResolveInheritance(m))

		assert.Equal(t, map[string]any{"a": 1, "b": 1}, m.Modules["root"].Config)
		assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 2}, m.Modules["mid"].Config)
		assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, m.Modules["leaf"].Config)
	})

	t.Run("cycle is a config error", func(t *testing.T) {
		m := NewModel()
		m.Modules["a"] = &ModuleDescriptor{Alias: "a", Base: "b"}
		m.Modules["b"] = &ModuleDescriptor{Alias: "b", Base: "a"}

		err := ResolveInheritance(m)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Contains(t, err.Error(), "cyclic config inheritance")
	})

	t.Run("unknown base is a config error", func(t *testing.T) {
		m := NewModel()
		m.Modules["a"] = &ModuleDescriptor{Alias: "a", Base: "missing"}

		err := ResolveInheritance(m)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "a", cfgErr.Module)
		assert.Contains(t, err.Error(), "unknown base module missing")
	})
}
