package registry

import (
	"context"
	"testing"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	module.Base
}

func (m *stubModule) Dependencies() ([]string, bool)                  { return nil, false }
func (m *stubModule) Actions() map[string]module.Action               { return nil }
func (m *stubModule) Load(context.Context, *module.LoadContext) error { return nil }

type stubRegistrar struct{}

func (stubRegistrar) Register(r *Registry) {
	r.RegisterModule("stub", func(alias string) module.Module {
		return &stubModule{Base: module.Base{ModuleAlias: alias}}
	})
}

func TestRegistry(t *testing.T) {
	r := New(stubRegistrar{})
	assert.Equal(t, []string{"stub"}, r.Types())

	m, err := r.New("stub", "one")
	require.NoError(t, err)
	assert.Equal(t, "one", m.Alias())

	_, err = r.New("missing", "one")
	assert.Error(t, err)

	assert.Panics(t, func() { stubRegistrar{}.Register(r) })
}

func TestValidate(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := New(stubRegistrar{})

	m := config.NewModel()
	m.Modules["one"] = &config.ModuleDescriptor{Alias: "one", Type: "stub", Enabled: true}
	m.Modules["ext"] = &config.ModuleDescriptor{Alias: "ext", Entry: "/usr/bin/ext", Enabled: true}
	m.Modules["off"] = &config.ModuleDescriptor{Alias: "off", Type: "nope", Enabled: false}
	require.NoError(t, r.Validate(ctx, m))

	m.Modules["two"] = &config.ModuleDescriptor{Alias: "two", Type: "nope", Enabled: true}
	err := r.Validate(ctx, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module 'two'")
}
