package app

import (
	"encoding/json"
	"testing"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, m module.Module, action string, params string) any {
	t.Helper()
	ctx, _ := testutil.Context(t)

	a, ok := m.Actions()[action]
	require.True(t, ok, "action %s", action)
	req := &module.Request{Action: action, Source: "one"}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	res, err := a.Handler(ctx, req)
	require.NoError(t, err)
	return res
}

func TestApp_State(t *testing.T) {
	m := New("app")

	deps, declared := m.Dependencies()
	assert.True(t, declared)
	assert.Empty(t, deps)

	call(t, m, "updateModuleState", `{"one":{"hello":123}}`)
	call(t, m, "updateModuleState", `{"two":{"ready":true}}`)
	state := call(t, m, "getApplicationState", "")
	assert.Equal(t, map[string]any{
		"one": map[string]any{"hello": float64(123)},
		"two": map[string]any{"ready": true},
	}, state)

	call(t, m, "updateApplicationState", `{"three":{}}`)
	state = call(t, m, "getApplicationState", "")
	assert.Equal(t, map[string]any{"three": map[string]any{}}, state)
}

func TestApp_StateIsCopied(t *testing.T) {
	m := New("app")
	call(t, m, "updateModuleState", `{"one":1}`)

	state := call(t, m, "getApplicationState", "").(map[string]any)
	state["injected"] = true

	assert.NotContains(t, call(t, m, "getApplicationState", ""), "injected")
}

func TestApp_GetComponentConfig(t *testing.T) {
	ctx, _ := testutil.Context(t)

	model := config.NewModel()
	model.Modules["one"] = &config.ModuleDescriptor{Alias: "one", Type: "one", Enabled: true, Config: map[string]any{"interval": "1s"}}

	m := New("app")
	require.NoError(t, m.Load(ctx, &module.LoadContext{AppConfig: model}))

	assert.Equal(t, map[string]any{"interval": "1s"}, call(t, m, "getComponentConfig", `{"component":"one"}`))
	assert.Equal(t, map[string]any{}, call(t, m, "getComponentConfig", `{"component":"missing"}`))
}
