package toml_adapter

import (
	"testing"
	"time"

	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	ctx, _ := testutil.Context(t)

	dir := testutil.WriteFiles(t, map[string]string{
		"ldem.toml": `
[app]
ack_timeout = "3s"
allow_publishing_without_alias = true

[app.redirects]
special = "one"

[modules.one]
type = "one"
respawn_delay = "1s"

[modules.one.config]
number = 7

[modules.two]
type = "two"
base = "one"
enabled = false
`,
	})

	model, err := NewLoader().Load(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, model.AckTimeout)
	assert.True(t, model.AllowPublishingWithoutAlias)
	assert.Equal(t, "one", model.Redirects.Resolve("special"))

	require.Contains(t, model.Modules, "one")
	assert.True(t, model.Modules["one"].Enabled)
	assert.Equal(t, time.Second, model.Modules["one"].RespawnDelay)
	assert.Equal(t, int64(7), model.Modules["one"].Config["number"])

	require.Contains(t, model.Modules, "two")
	assert.False(t, model.Modules["two"].Enabled)
	assert.Equal(t, "one", model.Modules["two"].Base)
}

func TestLoader_InvalidDuration(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"ldem.toml": "[app]\nipc_timeout = \"later\"\n",
	})

	_, err := NewLoader().Load(ctx, dir)
	assert.ErrorContains(t, err, "invalid ipc_timeout")
}
