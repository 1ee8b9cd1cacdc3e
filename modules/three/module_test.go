package three

import (
	"testing"

	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThree_Contract(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := New("three").(*Three)

	deps, declared := m.Dependencies()
	assert.True(t, declared)
	assert.Equal(t, []string{"two", "special"}, deps)

	m.greeting = "Hello, this is module one"
	res, err := m.Actions()["lastGreeting"].Handler(ctx, &module.Request{Action: "lastGreeting"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, this is module one", res)
}
