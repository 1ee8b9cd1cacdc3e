package module

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBind(t *testing.T) {
	var p struct {
		Name string `json:"name"`
	}

	req := &Request{Action: "greeting", Params: json.RawMessage(`{"name":"two"}`)}
	require.NoError(t, req.Bind(&p))
	assert.Equal(t, "two", p.Name)

	empty := &Request{Action: "greeting"}
	assert.NoError(t, empty.Bind(&p))

	bad := &Request{Action: "greeting", Params: json.RawMessage(`[`)}
	err := bad.Bind(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greeting")
}
