package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedError struct{}

func (namedError) Error() string     { return "block not found" }
func (namedError) ErrorName() string { return "BlockNotFoundError" }

func testDispatcher() *Dispatcher {
	return NewDispatcher(
		map[string]Procedure{
			"getBlock": {
				IsPublic: true,
				Handler: func(ctx context.Context, req *Request) (any, error) {
					var p struct{ Height int }
					if err := json.Unmarshal(req.Params, &p); err != nil {
						return nil, err
					}
					return map[string]any{"height": p.Height, "source": req.Source}, nil
				},
			},
			"secret": {
				Handler: func(ctx context.Context, req *Request) (any, error) { return "s3cr3t", nil },
			},
			"missing": {
				IsPublic: true,
				Handler:  func(ctx context.Context, req *Request) (any, error) { return nil, namedError{} },
			},
			"explode": {
				IsPublic: true,
				Handler:  func(ctx context.Context, req *Request) (any, error) { panic("boom") },
			},
		},
		map[string]Procedure{
			"ping": {Handler: func(ctx context.Context, req *Request) (any, error) { return "pong", nil }},
		},
	)
}

func TestDispatcher(t *testing.T) {
	d := testDispatcher()

	t.Run("names cover actions and worker actions", func(t *testing.T) {
		assert.Equal(t, []string{"explode", "getBlock", "missing", "ping", "secret"}, d.Names())
	})

	t.Run("calls the handler", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "getBlock", Envelope{Params: json.RawMessage(`{"Height":7}`)})
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `{"height":7,"source":"two"}`, string(resp.Data))
	})

	t.Run("public intent against a private action is rejected", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "secret", Envelope{IsPublic: true})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidActionName, resp.Error.Name)
		assert.Nil(t, resp.Data)

		resp = d.Dispatch(ctx, "two", "secret", Envelope{})
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `"s3cr3t"`, string(resp.Data))
	})

	t.Run("unknown action", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "nope", Envelope{})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidActionName, resp.Error.Name)
	})

	t.Run("worker actions are separate from module actions", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "ping", Envelope{IsWorkerAction: true})
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `"pong"`, string(resp.Data))

		resp = d.Dispatch(ctx, "two", "ping", Envelope{})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidActionName, resp.Error.Name)
	})

	t.Run("handler errors keep their name", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "missing", Envelope{IsPublic: true})
		require.NotNil(t, resp.Error)
		assert.Equal(t, "BlockNotFoundError", resp.Error.Name)
		assert.Equal(t, "block not found", resp.Error.Message)

		var named Named
		require.True(t, errors.As(error(resp.Error), &named))
	})

	t.Run("panics are recovered and the stack is stripped for public calls", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		resp := d.Dispatch(ctx, "two", "explode", Envelope{IsPublic: true})
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Message, "boom")
		assert.Empty(t, resp.Error.Stack)

		resp = d.Dispatch(ctx, "two", "explode", Envelope{})
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Stack, "goroutine")
	})
}

func TestAddressBook(t *testing.T) {
	book := NewAddressBook("127.0.0.1", 47100, []string{"two", "app", "one", "two"})

	addr, err := book.Addr("app")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:47100", addr)

	u, err := book.URL("two")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:47102", u)

	_, err = book.Addr("three")
	assert.Error(t, err)
}
