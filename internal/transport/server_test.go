package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ctx context.Context) *Server {
	t.Helper()
	srv := NewServer(ctx, ServerOptions{
		Alias:       "one",
		Addr:        "127.0.0.1:0",
		BindTimeout: time.Second,
		Dispatcher:  testDispatcher(),
	})
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Close(shutdown)
	})
	return srv
}

func dialServer(t *testing.T, ctx context.Context, srv *Server, source string, d *Dispatcher) *Client {
	t.Helper()
	c, err := Dial(ctx, ClientOptions{
		Source:         source,
		Target:         "one",
		URL:            "http://" + srv.Addr(),
		ConnectTimeout: time.Second,
		Dispatcher:     d,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServerRPC(t *testing.T) {
	ctx, _ := testutil.Context(t)
	srv := startServer(t, ctx)
	client := dialServer(t, ctx, srv, "two", nil)

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := client.Invoke(callCtx, "getBlock", Envelope{Params: json.RawMessage(`{"Height":3}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"height":3,"source":"two"}`, string(data))

	_, err = client.Invoke(callCtx, "secret", Envelope{IsPublic: true})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, InvalidActionName, rpcErr.Name)

	// The connection stays usable after a failed call.
	data, err = client.Invoke(callCtx, "ping", Envelope{IsWorkerAction: true})
	require.NoError(t, err)
	assert.JSONEq(t, `"pong"`, string(data))
}

func TestServerPublish(t *testing.T) {
	ctx, _ := testutil.Context(t)
	srv := startServer(t, ctx)
	client := dialServer(t, ctx, srv, "two", nil)

	got := make(chan Publication, 4)
	subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Subscribe(subCtx, "one:testEvent", func(p Publication) { got <- p }))

	require.NoError(t, srv.Publish("one:testEvent", json.RawMessage(`{"n":1}`), nil))
	require.NoError(t, srv.Publish("one:otherEvent", json.RawMessage(`{"n":2}`), nil))

	select {
	case p := <-got:
		assert.Equal(t, "one:testEvent", p.Channel)
		assert.JSONEq(t, `{"n":1}`, string(p.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("publication was not delivered")
	}
	select {
	case p := <-got:
		t.Fatalf("unexpected publication on %s", p.Channel)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerInbound(t *testing.T) {
	ctx, _ := testutil.Context(t)
	srv := startServer(t, ctx)

	back := NewDispatcher(map[string]Procedure{
		"status": {IsPublic: true, Handler: func(ctx context.Context, req *Request) (any, error) { return "ok", nil }},
	}, nil)

	first := dialServer(t, ctx, srv, "two", back)
	subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, first.Subscribe(subCtx, "one:a", func(Publication) {}))

	peer, ok := srv.Inbound("two")
	require.True(t, ok)
	data, err := peer.Invoke(subCtx, "status", Envelope{IsPublic: true})
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(data))

	// A newer connection from the same source replaces the first one
	// without dropping the registry entry.
	second := dialServer(t, ctx, srv, "two", back)
	require.NoError(t, second.Subscribe(subCtx, "one:a", func(Publication) {}))
	require.Eventually(t, func() bool {
		p, ok := srv.Inbound("two")
		return ok && p.sock != peer.sock
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"two"}, srv.InboundAliases())

	// A peer disconnect purges it.
	require.NoError(t, second.Close())
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		_, ok := srv.Inbound("two")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServerRetriesAddressInUse(t *testing.T) {
	ctx, _ := testutil.Context(t)

	held, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := held.Addr().String()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = held.Close()
	}()

	srv := NewServer(ctx, ServerOptions{Alias: "one", Addr: addr, BindTimeout: 5 * time.Second})
	require.NoError(t, srv.Start(ctx))
	defer srv.Close(context.Background())
	assert.Equal(t, addr, srv.Addr())

	other := NewServer(ctx, ServerOptions{Alias: "one", Addr: addr, BindTimeout: 50 * time.Millisecond})
	err = other.Start(ctx)
	require.Error(t, err)
}
