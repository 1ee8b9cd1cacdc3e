package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/module"
	"github.com/Capitalisk/ldem/internal/registry"
	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/Capitalisk/ldem/internal/transport"
	"github.com/Capitalisk/ldem/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	module.Base
	deps     []string
	declared bool
	actions  map[string]module.Action
	load     func(ctx context.Context, lc *module.LoadContext) error
	unloaded chan struct{}
}

func (m *testModule) Dependencies() ([]string, bool)    { return m.deps, m.declared }
func (m *testModule) Actions() map[string]module.Action { return m.actions }

func (m *testModule) Load(ctx context.Context, lc *module.LoadContext) error {
	if m.load != nil {
		return m.load(ctx, lc)
	}
	return nil
}

func (m *testModule) Unload(context.Context) error {
	if m.unloaded != nil {
		close(m.unloaded)
	}
	return nil
}

func pipePair() (master, worker *ipc.Conn) {
	toWorkerR, toWorkerW := io.Pipe()
	toMasterR, toMasterW := io.Pipe()
	master = ipc.NewConn(toMasterR, toWorkerW, closers{toMasterR, toWorkerW})
	worker = ipc.NewConn(toWorkerR, toMasterW, closers{toWorkerR, toMasterW})
	return master, worker
}

func TestRun_Handshake(t *testing.T) {
	ctx, _ := testutil.Context(t)
	base := testutil.FreeBasePort(t, 1)

	app := config.NewModel()
	app.TransportBasePort = base
	app.Modules["one"] = &config.ModuleDescriptor{Alias: "one", Type: "echo", Enabled: true}

	loaded := make(chan *module.LoadContext, 1)
	unloaded := make(chan struct{})
	reg := registry.New()
	reg.RegisterModule("echo", func(alias string) module.Module {
		return &testModule{
			Base:     module.Base{ModuleAlias: alias},
			deps:     []string{},
			declared: true,
			actions: map[string]module.Action{
				"echo": {Handler: func(_ context.Context, req *module.Request) (any, error) {
					var s string
					if err := req.Bind(&s); err != nil {
						return nil, err
					}
					return s, nil
				}},
			},
			load: func(_ context.Context, lc *module.LoadContext) error {
				loaded <- lc
				return nil
			},
			unloaded: unloaded,
		}
	})

	master, workerConn := pipePair()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Alias: "one", Conn: workerConn, Registry: reg, IPCTimeout: 2 * time.Second})
	}()
	master.Start()

	pending := update.Update{ID: "u1", Module: "one", Change: map[string]any{"greeting": "hello"}}
	require.NoError(t, master.Send(ipc.EventMasterInit, ipc.MasterInit{
		AppConfig:    app,
		ModuleConfig: map[string]any{"greeting": "hi"},
		Updates:      []update.Update{pending},
	}))

	msg, err := master.Await(ctx, ipc.EventWorkerHandshake, 5*time.Second)
	require.NoError(t, err)
	var hs ipc.WorkerHandshake
	require.NoError(t, msg.Decode(&hs))
	assert.True(t, hs.Declared)
	assert.Empty(t, hs.Dependencies)
	assert.Equal(t, []string{"echo", "ping"}, hs.Actions)

	require.NoError(t, master.Send(ipc.EventMasterHandshake, ipc.MasterHandshake{
		Dependencies:       []string{},
		TargetDependencies: []string{},
		Dependents:         []string{"two"},
	}))
	_, err = master.Await(ctx, ipc.EventModuleReady, 5*time.Second)
	require.NoError(t, err)

	var lc *module.LoadContext
	select {
	case lc = <-loaded:
	case <-time.After(time.Second):
		t.Fatal("module was not loaded")
	}
	assert.Equal(t, "hi", lc.Config["greeting"])
	assert.Equal(t, []string{"two"}, lc.Dependents)
	assert.Equal(t, "one", lc.Channel.Alias())
	require.Len(t, lc.Updater.Updates(), 1)

	t.Run("actions are served on the transport", func(t *testing.T) {
		client, err := transport.Dial(ctx, transport.ClientOptions{
			Source:         "two",
			Target:         "one",
			URL:            fmt.Sprintf("http://127.0.0.1:%d", base),
			ConnectTimeout: time.Second,
		})
		require.NoError(t, err)
		defer client.Close()

		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		raw, err := client.Invoke(callCtx, "ping", transport.Envelope{IsWorkerAction: true})
		require.NoError(t, err)
		var pong PingResult
		require.NoError(t, json.Unmarshal(raw, &pong))
		assert.Equal(t, "one", pong.Alias)
		assert.Equal(t, "two", pong.Source)

		raw, err = client.Invoke(callCtx, "echo", transport.Envelope{Params: json.RawMessage(`"abc"`)})
		require.NoError(t, err)
		assert.JSONEq(t, `"abc"`, string(raw))
	})

	t.Run("updater talks to the master", func(t *testing.T) {
		require.NoError(t, lc.Updater.ActivateUpdate(ctx, pending))
		msg, err := master.Await(ctx, ipc.EventActivateUpdate, time.Second)
		require.NoError(t, err)
		var p ipc.UpdatePacket
		require.NoError(t, msg.Decode(&p))
		assert.Equal(t, "u1", p.Update.ID)

		refreshed := make(chan []update.Update, 1)
		go func() {
			list, err := lc.Updater.Refresh(ctx)
			if err == nil {
				refreshed <- list
			}
		}()
		_, err = master.Await(ctx, ipc.EventModuleUpdates, time.Second)
		require.NoError(t, err)
		second := update.Update{ID: "u2", Module: "one", Change: map[string]any{"x": 1}}
		require.NoError(t, master.Send(ipc.EventModuleUpdates, ipc.ModuleUpdates{Updates: []update.Update{pending, second}, ActiveUpdate: &pending}))

		select {
		case list := <-refreshed:
			assert.Len(t, list, 2)
		case <-time.After(2 * time.Second):
			t.Fatal("refresh did not complete")
		}
		active, ok := lc.Updater.ActiveUpdate()
		require.True(t, ok)
		assert.Equal(t, "u1", active.ID)

		require.NoError(t, lc.Updater.MergeActiveUpdate(ctx))
		_, err = master.Await(ctx, ipc.EventMergeActiveUpdate, time.Second)
		require.NoError(t, err)
		_, ok = lc.Updater.ActiveUpdate()
		assert.False(t, ok)
	})

	require.NoError(t, master.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the control plane closed")
	}
	select {
	case <-unloaded:
	default:
		t.Fatal("module was not unloaded")
	}
}

func TestRun_UnknownModuleType(t *testing.T) {
	ctx, _ := testutil.Context(t)

	app := config.NewModel()
	app.Modules["one"] = &config.ModuleDescriptor{Alias: "one", Type: "nope", Enabled: true}

	master, workerConn := pipePair()
	defer master.Close()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Alias: "one", Conn: workerConn, Registry: registry.New(), IPCTimeout: time.Second})
	}()
	master.Start()
	require.NoError(t, master.Send(ipc.EventMasterInit, ipc.MasterInit{AppConfig: app}))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown module type 'nope'")
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not fail")
	}
}
