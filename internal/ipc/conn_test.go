package ipc

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Capitalisk/ldem/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePair returns two connected Conns.
func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewConn(ar, aw, aw)
	b := NewConn(br, bw, bw)
	t.Cleanup(func() {
		_ = aw.Close()
		_ = bw.Close()
	})
	a.Start()
	b.Start()
	return a, b
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"event":"x"}`)))
	require.NoError(t, WriteFrame(&buf, nil))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"x"}`, string(first))

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, second)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	raw := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestConn(t *testing.T) {
	t.Run("await receives a message sent later", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		master, worker := pipePair(t)

		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = worker.Send(EventWorkerHandshake, WorkerHandshake{Dependencies: []string{"one"}, Declared: true})
		}()

		msg, err := master.Await(ctx, EventWorkerHandshake, time.Second)
		require.NoError(t, err)
		var hs WorkerHandshake
		require.NoError(t, msg.Decode(&hs))
		assert.Equal(t, []string{"one"}, hs.Dependencies)
		assert.True(t, hs.Declared)
	})

	t.Run("messages arriving before await are backlogged", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		master, worker := pipePair(t)

		require.NoError(t, worker.Send(EventModuleReady, nil))
		require.NoError(t, worker.Send(EventWorkerHandshake, WorkerHandshake{}))

		// Await out of order.
		_, err := master.Await(ctx, EventWorkerHandshake, time.Second)
		require.NoError(t, err)
		msg, err := master.Await(ctx, EventModuleReady, time.Second)
		require.NoError(t, err)
		assert.Equal(t, EventModuleReady, msg.Event)
	})

	t.Run("timeout", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		master, _ := pipePair(t)

		_, err := master.Await(ctx, EventModuleReady, 20*time.Millisecond)
		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, EventModuleReady, timeoutErr.Event)
		assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)
	})

	t.Run("handler receives backlog and later messages", func(t *testing.T) {
		master, worker := pipePair(t)

		require.NoError(t, worker.Send(EventActivateUpdate, UpdatePacket{}))
		// Make sure the first message sits in the backlog.
		ctx, _ := testutil.Context(t)
		require.NoError(t, worker.Send(EventModuleReady, nil))
		_, err := master.Await(ctx, EventModuleReady, time.Second)
		require.NoError(t, err)

		got := make(chan Message, 2)
		master.Handle(EventActivateUpdate, func(m Message) { got <- m })
		require.NoError(t, worker.Send(EventActivateUpdate, UpdatePacket{}))

		for i := 0; i < 2; i++ {
			select {
			case m := <-got:
				assert.Equal(t, EventActivateUpdate, m.Event)
			case <-time.After(time.Second):
				t.Fatal("handler was not called")
			}
		}
	})

	t.Run("closing the peer ends pending waits", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		master, worker := pipePair(t)

		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = worker.Close()
		}()

		_, err := master.Await(ctx, EventModuleReady, 0)
		assert.ErrorIs(t, err, ErrClosed)
		<-master.Done()
		assert.NoError(t, master.Err())
	})
}
