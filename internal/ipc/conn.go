package ipc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// MaxFrameSize bounds a single control-plane frame.
const MaxFrameSize = 16 << 20

// headerSize is the size of the big-endian length prefix of each frame.
const headerSize = 4

// ErrClosed is returned by Await when the connection ended before the
// awaited event arrived.
var ErrClosed = errors.New("ipc connection closed")

// TimeoutError is returned by Await when the event did not arrive in time.
type TimeoutError struct {
	Event   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Event)
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(payload), MaxFrameSize)
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", size, MaxFrameSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	return payload, nil
}

// Conn is one end of the control plane. After Start, a single goroutine reads
// frames and routes each message to, in order of preference, a pending Await
// call, a registered handler, or a backlog that later Await calls consume.
// Handlers run on the read goroutine and must not block.
type Conn struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer

	wmu sync.Mutex

	mu       sync.Mutex
	backlog  []Message
	waiters  map[string][]chan Message
	handlers map[string]func(Message)

	startOnce sync.Once
	done      chan struct{}
	err       error
}

// NewConn wraps a reader/writer pair. closer, if not nil, is closed by Close.
func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	return &Conn{
		r:        r,
		w:        w,
		closer:   closer,
		waiters:  make(map[string][]chan Message),
		handlers: make(map[string]func(Message)),
		done:     make(chan struct{}),
	}
}

// Send encodes payload and writes it as a single frame.
func (c *Conn) Send(event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", event, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := WriteFrame(c.w, raw); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Start launches the read loop. It is safe to call more than once.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

func (c *Conn) readLoop() {
	var err error
	defer func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		var raw []byte
		raw, err = ReadFrame(c.r)
		if err != nil {
			return
		}
		var msg Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			err = fmt.Errorf("malformed control message: %w", err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg Message) {
	c.mu.Lock()
	if ws := c.waiters[msg.Event]; len(ws) > 0 {
		ch := ws[0]
		c.waiters[msg.Event] = ws[1:]
		c.mu.Unlock()
		ch <- msg
		return
	}
	handler := c.handlers[msg.Event]
	if handler == nil {
		c.backlog = append(c.backlog, msg)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	handler(msg)
}

// Handle registers fn for every future message of the given event that is
// not claimed by an Await call. Messages already in the backlog for that
// event are delivered immediately.
func (c *Conn) Handle(event string, fn func(Message)) {
	c.mu.Lock()
	c.handlers[event] = fn
	var queued []Message
	kept := c.backlog[:0]
	for _, m := range c.backlog {
		if m.Event == event {
			queued = append(queued, m)
		} else {
			kept = append(kept, m)
		}
	}
	c.backlog = kept
	c.mu.Unlock()

	for _, m := range queued {
		fn(m)
	}
}

// Await waits for the next message of the given event. A zero timeout waits
// until ctx is done or the connection closes.
func (c *Conn) Await(ctx context.Context, event string, timeout time.Duration) (Message, error) {
	c.mu.Lock()
	for i, m := range c.backlog {
		if m.Event == event {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			c.mu.Unlock()
			return m, nil
		}
	}
	ch := make(chan Message, 1)
	c.waiters[event] = append(c.waiters[event], ch)
	c.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var err error
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer:
		err = &TimeoutError{Event: event, Timeout: timeout}
	case <-c.done:
		err = fmt.Errorf("%w while awaiting %s: %v", ErrClosed, event, c.Err())
	}

	// The message may have been delivered while we were giving up.
	c.removeWaiter(event, ch)
	select {
	case msg := <-ch:
		return msg, nil
	default:
		return Message{}, err
	}
}

func (c *Conn) removeWaiter(event string, ch chan Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := c.waiters[event]
	for i, w := range ws {
		if w == ch {
			c.waiters[event] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// Done is closed when the read loop ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.err, io.EOF) {
		return nil
	}
	return c.err
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
