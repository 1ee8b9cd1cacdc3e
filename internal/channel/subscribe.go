package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Capitalisk/ldem/internal/transport"
	"github.com/google/uuid"
)

// SubscriberID identifies the owner of a set of consumers.
type SubscriberID string

// NewSubscriberID mints a fresh subscriber id.
func NewSubscriberID() SubscriberID {
	return SubscriberID(uuid.NewString())
}

// Event is a publication received on a subscribed channel.
type Event struct {
	Channel string
	Data    json.RawMessage
	Info    json.RawMessage
}

// Handler consumes events of a subscribed channel. A returned error or a
// panic is reported on the channel's error stream; the handler keeps
// receiving events.
type Handler func(ctx context.Context, ev Event) error

// subscription is the shared transport subscription of one target channel.
type subscription struct {
	channel   string
	conn      Conn
	consumers []*consumer
	confirmed chan struct{}
	pending   bool
	isDone    bool
}

func (s *subscription) isConfirmed() bool {
	select {
	case <-s.confirmed:
		return true
	default:
		return false
	}
}

// consumer feeds one handler from an unbounded queue, so a slow handler
// never stalls delivery to the others.
type consumer struct {
	owner   SubscriberID
	handler Handler

	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newConsumer(owner SubscriberID, h Handler) *consumer {
	return &consumer{
		owner:   owner,
		handler: h,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (con *consumer) push(ev Event) {
	con.mu.Lock()
	con.queue = append(con.queue, ev)
	con.mu.Unlock()
	select {
	case con.signal <- struct{}{}:
	default:
	}
}

func (con *consumer) stop() {
	con.once.Do(func() { close(con.done) })
}

func (con *consumer) stopped() bool {
	select {
	case <-con.done:
		return true
	default:
		return false
	}
}

func (c *Channel) drain(con *consumer) {
	for {
		select {
		case <-con.done:
			return
		case <-con.signal:
		}

		con.mu.Lock()
		batch := con.queue
		con.queue = nil
		con.mu.Unlock()

		for _, ev := range batch {
			if con.stopped() {
				return
			}
			c.handle(con, ev)
		}
	}
}

func (c *Channel) handle(con *consumer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.reportError(&HandlerError{Channel: ev.Channel, Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	if err := con.handler(c.ctx, ev); err != nil {
		c.reportError(&HandlerError{Channel: ev.Channel, Err: err})
	}
}

// fanout delivers a publication to every consumer of its channel.
func (c *Channel) fanout(p transport.Publication) {
	c.mu.Lock()
	sub := c.subs[p.Channel]
	var consumers []*consumer
	if sub != nil {
		consumers = append(consumers, sub.consumers...)
	}
	c.mu.Unlock()

	ev := Event{Channel: p.Channel, Data: p.Data, Info: p.Info}
	for _, con := range consumers {
		con.push(ev)
	}
}

// Subscribe attaches handler to channel under a new subscriber id.
func (c *Channel) Subscribe(ctx context.Context, channel string, handler Handler) (SubscriberID, error) {
	id := NewSubscriberID()
	return id, c.SubscribeWith(ctx, id, channel, handler)
}

// SubscribeWith attaches handler to channel under an existing subscriber id.
// It returns once the subscription is confirmed by the target module.
func (c *Channel) SubscribeWith(ctx context.Context, id SubscriberID, channel string, handler Handler) error {
	loc := c.locate(channel)
	conn, ok := c.deps[loc.Alias]
	if !ok {
		return &InvalidTargetModuleError{Module: c.opts.Alias, Target: loc.Alias, Op: "subscribe to", Command: channel}
	}
	target := loc.String()

	con := newConsumer(id, handler)

	c.mu.Lock()
	sub := c.subs[target]
	if sub == nil {
		sub = &subscription{channel: target, conn: conn, confirmed: make(chan struct{})}
		c.subs[target] = sub
	}
	sub.consumers = append(sub.consumers, con)
	if c.owners[id] == nil {
		c.owners[id] = make(map[string][]*consumer)
	}
	c.owners[id][target] = append(c.owners[id][target], con)
	startConfirm := !sub.pending && !sub.isConfirmed()
	if startConfirm {
		sub.pending = true
	}
	c.mu.Unlock()

	go c.drain(con)
	if startConfirm {
		go c.confirm(sub)
	}

	timer := time.NewTimer(c.opts.SubscribeTimeout)
	defer timer.Stop()
	select {
	case <-sub.confirmed:
		return nil
	case <-timer.C:
		return &SubscribeTimeoutError{Module: c.opts.Alias, Target: loc.Alias, Channel: channel, Timeout: c.opts.SubscribeTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// confirm asks the target module for the subscription. A failed attempt is
// retried by the next SubscribeWith call on the same channel.
func (c *Channel) confirm(sub *subscription) {
	err := sub.conn.Subscribe(c.ctx, sub.channel, c.fanout)

	c.mu.Lock()
	defer c.mu.Unlock()
	sub.pending = false
	if err != nil {
		c.logger.Warn("Subscription was not confirmed.", "channel", sub.channel, "error", err)
		return
	}
	if !sub.isDone && !sub.isConfirmed() {
		close(sub.confirmed)
	}
}

// Unsubscribe releases the consumers id owns on channel. The transport
// subscription is released once the channel has no consumer left.
func (c *Channel) Unsubscribe(channel string, id SubscriberID) error {
	loc := c.locate(channel)
	conn, ok := c.deps[loc.Alias]
	if !ok {
		return &InvalidTargetModuleError{Module: c.opts.Alias, Target: loc.Alias, Op: "unsubscribe from", Command: channel}
	}
	target := loc.String()

	c.mu.Lock()
	owned := c.owners[id][target]
	if len(owned) > 0 {
		delete(c.owners[id], target)
		if len(c.owners[id]) == 0 {
			delete(c.owners, id)
		}
	}
	release := false
	if sub := c.subs[target]; sub != nil {
		kept := sub.consumers[:0]
		for _, con := range sub.consumers {
			if con.owner != id {
				kept = append(kept, con)
			}
		}
		sub.consumers = kept
		if len(kept) == 0 {
			sub.isDone = true
			delete(c.subs, target)
			release = true
		}
	}
	c.mu.Unlock()

	for _, con := range owned {
		con.stop()
	}
	if release {
		c.logger.Debug("Releasing subscription.", "channel", target)
		return conn.Unsubscribe(target)
	}
	return nil
}

// Once attaches handler so that it runs for at most one event.
func (c *Channel) Once(ctx context.Context, channel string, handler Handler) error {
	id := NewSubscriberID()
	var fired atomic.Bool
	wrapper := func(ctx context.Context, ev Event) error {
		if !fired.CompareAndSwap(false, true) {
			return nil
		}
		defer func() {
			if err := c.Unsubscribe(channel, id); err != nil {
				c.logger.Debug("Failed to release once handler.", "channel", channel, "error", err)
			}
		}()
		return handler(ctx, ev)
	}
	return c.SubscribeWith(ctx, id, channel, wrapper)
}

// ConsumerCount returns the number of consumers attached to channel.
func (c *Channel) ConsumerCount(channel string) int {
	target := c.locate(channel).String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub := c.subs[target]; sub != nil {
		return len(sub.consumers)
	}
	return 0
}
