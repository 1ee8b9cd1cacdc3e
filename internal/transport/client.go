package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ClientOptions configures an outbound connection to a dependency.
type ClientOptions struct {
	// Source is the alias of the calling module.
	Source string
	// Target is the alias of the dependency.
	Target string
	URL    string
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
	// Dispatcher serves calls the dependency makes back over this
	// connection.
	Dispatcher *Dispatcher
}

// Client is an outbound connection to one dependency. It connects lazily,
// reconnects on loss and restores its channel subscriptions on every
// (re)connect. Calls made while disconnected are buffered until the
// connection is up or the caller's context ends.
type Client struct {
	opts   ClientOptions
	logger *slog.Logger
	io     *socket.Socket

	mu   sync.Mutex
	subs map[string]func(Publication)
}

// Dial creates the connection to a dependency and starts connecting.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("component", "transport-client", "target", opts.Target)
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(nil, nil)
	}

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	so := socket.DefaultOptions()
	so.SetTransports(types.NewSet(transports.WebSocket))
	so.SetQuery(url.Values{SourceQuery: []string{opts.Source}})
	so.SetReconnection(true)
	so.SetReconnectionDelay(100)
	so.SetReconnectionDelayMax(1000)
	if opts.ConnectTimeout > 0 {
		so.SetTimeout(opts.ConnectTimeout)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, so)
	io := manager.Socket("/", so)

	c := &Client{
		opts:   opts,
		logger: logger,
		io:     io,
		subs:   make(map[string]func(Publication)),
	}
	c.bind(ctxlog.WithLogger(ctx, logger))

	logger.Debug("Connecting to dependency.", "url", baseURL)
	io.Connect()
	return c, nil
}

func (c *Client) bind(ctx context.Context) {
	c.io.On(types.EventName("connect"), func(...any) {
		c.logger.Debug("Connected to dependency.", "sid", c.io.Id())
		c.resubscribe()
	})
	c.io.On(types.EventName("connect_error"), func(errs ...any) {
		c.logger.Debug("Connection to dependency failed.", "error", errs)
	})
	c.io.On(types.EventName("disconnect"), func(reasons ...any) {
		c.logger.Debug("Disconnected from dependency.", "reason", reasons)
	})

	c.io.On(types.EventName(EventPublish), func(args ...any) {
		var p Publication
		if err := decodeArg(args, &p); err != nil {
			c.logger.Warn("Invalid publication.", "error", err)
			return
		}
		c.mu.Lock()
		deliver := c.subs[p.Channel]
		c.mu.Unlock()
		if deliver != nil {
			deliver(p)
		}
	})

	for _, name := range c.opts.Dispatcher.Names() {
		action := name
		c.io.On(types.EventName(action), func(args ...any) {
			go c.opts.Dispatcher.serve(ctx, c.opts.Target, action, args)
		})
	}
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		raw, err := encode(ch)
		if err != nil {
			continue
		}
		if err := c.io.Emit(EventSubscribe, raw); err != nil {
			c.logger.Warn("Failed to restore subscription.", "channel", ch, "error", err)
		}
	}
}

// Target returns the alias of the dependency.
func (c *Client) Target() string { return c.opts.Target }

// Invoke calls action on the dependency and waits for its response or for
// ctx to end.
func (c *Client) Invoke(ctx context.Context, action string, env Envelope) (json.RawMessage, error) {
	raw, err := encode(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call to %s: %w", action, err)
	}
	return call(ctx, func(ack ackFunc) error {
		return c.io.Emit(action, raw, ack)
	})
}

// Subscribe starts delivering publications on channel and waits until the
// dependency confirmed the subscription or ctx ends. A channel has at most
// one deliver function; subscribing again replaces it.
func (c *Client) Subscribe(ctx context.Context, channel string, deliver func(Publication)) error {
	raw, err := encode(channel)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[channel] = deliver
	c.mu.Unlock()

	_, err = callRaw(ctx, func(ack ackFunc) error {
		return c.io.Emit(EventSubscribe, raw, ack)
	})
	return err
}

// Unsubscribe stops delivering publications on channel.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	_, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	raw, err := encode(channel)
	if err != nil {
		return err
	}
	return c.io.Emit(EventUnsubscribe, raw)
}

// Close drops the connection.
func (c *Client) Close() error {
	c.io.Disconnect()
	return nil
}
