package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/transport"
)

// Invoker calls actions on a remote module.
type Invoker interface {
	Invoke(ctx context.Context, action string, env transport.Envelope) (json.RawMessage, error)
}

// Conn is the outbound connection to one dependency.
type Conn interface {
	Invoker
	Subscribe(ctx context.Context, channel string, deliver func(transport.Publication)) error
	Unsubscribe(channel string) error
	Close() error
}

// Dialer opens the connection to a dependency.
type Dialer interface {
	Dial(ctx context.Context, alias string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, alias string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, alias string) (Conn, error) { return f(ctx, alias) }

// Exchange relays publications of the local module to its subscribers.
type Exchange interface {
	Publish(channel string, data, info json.RawMessage) error
}

// InboundLookup finds the live connection of a dependent.
type InboundLookup interface {
	Inbound(alias string) (Invoker, bool)
}

// InboundLookupFunc adapts a function to InboundLookup.
type InboundLookupFunc func(alias string) (Invoker, bool)

// Inbound implements InboundLookup.
func (f InboundLookupFunc) Inbound(alias string) (Invoker, bool) { return f(alias) }

// Options configures a Channel.
type Options struct {
	// Alias is the alias of the owning module.
	Alias string
	// Dependencies are the canonical aliases of the module's dependencies.
	Dependencies                []string
	Redirects                   config.Redirects
	DefaultTargetAlias          string
	AllowPublishingWithoutAlias bool
	SubscribeTimeout            time.Duration
	AckTimeout                  time.Duration

	Dialer   Dialer
	Exchange Exchange
	Inbound  InboundLookup
}

// Channel is a module's handle on the other modules.
type Channel struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	deps map[string]Conn

	mu     sync.Mutex
	subs   map[string]*subscription
	owners map[SubscriberID]map[string][]*consumer

	errs chan error
}

// errorBacklog bounds the number of unread handler errors kept by Errors.
const errorBacklog = 64

// New dials every dependency and returns the channel.
func New(ctx context.Context, opts Options) (*Channel, error) {
	logger := ctxlog.FromContext(ctx).With("component", "channel")
	if opts.Redirects == nil {
		opts.Redirects = config.Redirects{}
	}
	if opts.DefaultTargetAlias == "" {
		opts.DefaultTargetAlias = config.DefaultTargetAlias
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = config.DefaultSubscribeTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = config.DefaultAckTimeout
	}

	cctx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, logger))
	c := &Channel{
		opts:   opts,
		logger: logger,
		ctx:    cctx,
		cancel: cancel,
		deps:   make(map[string]Conn),
		subs:   make(map[string]*subscription),
		owners: make(map[SubscriberID]map[string][]*consumer),
		errs:   make(chan error, errorBacklog),
	}

	for _, alias := range opts.Dependencies {
		if _, ok := c.deps[alias]; ok || alias == opts.Alias {
			continue
		}
		conn, err := opts.Dialer.Dial(cctx, alias)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to dependency %s: %w", alias, err)
		}
		c.deps[alias] = conn
	}
	logger.Debug("Channel created.", "dependencies", c.Dependencies())
	return c, nil
}

// Alias returns the alias of the owning module.
func (c *Channel) Alias() string { return c.opts.Alias }

// Dependencies returns the canonical aliases the channel is connected to.
func (c *Channel) Dependencies() []string {
	out := make([]string, 0, len(c.deps))
	for a := range c.deps {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Errors returns the stream of subscription handler failures. Failures that
// are not read are logged and dropped once the backlog is full.
func (c *Channel) Errors() <-chan error { return c.errs }

func (c *Channel) reportError(err error) {
	c.logger.Error("Channel handler failed.", "error", err)
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Channel) locate(command string) Locator {
	return ParseLocator(command, c.opts.DefaultTargetAlias, c.opts.Redirects)
}

// Publish publishes data on one of the module's own channels.
func (c *Channel) Publish(channel string, data, info any) error {
	loc := c.locate(channel)
	if !loc.HasAlias && !c.opts.AllowPublishingWithoutAlias {
		return fmt.Errorf("%w: the %s channel name must be preceded by the %s module alias in the format %s:eventName",
			ErrPublishWithoutAlias, channel, c.opts.Alias, c.opts.Alias)
	}
	if loc.Alias != c.opts.Alias {
		return &InvalidPublisherError{Module: c.opts.Alias, Channel: channel}
	}

	rawData, err := transport.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data published on %s: %w", channel, err)
	}
	rawInfo, err := transport.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode info published on %s: %w", channel, err)
	}
	return c.opts.Exchange.Publish(loc.String(), rawData, rawInfo)
}

// Close stops every consumer and drops the dependency connections.
func (c *Channel) Close() {
	c.cancel()

	c.mu.Lock()
	for _, sub := range c.subs {
		for _, con := range sub.consumers {
			con.stop()
		}
	}
	c.subs = make(map[string]*subscription)
	c.owners = make(map[SubscriberID]map[string][]*consumer)
	c.mu.Unlock()

	for alias, conn := range c.deps {
		if err := conn.Close(); err != nil {
			c.logger.Debug("Failed to close dependency connection.", "target", alias, "error", err)
		}
	}
}
