package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Capitalisk/ldem/internal/transport"
)

type invokeOptions struct {
	timeout time.Duration
	info    any
}

// InvokeOption customizes a single call.
type InvokeOption func(*invokeOptions)

// WithTimeout overrides the acknowledgement timeout of a call.
func WithTimeout(d time.Duration) InvokeOption {
	return func(o *invokeOptions) { o.timeout = d }
}

// WithInfo attaches caller information to a public call.
func WithInfo(info any) InvokeOption {
	return func(o *invokeOptions) { o.info = info }
}

func (c *Channel) invokeOptions(opts []InvokeOption) invokeOptions {
	o := invokeOptions{timeout: c.opts.AckTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Invoke calls an action of a dependency.
func (c *Channel) Invoke(ctx context.Context, action string, params any, opts ...InvokeOption) (json.RawMessage, error) {
	loc := c.locate(action)
	conn, ok := c.deps[loc.Alias]
	if !ok {
		return nil, &InvalidTargetModuleError{Module: c.opts.Alias, Target: loc.Alias, Op: "invoke action", Command: action}
	}
	raw, err := transport.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params of %s: %w", action, err)
	}
	o := c.invokeOptions(opts)
	return c.call(ctx, conn, "action", loc, transport.Envelope{IsPublic: false, Params: raw}, o.timeout)
}

// InvokePublic calls a public action of a dependency or of a connected
// dependent.
func (c *Channel) InvokePublic(ctx context.Context, action string, params any, opts ...InvokeOption) (json.RawMessage, error) {
	loc := c.locate(action)

	var target Invoker
	if conn, ok := c.deps[loc.Alias]; ok {
		target = conn
	} else if c.opts.Inbound != nil {
		if peer, ok := c.opts.Inbound.Inbound(loc.Alias); ok {
			target = peer
		}
	}
	if target == nil {
		return nil, &UnreachableTargetModuleError{Module: c.opts.Alias, Target: loc.Alias, Action: action}
	}

	o := c.invokeOptions(opts)
	raw, err := transport.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params of %s: %w", action, err)
	}
	info, err := transport.Marshal(o.info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode info of %s: %w", action, err)
	}
	return c.call(ctx, target, "public action", loc, transport.Envelope{IsPublic: true, Params: raw, Info: info}, o.timeout)
}

// InvokeOnWorker calls a built-in worker action of a dependency.
func (c *Channel) InvokeOnWorker(ctx context.Context, action string, params any, opts ...InvokeOption) (json.RawMessage, error) {
	loc := c.locate(action)
	conn, ok := c.deps[loc.Alias]
	if !ok {
		return nil, &InvalidTargetWorkerError{Module: c.opts.Alias, Target: loc.Alias, Action: action}
	}
	raw, err := transport.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params of %s: %w", action, err)
	}
	o := c.invokeOptions(opts)
	return c.call(ctx, conn, "worker action", loc, transport.Envelope{IsWorkerAction: true, Params: raw}, o.timeout)
}

func (c *Channel) call(ctx context.Context, target Invoker, kind string, loc Locator, env transport.Envelope, timeout time.Duration) (json.RawMessage, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := target.Invoke(callCtx, loc.Name, env)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &TimeoutError{Kind: kind, Action: loc.Name, Target: loc.Alias, Timeout: timeout}
	}
	return res, err
}

// Decode unmarshals the result of an invocation into T.
func Decode[T any](raw json.RawMessage, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode result: %w", err)
	}
	return v, nil
}
