package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/Capitalisk/ldem/internal/ctxlog"
)

// Request is what an action handler receives.
type Request struct {
	Action   string
	Source   string
	IsPublic bool
	Params   json.RawMessage
	Info     json.RawMessage
}

// HandlerFunc serves one action call. The result is JSON-encoded into the
// response.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Procedure is a callable action and its visibility.
type Procedure struct {
	Handler  HandlerFunc
	IsPublic bool
}

// Dispatcher routes incoming calls to module actions or worker actions.
type Dispatcher struct {
	actions       map[string]Procedure
	workerActions map[string]Procedure
}

// NewDispatcher returns a dispatcher over the module's actions and the
// worker's built-in actions.
func NewDispatcher(actions, workerActions map[string]Procedure) *Dispatcher {
	return &Dispatcher{actions: actions, workerActions: workerActions}
}

// Names returns every action name a connection must listen for.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.actions)+len(d.workerActions))
	for n := range d.actions {
		names = append(names, n)
	}
	for n := range d.workerActions {
		names = append(names, n)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Dispatch runs the action named by the call. Failures, including panics,
// are returned inside the response.
func (d *Dispatcher) Dispatch(ctx context.Context, source, action string, env Envelope) (resp Response) {
	logger := ctxlog.FromContext(ctx).With("action", action, "source", source)

	table, kind := d.actions, "action"
	if env.IsWorkerAction {
		table, kind = d.workerActions, "worker action"
	}
	proc, ok := table[action]
	if !ok {
		return Response{Error: &RPCError{
			Name:    InvalidActionName,
			Message: fmt.Sprintf("the %s %s does not exist", kind, action),
		}}
	}
	if env.IsPublic && !proc.IsPublic {
		logger.Debug("Rejected public call to private action.")
		return Response{Error: &RPCError{
			Name:    InvalidActionName,
			Message: fmt.Sprintf("the %s %s is not public", kind, action),
		}}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Action handler panicked.", "panic", r)
			err := fmt.Errorf("action %s panicked: %v", action, r)
			resp = Response{Error: newRPCError(err, string(debug.Stack()), env.IsPublic)}
		}
	}()

	result, err := proc.Handler(ctx, &Request{
		Action:   action,
		Source:   source,
		IsPublic: env.IsPublic,
		Params:   env.Params,
		Info:     env.Info,
	})
	if err != nil {
		logger.Debug("Action handler failed.", "error", err)
		return Response{Error: newRPCError(err, fmt.Sprintf("%+v", err), env.IsPublic)}
	}
	data, err := Marshal(result)
	if err != nil {
		return Response{Error: newRPCError(fmt.Errorf("failed to encode result of %s: %w", action, err), "", env.IsPublic)}
	}
	return Response{Data: data}
}

// serve decodes an incoming call and acknowledges it with the response. It
// runs on its own goroutine so slow handlers do not stall the connection.
func (d *Dispatcher) serve(ctx context.Context, source, action string, args []any) {
	logger := ctxlog.FromContext(ctx)

	args, ack := splitAck(args)
	if ack == nil {
		logger.Warn("Dropping action call without acknowledgement.", "action", action, "source", source)
		return
	}

	var env Envelope
	var resp Response
	if err := decodeArg(args, &env); err != nil {
		resp = Response{Error: &RPCError{Name: "InvalidRequestError", Message: err.Error()}}
	} else {
		resp = d.Dispatch(ctx, source, action, env)
	}

	raw, err := encode(resp)
	if err != nil {
		logger.Error("Failed to encode action response.", "action", action, "error", err)
		return
	}
	ack([]any{raw}, nil)
}

// call emits a request through emit and waits for the acknowledgement or
// for ctx to end.
func call(ctx context.Context, emit func(ack ackFunc) error) (json.RawMessage, error) {
	args, err := callRaw(ctx, emit)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := decodeArg(args, &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Data, nil
}

// callRaw is call for acknowledgements that do not carry a Response.
func callRaw(ctx context.Context, emit func(ack ackFunc) error) ([]any, error) {
	type result struct {
		args []any
		err  error
	}
	done := make(chan result, 1)
	if err := emit(func(args []any, err error) {
		select {
		case done <- result{args, err}:
		default:
		}
	}); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.args, r.err
	}
}
