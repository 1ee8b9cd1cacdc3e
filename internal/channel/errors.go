package channel

import (
	"errors"
	"fmt"
	"time"
)

// ErrPublishWithoutAlias is returned when a channel name without an alias is
// published and the application does not allow it.
var ErrPublishWithoutAlias = errors.New("publishing to a channel without a module alias is not allowed")

// InvalidTargetModuleError is returned for operations against a module that
// is not a dependency of the caller.
type InvalidTargetModuleError struct {
	Module  string
	Target  string
	Op      string
	Command string
}

func (e *InvalidTargetModuleError) Error() string {
	return fmt.Sprintf("cannot %s %s on the %s module because it is not listed as a dependency of the %s module",
		e.Op, e.Command, e.Target, e.Module)
}

// ErrorName implements transport.Named.
func (e *InvalidTargetModuleError) ErrorName() string { return "InvalidTargetModuleError" }

// InvalidTargetWorkerError is returned by InvokeOnWorker for a worker that
// is not a dependency of the caller.
type InvalidTargetWorkerError struct {
	Module string
	Target string
	Action string
}

func (e *InvalidTargetWorkerError) Error() string {
	return fmt.Sprintf("cannot invoke worker action %s on the %s worker because it is not listed as a dependency of the %s worker",
		e.Action, e.Target, e.Module)
}

// ErrorName implements transport.Named.
func (e *InvalidTargetWorkerError) ErrorName() string { return "InvalidTargetWorkerError" }

// InvalidPublisherError is returned when a module publishes into another
// module's namespace.
type InvalidPublisherError struct {
	Module  string
	Channel string
}

func (e *InvalidPublisherError) Error() string {
	return fmt.Sprintf("the module alias prefix of the %s channel must refer to the publisher which is the %s module", e.Channel, e.Module)
}

// ErrorName implements transport.Named.
func (e *InvalidPublisherError) ErrorName() string { return "InvalidPublisherError" }

// SubscribeTimeoutError is returned when a subscription was not confirmed in
// time. The consumer stays attached and receives events once the
// subscription is confirmed.
type SubscribeTimeoutError struct {
	Module  string
	Target  string
	Channel string
	Timeout time.Duration
}

func (e *SubscribeTimeoutError) Error() string {
	return fmt.Sprintf("subscription to the %s channel of the %s module by the %s module timed out after %s",
		e.Channel, e.Target, e.Module, e.Timeout)
}

// ErrorName implements transport.Named.
func (e *SubscribeTimeoutError) ErrorName() string { return "SubscribeTimeoutError" }

// TimeoutError is returned when a call was not answered in time.
type TimeoutError struct {
	// Kind is "action", "public action" or "worker action".
	Kind    string
	Action  string
	Target  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("failed to invoke %s %s on the %s module because of timeout after %s", e.Kind, e.Action, e.Target, e.Timeout)
}

// ErrorName implements transport.Named.
func (e *TimeoutError) ErrorName() string { return "TimeoutError" }

// UnreachableTargetModuleError is returned by InvokePublic when the target
// is neither a dependency nor a connected dependent.
type UnreachableTargetModuleError struct {
	Module string
	Target string
	Action string
}

func (e *UnreachableTargetModuleError) Error() string {
	return fmt.Sprintf("cannot invoke public action %s on the %s module because it is not connected to the %s module as either a dependent or dependency",
		e.Action, e.Target, e.Module)
}

// ErrorName implements transport.Named.
func (e *UnreachableTargetModuleError) ErrorName() string { return "UnreachableTargetModuleError" }

// HandlerError wraps a failure of a subscription handler. It is reported on
// the channel's error stream.
type HandlerError struct {
	Channel string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for channel %s failed: %v", e.Channel, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
