package transport

import "fmt"

// RPCError is a remote failure returned to the caller of an action.
type RPCError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Named is implemented by errors that carry a name to report to remote
// callers.
type Named interface {
	ErrorName() string
}

// ErrorName implements Named.
func (e *RPCError) ErrorName() string { return e.Name }

// InvalidActionName names the error returned for unknown actions and for
// private actions invoked with public intent.
const InvalidActionName = "InvalidActionError"

// newRPCError builds the sanitized copy of err sent across the boundary. The
// stack is dropped for public calls.
func newRPCError(err error, stack string, public bool) *RPCError {
	name := "Error"
	if n, ok := err.(Named); ok {
		name = n.ErrorName()
	}
	e := &RPCError{Name: name, Message: err.Error()}
	if !public {
		e.Stack = stack
	}
	return e
}
