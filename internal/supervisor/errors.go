package supervisor

import (
	"fmt"
	"time"
)

// HandshakeTimeoutError is returned when a worker does not answer a
// handshake step in time.
type HandshakeTimeoutError struct {
	Module  string
	Event   string
	Timeout time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("module %s did not send %s within %s", e.Module, e.Event, e.Timeout)
}

// ErrorName returns the error class name reported in logs.
func (e *HandshakeTimeoutError) ErrorName() string { return "HandshakeTimeoutError" }
