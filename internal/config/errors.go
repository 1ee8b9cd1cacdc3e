package config

import "fmt"

// ConfigError reports a malformed or cyclic configuration. It is fatal at
// startup.
type ConfigError struct {
	Module string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if e.Module != "" {
		msg = fmt.Sprintf("module %q: %s", e.Module, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", msg, e.Err)
	}
	return "config error: " + msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
