// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates the flags of the master and of the worker command into their
// configurations.
package cli
