// Package supervisor runs every module of the application in its own OS
// process. It drives the control-plane handshake, resolves the dependency
// graph from what the workers report, broadcasts readiness in topological
// order and respawns processes that exit. It also owns the update lifecycle
// of each module: activating or reverting an update restarts the module with
// the new config.
package supervisor
