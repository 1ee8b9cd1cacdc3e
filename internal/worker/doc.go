// Package worker is the child side of the control plane. Run hosts a single
// module: it answers the master's handshake, serves the module's actions on
// its transport server, connects the module's channel to its dependencies
// and loads the module once the master has resolved the dependency graph.
package worker
