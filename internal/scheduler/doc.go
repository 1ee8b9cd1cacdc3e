// Package scheduler computes the startup order of the modules.
//
// # How It Works
//
// The order is produced by a layered breadth-first traversal of the
// dependency graph:
//  1. The first layer holds every module without dependencies.
//  2. A module of the current layer whose dependencies have all been visited
//     is appended to the order and its dependents form the next layer.
//  3. The traversal stops when a layer makes no progress.
//
// Modules that were never visited sit in, or behind, a dependency cycle. They
// are logged and appended after every acyclic module, sorted by alias so the
// order is stable between runs.
//
// The order drives handshake and appReady sequencing in the supervisor. It
// does not constrain process spawning, which happens in parallel.
package scheduler
