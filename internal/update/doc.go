// Package update implements the configuration update lifecycle of a module:
// pending updates are queued in insertion order, at most one is active at a
// time, and the active one is either merged (committed) or reverted (rolled
// back to the snapshot taken at activation).
//
// The package also contains the file based collaborators around it: a
// Watcher that discovers YAML patch files and a FileStore that records merges
// on disk.
package update
