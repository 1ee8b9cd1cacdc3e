// Package ipc implements the control plane between the master and its
// workers: typed messages carried as length-prefixed JSON frames over a pair
// of pipes.
//
// A Conn routes each incoming message to a pending Await call, to a handler
// registered with Handle, or to a backlog. The backlog makes the handshake
// order-insensitive: a worker may answer before the master starts waiting.
package ipc
