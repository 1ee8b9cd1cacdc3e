// Package app contains the master side of ldem. It loads the application
// configuration, validates it against the compiled-in module types and runs
// the supervisor together with the update watcher and the status server,
// decoupled from any specific entrypoint like the CLI.
package app
