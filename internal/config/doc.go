// Package config defines the format-agnostic configuration model of an LDEM
// application: the module descriptors, the redirect table and the
// orchestration timeouts shared by the master and every worker.
//
// Concrete loaders (HCL, TOML) live in their own packages and implement the
// Loader interface. Whatever the source format, ResolveInheritance must run
// on the loaded model before it is handed to the supervisor.
package config
