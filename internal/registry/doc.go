// Package registry provides the central "glue" for the module system.
//
// The Registry maps the `type` names used in configuration files to the
// compiled Go factories that build module instances. Every module package
// registers itself through a Registrar; the worker then instantiates the
// module its descriptor names.
//
// During application startup the registry is validated against the loaded
// configuration so that a module referring to an unknown type is rejected
// before any process is spawned.
package registry
