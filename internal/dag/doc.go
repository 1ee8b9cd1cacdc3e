// Package dag holds the module dependency graph. Build turns the dependency
// lists reported by each worker into canonical (redirect-resolved) target
// dependencies, validates them against the set of enabled modules and derives
// the reverse dependents map.
//
// Edges point from a dependency to its dependent, so walking Dependents from
// the roots yields a startup order. The graph itself may contain cycles; see
// the scheduler package for how they are ordered.
package dag
