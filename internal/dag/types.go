package dag

import (
	"errors"
	"sync"
)

// ErrUnknownModule is returned for an alias that is not part of the graph.
var ErrUnknownModule = errors.New("module is not part of the graph")

// aliasSet is a set of module aliases.
type aliasSet map[string]struct{}

// Graph is the set of enabled modules and the dependency edges between them.
// It is safe for concurrent use.
type Graph struct {
	mu sync.RWMutex
	// deps maps an alias to the modules it depends on.
	deps map[string]aliasSet
	// dependents maps an alias to the modules depending on it.
	dependents map[string]aliasSet
}
