package app

import (
	"github.com/Capitalisk/ldem/internal/registry"
	appmodule "github.com/Capitalisk/ldem/modules/app"
	"github.com/Capitalisk/ldem/modules/one"
	"github.com/Capitalisk/ldem/modules/three"
	"github.com/Capitalisk/ldem/modules/two"
)

// coreModules is the definitive list of all module types that are compiled
// into the ldem binary.
var coreModules = []registry.Registrar{
	&appmodule.Module{},
	&one.Module{},
	&two.Module{},
	&three.Module{},
}

// NewRegistry returns a registry holding the given registrars, or the core
// modules when none are given. The master and its workers must build the
// registry the same way.
func NewRegistry(registrars ...registry.Registrar) *registry.Registry {
	if len(registrars) == 0 {
		registrars = coreModules
	}
	return registry.New(registrars...)
}
