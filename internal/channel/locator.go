package channel

import (
	"strings"

	"github.com/Capitalisk/ldem/internal/config"
)

// Locator is a parsed command address.
type Locator struct {
	// Alias is the canonical alias of the target module.
	Alias string
	// Name is the action or channel name within the target module.
	Name string
	// HasAlias reports whether the command named its target explicitly.
	HasAlias bool
}

// ParseLocator splits command into its target alias and locator. Commands
// without a colon target defaultAlias.
func ParseLocator(command, defaultAlias string, redirects config.Redirects) Locator {
	alias, name, found := strings.Cut(command, ":")
	if !found {
		return Locator{Alias: redirects.Resolve(defaultAlias), Name: command}
	}
	return Locator{Alias: redirects.Resolve(alias), Name: name, HasAlias: true}
}

// String returns the canonical `alias:name` form used on the wire.
func (l Locator) String() string {
	return l.Alias + ":" + l.Name
}
