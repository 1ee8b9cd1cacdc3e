package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
)

// Validate checks that every launchable module that runs inside the ldem
// binary names a registered type.
func (r *Registry) Validate(ctx context.Context, m *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, alias := range m.Aliases() {
		d := m.Modules[alias]
		if d.Entry != "" {
			logger.Debug("Module runs an external entry, skipping type check.", "module", alias, "entry", d.Entry)
			continue
		}
		if !r.Has(d.Type) {
			errs = append(errs, fmt.Sprintf("module '%s': type '%s' is not registered (known types: %s)", alias, d.Type, strings.Join(r.Types(), ", ")))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
