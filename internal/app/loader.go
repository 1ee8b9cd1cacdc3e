package app

import (
	"fmt"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/fsutil"
	"github.com/Capitalisk/ldem/internal/hcl_adapter"
	"github.com/Capitalisk/ldem/internal/toml_adapter"
)

// DetectLoader picks the configuration loader matching the files found under
// paths. A configuration mixing both formats is rejected.
func DetectLoader(paths []string) (config.Loader, error) {
	hclFiles, err := fsutil.CollectFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	tomlFiles, err := fsutil.CollectFiles(paths, ".toml")
	if err != nil {
		return nil, err
	}

	switch {
	case len(hclFiles) > 0 && len(tomlFiles) > 0:
		return nil, &config.ConfigError{Reason: fmt.Sprintf("found both .hcl and .toml files in %v, use one format", paths)}
	case len(hclFiles) > 0:
		return hcl_adapter.NewLoader(), nil
	case len(tomlFiles) > 0:
		return toml_adapter.NewLoader(), nil
	default:
		return nil, &config.ConfigError{Reason: fmt.Sprintf("no .hcl or .toml files found in %v", paths)}
	}
}
