package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/fsutil"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Apps    []*AppBlock    `hcl:"app,block"`
	Modules []*ModuleBlock `hcl:"module,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// AppBlock is the `app {}` block holding application-wide settings.
type AppBlock struct {
	DefaultTargetAlias          *string           `hcl:"default_target_alias,optional"`
	AllowPublishingWithoutAlias *bool             `hcl:"allow_publishing_without_alias,optional"`
	IPCTimeout                  *string           `hcl:"ipc_timeout,optional"`
	AckTimeout                  *string           `hcl:"ack_timeout,optional"`
	ConnectTimeout              *string           `hcl:"connect_timeout,optional"`
	SubscribeTimeout            *string           `hcl:"subscribe_timeout,optional"`
	StartupDelay                *string           `hcl:"startup_delay,optional"`
	TransportHost               *string           `hcl:"transport_host,optional"`
	TransportBasePort           *int              `hcl:"transport_base_port,optional"`
	UpdatesPath                 *string           `hcl:"updates_path,optional"`
	Redirects                   map[string]string `hcl:"redirects,optional"`
}

// ModuleBlock is a `module "alias" {}` block.
type ModuleBlock struct {
	Alias        string       `hcl:"alias,label"`
	Type         *string      `hcl:"type,optional"`
	Entry        *string      `hcl:"entry,optional"`
	Enabled      *bool        `hcl:"enabled,optional"`
	RespawnDelay *string      `hcl:"respawn_delay,optional"`
	Base         *string      `hcl:"base,optional"`
	Config       *ConfigBlock `hcl:"config,block"`
}

// ConfigBlock holds free-form module configuration attributes.
type ConfigBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Load parses every .hcl file found under paths and merges the blocks into a
// single model. Later files override earlier ones for the same module alias.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{
		Modules:   make(map[string]*config.ModuleDescriptor),
		Redirects: make(config.Redirects),
	}

	hclFiles, err := fsutil.CollectFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, &config.ConfigError{Reason: fmt.Sprintf("no .hcl files found in %v", paths)}
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, &config.ConfigError{Reason: "failed to parse HCL file " + file, Err: diags}
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, &config.ConfigError{Reason: "failed to decode HCL file " + file, Err: diags}
		}

		for _, app := range root.Apps {
			if err := l.translateApp(app, model); err != nil {
				return nil, err
			}
		}
		for _, mod := range root.Modules {
			desc, err := l.translateModule(mod)
			if err != nil {
				return nil, err
			}
			model.Modules[desc.Alias] = desc
		}
	}

	logger.Debug("HCL loading complete.", "modules", len(model.Modules), "redirects", len(model.Redirects))
	return model, nil
}
