// Package toml_adapter loads the LDEM configuration model from TOML files. It
// is the alternative to the HCL loader and produces the same config.Model.
package toml_adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/fsutil"
)

// Loader implements config.Loader for .toml files.
type Loader struct{}

// NewLoader creates a new TOML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

type fileRoot struct {
	App     *appTable               `toml:"app"`
	Modules map[string]*moduleTable `toml:"modules"`
}

type appTable struct {
	DefaultTargetAlias          *string           `toml:"default_target_alias"`
	AllowPublishingWithoutAlias *bool             `toml:"allow_publishing_without_alias"`
	IPCTimeout                  *string           `toml:"ipc_timeout"`
	AckTimeout                  *string           `toml:"ack_timeout"`
	ConnectTimeout              *string           `toml:"connect_timeout"`
	SubscribeTimeout            *string           `toml:"subscribe_timeout"`
	StartupDelay                *string           `toml:"startup_delay"`
	TransportHost               *string           `toml:"transport_host"`
	TransportBasePort           *int              `toml:"transport_base_port"`
	UpdatesPath                 *string           `toml:"updates_path"`
	Redirects                   map[string]string `toml:"redirects"`
}

type moduleTable struct {
	Type         string         `toml:"type"`
	Entry        string         `toml:"entry"`
	Enabled      *bool          `toml:"enabled"`
	RespawnDelay string         `toml:"respawn_delay"`
	Base         string         `toml:"base"`
	Config       map[string]any `toml:"config"`
}

// Load decodes every .toml file under paths into a single model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("TOML loader started.", "path_count", len(paths))

	model := &config.Model{
		Modules:   make(map[string]*config.ModuleDescriptor),
		Redirects: make(config.Redirects),
	}

	files, err := fsutil.CollectFiles(paths, ".toml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &config.ConfigError{Reason: fmt.Sprintf("no .toml files found in %v", paths)}
	}

	for _, file := range files {
		var root fileRoot
		md, err := toml.DecodeFile(file, &root)
		if err != nil {
			return nil, &config.ConfigError{Reason: "failed to decode TOML file " + file, Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			logger.Warn("Ignoring unknown TOML keys.", "file", file, "keys", fmt.Sprint(undecoded))
		}

		if root.App != nil {
			if err := translateApp(root.App, model); err != nil {
				return nil, err
			}
		}
		for alias, mod := range root.Modules {
			desc, err := translateModule(alias, mod)
			if err != nil {
				return nil, err
			}
			model.Modules[alias] = desc
		}
	}

	logger.Debug("TOML loading complete.", "modules", len(model.Modules))
	return model, nil
}

func translateApp(app *appTable, model *config.Model) error {
	if app.DefaultTargetAlias != nil {
		model.DefaultTargetAlias = *app.DefaultTargetAlias
	}
	if app.AllowPublishingWithoutAlias != nil {
		model.AllowPublishingWithoutAlias = *app.AllowPublishingWithoutAlias
	}
	if app.TransportHost != nil {
		model.TransportHost = *app.TransportHost
	}
	if app.TransportBasePort != nil {
		model.TransportBasePort = *app.TransportBasePort
	}
	if app.UpdatesPath != nil {
		model.UpdatesPath = *app.UpdatesPath
	}
	for from, to := range app.Redirects {
		model.Redirects[from] = to
	}

	for name, pair := range map[string]struct {
		src *string
		dst *time.Duration
	}{
		"ipc_timeout":       {app.IPCTimeout, &model.IPCTimeout},
		"ack_timeout":       {app.AckTimeout, &model.AckTimeout},
		"connect_timeout":   {app.ConnectTimeout, &model.ConnectTimeout},
		"subscribe_timeout": {app.SubscribeTimeout, &model.SubscribeTimeout},
		"startup_delay":     {app.StartupDelay, &model.StartupDelay},
	} {
		if pair.src == nil {
			continue
		}
		d, err := time.ParseDuration(*pair.src)
		if err != nil {
			return &config.ConfigError{Reason: fmt.Sprintf("invalid %s %q", name, *pair.src), Err: err}
		}
		*pair.dst = d
	}
	return nil
}

func translateModule(alias string, mod *moduleTable) (*config.ModuleDescriptor, error) {
	desc := &config.ModuleDescriptor{
		Alias:   alias,
		Type:    mod.Type,
		Entry:   mod.Entry,
		Base:    mod.Base,
		Config:  mod.Config,
		Enabled: mod.Enabled == nil || *mod.Enabled,
	}
	if mod.RespawnDelay != "" {
		d, err := time.ParseDuration(mod.RespawnDelay)
		if err != nil {
			return nil, &config.ConfigError{Module: alias, Reason: fmt.Sprintf("invalid respawn_delay %q", mod.RespawnDelay), Err: err}
		}
		desc.RespawnDelay = d
	}
	return desc, nil
}
