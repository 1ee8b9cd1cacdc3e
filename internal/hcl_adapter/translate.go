package hcl_adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/hashicorp/hcl/v2"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

func (l *Loader) translateApp(app *AppBlock, model *config.Model) error {
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

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"ipc_timeout", app.IPCTimeout, &model.IPCTimeout},
		{"ack_timeout", app.AckTimeout, &model.AckTimeout},
		{"connect_timeout", app.ConnectTimeout, &model.ConnectTimeout},
		{"subscribe_timeout", app.SubscribeTimeout, &model.SubscribeTimeout},
		{"startup_delay", app.StartupDelay, &model.StartupDelay},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return &config.ConfigError{Reason: fmt.Sprintf("invalid %s %q", d.name, *d.src), Err: err}
		}
		*d.dst = v
	}
	return nil
}

func (l *Loader) translateModule(mod *ModuleBlock) (*config.ModuleDescriptor, error) {
	desc := &config.ModuleDescriptor{
		Alias:   mod.Alias,
		Enabled: true,
	}
	if mod.Type != nil {
		desc.Type = *mod.Type
	}
	if mod.Entry != nil {
		desc.Entry = *mod.Entry
	}
	if mod.Enabled != nil {
		desc.Enabled = *mod.Enabled
	}
	if mod.Base != nil {
		desc.Base = *mod.Base
	}
	if mod.RespawnDelay != nil {
		d, err := time.ParseDuration(*mod.RespawnDelay)
		if err != nil {
			return nil, &config.ConfigError{Module: mod.Alias, Reason: fmt.Sprintf("invalid respawn_delay %q", *mod.RespawnDelay), Err: err}
		}
		desc.RespawnDelay = d
	}
	if mod.Config != nil {
		cfg, err := bodyToMap(mod.Config.Body)
		if err != nil {
			return nil, &config.ConfigError{Module: mod.Alias, Reason: "invalid config block", Err: err}
		}
		desc.Config = cfg
	}
	return desc, nil
}

// bodyToMap evaluates every attribute of a free-form body and converts the
// resulting cty values into plain Go values via their JSON form.
func bodyToMap(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		raw, err := json.Marshal(ctyjson.SimpleJSONValue{Value: val})
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
