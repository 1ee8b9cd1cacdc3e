package config

import (
	"sort"
	"time"
)

// Defaults applied by ApplyDefaults to zero-valued settings.
const (
	DefaultTargetAlias       = "chain"
	DefaultIPCTimeout        = 2 * time.Second
	DefaultAckTimeout        = 10 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultSubscribeTimeout  = 5 * time.Second
	DefaultTransportHost     = "127.0.0.1"
	DefaultTransportBasePort = 47100
)

// Model is the unified, format-agnostic representation of the entire
// application configuration.
type Model struct {
	Modules   map[string]*ModuleDescriptor `json:"modules"`
	Redirects Redirects                    `json:"redirects,omitempty"`

	// DefaultTargetAlias receives channel commands that carry no alias.
	DefaultTargetAlias          string `json:"defaultTargetAlias"`
	AllowPublishingWithoutAlias bool   `json:"allowPublishingWithoutAlias"`

	IPCTimeout       time.Duration `json:"ipcTimeout"`
	AckTimeout       time.Duration `json:"ackTimeout"`
	ConnectTimeout   time.Duration `json:"connectTimeout"`
	SubscribeTimeout time.Duration `json:"subscribeTimeout"`
	StartupDelay     time.Duration `json:"startupDelay"`

	TransportHost     string `json:"transportHost"`
	TransportBasePort int    `json:"transportBasePort"`

	// UpdatesPath is the directory scanned for update patch files. Empty
	// disables the watcher.
	UpdatesPath string `json:"updatesPath,omitempty"`
}

// ModuleDescriptor describes one module process.
type ModuleDescriptor struct {
	Alias string `json:"alias"`
	// Entry is the executable started for the module. Empty means the ldem
	// binary itself, started in worker mode.
	Entry string `json:"entry,omitempty"`
	// Type selects the compiled-in module implementation in the registry.
	Type         string         `json:"type,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Enabled      bool           `json:"enabled"`
	RespawnDelay time.Duration  `json:"respawnDelay,omitempty"`
	// Base names another module whose config this one inherits.
	Base string `json:"base,omitempty"`
}

// Launchable reports whether the master should start a process for the module.
func (d *ModuleDescriptor) Launchable() bool {
	return d.Enabled && (d.Entry != "" || d.Type != "")
}

// Redirects maps a declared alias to the canonical alias hosting it.
type Redirects map[string]string

// Resolve applies the redirect table once. Chained redirects are not
// followed: the result of a redirect is always taken as canonical.
func (r Redirects) Resolve(alias string) string {
	if target, ok := r[alias]; ok && target != "" {
		return target
	}
	return alias
}

// NewModel returns an empty model with defaults applied.
func NewModel() *Model {
	m := &Model{
		Modules:   make(map[string]*ModuleDescriptor),
		Redirects: make(Redirects),
	}
	m.ApplyDefaults()
	return m
}

// ApplyDefaults fills every zero-valued setting with its default.
func (m *Model) ApplyDefaults() {
	if m.Modules == nil {
		m.Modules = make(map[string]*ModuleDescriptor)
	}
	if m.Redirects == nil {
		m.Redirects = make(Redirects)
	}
	if m.DefaultTargetAlias == "" {
		m.DefaultTargetAlias = DefaultTargetAlias
	}
	if m.IPCTimeout <= 0 {
		m.IPCTimeout = DefaultIPCTimeout
	}
	if m.AckTimeout <= 0 {
		m.AckTimeout = DefaultAckTimeout
	}
	if m.ConnectTimeout <= 0 {
		m.ConnectTimeout = DefaultConnectTimeout
	}
	if m.SubscribeTimeout <= 0 {
		m.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if m.TransportHost == "" {
		m.TransportHost = DefaultTransportHost
	}
	if m.TransportBasePort <= 0 {
		m.TransportBasePort = DefaultTransportBasePort
	}
}

// Aliases returns the sorted aliases of every launchable module.
func (m *Model) Aliases() []string {
	aliases := make([]string, 0, len(m.Modules))
	for alias, d := range m.Modules {
		if d.Launchable() {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// Module returns the descriptor for alias, if any.
func (m *Model) Module(alias string) (*ModuleDescriptor, bool) {
	d, ok := m.Modules[alias]
	return d, ok
}
