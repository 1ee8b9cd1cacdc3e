package supervisor

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/update"
)

// ModuleProcess is the supervisor's record of one module. It outlives the
// OS processes started for the module.
type ModuleProcess struct {
	Alias      string
	Descriptor config.ModuleDescriptor
	Tracker    *update.Tracker

	mu      sync.Mutex
	process Process
	config  map[string]any

	// Reported by the worker in its handshake.
	declared     []string
	hasDeclared  bool
	actions      []string
	dependencies []string
	targets      []string
	dependents   []string

	controlled bool
	ready      bool
	down       bool
	restarts   int
	startedAt  time.Time
}

func newModuleProcess(d *config.ModuleDescriptor) *ModuleProcess {
	return &ModuleProcess{
		Alias:      d.Alias,
		Descriptor: *d,
		Tracker:    update.NewTracker(d.Alias),
		config:     config.CloneMap(d.Config),
	}
}

// Config returns a copy of the config the module currently runs with.
func (mp *ModuleProcess) Config() map[string]any {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return config.CloneMap(mp.config)
}

func (mp *ModuleProcess) setConfig(cfg map[string]any) {
	mp.mu.Lock()
	mp.config = config.CloneMap(cfg)
	mp.mu.Unlock()
}

// Process returns the live process, if any.
func (mp *ModuleProcess) Process() Process {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.process
}

// Ready reports whether the live process completed its handshake.
func (mp *ModuleProcess) Ready() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.ready
}

// Down reports whether the module gave up after a failed respawn.
func (mp *ModuleProcess) Down() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.down
}

func (mp *ModuleProcess) info() (declared []string, hasDeclared bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return slices.Clone(mp.declared), mp.hasDeclared
}

func (mp *ModuleProcess) setResolution(deps, targets, dependents []string) {
	mp.mu.Lock()
	mp.dependencies = deps
	mp.targets = targets
	mp.dependents = dependents
	mp.mu.Unlock()
}

func (mp *ModuleProcess) masterHandshake(dependentMap map[string][]string) ipc.MasterHandshake {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return ipc.MasterHandshake{
		Dependencies:       mp.dependencies,
		TargetDependencies: mp.targets,
		Dependents:         mp.dependents,
		DependentMap:       dependentMap,
	}
}

func (mp *ModuleProcess) moduleUpdates() ipc.ModuleUpdates {
	out := ipc.ModuleUpdates{Updates: mp.Tracker.Pending()}
	if u, ok := mp.Tracker.Active(); ok {
		out.ActiveUpdate = &u
	}
	return out
}

// ProcessTable indexes module processes by alias.
type ProcessTable struct {
	mu      sync.RWMutex
	entries map[string]*ModuleProcess
}

// NewProcessTable returns an empty table.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{entries: make(map[string]*ModuleProcess)}
}

// Get returns the entry of alias.
func (t *ProcessTable) Get(alias string) (*ModuleProcess, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mp, ok := t.entries[alias]
	return mp, ok
}

// Set adds or replaces the entry of mp.Alias.
func (t *ProcessTable) Set(mp *ModuleProcess) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[mp.Alias] = mp
}

// Snapshot returns every entry sorted by alias.
func (t *ProcessTable) Snapshot() []*ModuleProcess {
	t.mu.RLock()
	out := make([]*ModuleProcess, 0, len(t.entries))
	for _, mp := range t.entries {
		out = append(out, mp)
	}
	t.mu.RUnlock()
	slices.SortFunc(out, func(a, b *ModuleProcess) int {
		return strings.Compare(a.Alias, b.Alias)
	})
	return out
}
