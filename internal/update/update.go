package update

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Capitalisk/ldem/internal/config"
)

// State is the lifecycle state of an update.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateMerged   State = "merged"
	StateReverted State = "reverted"
)

// Update is a configuration patch for one module.
type Update struct {
	ID     string         `json:"id" yaml:"id"`
	Module string         `json:"module" yaml:"module"`
	Change map[string]any `json:"change" yaml:"change"`
	State  State          `json:"state,omitempty" yaml:"-"`
	// Source is the file the update was read from, if any.
	Source string `json:"source,omitempty" yaml:"-"`
}

// ErrInvalidUpdate is returned for an update without an id or change.
var ErrInvalidUpdate = errors.New("update requires an id and a change")

// ErrNoActiveUpdate is returned by Merge and Revert when nothing is active.
var ErrNoActiveUpdate = errors.New("no active update")

// ActiveUpdateConflictError is returned when an update is activated while
// another one is still active.
type ActiveUpdateConflictError struct {
	Module    string
	Active    string
	Requested string
}

func (e *ActiveUpdateConflictError) Error() string {
	return fmt.Sprintf("cannot activate update %s on module %s: update %s is already active", e.Requested, e.Module, e.Active)
}

// Tracker holds the update bookkeeping of a single module: the pending queue
// in insertion order, the active update and the config snapshot needed to
// revert it. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	module   string
	pending  []Update
	active   *Update
	snapshot map[string]any
}

// NewTracker returns a tracker for module seeded with pending updates.
func NewTracker(module string, pending ...Update) *Tracker {
	t := &Tracker{module: module}
	for _, u := range pending {
		t.Enqueue(u)
	}
	return t
}

// Enqueue appends an update to the pending queue. An update whose id is
// already queued replaces the queued copy in place.
func (t *Tracker) Enqueue(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u.Module = t.module
	if u.State == "" {
		u.State = StatePending
	}
	for i := range t.pending {
		if t.pending[i].ID == u.ID {
			t.pending[i] = u
			return
		}
	}
	t.pending = append(t.pending, u)
}

// Remove drops a pending update that is not active. It reports whether the
// update was found.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil && t.active.ID == id {
		return false
	}
	for i := range t.pending {
		if t.pending[i].ID == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns a copy of the pending queue, in insertion order.
func (t *Tracker) Pending() []Update {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Update, len(t.pending))
	copy(out, t.pending)
	return out
}

// Active returns the active update, if any.
func (t *Tracker) Active() (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Update{}, false
	}
	return *t.active, true
}

// Activate applies u on top of current and records it as active. The
// returned map is the patched config; current is kept as the rollback
// snapshot.
func (t *Tracker) Activate(u Update, current map[string]any) (map[string]any, error) {
	if u.ID == "" || len(u.Change) == 0 {
		return nil, ErrInvalidUpdate
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return nil, &ActiveUpdateConflictError{Module: t.module, Active: t.active.ID, Requested: u.ID}
	}

	u.Module = t.module
	u.State = StateActive

	found := false
	for i := range t.pending {
		if t.pending[i].ID == u.ID {
			t.pending[i] = u
			found = true
			break
		}
	}
	if !found {
		t.pending = append(t.pending, u)
	}

	active := u
	t.active = &active
	t.snapshot = config.CloneMap(current)
	return ApplyPatch(current, u.Change), nil
}

// Merge commits the active update: it leaves the pending queue and the
// rollback snapshot is discarded.
func (t *Tracker) Merge() (Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Update{}, ErrNoActiveUpdate
	}
	merged := *t.active
	merged.State = StateMerged
	t.dropActiveLocked()
	return merged, nil
}

// Revert abandons the active update and returns the config snapshot taken
// when it was activated. The update leaves the pending queue.
func (t *Tracker) Revert() (Update, map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Update{}, nil, ErrNoActiveUpdate
	}
	reverted := *t.active
	reverted.State = StateReverted
	snapshot := t.snapshot
	t.dropActiveLocked()
	return reverted, snapshot, nil
}

func (t *Tracker) dropActiveLocked() {
	for i := range t.pending {
		if t.pending[i].ID == t.active.ID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.active = nil
	t.snapshot = nil
}

// ApplyPatch returns base with change merged in. Nested maps merge
// recursively and nil values delete keys.
func ApplyPatch(base, change map[string]any) map[string]any {
	return config.Merge(base, change)
}
