package supervisor

import (
	"slices"
	"time"
)

// ModuleStatus is a point-in-time view of one module.
type ModuleStatus struct {
	Alias              string    `json:"alias"`
	Pid                int       `json:"pid,omitempty"`
	Ready              bool      `json:"ready"`
	Down               bool      `json:"down"`
	Restarts           int       `json:"restarts"`
	StartedAt          time.Time `json:"startedAt,omitzero"`
	Actions            []string  `json:"actions"`
	Dependencies       []string  `json:"dependencies"`
	TargetDependencies []string  `json:"targetDependencies"`
	Dependents         []string  `json:"dependents"`
	ActiveUpdate       string    `json:"activeUpdate,omitempty"`
	PendingUpdates     []string  `json:"pendingUpdates"`
}

// Status reports every module, sorted by alias.
func (s *Supervisor) Status() []ModuleStatus {
	entries := s.table.Snapshot()
	out := make([]ModuleStatus, 0, len(entries))
	for _, mp := range entries {
		mp.mu.Lock()
		st := ModuleStatus{
			Alias:              mp.Alias,
			Ready:              mp.ready,
			Down:               mp.down,
			Restarts:           mp.restarts,
			StartedAt:          mp.startedAt,
			Actions:            slices.Clone(mp.actions),
			Dependencies:       slices.Clone(mp.dependencies),
			TargetDependencies: slices.Clone(mp.targets),
			Dependents:         slices.Clone(mp.dependents),
		}
		if mp.process != nil {
			st.Pid = mp.process.Pid()
		}
		mp.mu.Unlock()

		if u, ok := mp.Tracker.Active(); ok {
			st.ActiveUpdate = u.ID
		}
		for _, u := range mp.Tracker.Pending() {
			st.PendingUpdates = append(st.PendingUpdates, u.ID)
		}
		out = append(out, st)
	}
	return out
}

// Healthy reports whether every module is running and ready.
func (s *Supervisor) Healthy() bool {
	for _, mp := range s.table.Snapshot() {
		if !mp.Ready() {
			return false
		}
	}
	return true
}
