package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// EventKind names a lifecycle transition reported to the Store.
type EventKind string

const (
	EventActivate EventKind = "activateUpdate"
	EventMerge    EventKind = "mergeUpdate"
	EventRevert   EventKind = "revertUpdate"
)

// Event is emitted by the supervisor on every update transition. Config is
// the module config in effect after the transition.
type Event struct {
	Kind   EventKind
	Module string
	Update Update
	Config map[string]any
}

// Store durably records update transitions. It is the persistence
// collaborator of the update lifecycle.
type Store interface {
	Record(ctx context.Context, ev Event) error
}

// NopStore discards every event.
type NopStore struct{}

// Record implements Store.
func (NopStore) Record(context.Context, Event) error { return nil }

// FileStore persists merges next to the patch files: the merged module config
// is written to merged/<alias>.yaml and the consumed patch file is removed.
// Reverted patches are moved to reverted/ so they are not picked up again.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

type mergedRecord struct {
	Module   string         `yaml:"module"`
	UpdateID string         `yaml:"update_id"`
	MergedAt time.Time      `yaml:"merged_at"`
	Config   map[string]any `yaml:"config"`
}

// Record implements Store.
func (s *FileStore) Record(ctx context.Context, ev Event) error {
	logger := ctxlog.FromContext(ctx).With("module", ev.Module, "update_id", ev.Update.ID)

	switch ev.Kind {
	case EventActivate:
		logger.Info("Update activated.")
		return nil

	case EventMerge:
		mergedDir := filepath.Join(s.dir, "merged")
		if err := os.MkdirAll(mergedDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", mergedDir, err)
		}
		raw, err := yaml.Marshal(mergedRecord{
			Module:   ev.Module,
			UpdateID: ev.Update.ID,
			MergedAt: s.now().UTC(),
			Config:   ev.Config,
		})
		if err != nil {
			return fmt.Errorf("failed to encode merged config: %w", err)
		}
		target := filepath.Join(mergedDir, ev.Module+".yaml")
		if err := os.WriteFile(target, raw, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		if ev.Update.Source != "" {
			if err := os.Remove(ev.Update.Source); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove consumed patch %s: %w", ev.Update.Source, err)
			}
		}
		logger.Info("Update merged.", "path", target)
		return nil

	case EventRevert:
		if ev.Update.Source != "" {
			revertedDir := filepath.Join(s.dir, "reverted")
			if err := os.MkdirAll(revertedDir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", revertedDir, err)
			}
			target := filepath.Join(revertedDir, filepath.Base(ev.Update.Source))
			if err := os.Rename(ev.Update.Source, target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to move reverted patch %s: %w", ev.Update.Source, err)
			}
		}
		logger.Info("Update reverted.")
		return nil
	}
	return fmt.Errorf("unknown update event %q", ev.Kind)
}
