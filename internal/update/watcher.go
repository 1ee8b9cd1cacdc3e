package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/fsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Watcher discovers update patch files in a directory. A patch file is YAML:
//
//	id: raise-limit
//	module: one
//	change:
//	  limit: 20
//
// When `module` is omitted it is taken from the file name prefix
// (`one.raise-limit.yaml`); when `id` is omitted it is derived from the file
// path, so rewriting the same file keeps the same update id.
type Watcher struct {
	dir string
}

// NewWatcher returns a watcher over dir.
func NewWatcher(dir string) *Watcher {
	return &Watcher{dir: dir}
}

// Scan reads every patch file currently present in the directory.
func (w *Watcher) Scan(ctx context.Context) ([]Update, error) {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read updates directory %s: %w", w.dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	files, err := fsutil.CollectFiles(paths, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}

	updates := make([]Update, 0, len(files))
	for _, f := range files {
		u, err := ReadPatchFile(f)
		if err != nil {
			logger.Warn("Skipping invalid update patch file.", "file", f, "error", err)
			continue
		}
		updates = append(updates, u)
	}
	logger.Debug("Scanned updates directory.", "dir", w.dir, "updates", len(updates))
	return updates, nil
}

// Watch blocks until ctx is done, calling found for every patch file that is
// created or rewritten in the directory.
func (w *Watcher) Watch(ctx context.Context, found func(Update)) error {
	logger := ctxlog.FromContext(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create updates directory %s: %w", w.dir, err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logger.Info("Watching for update patches.", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isPatchFile(ev.Name) {
				continue
			}
			u, err := ReadPatchFile(ev.Name)
			if err != nil {
				// Editors often write files in several steps; a later
				// event will carry the complete content.
				logger.Debug("Ignoring unreadable update patch.", "file", ev.Name, "error", err)
				continue
			}
			logger.Info("Discovered update patch.", "file", ev.Name, "module", u.Module, "update_id", u.ID)
			found(u)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Update watcher error.", "error", err)
		}
	}
}

// ReadPatchFile decodes a single patch file.
func ReadPatchFile(path string) (Update, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Update{}, err
	}
	var u Update
	if err := yaml.Unmarshal(raw, &u); err != nil {
		return Update{}, fmt.Errorf("invalid patch file %s: %w", path, err)
	}
	if u.Module == "" {
		base := filepath.Base(path)
		if i := strings.Index(base, "."); i > 0 {
			u.Module = base[:i]
		}
	}
	if u.Module == "" {
		return Update{}, fmt.Errorf("patch file %s does not name a module", path)
	}
	if len(u.Change) == 0 {
		return Update{}, fmt.Errorf("patch file %s has no change", path)
	}
	if u.ID == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		u.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
	}
	u.State = StatePending
	u.Source = path
	return u, nil
}

func isPatchFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
