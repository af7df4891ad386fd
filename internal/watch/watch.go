// Package watch reloads dataset files when they change on disk.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"
)

// DefaultDebounce collapses bursts of writes from editors and copy tools.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the set of changed files after the debounce window.
type Handler func(ctx context.Context, paths []string) error

// Watcher watches directories and reports changed files that pass Match.
type Watcher struct {
	log      logger.Logger
	debounce time.Duration
	match    func(path string) bool
}

// New constructs a Watcher. A zero debounce selects DefaultDebounce.
func New(log logger.Logger, debounce time.Duration, match func(path string) bool) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	return &Watcher{log: log, debounce: debounce, match: match}
}

// Run watches dirs until ctx is cancelled. Handler errors are logged and
// watching continues.
func (w *Watcher) Run(ctx context.Context, dirs []string, handle Handler) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.New(apperrors.ErrCategorySystem, apperrors.CodeSystemGeneric, "failed to create file watcher", err).
			WithModule("watch").
			WithOperation("Run")
	}
	defer fsw.Close()

	for _, dir := range uniqueDirs(dirs) {
		if err := fsw.Add(dir); err != nil {
			return apperrors.New(apperrors.ErrCategorySystem, apperrors.CodeSystemGeneric, "failed to watch directory", err).
				WithModule("watch").
				WithOperation("Run").
				WithField("dir", dir)
		}
		w.log.DebugContext(ctx, "Watching directory", logger.String("dir", dir))
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) || !w.match(event.Name) {
				continue
			}
			w.log.DebugContext(ctx, "File changed", logger.String("path", event.Name), logger.String("op", event.Op.String()))
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WarnContext(ctx, "File watcher error", logger.Error(err))

		case <-timer.C:
			paths := drain(pending)
			if len(paths) == 0 {
				continue
			}
			if err := handle(ctx, paths); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.ErrorContext(ctx, "Reload failed", logger.Int("files", len(paths)), logger.Error(err))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func drain(pending map[string]struct{}) []string {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)
	return paths
}

func uniqueDirs(dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	var out []string
	for _, d := range dirs {
		d = filepath.Clean(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
