// Package watch reports file changes made outside the agent's tools so the
// validation cache never trusts content it did not see.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/han-bridge/internal/logging"
)

var log = logging.NewLogger("han-bridge.watch")

// Watcher recursively watches a project tree, skipping ignored directory
// names, and calls OnChange for every written, created, removed or renamed
// file.
type Watcher struct {
	root     string
	ignore   map[string]bool
	onChange func(path string)
	done     chan struct{}
}

// New returns a Watcher for root. Nothing is watched until Start.
func New(root string, ignore []string, onChange func(path string)) *Watcher {
	set := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		set[name] = true
	}
	return &Watcher{
		root:     root,
		ignore:   set,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start adds the watches and processes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.addTree(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}
	go w.run(ctx, fsw)
	return nil
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped; only the root is fatal.
			if path == dir {
				return err
			}
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignore[d.Name()] {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			log.WithError(err).WithField("dir", path).Debug("Failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignore[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						log.WithError(err).WithField("dir", event.Name).Debug("Failed to watch new directory")
					}
					continue
				}
			}
			log.WithFields(logrus.Fields{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("File changed on disk")
			w.onChange(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Watcher error")
		}
	}
}
