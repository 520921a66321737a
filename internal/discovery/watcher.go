package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// sessionLogExt is the extension agent processes give their event logs.
const sessionLogExt = ".jsonl"

// Registrar receives discovered session log paths. The ingestion
// coordinator implements it.
type Registrar interface {
	RegisterSource(path string)
	RemoveSource(path string)
}

// Watcher finds agent session logs under the configured directories: an
// initial scan for logs that already exist, then filesystem
// notifications for logs created or removed while running.
type Watcher struct {
	dirs      []string
	registrar Registrar
	logger    *pterm.Logger

	fsw  *fsnotify.Watcher
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher creates a new session log watcher
func NewWatcher(dirs []string, registrar Registrar, logger *pterm.Logger) *Watcher {
	return &Watcher{
		dirs:      dirs,
		registrar: registrar,
		logger:    logger,
	}
}

// Start scans the watch directories and begins listening for changes.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	watched := 0
	for _, dir := range w.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			w.logger.Warn("Watch directory not accessible, skipping",
				w.logger.Args("dir", dir, "error", err))
			continue
		}

		w.scanDir(dir)

		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("Failed to watch directory",
				w.logger.Args("dir", dir, "error", err))
			continue
		}
		watched++
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("Session log discovery started",
		w.logger.Args("dirs", len(w.dirs), "watched", watched))
	return nil
}

// Stop closes the filesystem watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.fsw != nil {
			w.fsw.Close()
		}
		w.wg.Wait()
		w.logger.Info("Session log discovery stopped")
	})
}

// scanDir registers every session log already present in the directory.
func (w *Watcher) scanDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("Failed to scan watch directory",
			w.logger.Args("dir", dir, "error", err))
		return
	}

	found := 0
	for _, entry := range entries {
		if entry.IsDir() || !isSessionLog(entry.Name()) {
			continue
		}
		w.registrar.RegisterSource(filepath.Join(dir, entry.Name()))
		found++
	}

	w.logger.Info("Scanned watch directory",
		w.logger.Args("dir", dir, "session_logs", found))
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Filesystem watcher error", w.logger.Args("error", err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isSessionLog(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
			return
		}
		w.logger.Info("New session log discovered", w.logger.Args("path", event.Name))
		w.registrar.RegisterSource(event.Name)

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// The tracker tolerates missing files, but a removed log is
		// gone for good in this layout; stop polling it.
		w.logger.Info("Session log removed", w.logger.Args("path", event.Name))
		w.registrar.RemoveSource(event.Name)
	}
}

func isSessionLog(name string) bool {
	return strings.HasSuffix(name, sessionLogExt)
}
