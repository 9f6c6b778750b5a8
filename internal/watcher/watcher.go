// Package watcher drives the reload pipeline: filesystem events are
// classified, debounced, freshness-stamped, and dispatched to bench.
//
// The watcher:
// 1. Watches apps/<app> trees for JSON file modifications
// 2. Classifies paths against the DocType layout
// 3. Debounces repeated events per record
// 4. Rewrites the modified timestamp and invokes reload-doc / clear-cache
// 5. Handles graceful shutdown
package watcher

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/synthlane/docwatch/internal/debounce"
	"github.com/synthlane/docwatch/internal/dispatch"
	"github.com/synthlane/docwatch/internal/docfile"
	"github.com/synthlane/docwatch/internal/docpath"
	"github.com/synthlane/docwatch/internal/ui"
)

// ReloadDispatcher dispatches the external actions for one record.
type ReloadDispatcher interface {
	Dispatch(key docpath.RecordKey) dispatch.Outcome
}

// Notifier receives pipeline events, e.g. for the status server. All
// methods are called synchronously from the event loop and must not block.
type Notifier interface {
	ChangeDetected(key docpath.RecordKey, path string)
	TouchResult(key docpath.RecordKey, stamp string, err error)
	ReloadResult(key docpath.RecordKey, outcome dispatch.Outcome)
}

// Config holds watcher configuration.
type Config struct {
	// Classifier maps event paths to record keys.
	Classifier *docpath.Classifier

	// Apps are the app names whose apps/<app> trees are watched.
	Apps []string

	// Gate suppresses repeated triggers per record.
	Gate *debounce.Gate

	// Dispatcher runs the external reload actions.
	Dispatcher ReloadDispatcher

	// Touch rewrites the freshness timestamp. Defaults to docfile.Touch.
	// The rewrite is best-effort: on failure the pipeline still
	// dispatches the reload.
	Touch func(path string) (string, error)

	// Logger for watcher activity.
	Logger *log.Logger

	// Notifier receives pipeline events. Optional.
	Notifier Notifier
}

// Watcher subscribes to filesystem events for the configured app trees and
// runs the reload pipeline synchronously for each qualifying event.
type Watcher struct {
	classifier *docpath.Classifier
	apps       []string
	gate       *debounce.Gate
	dispatcher ReloadDispatcher
	touch      func(path string) (string, error)
	logger     *log.Logger
	notifier   Notifier

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a watcher from config. The watcher must be started with
// Start() before it processes events.
func New(config *Config) (*Watcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if len(config.Apps) == 0 {
		return nil, fmt.Errorf("apps list cannot be empty")
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}

	touch := config.Touch
	if touch == nil {
		touch = docfile.Touch
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		classifier: config.Classifier,
		apps:       config.Apps,
		gate:       config.Gate,
		dispatcher: config.Dispatcher,
		touch:      touch,
		logger:     logger,
		notifier:   config.Notifier,
		watcher:    fw,
		done:       make(chan struct{}),
	}, nil
}

// Start registers watches for each existing apps/<app> tree and begins the
// event loop. Roots that do not exist are skipped with a warning; at least
// one root must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	watched := 0
	for _, app := range w.apps {
		root := w.classifier.AppRoot(app)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			w.logger.Printf("%s App directory not found, skipping: %s", ui.RenderWarn("⚠"), root)
			continue
		}
		if err := w.addRecursive(root); err != nil {
			w.watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		w.logger.Printf("Watching: %s", root)
		watched++
	}

	if watched == 0 {
		w.watcher.Close()
		return fmt.Errorf("no app directories found under %s", filepath.Join(w.classifier.Root(), "apps"))
	}

	w.running = true
	w.wg.Add(1)
	go w.run()

	return nil
}

// Stop unsubscribes all watches and waits for the event loop to exit. The
// in-flight pipeline execution, if any, is allowed to finish. Stop is
// idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// addRecursive watches dir and every subdirectory. fsnotify watches are
// not recursive, so the tree is walked once here and extended as new
// directories appear. Hidden directories and node_modules are skipped:
// no tracked record path contains such a segment.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// run is the event loop. Only modification events on files enter the
// pipeline; directory creations extend the watch set so records added
// after startup are still seen.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			isDir := false
			if info, err := os.Stat(event.Name); err == nil {
				isDir = info.IsDir()
			}

			if event.Has(fsnotify.Create) && isDir {
				if err := w.addRecursive(event.Name); err != nil {
					w.logger.Printf("Failed to watch new directory %s: %v", event.Name, err)
				}
				continue
			}

			if !event.Has(fsnotify.Write) {
				continue
			}

			w.HandleEvent(event.Name, isDir)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// HandleEvent runs the full pipeline for one modification event. It is
// exported so tests can drive the pipeline without a real filesystem
// subscription. A panic anywhere in the pipeline is caught here so one
// bad event cannot terminate the loop.
func (w *Watcher) HandleEvent(path string, isDir bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("%s Unexpected error processing %s: %v\n%s", ui.RenderFail("✗"), path, r, debug.Stack())
		}
	}()

	if isDir {
		return
	}

	key, ok := w.classifier.Classify(path)
	if !ok {
		return
	}

	if !w.gate.Admit(key) {
		return
	}

	w.logger.Printf("Detected change in %s", filepath.Base(path))
	w.logger.Printf("Reloading: module=%s, doctype=%s, docname=%s", key.Module, key.DocType, key.Name)
	if w.notifier != nil {
		w.notifier.ChangeDetected(key, path)
	}

	// Best-effort: bench does not need the fresh timestamp to reload,
	// but a stale one can make it skip the record on its own check.
	stamp, err := w.touch(path)
	if err != nil {
		w.logger.Printf("%s Could not update timestamp: %v", ui.RenderWarn("⚠"), err)
	} else {
		w.logger.Printf("%s Updated modified timestamp to: %s", ui.RenderPass("✓"), stamp)
	}
	if w.notifier != nil {
		w.notifier.TouchResult(key, stamp, err)
	}

	outcome := w.dispatcher.Dispatch(key)
	if w.notifier != nil {
		w.notifier.ReloadResult(key, outcome)
	}
}
