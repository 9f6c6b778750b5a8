package watcher

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/synthlane/docwatch/internal/debounce"
	"github.com/synthlane/docwatch/internal/dispatch"
	"github.com/synthlane/docwatch/internal/docpath"
)

// recordingDispatcher records dispatched keys and replays a fixed outcome.
type recordingDispatcher struct {
	mu      sync.Mutex
	keys    []docpath.RecordKey
	outcome dispatch.Outcome
	panics  bool
}

func (d *recordingDispatcher) Dispatch(key docpath.RecordKey) dispatch.Outcome {
	d.mu.Lock()
	d.keys = append(d.keys, key)
	d.mu.Unlock()
	if d.panics {
		panic("dispatcher exploded")
	}
	return d.outcome
}

func (d *recordingDispatcher) Keys() []docpath.RecordKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]docpath.RecordKey(nil), d.keys...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newBench creates a bench tree with one tracked record and returns the
// bench root and the record path.
func newBench(t *testing.T) (string, string) {
	t.Helper()

	bench := t.TempDir()
	path := filepath.Join(bench, "apps", "erpnext", "erpnext", "accounts", "onboarding_step", "setup_taxes", "setup_taxes.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}
	content := `{"modified": "2020-01-01 00:00:00.000000", "name": "setup_taxes"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write record: %v", err)
	}
	return bench, path
}

func newTestWatcher(t *testing.T, bench string, apps []string, clock func() time.Time, disp ReloadDispatcher) *Watcher {
	t.Helper()

	classifier, err := docpath.NewClassifier(bench, apps)
	if err != nil {
		t.Fatalf("NewClassifier() failed: %v", err)
	}

	w, err := New(&Config{
		Classifier: classifier,
		Apps:       apps,
		Gate:       debounce.NewGateWithClock(time.Second, clock),
		Dispatcher: disp,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return w
}

func TestNew_Validation(t *testing.T) {
	bench, _ := newBench(t)
	classifier, err := docpath.NewClassifier(bench, []string{"erpnext"})
	if err != nil {
		t.Fatalf("NewClassifier() failed: %v", err)
	}

	tests := []struct {
		name   string
		config *Config
	}{
		{"nil config", nil},
		{"nil classifier", &Config{Apps: []string{"erpnext"}, Gate: debounce.NewGate(0), Dispatcher: &recordingDispatcher{}}},
		{"no apps", &Config{Classifier: classifier, Gate: debounce.NewGate(0), Dispatcher: &recordingDispatcher{}}},
		{"nil gate", &Config{Classifier: classifier, Apps: []string{"erpnext"}, Dispatcher: &recordingDispatcher{}}},
		{"nil dispatcher", &Config{Classifier: classifier, Apps: []string{"erpnext"}, Gate: debounce.NewGate(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestWatcher_StartStop(t *testing.T) {
	bench, _ := newBench(t)
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, &recordingDispatcher{})

	if w.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if err := w.Start(); err == nil {
		t.Error("Second Start() should fail")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Second Stop() should be a no-op, got: %v", err)
	}
}

func TestWatcher_SkipsMissingAppRoots(t *testing.T) {
	bench, _ := newBench(t)
	// "frappe" has no apps/frappe directory in this bench; only erpnext
	// should be watched, and startup should still succeed.
	w := newTestWatcher(t, bench, []string{"frappe", "erpnext"}, time.Now, &recordingDispatcher{})

	if err := w.Start(); err != nil {
		t.Fatalf("Start() should skip missing roots, got: %v", err)
	}
	defer w.Stop()
}

func TestWatcher_FailsWhenNoRootExists(t *testing.T) {
	bench := t.TempDir()
	classifier, err := docpath.NewClassifier(bench, []string{"frappe"})
	if err != nil {
		t.Fatalf("NewClassifier() failed: %v", err)
	}

	w, err := New(&Config{
		Classifier: classifier,
		Apps:       []string{"frappe"},
		Gate:       debounce.NewGate(0),
		Dispatcher: &recordingDispatcher{},
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("Start() with no existing roots should fail")
	}
}

func TestHandleEvent_DebouncesRepeatedEvents(t *testing.T) {
	bench, path := newBench(t)
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	disp := &recordingDispatcher{}
	w := newTestWatcher(t, bench, []string{"erpnext"}, clock.Now, disp)

	// Two events for the same record inside the window: exactly one
	// reload must be dispatched.
	w.HandleEvent(path, false)
	clock.Advance(500 * time.Millisecond)
	w.HandleEvent(path, false)

	keys := disp.Keys()
	if len(keys) != 1 {
		t.Fatalf("Dispatched %d times, want 1", len(keys))
	}
	want := docpath.RecordKey{Module: "accounts", DocType: "onboarding_step", Name: "setup_taxes"}
	if keys[0] != want {
		t.Errorf("Dispatched key = %+v, want %+v", keys[0], want)
	}

	// After the window the record dispatches again.
	clock.Advance(time.Second)
	w.HandleEvent(path, false)
	if got := len(disp.Keys()); got != 2 {
		t.Errorf("Dispatched %d times after window elapsed, want 2", got)
	}
}

func TestHandleEvent_IgnoresDirectoriesAndUntrackedPaths(t *testing.T) {
	bench, path := newBench(t)
	disp := &recordingDispatcher{}
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, disp)

	w.HandleEvent(path, true)
	w.HandleEvent(filepath.Join(bench, "apps", "erpnext", "README.md"), false)
	w.HandleEvent(filepath.Join(bench, "sites", "common_site_config.json"), false)

	if got := len(disp.Keys()); got != 0 {
		t.Errorf("Dispatched %d times, want 0", got)
	}
}

func TestHandleEvent_UpdatesFreshnessTimestamp(t *testing.T) {
	bench, path := newBench(t)
	disp := &recordingDispatcher{}
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, disp)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}

	w.HandleEvent(path, false)

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	if string(before) == string(after) {
		t.Error("Record file should have been rewritten with a fresh timestamp")
	}
	if len(after) == 0 || after[len(after)-1] != '\n' {
		t.Error("Rewritten record should end in a newline")
	}
}

func TestHandleEvent_TouchFailureStillDispatches(t *testing.T) {
	bench, path := newBench(t)
	classifier, err := docpath.NewClassifier(bench, []string{"erpnext"})
	if err != nil {
		t.Fatalf("NewClassifier() failed: %v", err)
	}

	disp := &recordingDispatcher{}
	w, err := New(&Config{
		Classifier: classifier,
		Apps:       []string{"erpnext"},
		Gate:       debounce.NewGate(time.Second),
		Dispatcher: disp,
		Touch: func(string) (string, error) {
			return "", errors.New("disk full")
		},
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	w.HandleEvent(path, false)

	if got := len(disp.Keys()); got != 1 {
		t.Errorf("Dispatched %d times despite touch failure, want 1", got)
	}
}

func TestHandleEvent_RecoversFromPanic(t *testing.T) {
	bench, path := newBench(t)
	disp := &recordingDispatcher{panics: true}
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, disp)

	// Must not propagate the panic.
	w.HandleEvent(path, false)

	if got := len(disp.Keys()); got != 1 {
		t.Errorf("Dispatcher called %d times, want 1", got)
	}
}

func TestWatcher_EndToEnd(t *testing.T) {
	bench, path := newBench(t)
	disp := &recordingDispatcher{}
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, disp)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	// Rewrite the tracked record and wait for the pipeline to fire.
	content := `{"modified": "2020-01-01 00:00:00.000000", "name": "setup_taxes"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to rewrite record: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(disp.Keys()) >= 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	keys := disp.Keys()
	if len(keys) == 0 {
		t.Fatal("No dispatch after modifying a tracked record")
	}
	want := docpath.RecordKey{Module: "accounts", DocType: "onboarding_step", Name: "setup_taxes"}
	if keys[0] != want {
		t.Errorf("Dispatched key = %+v, want %+v", keys[0], want)
	}
}

func TestWatcher_EndToEnd_NewDoctypeDirectory(t *testing.T) {
	bench, _ := newBench(t)
	disp := &recordingDispatcher{}
	w := newTestWatcher(t, bench, []string{"erpnext"}, time.Now, disp)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	// A record directory created after startup must still be seen.
	dir := filepath.Join(bench, "apps", "erpnext", "erpnext", "selling", "onboarding_step", "create_product")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	// Give the watcher a moment to pick up the new directory watches.
	time.Sleep(300 * time.Millisecond)

	path := filepath.Join(dir, "create_product.json")
	content := fmt.Sprintf(`{"modified": "2020-01-01 00:00:00.000000", "name": %q}`, "create_product")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write record: %v", err)
	}
	// Write again after the create so a Write event is delivered even if
	// the create raced the new watch.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to rewrite record: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(disp.Keys()) >= 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	keys := disp.Keys()
	if len(keys) == 0 {
		t.Fatal("No dispatch for a record in a directory created after startup")
	}
	if keys[0].Name != "create_product" {
		t.Errorf("Dispatched name = %q, want %q", keys[0].Name, "create_product")
	}
}
