// Package docpath classifies filesystem paths against the bench DocType
// layout: apps/<app>/<app>/<module>/<doctype>/<name>/<name>.json.
package docpath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Suffix is the file extension of tracked DocType files.
const Suffix = ".json"

// RecordKey identifies one DocType record derived from a tracked path.
// It is the debounce map key and the argument tuple for reload-doc.
type RecordKey struct {
	// Module is the app module directory (e.g., "accounts").
	Module string
	// DocType is the doctype directory (e.g., "onboarding_step").
	DocType string
	// Name is the record name (e.g., "setup_taxes").
	Name string
}

// String returns the dotted form used as a debounce key and in logs.
func (k RecordKey) String() string {
	return k.Module + "." + k.DocType + "." + k.Name
}

// Classifier maps filesystem paths to RecordKeys. It is stateless after
// construction and safe for concurrent use.
type Classifier struct {
	root string
	apps map[string]struct{}
}

// NewClassifier creates a classifier rooted at benchPath that tracks only
// the given app names. The bench path is resolved once; symlinks in the
// root are followed so event paths resolve consistently.
func NewClassifier(benchPath string, apps []string) (*Classifier, error) {
	if benchPath == "" {
		return nil, fmt.Errorf("bench path cannot be empty")
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("apps list cannot be empty")
	}

	root, err := filepath.Abs(benchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bench path %s: %w", benchPath, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	allowed := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		allowed[app] = struct{}{}
	}

	return &Classifier{root: root, apps: allowed}, nil
}

// Root returns the resolved bench root directory.
func (c *Classifier) Root() string {
	return c.root
}

// AppRoot returns the watch root for one app: <bench>/apps/<app>.
func (c *Classifier) AppRoot(app string) string {
	return filepath.Join(c.root, "apps", app)
}

// Classify maps a path to its RecordKey. The second return is false for
// anything that is not a tracked DocType file. Classification never fails
// with an error: malformed or unresolvable input is simply not tracked.
func (c *Classifier) Classify(path string) (RecordKey, bool) {
	if filepath.Ext(path) != Suffix {
		return RecordKey{}, false
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return RecordKey{}, false
	}
	// Resolve symlinks so paths compare against the resolved root. A
	// resolution failure (broken symlink, vanished file) is not tracked.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else {
		return RecordKey{}, false
	}

	rel, err := filepath.Rel(c.root, abs)
	if err != nil {
		return RecordKey{}, false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return RecordKey{}, false
	}

	// apps / <app> / <app> / <module> / <doctype> / <name> / <name>.json
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 7 {
		return RecordKey{}, false
	}
	if parts[0] != "apps" {
		return RecordKey{}, false
	}
	app := parts[1]
	if _, ok := c.apps[app]; !ok {
		return RecordKey{}, false
	}
	if parts[2] != app {
		return RecordKey{}, false
	}

	key := RecordKey{Module: parts[3], DocType: parts[4], Name: parts[5]}
	if parts[6] != key.Name+Suffix {
		return RecordKey{}, false
	}

	return key, true
}
