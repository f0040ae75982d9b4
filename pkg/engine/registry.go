package engine

import (
	"path/filepath"
	"sync"

	"github.com/stratadb/strata/pkg/strataerr"
)

// openRegistry tracks every data directory currently open in this
// process — one database per data directory, process-wide. A plain
// sync.Mutex is enough here: unlike a poisoning mutex, a panicking
// holder never leaves this lock permanently unusable for the rest of
// the process.
var openRegistry = struct {
	mu   sync.Mutex
	dirs map[string]struct{}
}{dirs: make(map[string]struct{})}

// registerOpen claims dataDir for this process, failing if it is
// already open, and returns its absolute form for later release.
func registerOpen(dataDir string) (string, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return "", strataerr.Wrap(strataerr.Io, err, "resolve data directory %s", dataDir)
	}

	openRegistry.mu.Lock()
	defer openRegistry.mu.Unlock()
	if _, ok := openRegistry.dirs[abs]; ok {
		return "", strataerr.New(strataerr.AlreadyExists, "database at %s is already open in this process", abs)
	}
	openRegistry.dirs[abs] = struct{}{}
	return abs, nil
}

// unregisterOpen releases a directory claimed by registerOpen.
func unregisterOpen(abs string) {
	openRegistry.mu.Lock()
	defer openRegistry.mu.Unlock()
	delete(openRegistry.dirs, abs)
}
