// Package testutil provides small harnesses shared across package
// tests, the way cuemby-warren's own test suites lean on a handful of
// constructor helpers rather than repeating setup in every _test.go.
package testutil

import (
	"testing"

	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/engine"
)

// OpenEngine opens a Database rooted at a fresh t.TempDir, with
// t.Cleanup closing it automatically.
func OpenEngine(t *testing.T) *engine.Database {
	t.Helper()

	cfg := config.Default(t.TempDir())
	db, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})
	return db
}
