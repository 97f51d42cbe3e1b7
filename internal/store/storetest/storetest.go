// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/insectcam/internal/store/sqlite"
)

// NewStore opens a migrated SQLite store under t.TempDir and closes it when
// the test ends.
func NewStore(t testing.TB) *sqlite.SQLiteStore {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "insectcam-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
