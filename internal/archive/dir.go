package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirDestination writes session exports into a local directory.
type DirDestination struct {
	dir string
}

func NewDirDestination(dir string) *DirDestination {
	return &DirDestination{dir: dir}
}

// Write replaces dir/name atomically.
func (d *DirDestination) Write(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

var (
	_ Destination = (*DirDestination)(nil)
	_ Destination = (*S3Destination)(nil)
)
