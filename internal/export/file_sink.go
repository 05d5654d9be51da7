package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes artifacts to <root>/<run_id>/ and, when DWHDir is set,
// mirrors them into DWHDir where each run overwrites the previous files.
type FileSink struct {
	Root   string
	DWHDir string
}

// NewFileSink creates a filesystem sink.
func NewFileSink(root, dwhDir string) *FileSink {
	return &FileSink{Root: root, DWHDir: dwhDir}
}

// Name implements Sink.
func (s *FileSink) Name() string {
	return "file"
}

// RunDir returns the folder holding a run's artifacts.
func (s *FileSink) RunDir(runID string) string {
	return filepath.Join(s.Root, runID)
}

// Put implements Sink.
func (s *FileSink) Put(_ context.Context, runID string, f File) error {
	if err := writeFileAtomic(filepath.Join(s.RunDir(runID), f.Name), f.Data); err != nil {
		return err
	}
	if s.DWHDir != "" {
		return writeFileAtomic(filepath.Join(s.DWHDir, f.Name), f.Data)
	}
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
