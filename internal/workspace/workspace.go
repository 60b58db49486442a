// Package workspace manages the local staging directory for one deployment run.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
)

// Manager handles the staging workspace for a deployment. The workspace
// path is fixed per target folder so that stale state from a previous
// failed run can be removed before staging begins.
type Manager struct {
	baseDir string
	dir     string
}

// NewManager creates a workspace manager rooted at baseDir. An empty
// baseDir falls back to the system temp directory.
func NewManager(baseDir, folder string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir: baseDir,
		dir:     filepath.Join(baseDir, fmt.Sprintf("nekodeploy-%s", folder)),
	}
}

// Prepare creates a fresh workspace directory, removing any remnant from a
// prior run first. Local staging state must not leak between runs.
func (m *Manager) Prepare() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to remove stale workspace: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Prepared workspace", logfields.Path(m.dir))
	return nil
}

// Path returns the workspace directory.
func (m *Manager) Path() string {
	return m.dir
}

// Cleanup removes the workspace directory.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	return nil
}

// CopyDir recursively copies the contents of src into dst, preserving the
// relative layout. Symlinks and special files are skipped.
func CopyDir(dst, src string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
