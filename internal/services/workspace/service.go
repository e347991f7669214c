// Package workspace manages the temporary staging tree of a backup run.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Subdirectory names inside the workspace root.
const (
	DirName      = "tmp"
	DBsDirName   = "dbs"
	FilesDirName = "files"
)

const dirPerm = 0o750

// Manager owns the staging directory tree rooted at <source>/tmp.
type Manager struct {
	root   string
	logger zerolog.Logger
}

// New creates a workspace manager for the given root directory.
func New(logger zerolog.Logger, root string) *Manager {
	return &Manager{
		root:   root,
		logger: logger,
	}
}

// ForSource returns a manager rooted at <sourcePath>/tmp.
func ForSource(logger zerolog.Logger, sourcePath string) *Manager {
	return New(logger, filepath.Join(sourcePath, DirName))
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// DBsDir returns the directory that receives database dumps.
func (m *Manager) DBsDir() string { return filepath.Join(m.root, DBsDirName) }

// FilesDir returns the directory that receives copied files.
func (m *Manager) FilesDir() string { return filepath.Join(m.root, FilesDirName) }

// Prepare removes any leftover workspace and creates a fresh one. The dbs and
// files subdirectories are only created when requested.
func (m *Manager) Prepare(withDBs, withFiles bool) error {
	if err := m.remove(); err != nil {
		return err
	}

	m.logger.Debug().Str("root", m.root).Msg("creating workspace")
	if err := mkdir(m.root); err != nil {
		return err
	}

	if withDBs {
		if err := mkdir(m.DBsDir()); err != nil {
			return err
		}
	}
	if withFiles {
		if err := mkdir(m.FilesDir()); err != nil {
			return err
		}
	}

	return nil
}

// Teardown removes the workspace tree. A missing workspace is not an error.
func (m *Manager) Teardown() error {
	return m.remove()
}

// Exists reports whether the workspace root is present on disk.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.root)
	return err == nil
}

func (m *Manager) remove() error {
	if _, err := os.Lstat(m.root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	m.logger.Debug().Str("root", m.root).Msg("removing workspace")
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", m.root, err)
	}
	return nil
}

func mkdir(path string) error {
	if err := os.Mkdir(path, dirPerm); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}
