package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Manager writes files below a root directory. Every write goes through a
// temporary file in the destination directory followed by a rename, so a
// reader never observes a partially written file.
type Manager struct {
	root  string
	saved map[string]bool
	mu    sync.RWMutex
}

// NewManager creates a new storage manager rooted at root
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		root:  root,
		saved: make(map[string]bool),
	}, nil
}

// Root returns the root directory
func (m *Manager) Root() string {
	return m.root
}

// Path joins elem onto the root directory
func (m *Manager) Path(elem ...string) string {
	return filepath.Join(append([]string{m.root}, elem...)...)
}

// Exists reports whether a file has been saved at path, by this manager
// or by an earlier run.
func (m *Manager) Exists(path string) bool {
	m.mu.RLock()
	known := m.saved[path]
	m.mu.RUnlock()
	if known {
		return true
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	m.mu.Lock()
	m.saved[path] = true
	m.mu.Unlock()
	return true
}

// Save writes the content of r to path atomically, creating parent
// directories as needed.
func (m *Manager) Save(r io.Reader, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write file data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Chmod(tempFile, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[path] = true
	m.mu.Unlock()

	return nil
}

// WriteFile is Save for in-memory content
func (m *Manager) WriteFile(path string, data []byte) error {
	return m.Save(bytes.NewReader(data), path)
}

// SavedCount returns the number of files known to exist
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
