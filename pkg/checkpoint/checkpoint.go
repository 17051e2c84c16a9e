package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"mpscraper/pkg/logger"
)

// CurrentVersion is the checkpoint file format version
const CurrentVersion = 1

// AccountProgress records one finished account
type AccountProgress struct {
	Articles   int       `json:"articles"`
	Saved      int       `json:"saved"`
	FinishedAt time.Time `json:"finished_at"`
}

// Checkpoint represents the state of a batch run
type Checkpoint struct {
	Name          string                     `json:"name"`
	Accounts      []string                   `json:"accounts"`
	Completed     map[string]AccountProgress `json:"completed"`
	Failed        map[string]string          `json:"failed,omitempty"` // account -> last error
	TotalArticles int                        `json:"total_articles"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
	Version       int                        `json:"version"`
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager for the named batch in the
// platform data directory
func NewManager(name string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerIn(filepath.Join(dataDir, "checkpoints"), name)
}

// NewManagerIn creates a checkpoint manager storing files in dir
func NewManagerIn(dir, name string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", name)),
		logger:         logger.GetLogger(),
	}, nil
}

// Path returns the checkpoint file path
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a new checkpoint for accounts and saves it
func (m *Manager) Create(name string, accounts []string) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		Name:      name,
		Accounts:  append([]string(nil), accounts...),
		Completed: make(map[string]AccountProgress),
		Failed:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   CurrentVersion,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"name":     name,
		"accounts": len(accounts),
		"path":     m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint. It returns nil without error when
// none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > CurrentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", checkpoint.Version, CurrentVersion)
	}
	if checkpoint.Completed == nil {
		checkpoint.Completed = make(map[string]AccountProgress)
	}
	if checkpoint.Failed == nil {
		checkpoint.Failed = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"name":           checkpoint.Name,
		"completed":      len(checkpoint.Completed),
		"total_articles": checkpoint.TotalArticles,
		"updated_at":     checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	file, err := os.CreateTemp(filepath.Dir(m.checkpointPath), filepath.Base(m.checkpointPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"name":           checkpoint.Name,
		"completed":      len(checkpoint.Completed),
		"total_articles": checkpoint.TotalArticles,
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// RecordAccount marks an account as finished
func (m *Manager) RecordAccount(checkpoint *Checkpoint, account string, articles, saved int) error {
	checkpoint.Completed[account] = AccountProgress{
		Articles:   articles,
		Saved:      saved,
		FinishedAt: time.Now(),
	}
	delete(checkpoint.Failed, account)
	checkpoint.TotalArticles += articles
	return m.Save(checkpoint)
}

// RecordFailure remembers the last error of an account. Failed accounts
// are retried on resume.
func (m *Manager) RecordFailure(checkpoint *Checkpoint, account string, cause error) error {
	checkpoint.Failed[account] = cause.Error()
	return m.Save(checkpoint)
}

// IsAccountDone checks if an account finished in an earlier run
func (checkpoint *Checkpoint) IsAccountDone(account string) bool {
	_, exists := checkpoint.Completed[account]
	return exists
}

// Pending returns the accounts that have not finished, in batch order
func (checkpoint *Checkpoint) Pending() []string {
	var pending []string
	for _, a := range checkpoint.Accounts {
		if !checkpoint.IsAccountDone(a) {
			pending = append(pending, a)
		}
	}
	return pending
}

// GetCheckpointInfo returns a summary of the checkpoint
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"name":           checkpoint.Name,
		"accounts":       len(checkpoint.Accounts),
		"completed":      len(checkpoint.Completed),
		"failed":         len(checkpoint.Failed),
		"total_articles": checkpoint.TotalArticles,
		"created_at":     checkpoint.CreatedAt,
		"updated_at":     checkpoint.UpdatedAt,
		"age":            time.Since(checkpoint.UpdatedAt),
	}, nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "mpscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "mpscraper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "mpscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "mpscraper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
