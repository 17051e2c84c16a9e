package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultProfile names the credential used when none is given.
const DefaultProfile = "default"

// Credential is a logged-in platform session: the admin token and the
// cookie header captured after login.
type Credential struct {
	Profile    string    `json:"profile"`
	Token      string    `json:"token"`
	Cookie     string    `json:"cookie"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// Age returns how long ago the credential was obtained.
func (c *Credential) Age(now time.Time) time.Duration {
	return now.Sub(c.ObtainedAt)
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(cred *Credential) error
	Retrieve(profile string) (*Credential, error)
	List() ([]*Credential, error)
	Delete(profile string) error
	Exists(profile string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the default store chain: system keyring when
// available, then the encrypted file at cacheFile (or the per-user config
// directory), then environment variables.
func NewManager(cacheFile string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if cacheFile == "" {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		cacheFile = filepath.Join(configDir, "credentials.enc")
	}

	encryptedStore, err := NewEncryptedFileStore(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over an explicit store chain.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the credential in the first store that accepts it and
// stamps ObtainedAt when unset.
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("token is required")
	}
	if cred.Cookie == "" {
		return errors.New("cookie is required")
	}
	if cred.Profile == "" {
		cred.Profile = DefaultProfile
	}
	if cred.ObtainedAt.IsZero() {
		cred.ObtainedAt = time.Now()
	}

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the credential from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// List returns the newest version of every profile across all stores
func (m *Manager) List() ([]*Credential, error) {
	byProfile := make(map[string]*Credential)
	var order []string

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			existing, ok := byProfile[cred.Profile]
			if !ok {
				order = append(order, cred.Profile)
			}
			if !ok || cred.ObtainedAt.After(existing.ObtainedAt) {
				byProfile[cred.Profile] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(order))
	for _, p := range order {
		result = append(result, byProfile[p])
	}
	return result, nil
}

// Delete removes the credential from every store that has it
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return ErrCredentialsNotFound
}

// ConfigDir returns the per-user configuration directory, creating it
// when missing.
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mpscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mpscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mpscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mpscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy with the token and cookie masked
func Sanitize(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	out.Token = maskString(cred.Token)
	out.Cookie = maskString(cred.Cookie)
	return &out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrCredentialExpired   = errors.New("credential expired")
)
