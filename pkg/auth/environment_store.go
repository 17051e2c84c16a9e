package auth

import (
	"os"
	"time"
)

const (
	envToken      = "MPSCRAPER_TOKEN"
	envCookie     = "MPSCRAPER_COOKIE"
	envObtainedAt = "MPSCRAPER_TOKEN_OBTAINED_AT"
)

// EnvironmentStore reads a single read-only credential from environment
// variables. It answers for any profile.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve builds a credential from MPSCRAPER_TOKEN and MPSCRAPER_COOKIE.
// MPSCRAPER_TOKEN_OBTAINED_AT (RFC 3339) dates it; without it the
// credential counts as freshly obtained.
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	token := os.Getenv(envToken)
	cookie := os.Getenv(envCookie)
	if token == "" || cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	if profile == "" {
		profile = DefaultProfile
	}

	obtainedAt := time.Now()
	if v := os.Getenv(envObtainedAt); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			obtainedAt = t
		}
	}

	return &Credential{
		Profile:    profile,
		Token:      token,
		Cookie:     cookie,
		ObtainedAt: obtainedAt,
	}, nil
}

// List returns the environment credential when set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(profile string) bool {
	return os.Getenv(envToken) != "" && os.Getenv(envCookie) != ""
}
