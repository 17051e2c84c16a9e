package auth

import (
	"fmt"
	"time"
)

// Provider hands out the current credential, enforcing the freshness
// window. It is read-only during a run.
type Provider struct {
	manager *Manager
	profile string
	maxAge  time.Duration
	now     func() time.Time
}

// NewProvider creates a provider for one profile. A non-positive maxAge
// disables the expiry check.
func NewProvider(manager *Manager, profile string, maxAge time.Duration) *Provider {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Provider{
		manager: manager,
		profile: profile,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// GetCredential returns the stored credential or ErrNotLoggedIn /
// ErrCredentialExpired.
func (p *Provider) GetCredential() (*Credential, error) {
	cred, err := p.manager.Retrieve(p.profile)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.profile, ErrNotLoggedIn)
	}
	if cred.Token == "" || cred.Cookie == "" {
		return nil, fmt.Errorf("profile %q: %w", p.profile, ErrNotLoggedIn)
	}

	if p.maxAge > 0 && cred.Age(p.now()) > p.maxAge {
		return nil, fmt.Errorf("profile %q obtained %s ago: %w",
			p.profile, cred.Age(p.now()).Round(time.Minute), ErrCredentialExpired)
	}
	return cred, nil
}

// ExpiresAt returns when the credential stops being accepted.
func (p *Provider) ExpiresAt(cred *Credential) time.Time {
	if p.maxAge <= 0 {
		return time.Time{}
	}
	return cred.ObtainedAt.Add(p.maxAge)
}
