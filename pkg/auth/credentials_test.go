package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory CredentialStore with error injection.
type memStore struct {
	mu         sync.Mutex
	creds      map[string]Credential
	storeError error
}

func newMemStore() *memStore {
	return &memStore{creds: map[string]Credential{}}
}

func (m *memStore) Store(cred *Credential) error {
	if m.storeError != nil {
		return m.storeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Profile] = *cred
	return nil
}

func (m *memStore) Retrieve(profile string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[profile]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &c, nil
}

func (m *memStore) List() ([]*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Credential
	for _, c := range m.creds {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) Delete(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[profile]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, profile)
	return nil
}

func (m *memStore) Exists(profile string) bool {
	_, err := m.Retrieve(profile)
	return err == nil
}

func TestManagerStoreRetrieveDelete(t *testing.T) {
	store := newMemStore()
	manager := NewManagerWithStores(store)

	cred := &Credential{Token: "1234567890", Cookie: "slave_sid=abc; data_ticket=xyz"}
	require.NoError(t, manager.Store(cred))
	assert.Equal(t, DefaultProfile, cred.Profile)
	assert.False(t, cred.ObtainedAt.IsZero())

	got, err := manager.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", got.Token)

	require.NoError(t, manager.Delete(DefaultProfile))
	_, err = manager.Retrieve(DefaultProfile)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, manager.Delete(DefaultProfile), ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(newMemStore())
	assert.Error(t, manager.Store(&Credential{Cookie: "c"}))
	assert.Error(t, manager.Store(&Credential{Token: "t"}))
	assert.Error(t, manager.Store(nil))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemStore()
	broken.storeError = errors.New("keychain locked")
	working := newMemStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(&Credential{Token: "t", Cookie: "c"}))
	assert.True(t, working.Exists(DefaultProfile))

	only := NewManagerWithStores(broken)
	err := only.Store(&Credential{Token: "t", Cookie: "c"})
	assert.ErrorContains(t, err, "keychain locked")
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := newMemStore()
	newer := newMemStore()
	now := time.Now()
	require.NoError(t, older.Store(&Credential{Profile: "work", Token: "old", Cookie: "c", ObtainedAt: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Credential{Profile: "work", Token: "new", Cookie: "c", ObtainedAt: now}))

	list, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Token)
}

func TestProvider(t *testing.T) {
	store := newMemStore()
	manager := NewManagerWithStores(store)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	provider := NewProvider(manager, "", 96*time.Hour)
	provider.now = func() time.Time { return now }

	_, err := provider.GetCredential()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, manager.Store(&Credential{Token: "t", Cookie: "c", ObtainedAt: now.Add(-95 * time.Hour)}))
	cred, err := provider.GetCredential()
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), provider.ExpiresAt(cred))

	require.NoError(t, manager.Store(&Credential{Token: "t", Cookie: "c", ObtainedAt: now.Add(-97 * time.Hour)}))
	_, err = provider.GetCredential()
	assert.ErrorIs(t, err, ErrCredentialExpired)

	noExpiry := NewProvider(manager, DefaultProfile, 0)
	_, err = noExpiry.GetCredential()
	assert.NoError(t, err)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	obtained := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Store(&Credential{Profile: "default", Token: "tok", Cookie: "secret-cookie", ObtainedAt: obtained}))
	require.NoError(t, store.Store(&Credential{Profile: "second", Token: "tok2", Cookie: "c2"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-cookie")

	got, err := store.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "secret-cookie", got.Cookie)
	assert.True(t, obtained.Equal(got.ObtainedAt))

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	wrong, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = wrong.Retrieve("default")
	assert.Error(t, err)

	require.NoError(t, store.Delete("second"))
	require.NoError(t, store.Delete("default"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, store.Delete("default"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(envPassphrase, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Profile: "default", Token: "t", Cookie: "c"}))

	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.True(t, reopened.Exists("default"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(envToken, "")
	t.Setenv(envCookie, "")
	store := NewEnvironmentStore()

	assert.False(t, store.Exists(""))
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(envToken, "987654")
	t.Setenv(envCookie, "a=b")
	t.Setenv(envObtainedAt, "2024-03-01T08:00:00Z")

	cred, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, cred.Profile)
	assert.Equal(t, "987654", cred.Token)
	assert.Equal(t, 2024, cred.ObtainedAt.Year())

	assert.ErrorIs(t, store.Store(cred), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(""), ErrStoreUnavailable)
}

func TestSanitize(t *testing.T) {
	cred := &Credential{Profile: "default", Token: "1234567890", Cookie: "short"}
	masked := Sanitize(cred)
	assert.Equal(t, "1234...7890", masked.Token)
	assert.Equal(t, "********", masked.Cookie)
	assert.Equal(t, "1234567890", cred.Token)
	assert.Nil(t, Sanitize(nil))
}

func TestParseToken(t *testing.T) {
	assert.Equal(t, "123456", ParseToken(" 123456 "))
	assert.Equal(t, "123456", ParseToken("https://mp.weixin.qq.com/cgi-bin/home?t=home/index&lang=zh_CN&token=123456"))
	assert.Equal(t, "42", ParseToken("lang=zh_CN&token=42"))
}

func TestNormalizeCookie(t *testing.T) {
	assert.Equal(t, "a=1; b=2", NormalizeCookie("Cookie: a=1; b=2 \n"))
	assert.Equal(t, "a=1", NormalizeCookie("a=1"))
}

func TestWriteLoginGuide(t *testing.T) {
	var buf bytes.Buffer
	WriteLoginGuide(&buf)
	assert.Contains(t, buf.String(), "mpscraper auth set")
}
