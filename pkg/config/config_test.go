package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.Scraper.RequestInterval)
	assert.Equal(t, 3*time.Second, cfg.Scraper.ContentInterval)
	assert.Equal(t, 10, cfg.Scraper.MaxPages)
	assert.Equal(t, 30, cfg.Scraper.Days)
	assert.True(t, cfg.Scraper.IncludeContent)

	assert.Equal(t, 10*time.Second, cfg.Batch.AccountInterval)
	assert.Equal(t, 96, cfg.Auth.ExpireHours)

	assert.Equal(t, 5, cfg.Media.Concurrent)
	assert.Equal(t, 3, cfg.Media.RetryTimes)
	assert.Equal(t, time.Second, cfg.Media.RetryDelay)
	assert.Equal(t, "{type}_{index}.{ext}", cfg.Media.NamingPattern)

	assert.Equal(t, StorageModeLocal, cfg.Storage.Mode)
	assert.Equal(t, DriverBolt, cfg.Storage.Database.Driver)
	assert.Equal(t, "markdown", cfg.Storage.Local.SaveAs)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MPSCRAPER_REQUEST_INTERVAL", "2s")
	t.Setenv("MPSCRAPER_MAX_PAGES", "3")
	t.Setenv("MPSCRAPER_DAYS", "7")
	t.Setenv("MPSCRAPER_OUTPUT_DIR", "/tmp/articles")
	t.Setenv("MPSCRAPER_STORAGE_MODE", "both")
	t.Setenv("MPSCRAPER_ACCOUNTS", "Alpha, Beta ,,Gamma")
	t.Setenv("MPSCRAPER_EVENTS_ENABLED", "TRUE")
	t.Setenv("MPSCRAPER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 2*time.Second, cfg.Scraper.RequestInterval)
	assert.Equal(t, 3, cfg.Scraper.MaxPages)
	assert.Equal(t, 7, cfg.Scraper.Days)
	assert.Equal(t, "/tmp/articles", cfg.Storage.Local.BaseDir)
	assert.Equal(t, StorageModeBoth, cfg.Storage.Mode)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, cfg.Batch.Accounts)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("MPSCRAPER_MAX_PAGES", "many")
	t.Setenv("MPSCRAPER_REQUEST_INTERVAL", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MPSCRAPER_MAX_PAGES")
	assert.Contains(t, err.Error(), "MPSCRAPER_REQUEST_INTERVAL")
	assert.Equal(t, 10, cfg.Scraper.MaxPages)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scraper:
  request_interval: 5s
  max_pages: 2
  days: 0
batch:
  accounts: [Alpha, Beta]
  account_interval: 1m
storage:
  mode: database
  database:
    driver: postgres
    dsn: postgres://localhost/mp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 5*time.Second, cfg.Scraper.RequestInterval)
	assert.Equal(t, 2, cfg.Scraper.MaxPages)
	assert.Equal(t, 0, cfg.Scraper.Days)
	assert.Equal(t, []string{"Alpha", "Beta"}, cfg.Batch.Accounts)
	assert.Equal(t, time.Minute, cfg.Batch.AccountInterval)
	assert.True(t, cfg.UsesDatabase())
	assert.False(t, cfg.UsesLocal())
	// untouched sections keep their defaults
	assert.Equal(t, 5, cfg.Media.Concurrent)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scraper: [unclosed"), 0644))
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unlimited pages allowed", func(c *Config) { c.Scraper.MaxPages = -1 }, ""},
		{"pages below unlimited", func(c *Config) { c.Scraper.MaxPages = -2 }, "max pages"},
		{"negative interval", func(c *Config) { c.Scraper.RequestInterval = -time.Second }, "request interval"},
		{"zero concurrency", func(c *Config) { c.Media.Concurrent = 0 }, "concurrent downloads"},
		{"pattern without index", func(c *Config) { c.Media.NamingPattern = "{type}.{ext}" }, "{index}"},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "cloud" }, "storage mode"},
		{"postgres without dsn", func(c *Config) {
			c.Storage.Mode = StorageModeDatabase
			c.Storage.Database.Driver = DriverPostgres
		}, "dsn"},
		{"unknown driver", func(c *Config) {
			c.Storage.Mode = StorageModeBoth
			c.Storage.Database.Driver = "sqlite"
		}, "database driver"},
		{"bad save format", func(c *Config) { c.Storage.Local.SaveAs = "pdf" }, "save format"},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, "events url"},
		{"bad schedule", func(c *Config) { c.Batch.Schedule = "every day" }, "schedule"},
		{"good schedule", func(c *Config) { c.Batch.Schedule = "0 8 * * *" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":       "/data/out",
		"storage-mode": "both",
		"concurrent":   8,
		"no-media":     true,
		"interval":     time.Duration(0),
		"log-level":    "warn",
		"unknown":      "ignored",
	})

	assert.Equal(t, "/data/out", cfg.Storage.Local.BaseDir)
	assert.Equal(t, StorageModeBoth, cfg.Storage.Mode)
	assert.Equal(t, 8, cfg.Media.Concurrent)
	assert.False(t, cfg.Media.Download)
	assert.Equal(t, time.Duration(0), cfg.Scraper.RequestInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Batch.Accounts = []string{"Alpha"}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, cfg, reloaded)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scraper:\n  max_pages: 4\nlogging:\n  level: error\n"), 0644))
	t.Setenv("MPSCRAPER_LOG_LEVEL", "warn")

	cfg, err := Load(path, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Scraper.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(path, map[string]interface{}{"storage-mode": "nowhere"})
	assert.Error(t, err)
}
