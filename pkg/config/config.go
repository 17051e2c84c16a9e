package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the scraper reads.
const EnvPrefix = "MPSCRAPER_"

// Storage modes.
const (
	StorageModeLocal    = "local"
	StorageModeDatabase = "database"
	StorageModeBoth     = "both"
)

// Database drivers.
const (
	DriverBolt     = "bbolt"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds all configuration options for the scraper
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Scraper ScraperConfig `yaml:"scraper" json:"scraper"`
	Batch   BatchConfig   `yaml:"batch" json:"batch"`
	Media   MediaConfig   `yaml:"media" json:"media"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Events  EventsConfig  `yaml:"events" json:"events"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HTTPConfig holds transport settings for the remote platform
type HTTPConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// AuthConfig controls where credentials live and how long they stay fresh
type AuthConfig struct {
	ExpireHours int    `yaml:"expire_hours" json:"expire_hours"`
	CacheFile   string `yaml:"cache_file" json:"cache_file"`
}

// ScraperConfig holds the default acquisition settings
type ScraperConfig struct {
	RequestInterval time.Duration `yaml:"request_interval" json:"request_interval"`
	ContentInterval time.Duration `yaml:"content_interval" json:"content_interval"`
	MaxPages        int           `yaml:"max_pages" json:"max_pages"`
	Days            int           `yaml:"days" json:"days"`
	IncludeContent  bool          `yaml:"include_content" json:"include_content"`
	SkipExisting    bool          `yaml:"skip_existing" json:"skip_existing"`
}

// BatchConfig holds multi-account settings
type BatchConfig struct {
	Accounts         []string      `yaml:"accounts" json:"accounts"`
	AccountInterval  time.Duration `yaml:"account_interval" json:"account_interval"`
	RateLimitRetries int           `yaml:"rate_limit_retries" json:"rate_limit_retries"`
	Schedule         string        `yaml:"schedule" json:"schedule"`
}

// MediaConfig holds media download settings
type MediaConfig struct {
	Download          bool          `yaml:"download" json:"download"`
	Concurrent        int           `yaml:"concurrent" json:"concurrent"`
	RetryTimes        int           `yaml:"retry_times" json:"retry_times"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	NamingPattern     string        `yaml:"naming_pattern" json:"naming_pattern"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	OverwriteExisting bool          `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// StorageConfig selects and configures the persistence targets
type StorageConfig struct {
	Mode     string         `yaml:"mode" json:"mode"`
	Local    LocalConfig    `yaml:"local" json:"local"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

// LocalConfig holds on-disk article layout settings
type LocalConfig struct {
	BaseDir            string `yaml:"base_dir" json:"base_dir"`
	FolderNameTemplate string `yaml:"folder_name_template" json:"folder_name_template"`
	SanitizeFilename   bool   `yaml:"sanitize_filename" json:"sanitize_filename"`
	IncludeMetadata    bool   `yaml:"include_metadata" json:"include_metadata"`
	SaveAs             string `yaml:"save_as" json:"save_as"`
}

// DatabaseConfig selects the article store
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// EventsConfig controls harvest event publishing
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	URL        string `yaml:"url" json:"url"`
	Exchange   string `yaml:"exchange" json:"exchange"`
	RoutingKey string `yaml:"routing_key" json:"routing_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BaseURL:   "https://mp.weixin.qq.com",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Timeout:   30 * time.Second,
		},
		Auth: AuthConfig{
			ExpireHours: 96,
		},
		Scraper: ScraperConfig{
			RequestInterval: 10 * time.Second,
			ContentInterval: 3 * time.Second,
			MaxPages:        10,
			Days:            30,
			IncludeContent:  true,
			SkipExisting:    false,
		},
		Batch: BatchConfig{
			AccountInterval:  10 * time.Second,
			RateLimitRetries: 1,
		},
		Media: MediaConfig{
			Download:      true,
			Concurrent:    5,
			RetryTimes:    3,
			RetryDelay:    time.Second,
			Timeout:       30 * time.Second,
			NamingPattern: "{type}_{index}.{ext}",
		},
		Storage: StorageConfig{
			Mode: StorageModeLocal,
			Local: LocalConfig{
				BaseDir:            "./output",
				FolderNameTemplate: "{date}_{title}",
				SanitizeFilename:   true,
				IncludeMetadata:    true,
				SaveAs:             "markdown",
			},
			Database: DatabaseConfig{
				Driver: DriverBolt,
				Path:   "./data/mpscraper.db",
			},
		},
		Events: EventsConfig{
			Exchange:   "mpscraper",
			RoutingKey: "article.harvested",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	str("USER_AGENT", &c.HTTP.UserAgent)
	str("BASE_URL", &c.HTTP.BaseURL)
	dur("REQUEST_INTERVAL", &c.Scraper.RequestInterval)
	num("MAX_PAGES", &c.Scraper.MaxPages)
	num("DAYS", &c.Scraper.Days)
	dur("ACCOUNT_INTERVAL", &c.Batch.AccountInterval)
	num("CONCURRENT_DOWNLOADS", &c.Media.Concurrent)
	str("OUTPUT_DIR", &c.Storage.Local.BaseDir)
	str("STORAGE_MODE", &c.Storage.Mode)
	str("DB_DRIVER", &c.Storage.Database.Driver)
	str("DB_PATH", &c.Storage.Database.Path)
	str("DB_DSN", &c.Storage.Database.DSN)
	str("AMQP_URL", &c.Events.URL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(EnvPrefix + "EVENTS_ENABLED"); v != "" {
		c.Events.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv(EnvPrefix + "ACCOUNTS"); v != "" {
		c.Batch.Accounts = splitList(v)
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in the standard locations and
// returns the first one that exists.
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".mpscraper.yaml",
		".mpscraper.yml",
		filepath.Join(home, ".config", "mpscraper", "config.yaml"),
		filepath.Join(home, ".config", "mpscraper", "config.yml"),
		filepath.Join(home, ".mpscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.BaseURL == "" {
		errs = append(errs, errors.New("http base url is required"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.Auth.ExpireHours <= 0 {
		errs = append(errs, errors.New("auth expire hours must be positive"))
	}

	if c.Scraper.RequestInterval < 0 {
		errs = append(errs, errors.New("request interval cannot be negative"))
	}
	if c.Scraper.ContentInterval < 0 {
		errs = append(errs, errors.New("content interval cannot be negative"))
	}
	if c.Scraper.MaxPages < -1 {
		errs = append(errs, errors.New("max pages must be -1 (unlimited) or greater"))
	}

	if c.Batch.AccountInterval < 0 {
		errs = append(errs, errors.New("account interval cannot be negative"))
	}
	if c.Batch.RateLimitRetries < 0 {
		errs = append(errs, errors.New("rate limit retries cannot be negative"))
	}
	if c.Batch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Batch.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid batch schedule: %w", err))
		}
	}

	if c.Media.Concurrent <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Media.Concurrent > 20 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 20"))
	}
	if c.Media.RetryTimes < 0 {
		errs = append(errs, errors.New("media retry times cannot be negative"))
	}
	if !strings.Contains(c.Media.NamingPattern, "{index}") {
		errs = append(errs, errors.New("media naming pattern must contain {index}"))
	}

	switch c.Storage.Mode {
	case StorageModeLocal, StorageModeDatabase, StorageModeBoth:
	default:
		errs = append(errs, fmt.Errorf("invalid storage mode %q", c.Storage.Mode))
	}
	if c.Storage.Mode != StorageModeDatabase {
		if c.Storage.Local.BaseDir == "" {
			errs = append(errs, errors.New("output directory is required"))
		}
		if c.Storage.Local.SaveAs != "markdown" && c.Storage.Local.SaveAs != "html" {
			errs = append(errs, fmt.Errorf("invalid save format %q", c.Storage.Local.SaveAs))
		}
	}
	if c.Storage.Mode != StorageModeLocal {
		switch c.Storage.Database.Driver {
		case DriverBolt:
			if c.Storage.Database.Path == "" {
				errs = append(errs, errors.New("database path is required for bbolt"))
			}
		case DriverPostgres, DriverMySQL:
			if c.Storage.Database.DSN == "" {
				errs = append(errs, fmt.Errorf("database dsn is required for %s", c.Storage.Database.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid database driver %q", c.Storage.Database.Driver))
		}
	}

	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events url is required when events are enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// UsesDatabase reports whether the storage mode includes the database.
func (c *Config) UsesDatabase() bool {
	return c.Storage.Mode == StorageModeDatabase || c.Storage.Mode == StorageModeBoth
}

// UsesLocal reports whether the storage mode includes local files.
func (c *Config) UsesLocal() bool {
	return c.Storage.Mode == StorageModeLocal || c.Storage.Mode == StorageModeBoth
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Storage.Local.BaseDir = v
	}
	if v, ok := flags["storage-mode"].(string); ok && v != "" {
		c.Storage.Mode = v
	}
	if v, ok := flags["save-as"].(string); ok && v != "" {
		c.Storage.Local.SaveAs = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Media.Concurrent = v
	}
	if v, ok := flags["no-media"].(bool); ok && v {
		c.Media.Download = false
	}
	if v, ok := flags["interval"].(time.Duration); ok && v >= 0 {
		c.Scraper.RequestInterval = v
	}
	if v, ok := flags["account-interval"].(time.Duration); ok && v >= 0 {
		c.Batch.AccountInterval = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mpscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
