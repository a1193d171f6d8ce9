package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen          = "127.0.0.1:8080"
	defaultAPIBaseURL      = "http://127.0.0.1:3000"
	defaultTimezone        = "Europe/Paris"
	defaultRefreshCron     = "*/5 * * * *"
	defaultSearchDebounce  = 300
	defaultPDFCacheEntries = 16
	defaultDBPath          = "civcal.db"
	defaultTokenFile       = "token"
	defaultLogLevel        = "info"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the local web UI.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level agent configuration.
type Config struct {
	// Listen is the HTTP listen address for the local web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// APIBaseURL is the root of the registry backend, without /api.
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// Timezone is the IANA zone used to read local wall-clock times.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the 5-field cron schedule of the background reload.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RangeDays is the number of days loaded from today. Zero loads the
	// current calendar month.
	RangeDays int `yaml:"range_days" json:"range_days"`

	// Notifications enables desktop reminders.
	Notifications bool `yaml:"notifications" json:"notifications"`

	SearchDebounceMS int `yaml:"search_debounce_ms" json:"search_debounce_ms"`

	// TokenFile is read when the local store holds no token and is watched
	// for changes. Relative paths are resolved against the config file.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// DBPath is the SQLite file holding the credential and the
	// notification ledger. Relative paths are resolved against the config
	// file.
	DBPath string `yaml:"db_path" json:"db_path"`

	PDFCacheEntries int `yaml:"pdf_cache_entries" json:"pdf_cache_entries"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Token comes from CIVCAL_TOKEN only and is never written to disk.
	Token string `yaml:"-" json:"-"`
}

// envOverrides are applied on top of the YAML file.
type envOverrides struct {
	APIURL   string `env:"CIVCAL_API_URL"`
	Token    string `env:"CIVCAL_TOKEN"`
	Listen   string `env:"CIVCAL_LISTEN"`
	LogLevel string `env:"CIVCAL_LOG_LEVEL"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		APIBaseURL:       defaultAPIBaseURL,
		Timezone:         defaultTimezone,
		RefreshCron:      defaultRefreshCron,
		RangeDays:        0,
		Notifications:    true,
		SearchDebounceMS: defaultSearchDebounce,
		TokenFile:        defaultTokenFile,
		DBPath:           defaultDBPath,
		PDFCacheEntries:  defaultPDFCacheEntries,
		LogLevel:         defaultLogLevel,
		BasicAuth:        nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.RangeDays < 0 {
		c.RangeDays = 0
	}
	if c.SearchDebounceMS <= 0 {
		c.SearchDebounceMS = defaultSearchDebounce
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	if c.PDFCacheEntries < 0 {
		c.PDFCacheEntries = 0
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location returns the configured time zone, or time.Local if it cannot
// be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SearchDebounce returns the search debounce as a duration.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

// Load loads configuration from the given YAML path, then applies the
// CIVCAL_* environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - Relative db_path and token_file are resolved against the config
//     file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.APIURL != "" {
		c.APIBaseURL = strings.TrimRight(o.APIURL, "/")
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
		c.Normalize()
	}
	c.Token = strings.TrimSpace(o.Token)
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if c.DBPath != "" && !filepath.IsAbs(c.DBPath) && !strings.HasPrefix(c.DBPath, "file:") && c.DBPath != ":memory:" {
		c.DBPath = filepath.Join(dir, c.DBPath)
	}
	if c.TokenFile != "" && !filepath.IsAbs(c.TokenFile) {
		c.TokenFile = filepath.Join(dir, c.TokenFile)
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".civcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
