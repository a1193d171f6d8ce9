package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshCron != "*/5 * * * *" || cfg.SearchDebounceMS != 300 || !cfg.Notifications {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
	if cfg.DBPath != filepath.Join(dir, "conf", "civcal.db") {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "api_base_url: https://registre.example.org/\nlog_level: LOUD\nrange_days: -3\ndb_path: /var/lib/civcal/db.sqlite\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://registre.example.org" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.LogLevel != "info" || cfg.RangeDays != 0 || cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("normalized = %+v", cfg)
	}
	if cfg.DBPath != "/var/lib/civcal/db.sqlite" {
		t.Errorf("absolute DBPath rewritten: %s", cfg.DBPath)
	}
	if cfg.TokenFile != "" {
		t.Errorf("TokenFile = %q, want empty when unset", cfg.TokenFile)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CIVCAL_API_URL", "http://backend:4000/")
	t.Setenv("CIVCAL_TOKEN", " abc ")
	t.Setenv("CIVCAL_LISTEN", ":9090")
	t.Setenv("CIVCAL_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://backend:4000" || cfg.Token != "abc" || cfg.Listen != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestSaveDoesNotWriteToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Token = "secret-token"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-token") {
		t.Error("token written to config file")
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Location().String() != "Europe/Paris" {
		t.Errorf("Location = %s", cfg.Location())
	}
	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.Local {
		t.Error("invalid zone should fall back to time.Local")
	}
	if cfg.SearchDebounce() != 300*time.Millisecond {
		t.Errorf("SearchDebounce = %v", cfg.SearchDebounce())
	}
}
