package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Snapshot.Format != "xlsx" || cfg.Snapshot.Schedule != "0 * * * * *" {
		t.Fatalf("unexpected snapshot defaults: %+v", cfg.Snapshot)
	}
	if cfg.Database.Driver != "sqlite" || !cfg.Server.Enabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(Defaults(), lookupFrom(map[string]string{
		"DB_DRIVER":             "postgres",
		"DB_URL":                "postgres://db/app",
		"DB_USERNAME":           "admin",
		"DB_PASSWORD":           " spaced ",
		"SNAPSHOT_FORMAT":       "xls",
		"SNAPSHOT_DIR":          "/backups",
		"SNAPSHOT_SCHEDULE":     "@hourly",
		"SNAPSHOT_MAX_DURATION": "90s",
		"SNAPSHOT_RETENTION":    "720h",
		"TRACKER_DSN":           "runs.db",
		"HTTP_ENABLED":          "false",
		"PORT":                  "9090",
		"LOG_LEVEL":             "debug",
	}))
	if err != nil {
		t.Fatalf("from lookup: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.Username != "admin" || cfg.Database.Password != " spaced " {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Snapshot.Format != "xls" || cfg.Snapshot.Directory != "/backups" || cfg.Snapshot.MaxDuration != 90*time.Second || cfg.Snapshot.Retention != 720*time.Hour {
		t.Fatalf("unexpected snapshot config: %+v", cfg.Snapshot)
	}
	if cfg.Server.Enabled || cfg.Server.Address() != "localhost:9090" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Tracker.DSN != "runs.db" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromLookup_InvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"duration":  {"SNAPSHOT_MAX_DURATION": "soon"},
		"bool":      {"HTTP_ENABLED": "maybe"},
		"retention": {"SNAPSHOT_RETENTION": "forever"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromLookup(Defaults(), lookupFrom(values)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Database.URL = "file.db"
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	cases := map[string]func(*Config){
		"missing url":      func(c *Config) { c.Database.URL = "" },
		"missing driver":   func(c *Config) { c.Database.Driver = "" },
		"unknown format":   func(c *Config) { c.Snapshot.Format = "csv" },
		"missing schedule": func(c *Config) { c.Snapshot.Schedule = " " },
		"negative max":     func(c *Config) { c.Snapshot.MaxDuration = -time.Second },
		"negative keep":    func(c *Config) { c.Snapshot.Retention = -time.Hour },
		"missing port":     func(c *Config) { c.Server.Port = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			err := cfg.Validate()
			var ge *errors.Error
			if !stderrors.As(err, &ge) || ge.Category != errors.CategoryValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoad_EnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "DB_URL=file.db\nSNAPSHOT_DIR=/from-file\nLOG_LEVEL=warn\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SNAPSHOT_DIR", "/from-env")

	cfg, err := Load(filepath.Join(dir, "missing.env"), envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "file.db" || cfg.Log.Level != "warn" {
		t.Fatalf("expected env file values, got %+v", cfg)
	}
	if cfg.Snapshot.Directory != "/from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.Snapshot.Directory)
	}
}
