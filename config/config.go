package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Config holds the dbsnapshot configuration.
type Config struct {
	Database DatabaseConfig
	Snapshot SnapshotConfig
	Tracker  TrackerConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds the connection settings of the exported database.
type DatabaseConfig struct {
	Driver   string
	URL      string
	Username string
	Password string
}

// SnapshotConfig holds export settings. A zero Retention keeps every
// workbook.
type SnapshotConfig struct {
	Format      string
	Directory   string
	Schedule    string
	MaxDuration time.Duration
	Retention   time.Duration
}

// TrackerConfig holds the run tracker database. An empty DSN keeps runs in
// memory.
type TrackerConfig struct {
	DSN string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Snapshot: SnapshotConfig{
			Format:    string(snapshot.FormatXLSX),
			Directory: ".",
			Schedule:  "0 * * * * *",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    "8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads envFiles (missing files are ignored), applies environment
// overrides on top of Defaults and validates the result. Process environment
// wins over file values.
func Load(envFiles ...string) (Config, error) {
	values := map[string]string{}
	for _, file := range envFiles {
		if strings.TrimSpace(file) == "" {
			continue
		}
		fileValues, err := godotenv.Read(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, errors.Wrap(err, errors.CategoryValidation, fmt.Sprintf("env file %q is invalid", file)).
				WithTextCode("ENV_FILE_INVALID")
		}
		for key, value := range fileValues {
			if _, ok := values[key]; !ok {
				values[key] = value
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	}

	cfg, err := FromLookup(Defaults(), lookup)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromLookup applies overrides from lookup onto cfg.
func FromLookup(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	str := func(key string, target *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}

	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_URL", &cfg.Database.URL)
	str("DB_USERNAME", &cfg.Database.Username)
	if value, ok := lookup("DB_PASSWORD"); ok {
		cfg.Database.Password = value
	}
	str("SNAPSHOT_FORMAT", &cfg.Snapshot.Format)
	str("SNAPSHOT_DIR", &cfg.Snapshot.Directory)
	str("SNAPSHOT_SCHEDULE", &cfg.Snapshot.Schedule)
	str("TRACKER_DSN", &cfg.Tracker.DSN)
	str("HOST", &cfg.Server.Host)
	str("PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Log.Level)

	if value, ok := lookup("SNAPSHOT_MAX_DURATION"); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return cfg, errors.Wrap(err, errors.CategoryValidation, "SNAPSHOT_MAX_DURATION is not a duration").
				WithTextCode("MAX_DURATION_INVALID")
		}
		cfg.Snapshot.MaxDuration = parsed
	}
	if value, ok := lookup("SNAPSHOT_RETENTION"); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return cfg, errors.Wrap(err, errors.CategoryValidation, "SNAPSHOT_RETENTION is not a duration").
				WithTextCode("RETENTION_INVALID")
		}
		cfg.Snapshot.Retention = parsed
	}
	if value, ok := lookup("HTTP_ENABLED"); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return cfg, errors.Wrap(err, errors.CategoryValidation, "HTTP_ENABLED is not a boolean").
				WithTextCode("HTTP_ENABLED_INVALID")
		}
		cfg.Server.Enabled = parsed
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Driver) == "" {
		return errors.New("DB_DRIVER is required", errors.CategoryValidation).
			WithTextCode("DB_DRIVER_REQUIRED")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DB_URL is required", errors.CategoryValidation).
			WithTextCode("DB_URL_REQUIRED")
	}
	if _, err := snapshot.ParseFormat(c.Snapshot.Format); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, fmt.Sprintf("SNAPSHOT_FORMAT %q is not supported", c.Snapshot.Format)).
			WithTextCode("FORMAT_UNSUPPORTED")
	}
	if strings.TrimSpace(c.Snapshot.Schedule) == "" {
		return errors.New("SNAPSHOT_SCHEDULE is required", errors.CategoryValidation).
			WithTextCode("SCHEDULE_REQUIRED")
	}
	if c.Snapshot.MaxDuration < 0 {
		return errors.New("SNAPSHOT_MAX_DURATION must not be negative", errors.CategoryValidation).
			WithTextCode("MAX_DURATION_INVALID")
	}
	if c.Snapshot.Retention < 0 {
		return errors.New("SNAPSHOT_RETENTION must not be negative", errors.CategoryValidation).
			WithTextCode("RETENTION_INVALID")
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("PORT is required when HTTP is enabled", errors.CategoryValidation).
			WithTextCode("PORT_REQUIRED")
	}
	return nil
}

// Address returns the HTTP listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
