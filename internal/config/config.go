// Package config loads the user configuration from a YAML file in the
// user scope. Environment variables act as read-only overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sophosia/internal/logging"
	"sophosia/internal/storage"
)

// CurrentVersion is bumped when the layout changes incompatibly.
const CurrentVersion = 1

type StorageConfig struct {
	Driver   string `yaml:"driver"` // sqlite | mysql | postgres | mongodb | memory
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	// SecretKey names the keyring entry holding the password; the password
	// itself is never written to disk.
	SecretKey string `yaml:"secret_key"`
}

type AnnotationsConfig struct {
	DebounceMs  int     `yaml:"debounce_ms"`
	MaxWaitMs   int     `yaml:"max_wait_ms"`
	CommentSize float64 `yaml:"comment_size"`
}

type ToolsConfig struct {
	Color           string  `yaml:"color"`
	InkThickness    float64 `yaml:"ink_thickness"`
	InkOpacity      float64 `yaml:"ink_opacity"`
	EraserThickness float64 `yaml:"eraser_thickness"`
}

type CompactionConfig struct {
	Schedule string `yaml:"schedule"` // cron expression, empty disables
	Retain   string `yaml:"retain"`   // tombstone age, Go duration
}

type WatchConfig struct {
	PollInterval string `yaml:"poll_interval"`
	Files        bool   `yaml:"files"`
}

type Config struct {
	ConfigVersion int               `yaml:"config_version"`
	DataDir       string            `yaml:"data_dir"`
	Storage       StorageConfig     `yaml:"storage"`
	Annotations   AnnotationsConfig `yaml:"annotations"`
	Tools         ToolsConfig       `yaml:"tools"`
	Compaction    CompactionConfig  `yaml:"compaction"`
	Watch         WatchConfig       `yaml:"watch"`
	Logging       logging.Options   `yaml:"logging"`
}

// Env var names used as overrides.
const (
	EnvStorageDriver = "SOPHOSIA_STORAGE_DRIVER"
	EnvStorageDSN    = "SOPHOSIA_STORAGE_DSN"
	EnvDataDir       = "SOPHOSIA_DATA_DIR"
	EnvLogLevel      = "SOPHOSIA_LOG_LEVEL"
	EnvLogFormat     = "SOPHOSIA_LOG_FORMAT"
	EnvLogFile       = "SOPHOSIA_LOG_FILE"
)

// Defaults returns the application defaults.
func Defaults() Config {
	return Config{
		ConfigVersion: CurrentVersion,
		Storage:       StorageConfig{Driver: storage.DriverSQLite, Database: "sophosia", SecretKey: "storage"},
		Annotations:   AnnotationsConfig{DebounceMs: 300, MaxWaitMs: 1000, CommentSize: 40},
		Tools:         ToolsConfig{Color: "#FFFF00", InkThickness: 5, InkOpacity: 1, EraserThickness: 20},
		Compaction:    CompactionConfig{Schedule: "@every 6h", Retain: "168h"},
		Watch:         WatchConfig{PollInterval: "2s", Files: true},
		Logging:       logging.Options{Level: "info", Format: "text"},
	}
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Sophosia")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Sophosia")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "sophosia")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// DefaultPath returns the per-user config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the file at path, creating it with defaults when missing,
// then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	if cfg.Storage.Driver == storage.DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "sophosia.db")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverMySQL, storage.DriverPostgres, storage.DriverMongo, storage.DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if (c.Storage.Driver == storage.DriverMySQL || c.Storage.Driver == storage.DriverPostgres) && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required for %s", c.Storage.Driver)
	}
	if c.Storage.Driver == storage.DriverMongo && c.Storage.URI == "" {
		return errors.New("config: storage.uri is required for mongodb")
	}
	if c.Annotations.DebounceMs <= 0 {
		return errors.New("config: annotations.debounce_ms must be positive")
	}
	if c.Annotations.MaxWaitMs < c.Annotations.DebounceMs {
		return errors.New("config: annotations.max_wait_ms must not be below debounce_ms")
	}
	if _, err := c.Retain(); err != nil {
		return fmt.Errorf("config: compaction.retain: %w", err)
	}
	if _, err := c.PollInterval(); err != nil {
		return fmt.Errorf("config: watch.poll_interval: %w", err)
	}
	return nil
}

// StorageOptions converts the storage section, with password looked up by
// the caller.
func (c Config) StorageOptions(password string) storage.Options {
	return storage.Options{
		Driver:   c.Storage.Driver,
		Path:     c.Storage.Path,
		DSN:      c.Storage.DSN,
		URI:      c.Storage.URI,
		Database: c.Storage.Database,
		Password: password,
	}
}

// Debounce returns the quiet window and bound of annotation writes.
func (c Config) Debounce() (wait, maxWait time.Duration) {
	return time.Duration(c.Annotations.DebounceMs) * time.Millisecond,
		time.Duration(c.Annotations.MaxWaitMs) * time.Millisecond
}

// Retain returns how long tombstones are kept.
func (c Config) Retain() (time.Duration, error) {
	if c.Compaction.Retain == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Compaction.Retain)
}

// PollInterval returns the external-change poll period.
func (c Config) PollInterval() (time.Duration, error) {
	if c.Watch.PollInterval == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Watch.PollInterval)
	if err == nil && d <= 0 {
		err = errors.New("must be positive")
	}
	return d, err
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		switch cfg.Storage.Driver {
		case storage.DriverMongo:
			cfg.Storage.URI = v
		case storage.DriverSQLite:
			cfg.Storage.Path = v
		default:
			cfg.Storage.DSN = v
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}
