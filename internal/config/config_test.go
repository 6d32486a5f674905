package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvStorageDriver, EnvStorageDSN, EnvDataDir, EnvLogLevel, EnvLogFormat, EnvLogFile} {
		t.Setenv(k, "")
	}
}

func TestLoad_CreatesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sophosia", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, cfg.ConfigVersion)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "sophosia.db"), cfg.Storage.Path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	wait, maxWait := cfg.Debounce()
	assert.Equal(t, 300*time.Millisecond, wait)
	assert.Equal(t, time.Second, maxWait)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
config_version: 1
storage:
  driver: postgres
  dsn: "host=db user=u password=<password> dbname=sophosia"
annotations:
  debounce_ms: 100
  max_wait_ms: 500
tools:
  color: "#00FF00"
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvDataDir, "/var/lib/sophosia")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 100, cfg.Annotations.DebounceMs)
	assert.Equal(t, "#00FF00", cfg.Tools.Color)
	// Unset fields keep defaults.
	assert.Equal(t, 20.0, cfg.Tools.EraserThickness)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/sophosia", cfg.DataDir)

	opts := cfg.StorageOptions("pw")
	assert.Equal(t, "postgres", opts.Driver)
	assert.Equal(t, "pw", opts.Password)
}

func TestLoad_EnvDriverOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvStorageDriver, "mongodb")
	t.Setenv(EnvStorageDSN, "mongodb://localhost:27017")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.URI)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"driver":   func(c *Config) { c.Storage.Driver = "couchdb" },
		"dsn":      func(c *Config) { c.Storage.Driver = "mysql" },
		"uri":      func(c *Config) { c.Storage.Driver = "mongodb" },
		"debounce": func(c *Config) { c.Annotations.DebounceMs = 0 },
		"max wait": func(c *Config) { c.Annotations.MaxWaitMs = 10 },
		"retain":   func(c *Config) { c.Compaction.Retain = "forever" },
		"poll":     func(c *Config) { c.Watch.PollInterval = "-1s" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Defaults()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Defaults().Validate())
}

func TestLoad_Malformed(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [oops"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
