package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sophosia.log")
	Init(Options{Level: "debug", Format: "json", File: path})
	t.Cleanup(func() {
		_ = Close()
		Init(Options{})
	})

	WithComponent("test").Info("hello", slog.String("k", "v"))
	require.NoError(t, Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	require.NotEmpty(t, last)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(last), &m))
	assert.Equal(t, "hello", m["msg"])
	assert.Equal(t, "test", m["component"])
	assert.Equal(t, "sophosia", m["app"])
	assert.Equal(t, "v", m["k"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SOPHOSIA_LOG_LEVEL", "error")
	t.Setenv("SOPHOSIA_LOG_FORMAT", "json")
	t.Setenv("SOPHOSIA_LOG_SOURCE", "TRUE")
	t.Setenv("SOPHOSIA_LOG_FILE", "/tmp/x.log")

	o := FromEnv()
	assert.Equal(t, Options{Level: "error", Format: "json", AddSource: true, File: "/tmp/x.log"}, o)
}
