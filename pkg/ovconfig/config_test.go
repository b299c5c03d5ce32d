package ovconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWebParsesLimitsAndDomainPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"io": { "domain": { "path": "/etc/ov/domains" },
		        "limits": { "reconnect_interval_usec": 3000000, "timeout_usec": 5000000 } } }`), 0o644))

	cfg, err := LoadWeb(path)
	require.NoError(t, err)
	require.Equal(t, "/etc/ov/domains", cfg.IO.Domain.Path)
	require.Equal(t, 3*time.Second, cfg.ReconnectInterval(time.Second))
	require.Equal(t, 5*time.Second, cfg.Timeout(time.Second))
}

func TestWebConfigDefaultsWhenUnset(t *testing.T) {
	var cfg WebConfig
	require.Equal(t, time.Second, cfg.ReconnectInterval(time.Second))
	require.Equal(t, time.Second, cfg.Timeout(time.Second))
}

func TestLoadRecorderAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"recorder": {"root": "/var/rec"}}`), 0o644))

	cfg, err := LoadRecorder(path)
	require.NoError(t, err)
	require.Equal(t, "/var/rec", cfg.Recorder.Root)
	require.Equal(t, "wav", cfg.Recorder.Ext)
	require.Equal(t, 4, cfg.Recorder.NumWorkers)
}

func TestLoadWebMissingFileErrors(t *testing.T) {
	_, err := LoadWeb(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.Error(t, err)
}

func TestLoadRecorderParsesLogConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"recorder": {"root": "/var/rec"},
		"log": {"file_path": "/var/log/ov/recorder.log", "max_size_mb": 20, "max_backups": 5}
	}`), 0o644))

	cfg, err := LoadRecorder(path)
	require.NoError(t, err)
	require.Equal(t, "/var/log/ov/recorder.log", cfg.Log.FilePath)
	require.EqualValues(t, 20, cfg.Log.MaxSizeMB)
	require.Equal(t, 5, cfg.Log.MaxBackups)
}
