package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.AuthToken)
	assert.Len(t, cfg.AuthToken, 36, "AuthToken should be a UUID (36 chars)")
	assert.Equal(t, "shared", cfg.CE.SharedArea)
	assert.True(t, cfg.CE.RemoveOutput)
	assert.Equal(t, 1800.0, cfg.Watchdog.CheckingTimeSec)
	assert.Equal(t, 5, cfg.Watchdog.NullCPULimit)
}

func TestDefaultConfig_GeneratesUniqueTokens(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	assert.NotEqual(t, cfg1.AuthToken, cfg2.AuthToken)
}

func TestWatchdogConfig_RoundTripsThroughWatchdogConfig(t *testing.T) {
	cfg := DefaultConfig()
	wc := cfg.Watchdog.ToWatchdogConfig()

	assert.Equal(t, cfg.Watchdog.CheckingTimeSec, wc.CheckingTime.Seconds())
	assert.Equal(t, cfg.Watchdog.MinDiskSpaceMB, wc.MinDiskSpaceMB)
	assert.Equal(t, cfg.Watchdog.NullCPULimit, wc.NullCPULimit)
	assert.True(t, wc.Flags.WallClock, "flags default to enabled regardless of persisted numeric knobs")
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpHome := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", origHome)

	cfg := DefaultConfig()
	cfg.CE.SSHHost = "worker-a/4,worker-b/8"
	cfg.CE.Queue = "grid.queue"

	require.NoError(t, cfg.Save())

	configPath := filepath.Join(tmpHome, ConfigDir, ConfigFile)
	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.AuthToken, loaded.AuthToken)
	assert.Equal(t, cfg.CE.SSHHost, loaded.CE.SSHHost)
	assert.Equal(t, cfg.CE.Queue, loaded.CE.Queue)
}

func TestLoad_CreatesDefaultOnMissing(t *testing.T) {
	tmpHome := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.AuthToken)

	configPath := filepath.Join(tmpHome, ConfigDir, ConfigFile)
	_, err = os.Stat(configPath)
	assert.NoError(t, err, "Config file should be created")
}

func TestLoad_HandlesMalformedJSON(t *testing.T) {
	tmpHome := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", origHome)

	configDir := filepath.Join(tmpHome, ConfigDir)
	require.NoError(t, os.MkdirAll(configDir, 0700))

	configPath := filepath.Join(configDir, ConfigFile)
	require.NoError(t, os.WriteFile(configPath, []byte("not valid json"), 0600))

	_, err := Load()
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Contains(t, path, ConfigDir)
	assert.Contains(t, path, ConfigFile)
}

func TestConfigSave_CreatesDirectory(t *testing.T) {
	tmpHome := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", origHome)

	cfg := DefaultConfig()
	require.NoError(t, cfg.Save())

	configDir := filepath.Join(tmpHome, ConfigDir)
	info, err := os.Stat(configDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestConfig_JSONMarshal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CE.SSHHost = "host-a"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var unmarshaled Config
	require.NoError(t, json.Unmarshal(data, &unmarshaled))

	assert.Equal(t, cfg.AuthToken, unmarshaled.AuthToken)
	assert.Equal(t, cfg.CE.SSHHost, unmarshaled.CE.SSHHost)
}
