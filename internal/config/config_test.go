package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Contains(t, cfg.Target.URL, "codeserver/Common/v1/delegate")
	assert.Equal(t, "partnerActivityService/v1/developer/queryDeveloperRewardInfo", cfg.Target.Service)
	assert.Equal(t, ":memory:", cfg.Sqlite.Dsn)
	assert.Equal(t, 10, cfg.CaptureLog.Display)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target:
  url: example.com/api
bridge:
  capacity: 8
captureLog:
  retain: 5
  display: 20
devtools:
  bodyTimeout: 2s
timezone: UTC
`), 0o600))

	t.Setenv("REWARDWATCH_LOG_LEVEL", "debug")
	t.Setenv("REWARDWATCH_BRIDGE_CAPACITY", "16")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.com/api", cfg.Target.URL)
	assert.Equal(t, "partnerActivityService/v1/developer/queryDeveloperRewardInfo", cfg.Target.Service, "unset keys keep defaults")
	assert.Equal(t, 16, cfg.Bridge.Capacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.DevTools.BodyTimeout)
	assert.Equal(t, 5, cfg.CaptureLog.Display, "display is clamped to retain")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid timezone", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Timezone = "Mars/Olympus"
		require.Error(t, cfg.Validate())
	})

	t.Run("zero capacity", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Bridge.Capacity = 0
		require.Error(t, cfg.Validate())
	})
}
