package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging: debug
storage:
  bucket: mlb
  dataPrefix: data/
scheduler:
  catchUp: false
api:
  enabled: true
`), 0o600))

	config, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Logging)
	assert.Equal(t, "mlb", config.Storage.Bucket)
	assert.Equal(t, "output", config.Storage.OutputDir)
	assert.Equal(t, "America/New_York", config.Flatten.Timezone)
	assert.Equal(t, 30*time.Minute, config.Scheduler.RunTimeout)
	assert.False(t, config.Scheduler.CatchUp)
	assert.True(t, config.API.Enabled)
	assert.Equal(t, ":8080", config.API.Addr)
	require.NoError(t, config.Validate())
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not, a, map"), 0o600))

	_, err := loadConfig(path)
	require.Error(t, err)
}
