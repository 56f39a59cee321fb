package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billing-extract.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `{
	"username": "billing",
	"password": "secret",
	"project": "admin",
	"domain": "default",
	"keystone_url": "https://keystone.example.se:5000/v3",
	"ceilometer_url": "https://ceilometer.example.se:8777",
	"site": "HPC2N",
	"resource": "SE-SNIC-SSC",
	"region": "HPC2N",
	"datadir": "/var/lib/billing-extract"
}`

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, validConfig))
		require.NoError(t, err)
		assert.Equal(t, "billing", cfg.Username)
		assert.Equal(t, "HPC2N", cfg.Region)
		assert.Equal(t, "/var/lib/billing-extract", cfg.DataDir)
		assert.False(t, cfg.ObjectStorage)
	})

	t.Run("object storage opt-in", func(t *testing.T) {
		content := `{
	"username": "billing",
	"password": "secret",
	"project": "admin",
	"domain": "default",
	"keystone_url": "https://keystone.example.se:5000/v3",
	"ceilometer_url": "https://ceilometer.example.se:8777",
	"site": "HPC2N",
	"resource": "SE-SNIC-SSC",
	"region": "HPC2N",
	"datadir": "/var/lib/billing-extract",
	"object_storage": true
}`
		cfg, err := Load(writeConfig(t, content))
		require.NoError(t, err)
		assert.True(t, cfg.ObjectStorage)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
		assert.Error(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := Load(writeConfig(t, `{"username": "billing"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})
}
