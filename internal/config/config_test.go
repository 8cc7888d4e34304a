package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(write(t, "inMemory: true\nlogLevel: debug\nmetricsAddr: \":9100\"\n"))
	require.NoError(t, err)
	assert.True(t, c.InMemory)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, ":9100", c.MetricsAddr)
	assert.Equal(t, "./ledger-data", c.DataDir)
	assert.Equal(t, 4, c.Workers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write(t, "unknownKey: 1\n"))
	assert.Error(t, err)

	_, err = Load(write(t, "dataDir: \"\"\n"))
	assert.Error(t, err)
}
