package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oktsec/wafwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wafwatch.yaml")

	require.NoError(t, writeDefaultConfig(path, "http://10.0.0.2:5000/api", false))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:5000/api", cfg.Backend.URL)
	assert.True(t, cfg.Poll.AutoRefresh)

	err = writeDefaultConfig(path, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeDefaultConfig(path, "", true))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().Backend.URL, cfg.Backend.URL)
}

func TestWriteDefaultConfig_RejectsBadURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wafwatch.yaml")
	require.Error(t, writeDefaultConfig(path, "ftp://nope", false))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRootCommands(t *testing.T) {
	root := NewRoot()
	want := []string{"serve", "watch", "backend", "status", "events", "clear", "simulate", "mcp", "init", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
