package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/config"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	c := config.Default()
	assert.Equal(t, 8090, c.Server.Port)
	assert.Equal(t, 8091, c.Server.UDPPort)
	assert.Equal(t, 2003, c.Client.Port)
	assert.Equal(t, uint64(10000), c.Buffer.FlushSize)
	assert.True(t, c.Buffer.DropOldest)
	assert.False(t, c.Buffer.CleaningMaths)
	assert.Equal(t, "warning", c.Logs.Level)
	assert.Equal(t, uint64(9999), c.Maths.MaxItems)
	assert.True(t, c.Router.SaveOnClose)
}

func TestLoadOverridesOnlyProvidedKeys(t *testing.T) {
	dir := t.TempDir()
	contents := `
[server]
port = 9999

[maths]
enabled = false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.Filename), []byte(contents), 0644))

	c, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9999, c.Server.Port)
	assert.False(t, c.Maths.Enabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2003, c.Client.Port)
	assert.Equal(t, "warning", c.Logs.Level)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := config.Load(t.TempDir())
	assert.Error(t, err)
}

func TestMathsPathJoinsDirAndFilename(t *testing.T) {
	c := config.Default()
	c.Maths.Filepath = "rules.xml"
	assert.Equal(t, filepath.Join("/etc/proxy", "rules.xml"), c.MathsPath("/etc/proxy"))
}
