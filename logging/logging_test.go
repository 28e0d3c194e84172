package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/logging"
)

func TestNewSetsLevel(t *testing.T) {
	_, err := logging.New("error", false)
	require.NoError(t, err)
	assert.Equal(t, log.ErrorLevel, log.GetLevel())
}

func TestSetDestinationSwapsToFile(t *testing.T) {
	l, err := logging.New("info", false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, l.SetDestination(path))

	log.Info("hello from test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestNewInvalidLevelDefaultsToWarn(t *testing.T) {
	_, err := logging.New("not-a-level", false)
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}
