package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerFollowsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	logger, err := newLogger(lvl, []string{path}, []string{"stderr"})
	require.NoError(t, err)

	logger.Debug("hidden")
	lvl.SetLevel(zapcore.DebugLevel)
	logger.Debug("shown", zap.Int("pairs", 2))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, float64(2), entry["pairs"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "caller")
}

func TestSetDebug(t *testing.T) {
	prev := DebugEnabled()
	t.Cleanup(func() { SetDebug(prev) })

	SetDebug(true)
	assert.True(t, DebugEnabled())
	SetDebug(false)
	assert.False(t, DebugEnabled())
}
