package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	require.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	require.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	require.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	require.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewLogger_LevelApplied(t *testing.T) {
	l, err := NewLogger("warn", "json", "turbine-bridge")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	l, err := New(Options{Level: "info", Format: "json", ServiceName: "turbine-bridge", File: path})
	require.NoError(t, err)

	l.Info("reading received")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "reading received"), string(data))
	require.True(t, strings.Contains(string(data), `"service_name":"turbine-bridge"`), string(data))
}
