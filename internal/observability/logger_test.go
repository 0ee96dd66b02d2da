package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() {
		CLILogger = orig
		level.SetLevel(zapcore.InfoLevel)
	}()

	l := InitCLILogger("twinpane", false)
	require.NotNil(t, l)
	assert.Same(t, l, CLILogger)
	assert.Equal(t, zapcore.InfoLevel, Level())

	InitCLILogger("twinpane", true)
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestSetLevel(t *testing.T) {
	defer level.SetLevel(zapcore.InfoLevel)

	require.NoError(t, SetLevel("WARN", false))
	assert.Equal(t, zapcore.WarnLevel, Level())

	require.NoError(t, SetLevel("error", true))
	assert.Equal(t, zapcore.DebugLevel, Level())

	err := SetLevel("loud", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
