// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is the logger used by commands. It discards everything
	// until InitCLILogger runs.
	CLILogger = zap.NewNop()

	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// InitCLILogger builds a console logger on stderr tagged with service.
// verbose forces debug level.
func InitCLILogger(service string, verbose bool) *zap.Logger {
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !isTerminal(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).With(zap.String("service", service))
	return CLILogger
}

// SetLevel changes the level of CLILogger. Verbose mode keeps debug.
func SetLevel(name string, verbose bool) error {
	if verbose {
		level.SetLevel(zap.DebugLevel)
		return nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current level of CLILogger.
func Level() zapcore.Level {
	return level.Level()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
