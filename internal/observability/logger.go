// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger runs, so library code and tests can log unconditionally.
var CLILogger = zap.NewNop()

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitCLILogger installs a console logger on stderr. Verbose enables debug
// output and caller annotations.
func InitCLILogger(appName string, verbose bool) {
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		enc.CallerKey = ""
		enc.NameKey = ""
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	opts := []zap.Option{}
	if verbose {
		opts = append(opts, zap.AddCaller())
	}
	CLILogger = zap.New(core, opts...).Named(appName)
}

// SetLevel changes the level of the CLI logger.
func SetLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current CLI log level.
func Level() zapcore.Level {
	return level.Level()
}

// Sync flushes buffered log entries. Errors from syncing a terminal are
// ignored.
func Sync() {
	_ = CLILogger.Sync()
}
