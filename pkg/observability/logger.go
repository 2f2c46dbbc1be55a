// Package observability sets up logging and metrics.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zsl99a/netz/pkg/config"
)

// SetupLogger builds a zap.Logger from c, installs it as the global logger
// and redirects the stdlib log package to it. The caller should defer
// logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	logger, err := NewLogger(c)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

// NewLogger builds a zap.Logger from c without touching globals.
func NewLogger(c config.LogConfig) (*zap.Logger, error) {
	lvl := strings.ToLower(strings.TrimSpace(c.Level))
	if lvl == "warning" {
		lvl = "warn"
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc := newEncoder(c)

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	cores := make([]zapcore.Core, 0, len(outputs))
	for _, out := range outputs {
		ws, err := openSink(out, c)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, ws, level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func newEncoder(c config.LogConfig) zapcore.Encoder {
	var ec zapcore.EncoderConfig
	if c.Development {
		ec = zap.NewDevelopmentEncoderConfig()
	} else {
		ec = zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if strings.EqualFold(c.Format, "json") {
		return zapcore.NewJSONEncoder(ec)
	}
	if c.Development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

// openSink resolves stdout, stderr or a file path. Files go through
// lumberjack when rotation is enabled.
func openSink(out string, c config.LogConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if c.Rotation.Enable {
		name := out
		if f := strings.TrimSpace(c.Rotation.Filename); f != "" {
			name = f
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    max(c.Rotation.MaxSizeMB, 1),
			MaxBackups: c.Rotation.MaxBackups,
			MaxAge:     c.Rotation.MaxAgeDays,
			Compress:   c.Rotation.Compress,
		}), nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log output %s: %w", out, err)
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log output %s: %w", out, err)
	}
	return zapcore.AddSync(f), nil
}
