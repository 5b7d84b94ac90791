// Package logging builds the zap logger shared by the service and CLI and
// carries request-scoped loggers through contexts.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Component is attached to every entry (e.g. "server", "cli").
	Component string
	// Level is the minimum severity: "debug", "info", "warn" or "error".
	Level string
	// Format is "json" (default) or "console".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// NewLogger builds a structured zap logger.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level == "" {
		level.SetLevel(zapcore.InfoLevel)
	} else if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level), zap.AddCaller())
	if cfg.Component != "" {
		logger = logger.With(zap.String("component", cfg.Component))
	}
	return logger, nil
}
