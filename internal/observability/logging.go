// Package observability builds the process logger and the HTTP request
// instrumentation shared by the API and UI handlers.
package observability

import (
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"labcatalog/internal/config"
)

// Error is the error class for logger and metrics setup.
var Error = errs.Class("observability")

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	levelEncoder := zapcore.CapitalLevelEncoder
	if encoding == "console" && cfg.Development {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}

	logger, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		DisableCaller:     !cfg.Development,
		DisableStacktrace: !cfg.Development,
		Encoding:          encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{output},
	}.Build()
	return logger, Error.Wrap(err)
}
