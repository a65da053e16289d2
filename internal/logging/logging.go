package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Level is one of debug, info, warn, error;
// empty means info. LOG_FORMAT=console in the environment is honoured by
// callers through Options.
func New(level string, opts ...Option) (*zap.Logger, error) {
	o := options{format: "json"}
	for _, fn := range opts {
		fn(&o)
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	if o.format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Must is New that falls back to a no-op logger on error.
func Must(level string, opts ...Option) *zap.Logger {
	l, err := New(level, opts...)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

type options struct{ format string }

// Option tunes New.
type Option func(*options)

// WithFormat selects "json" (default) or "console" output.
func WithFormat(f string) Option {
	return func(o *options) {
		if f != "" {
			o.format = f
		}
	}
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
}
