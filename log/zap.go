package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Option configures a logger created by New or DevLogger.
type Option func(*options)

type options struct {
	zapOpts []zap.Option
	filter  string
}

func WithCaller(enabled bool) Option {
	return func(o *options) {
		o.zapOpts = append(o.zapOpts, zap.WithCaller(enabled))
	}
}

func AddCallerSkip(skip int) Option {
	return func(o *options) {
		o.zapOpts = append(o.zapOpts, zap.AddCallerSkip(skip))
	}
}

// WithFilter restricts output by logger name using zapfilter rules,
// e.g. "*:info pursuit*:debug".
func WithFilter(rules string) Option {
	return func(o *options) {
		o.filter = rules
	}
}

func ParseLevel(text string) (Level, error) {
	return zapcore.ParseLevel(text)
}

// New creates a json logger writing to w.
func New(w io.Writer, level Level, opts ...Option) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return build(zapcore.NewJSONEncoder(cfg), w, level, opts...)
}

// DevLogger creates a human readable console logger writing to w.
func DevLogger(w io.Writer, level Level, opts ...Option) *Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(zapcore.NewConsoleEncoder(cfg), w, level, opts...)
}

func build(enc zapcore.Encoder, w io.Writer, level Level, opts ...Option) *Logger {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	atom := zap.NewAtomicLevelAt(level)
	var core zapcore.Core = zapcore.NewCore(enc, zapcore.AddSync(w), atom)
	if o.filter != "" {
		if filter, err := zapfilter.ParseRules(o.filter); err == nil {
			core = zapfilter.NewFilteringCore(core, filter)
		}
	}
	return &Logger{l: zap.New(core, o.zapOpts...), level: atom}
}
