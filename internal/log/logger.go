// Package log provides structured logging for the message runtime
// using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lfproto/lf/internal/trace"
)

// Logger wraps zap.Logger with runtime-specific helpers.
type Logger struct {
	*zap.Logger
	onInvoke func(module, function string, detail string) // trace callback for invocations
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnInvoke sets the trace callback fired on every invocation.
func (l *Logger) SetOnInvoke(fn func(module, function, detail string)) {
	l.onInvoke = fn
}

// Invoke logs an invocation event and calls the trace callback if set.
// This is the primary method the perform engine uses to report
// dispatch activity.
func (l *Logger) Invoke(module, function, detail string) {
	if l.onInvoke != nil {
		l.onInvoke(module, function, detail)
	}

	l.Debug("invoke",
		zap.String("mod", module),
		zap.String("fn", function),
		zap.String("detail", detail),
	)
}

// StubInstall logs when a module is registered at a given index.
func (l *Logger) StubInstall(name string, index uint8) {
	l.Debug("registered",
		zap.String("mod", name),
		zap.Uint8("index", index),
	)
}

// Reply logs the outcome of a completed invocation.
func (l *Logger) Reply(module, function string, code uint32) {
	l.Debug("reply",
		zap.String("mod", module),
		zap.String("fn", function),
		zap.Uint32("err", code),
	)
}

// Trace logs an enriched trace event's tags and annotations, giving
// the trace package's Tags/Annotations machinery an actual sink
// instead of a value that's built and discarded.
func (l *Logger) Trace(e *trace.Event) {
	fields := []zap.Field{
		zap.String("corr", e.CorrelationID),
		zap.String("mod", e.Module),
		zap.String("fn", e.Function),
		zap.Strings("tags", e.Tags.Raw()),
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	for k, v := range e.Annotations {
		fields = append(fields, zap.String("ann_"+k, v))
	}
	l.Debug("trace", fields...)
}

// Bind logs a module bind resolution.
func (l *Logger) Bind(name string, index uint8, ok bool) {
	l.Debug("bind",
		zap.String("mod", name),
		zap.Uint8("index", index),
		zap.Bool("ok", ok),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:   l.Logger.With(zap.String("cat", category)),
		onInvoke: l.onInvoke,
	}
}

// Hex formats a uint64 as hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Value creates a hex-formatted argument-value field.
func Value(v uint64) zap.Field {
	return zap.String("val", Hex(v))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Module creates a module-name field.
func Module(name string) zap.Field {
	return zap.String("mod", name)
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}
