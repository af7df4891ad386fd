package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Format selects how entries are rendered.
type Format string

const (
	// FormatConsole renders human readable lines, coloured on terminals.
	FormatConsole Format = "console"
	// FormatJSON renders one JSON object per line.
	FormatJSON Format = "json"
)

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	mu    sync.RWMutex
	zl    zerolog.Logger
	level Level
}

type options struct {
	level  Level
	output io.Writer
	format Format
	color  *bool
	fields []Field
}

// Option configures a ZeroLogger during construction.
type Option func(*options)

// WithLevel sets the minimum Level that will be emitted by the logger.
func WithLevel(level Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutput redirects log output to the provided writer.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithFormat selects console or JSON rendering.
func WithFormat(format Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithColor forces colour on or off for console output.
func WithColor(enabled bool) Option {
	return func(o *options) {
		o.color = &enabled
	}
}

// WithFields registers default fields for all subsequent log entries.
func WithFields(fields ...Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// New builds a ZeroLogger. Defaults: info level, console format on stderr.
func New(opts ...Option) *ZeroLogger {
	o := options{
		level:  LevelInfo,
		output: os.Stderr,
		format: FormatConsole,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.output == nil {
		o.output = os.Stderr
	}

	var w io.Writer = o.output
	if o.format != FormatJSON {
		useColor := supportsColor(o.output) && os.Getenv("NO_COLOR") == ""
		if o.color != nil {
			useColor = *o.color
		}
		w = zerolog.ConsoleWriter{
			Out:        o.output,
			TimeFormat: "15:04:05",
			NoColor:    !useColor,
		}
	}

	zctx := zerolog.New(w).With().Timestamp()
	for _, f := range o.fields {
		zctx = addContextField(zctx, f)
	}

	return &ZeroLogger{
		zl:    zctx.Logger().Level(toZerolog(o.level)),
		level: o.level,
	}
}

// Debug emits a debug level log entry.
func (l *ZeroLogger) Debug(format string, args ...interface{}) {
	l.logger().Debug().Msgf(format, args...)
}

// Info emits an info level log entry.
func (l *ZeroLogger) Info(format string, args ...interface{}) {
	l.logger().Info().Msgf(format, args...)
}

// Warn emits a warn level log entry.
func (l *ZeroLogger) Warn(format string, args ...interface{}) {
	l.logger().Warn().Msgf(format, args...)
}

// Error emits an error level log entry.
func (l *ZeroLogger) Error(format string, args ...interface{}) {
	l.logger().Error().Msgf(format, args...)
}

// DebugContext emits a debug level structured log entry.
func (l *ZeroLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, zerolog.DebugLevel, msg, fields)
}

// InfoContext emits an info level structured log entry.
func (l *ZeroLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, zerolog.InfoLevel, msg, fields)
}

// WarnContext emits a warn level structured log entry.
func (l *ZeroLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, zerolog.WarnLevel, msg, fields)
}

// ErrorContext emits an error level structured log entry.
func (l *ZeroLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, zerolog.ErrorLevel, msg, fields)
}

// With derives a new logger enriched with the provided fields.
func (l *ZeroLogger) With(fields ...Field) Logger {
	l.mu.RLock()
	zctx := l.zl.With()
	level := l.level
	l.mu.RUnlock()

	for _, f := range fields {
		zctx = addContextField(zctx, f)
	}
	return &ZeroLogger{zl: zctx.Logger(), level: level}
}

// SetLevel adjusts the minimum log level emitted.
func (l *ZeroLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(toZerolog(level))
}

// GetLevel returns the current minimum log level.
func (l *ZeroLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *ZeroLogger) logger() *zerolog.Logger {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()
	return &zl
}

func (l *ZeroLogger) logContext(ctx context.Context, level zerolog.Level, msg string, fields []Field) {
	ev := l.logger().WithLevel(level)
	if ev == nil {
		return
	}
	for _, f := range traceFieldsFromContext(ctx) {
		ev = addEventField(ev, f)
	}
	for _, f := range fields {
		ev = addEventField(ev, f)
	}
	ev.Msg(msg)
}

func addEventField(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case nil:
		return ev.Interface(f.Key, nil)
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Dur(f.Key, v)
	case error:
		return ev.AnErr(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

func addContextField(c zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return c.Str(f.Key, v)
	case int:
		return c.Int(f.Key, v)
	case bool:
		return c.Bool(f.Key, v)
	default:
		return c.Interface(f.Key, v)
	}
}

func toZerolog(level Level) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func supportsColor(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

var _ Logger = (*ZeroLogger)(nil)
