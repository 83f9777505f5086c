package logger

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levels maps lowercase log level names to zapcore levels,
// mirroring the strings accepted in configuration files.
//
//nolint:gochecknoglobals // Immutable lookup table used as a constant.
var levels = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

//nolint:gochecknoglobals // Package-level logger state, the one ambient exception the app wiring allows.
var (
	// currentLevel is shared with currentLogger's core, so SetLevel takes
	// effect immediately without rebuilding the logger.
	currentLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	loggerMu      sync.RWMutex
	currentLogger = New(currentLevel)
)

// New builds a zap logger writing to stderr at the given level.
// A nil level falls back to info.
func New(level zapcore.LevelEnabler) *zap.Logger {
	if level == nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)

	return zap.New(core)
}

// ParseLogLevel parses a case-insensitive, whitespace-tolerant log level name.
// It returns (zapcore.InfoLevel, false) for unrecognized input.
func ParseLogLevel(raw string) (zapcore.Level, bool) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return zapcore.InfoLevel, false
	}

	return level, true
}

// Logger returns the current package-level logger.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()

	return currentLogger
}

// SetLogger replaces the package-level logger. Intended for tests and
// for app wiring that wants a differently-configured sink.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	currentLogger = l
}

// SetLevel adjusts the package-level logger's verbosity.
func SetLevel(level zapcore.Level) {
	currentLevel.SetLevel(level)
}

// Level returns the package-level logger's current verbosity.
func Level() zapcore.Level {
	return currentLevel.Level()
}

// requestIDKey is the context key under which a request/job correlation id
// may be stashed by callers; when present it is attached to every log line.
type requestIDKey struct{}

// WithRequestID returns a context carrying a correlation id for later log calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return []zap.Field{zap.String("request_id", id)}
	}

	return nil
}

func withContext(ctx context.Context) *zap.Logger {
	fields := fieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger()
	}

	return Logger().With(fields...)
}

// Debug logs a message at debug level.
func Debug(ctx context.Context, msg string) { withContext(ctx).Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Debugf(format, args...)
}

// DebugKV logs a message with structured key-value pairs at debug level.
func DebugKV(ctx context.Context, msg string, kv ...any) {
	withContext(ctx).Sugar().Debugw(msg, kv...)
}

// Info logs a message at info level.
func Info(ctx context.Context, msg string) { withContext(ctx).Info(msg) }

// Infof logs a formatted message at info level.
func Infof(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Infof(format, args...)
}

// InfoKV logs a message with structured key-value pairs at info level.
func InfoKV(ctx context.Context, msg string, kv ...any) {
	withContext(ctx).Sugar().Infow(msg, kv...)
}

// Warn logs a message at warn level.
func Warn(ctx context.Context, msg string) { withContext(ctx).Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Warnf(format, args...)
}

// WarnKV logs a message with structured key-value pairs at warn level.
func WarnKV(ctx context.Context, msg string, kv ...any) {
	withContext(ctx).Sugar().Warnw(msg, kv...)
}

// Error logs a message at error level.
func Error(ctx context.Context, msg string) { withContext(ctx).Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Errorf(format, args...)
}

// ErrorKV logs a message with structured key-value pairs at error level.
func ErrorKV(ctx context.Context, msg string, kv ...any) {
	withContext(ctx).Sugar().Errorw(msg, kv...)
}

// Fatalf logs a formatted message at fatal level and terminates the process.
func Fatalf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Fatalf(format, args...)
}

// Panicf logs a formatted message at panic level and panics.
func Panicf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Sugar().Panicf(format, args...)
}
