// Package log provides structured logging for pb2proto using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with pipeline-stage helpers.
type Logger struct {
	*zap.Logger
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

	// ISO8601 timestamps under the "ts" key, in both modes
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

// WithRun returns a logger tagged with a run correlation ID.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("run", runID))}
}

// WithStage returns a logger with the pipeline stage field preset.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("stage", stage))}
}

// Stage logs entry into a pipeline stage.
func (l *Logger) Stage(name string, fields ...zap.Field) {
	l.Info("stage", append([]zap.Field{zap.String("name", name)}, fields...)...)
}

// KeyFound logs successful key recovery (component C).
func (l *Logger) KeyFound(keyXor uint64, keyVA uint64) {
	l.Info("key recovered",
		zap.String("key_xor", Hex(keyXor)),
		Addr(keyVA),
	)
}

// MetadataDecrypted logs successful metadata decryption (component D).
func (l *Logger) MetadataDecrypted(plaintextLen int) {
	l.Info("metadata decrypted", zap.Int("bytes", plaintextLen))
}

// PackageSealed logs a package being sealed during schema building (component G).
func (l *Logger) PackageSealed(name string, messages, enums, services int) {
	l.Debug("package sealed",
		zap.String("package", name),
		zap.Int("messages", messages),
		zap.Int("enums", enums),
		zap.Int("services", services),
	)
}

// FileWritten logs a .proto file being written (component H).
func (l *Logger) FileWritten(path string, bytes int) {
	l.Info("file written", zap.String("path", path), zap.Int("bytes", bytes))
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

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}
