package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"intelligent-resource-analyzer/pkg/config"
)

// Logger wraps zap.SugaredLogger for analyzer-wide logging
type Logger struct {
	*zap.SugaredLogger
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// New creates a logger with the specified level. Development mode switches to
// the colored console encoder; otherwise entries are JSON.
func New(level string, development bool) (*Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// FromConfig builds a logger from the logging section
func FromConfig(cfg config.LoggingConfig) (*Logger, error) {
	return New(cfg.Level, cfg.Development)
}

// FromZap wraps an existing zap logger, e.g. one backed by an observer core
func FromZap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// SetGlobal replaces the process-wide logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Get returns the process-wide logger, creating a production one on first use
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		built, err := New("info", false)
		if err != nil {
			built = Nop()
		}
		globalLogger = built
	}
	return globalLogger
}

// WithFields returns a logger with additional key/value pairs
func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(fields...)}
}

// WithService scopes the logger to one analyzed service
func (l *Logger) WithService(service string) *Logger {
	return l.WithFields("service", service)
}

// WithError returns a logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err.Error())
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}

func Debugf(template string, args ...interface{}) {
	Get().Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	Get().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	Get().Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	Get().Errorf(template, args...)
}

// WithFields returns the global logger with additional fields
func WithFields(fields ...interface{}) *Logger {
	return Get().WithFields(fields...)
}

// Sync flushes the global logger
func Sync() error {
	return Get().Sync()
}
