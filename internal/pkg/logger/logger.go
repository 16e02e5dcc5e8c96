package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	mu        sync.RWMutex
	level     zap.AtomicLevel
	base      *zap.Logger
	redactPII bool
}

var defaultLogger = newLogger(levelFromEnv(), os.Stderr)

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	}
	return INFO
}

func newLogger(level Level, sink zapcore.WriteSyncer) *Logger {
	atom := zap.NewAtomicLevelAt(level)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(sink), atom)
	return &Logger{level: atom, base: zap.New(core), redactPII: true}
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.SetLevel(l) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the default logger. Intended for tests.
func SetOutput(w zapcore.WriteSyncer) {
	l := newLogger(defaultLogger.level.Level(), w)
	defaultLogger.mu.Lock()
	defaultLogger.base = l.base
	defaultLogger.level = l.level
	defaultLogger.mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() { _ = defaultLogger.zap().Sync() }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if !l.level.Enabled(level) {
		return
	}
	l.mu.RLock()
	redact := l.redactPII
	base := l.base
	l.mu.RUnlock()

	zf := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		if s, ok := val.(string); ok && redact {
			val = redactPIIValue(key, s)
		}
		zf = append(zf, zap.Any(key, val))
	}

	if ce := base.Check(level, msg); ce != nil {
		ce.Write(zf...)
	}
}
