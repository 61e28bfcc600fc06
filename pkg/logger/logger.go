// Package logger is a small structured logging facade over zap.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Debug(message string, fields map[string]interface{})
	Fatal(message string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type zapLogger struct {
	z *zap.Logger
}

// New returns a JSON logger writing to stdout. LOG_LEVEL selects the minimum
// level (debug, info, warn, error); default is info.
func New(serviceName string) Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		_ = level.UnmarshalText([]byte(lvl))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stdout), level)
	return &zapLogger{z: zap.New(core).With(zap.String("service", serviceName))}
}

// FromZap adapts an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func toZap(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (l *zapLogger) Info(message string, fields map[string]interface{}) {
	l.z.Info(message, toZap(fields)...)
}

func (l *zapLogger) Error(message string, fields map[string]interface{}) {
	l.z.Error(message, toZap(fields)...)
}

func (l *zapLogger) Warn(message string, fields map[string]interface{}) {
	l.z.Warn(message, toZap(fields)...)
}

func (l *zapLogger) Debug(message string, fields map[string]interface{}) {
	l.z.Debug(message, toZap(fields)...)
}

func (l *zapLogger) Fatal(message string, fields map[string]interface{}) {
	l.z.Fatal(message, toZap(fields)...)
}

func (l *zapLogger) With(fields map[string]interface{}) Logger {
	return &zapLogger{z: l.z.With(toZap(fields)...)}
}

// Sync flushes buffered entries if l is zap-backed.
func Sync(l Logger) {
	if zl, ok := l.(*zapLogger); ok {
		_ = zl.z.Sync()
	}
}

func NewNop() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (l *nopLogger) Info(message string, fields map[string]interface{})  {}
func (l *nopLogger) Error(message string, fields map[string]interface{}) {}
func (l *nopLogger) Warn(message string, fields map[string]interface{})  {}
func (l *nopLogger) Debug(message string, fields map[string]interface{}) {}
func (l *nopLogger) Fatal(message string, fields map[string]interface{}) {}
func (l *nopLogger) With(fields map[string]interface{}) Logger           { return l }
