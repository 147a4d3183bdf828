package log

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on top of zap, writing structured JSON to
// stdout. It is the production logging driver for this core.
type ZapLogger struct {
	zapLogger *zap.Logger
	fields    []Field
}

// NewZap builds a ZapLogger at the given level, formatted either as "json"
// or "console".
func NewZap(level Level, format string) (*ZapLogger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), convertLevel(level))
	zapLogger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	return &ZapLogger{zapLogger: zapLogger}, nil
}

// NewNop returns a Logger that discards everything; used in tests.
func NewNop() *ZapLogger {
	return &ZapLogger{zapLogger: zap.NewNop()}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

func (l *ZapLogger) With(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &ZapLogger{zapLogger: l.zapLogger, fields: combined}
}

func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return l
	}
	return l.With(String("trace_id", span.TraceID().String()))
}

func (l *ZapLogger) log(level Level, msg string, fields ...Field) {
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	zapFields := make([]zap.Field, len(all))
	for i, f := range all {
		zapFields[i] = toZapField(f)
	}

	switch level {
	case DebugLevel:
		l.zapLogger.Debug(msg, zapFields...)
	case InfoLevel:
		l.zapLogger.Info(msg, zapFields...)
	case WarnLevel:
		l.zapLogger.Warn(msg, zapFields...)
	case ErrorLevel:
		l.zapLogger.Error(msg, zapFields...)
	}
}

func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.Error(v)
	default:
		return zap.Any(f.Key, v)
	}
}

func convertLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
