package monitoring

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

type zapLogger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds the production logger. The returned AtomicLevel is shared with
// every derived logger so configuration reloads can change verbosity at runtime.
func NewZapLogger(cfg *config.LogConfig) (logger.Logger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomic := zap.NewAtomicLevelAt(level)

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), atomic)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &zapLogger{base: base, level: atomic}, atomic, nil
}

// NewZapLoggerFrom wraps an existing zap logger, e.g. zaptest or zap.NewNop.
func NewZapLoggerFrom(base *zap.Logger) logger.Logger {
	return &zapLogger{base: base.WithOptions(zap.AddCallerSkip(1)), level: zap.NewAtomicLevel()}
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Debug(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Info(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...logger.Field) {
	l.base.Warn(msg, convertFields(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Field) {
	l.base.Error(msg, append(convertFields(ctx, fields), zap.Error(err))...)
}

func (l *zapLogger) Fatal(ctx context.Context, msg string, err error, fields ...logger.Field) {
	l.base.Fatal(msg, append(convertFields(ctx, fields), zap.Error(err))...)
}

func (l *zapLogger) WithFields(fields ...logger.Field) logger.Logger {
	return &zapLogger{base: l.base.With(convertFields(context.Background(), fields)...), level: l.level}
}

func (l *zapLogger) WithComponent(component string) logger.Logger {
	return &zapLogger{base: l.base.With(zap.String("component", component)), level: l.level}
}

func convertFields(ctx context.Context, fields []logger.Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+3)
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, logger.SanitizeValue(f.Key, f.Value)))
	}
	return zapFields
}
