package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/plateful/api/internal/platform/requestctx"
)

const (
	logLevelEnv     = "LOG_LEVEL"
	defaultLogLevel = zapcore.InfoLevel
)

// NewLogger builds the process-wide zap logger. Output is JSON on stdout with
// field names Cloud Logging understands (severity, timestamp, message).
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(defaultLogLevel)
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(logLevelEnv))); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level.SetLevel(parsed)
		}
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			TimeKey:    "timestamp",
			LevelKey:   "severity",
			EncodeTime: zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(l.String()))
			},
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger stores the logger on the context for downstream retrieval.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the context logger, or a no-op logger when absent.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WithRequestFields attaches request-scoped fields to the logger.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}

// PrintfAdapter exposes zap through a Printf method for dependencies that
// only accept printf-style loggers.
type PrintfAdapter struct {
	sugar *zap.SugaredLogger
}

// NewPrintfAdapter wraps the logger in a PrintfAdapter.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{sugar: logger.Sugar()}
}

func (a PrintfAdapter) Printf(format string, args ...any) {
	a.sugar.Infof(format, args...)
}
