package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger initializes the global zerolog logger. Development output is human readable;
// anything else is JSON with caller information.
func InitLogger(serviceName, env, level string) {
	setLevel(level)

	if env == "development" {
		InitConsoleLogger(os.Stdout, serviceName, level)
		return
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Logger()
}

// InitConsoleLogger writes human readable logs to w. Command line tools point it at stderr
// so stdout stays machine readable.
func InitConsoleLogger(w io.Writer, serviceName, level string) {
	setLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// LoggerFromContext returns the global logger annotated with the active span, if any
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := log.With().Logger()

	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if spanCtx.IsValid() {
		logger = logger.With().
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String()).
			Logger()
	}

	return &logger
}

// GetLogger returns the global logger
func GetLogger() *zerolog.Logger {
	return &log.Logger
}
