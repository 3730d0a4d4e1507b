package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/databaseguru/backend"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount       metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	QueryDuration      metric.Float64Histogram
	CorrectionAttempts metric.Int64Counter
	CorrectionsLearned metric.Int64Counter
	CorrectionOutcomes metric.Int64Counter
	VerificationIssues metric.Int64Counter
	LLMRequestDuration metric.Float64Histogram
	CacheHitCount      metric.Int64Counter
	CacheMissCount     metric.Int64Counter
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// Setup initializes OpenTelemetry tracing and metrics export
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.RequestCount, err = meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.QueryDuration, err = meter.Float64Histogram("db.user_query.duration",
		metric.WithDescription("User database statement duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.CorrectionAttempts, err = meter.Int64Counter("correction.attempt.count",
		metric.WithDescription("Execution attempts by correction strategy")); err != nil {
		return nil, err
	}
	if m.CorrectionsLearned, err = meter.Int64Counter("correction.learned.count",
		metric.WithDescription("Learned corrections inserted or merged")); err != nil {
		return nil, err
	}
	if m.CorrectionOutcomes, err = meter.Int64Counter("correction.reuse.count",
		metric.WithDescription("Reuse outcomes of learned corrections")); err != nil {
		return nil, err
	}
	if m.VerificationIssues, err = meter.Int64Counter("verification.issue.count",
		metric.WithDescription("Suspicious results by issue kind")); err != nil {
		return nil, err
	}
	if m.LLMRequestDuration, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.CacheHitCount, err = meter.Int64Counter("cache.hit.count",
		metric.WithDescription("Number of cache hits")); err != nil {
		return nil, err
	}
	if m.CacheMissCount, err = meter.Int64Counter("cache.miss.count",
		metric.WithDescription("Number of cache misses")); err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultMetrics returns process-wide metrics bound to the global meter provider.
// It returns nil if the instruments could not be created.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		m, err := InitMetrics()
		if err != nil {
			GetLogger().Warn().Err(err).Msg("failed to initialise metrics")
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordRequestMetric records an HTTP request
func RecordRequestMetric(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	)
	m.RequestCount.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordQueryMetric records one statement executed against a user database
func RecordQueryMetric(ctx context.Context, databaseKind string, duration time.Duration, err error) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.QueryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("db.system", databaseKind),
		attribute.Bool("error", err != nil),
	))
}

// RecordCorrectionAttempt records one execution attempt and the strategy that produced its SQL
func RecordCorrectionAttempt(ctx context.Context, strategy string, succeeded bool) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.CorrectionAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("succeeded", succeeded),
	))
}

// RecordCorrectionLearned records a learning event
func RecordCorrectionLearned(ctx context.Context, errorKind string, merged bool) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.CorrectionsLearned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_kind", errorKind),
		attribute.Bool("merged", merged),
	))
}

// RecordCorrectionOutcome records the result of reusing a learned correction
func RecordCorrectionOutcome(ctx context.Context, succeeded bool) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.CorrectionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("succeeded", succeeded)))
}

// RecordVerificationIssue records a suspicious result
func RecordVerificationIssue(ctx context.Context, issueKind, severity string) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.VerificationIssues.Add(ctx, 1, metric.WithAttributes(
		attribute.String("issue_kind", issueKind),
		attribute.String("severity", severity),
	))
}

// RecordLLMMetric records a model call
func RecordLLMMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	m := DefaultMetrics()
	if m == nil {
		return
	}
	m.LLMRequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("http.status_code", statusCode),
		attribute.Bool("error", err != nil),
	))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(ctx context.Context, keyspace string) {
	if m := DefaultMetrics(); m != nil {
		m.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.keyspace", keyspace)))
	}
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(ctx context.Context, keyspace string) {
	if m := DefaultMetrics(); m != nil {
		m.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.keyspace", keyspace)))
	}
}
