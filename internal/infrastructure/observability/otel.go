package observability

import (
	"context"
	"errors"
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

const instrumentationName = "github.com/trialworks/eligibility-etl"

// Metrics holds the transfer pipeline metrics
type Metrics struct {
	RecordsProcessed metric.Int64Counter
	DocumentsWritten metric.Int64Counter
	RecordsSkipped   metric.Int64Counter
	WriteDuration    metric.Float64Histogram
}

// Setup initializes OpenTelemetry tracing and metrics against an OTLP gRPC
// endpoint. The returned shutdown flushes both providers, so a finite batch
// run still exports its final metric values on exit.
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
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes the transfer metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	recordsProcessed, err := meter.Int64Counter(
		"transfer.records.processed",
		metric.WithDescription("Number of registry rows processed"),
	)
	if err != nil {
		return nil, err
	}

	documentsWritten, err := meter.Int64Counter(
		"transfer.documents.written",
		metric.WithDescription("Number of documents written to the corpus store"),
	)
	if err != nil {
		return nil, err
	}

	recordsSkipped, err := meter.Int64Counter(
		"transfer.records.skipped",
		metric.WithDescription("Number of rows skipped, by classification"),
	)
	if err != nil {
		return nil, err
	}

	writeDuration, err := meter.Float64Histogram(
		"transfer.write.duration",
		metric.WithDescription("Store write duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RecordsProcessed: recordsProcessed,
		DocumentsWritten: documentsWritten,
		RecordsSkipped:   recordsSkipped,
		WriteDuration:    writeDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordSkip counts one skipped record under its classification
func RecordSkip(ctx context.Context, metrics *Metrics, reason string) {
	if metrics == nil {
		return
	}
	metrics.RecordsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("skip.reason", reason),
	))
}
