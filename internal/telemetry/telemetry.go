// Package telemetry sets up OpenTelemetry tracing and metrics for the bot.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"gitlab.com/yelinaung/navigator-bot/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies this module's tracer and meter.
const InstrumentationName = "gitlab.com/yelinaung/navigator-bot"

// Options selects the exporter pair and the resource identity.
type Options struct {
	Exporter    string
	Endpoint    string
	ServiceName string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the providers installed by Setup.
type ShutdownFunc func(context.Context) error

// Setup installs global tracer and meter providers for opts.Exporter.
// With ExporterNone the global no-op providers stay in place.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if opts.Exporter == "" || opts.Exporter == config.ExporterNone {
		return noop, nil
	}

	traceExp, metricExp, err := newExporters(ctx, opts)
	if err != nil {
		return noop, err
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "navigator-bot"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newExporters(ctx context.Context, opts Options) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch opts.Exporter {
	case config.ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		te, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		me, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		return te, me, nil

	case config.ExporterOTLPGRPC:
		var traceOpts []otlptracegrpc.Option
		var metricOpts []otlpmetricgrpc.Option
		if opts.Endpoint != "" {
			traceOpts = append(traceOpts, otlptracegrpc.WithEndpointURL(opts.Endpoint))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpointURL(opts.Endpoint))
		}
		te, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP gRPC trace exporter: %w", err)
		}
		me, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP gRPC metric exporter: %w", err)
		}
		return te, me, nil

	case config.ExporterOTLPHTTP:
		var traceOpts []otlptracehttp.Option
		var metricOpts []otlpmetrichttp.Option
		if opts.Endpoint != "" {
			traceOpts = append(traceOpts, otlptracehttp.WithEndpointURL(opts.Endpoint))
			metricOpts = append(metricOpts, otlpmetrichttp.WithEndpointURL(opts.Endpoint))
		}
		te, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP HTTP trace exporter: %w", err)
		}
		me, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP HTTP metric exporter: %w", err)
		}
		return te, me, nil
	}

	return nil, nil, fmt.Errorf("unknown telemetry exporter %q", opts.Exporter)
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// HTTPClient returns an HTTP client whose requests are traced.
// It has no overall timeout; long polling bounds requests by context.
func HTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
