// Package telemetry sets up tracing and the Prometheus collectors exposed
// on /metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flemzord/surveil/internal/config"
)

// Exporter names accepted in telemetry.exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrUnknownExporter indicates an unsupported telemetry.exporter value.
var ErrUnknownExporter = errors.New("telemetry: unknown exporter")

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Options tunes Init.
type Options struct {
	Version string

	// Writer receives spans for the stdout exporter. Defaults to os.Stderr
	// so traces never mix with command output.
	Writer io.Writer
}

// Init installs the global tracer provider selected by cfg. With the none
// exporter spans are still created but never exported.
func Init(ctx context.Context, cfg config.TelemetryConfig, opts Options) (Shutdown, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch cfg.Exporter {
	case "", ExporterNone:
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(200*time.Millisecond)))
	case ExporterOTLP:
		var clientOpts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			clientOpts = append(clientOpts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		}
		exp, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
