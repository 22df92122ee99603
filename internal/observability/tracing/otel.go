// Package tracing installs the OpenTelemetry tracer provider shared by the
// context API, the summary worker and the outbox relay.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config describes where spans go and how many are kept.
type Config struct {
	Service     string
	Version     string
	Environment string
	// Endpoint is the OTLP/gRPC collector; empty records spans without exporting them
	Endpoint string
	// Ratio of root traces sampled, clamped to [0, 1]
	Ratio float64
	// ExportTimeout bounds each batch export
	ExportTimeout time.Duration
}

// DefaultConfig samples everything and exports to a local collector.
func DefaultConfig(service string) Config {
	return Config{
		Service:       service,
		Version:       "dev",
		Environment:   "development",
		Endpoint:      "localhost:4317",
		Ratio:         1,
		ExportTimeout: 10 * time.Second,
	}
}

// Provider owns the installed tracer provider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init builds the provider from cfg and installs it globally together with
// the trace-context and baggage propagators.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Service == "" {
		return nil, errors.New("tracing: service name is required")
	}

	res, err := serviceResource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(ratioSampler(cfg.Ratio))),
	}
	if cfg.Endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(cfg.ExportTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("tracing: otlp exporter for %s: %w", cfg.Endpoint, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	p := &Provider{tp: sdktrace.NewTracerProvider(opts...)}
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func serviceResource(cfg Config) (*resource.Resource, error) {
	own := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.Service),
		semconv.ServiceVersion(cfg.Version),
		semconv.DeploymentEnvironment(cfg.Environment),
	)
	res, err := resource.Merge(resource.Default(), own)
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}
	return res, nil
}

func ratioSampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	if ratio <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(ratio)
}

// Shutdown flushes buffered spans. Safe on a nil provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
