// Package tracing provides OpenTelemetry initialization and span helpers for sweeps.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultServiceName = "relaxsim"

// Config selects the OTLP exporter. Tracing is off without an endpoint.
type Config struct {
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" json:"protocol,omitempty" yaml:"protocol,omitempty"` // grpc or http
	Insecure    bool    `mapstructure:"insecure" json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	ServiceName string  `mapstructure:"service_name" json:"service_name,omitempty" yaml:"service_name,omitempty"`
}

// Enabled reports whether an endpoint is configured, directly or through
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (c Config) Enabled() bool {
	return c.endpoint() != ""
}

func (c Config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate checks the protocol and the sample rate.
func (c Config) Validate() error {
	switch strings.ToLower(c.Protocol) {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1.0 {
		return fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", c.SampleRate)
	}
	return nil
}

// Provider wraps the OTel TracerProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init creates an OTel TracerProvider from cfg. Returns a no-op provider if tracing is disabled.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		if envName := os.Getenv("OTEL_SERVICE_NAME"); envName != "" {
			serviceName = envName
		} else {
			serviceName = defaultServiceName
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg, cfg.endpoint())
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	// A zero rate means "not set" and samples everything.
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(defaultServiceName),
	}, nil
}

// Tracer returns the configured tracer. Returns a no-op tracer if tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(defaultServiceName)
	}
	return p.tracer
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, cfg Config, endpoint string) (sdktrace.SpanExporter, error) {
	protocol := strings.ToLower(cfg.Protocol)
	if protocol == "" {
		protocol = "grpc"
	}

	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)

	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
