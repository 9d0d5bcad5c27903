// Package observability provides OpenTelemetry tracing and RED metrics
// for the returns core, plus structured logging setup. Telemetry is
// optional: with Enabled=false the provider is inert and every recording
// method is a no-op, so callers never branch on configuration.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "returns-core"

// Config configures the telemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults with telemetry disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "returns-core",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider owns the trace and metric providers and the step-level RED
// instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	stepCounter     metric.Int64Counter
	failureCounter  metric.Int64Counter
	escalationCount metric.Int64Counter
	stepDuration    metric.Float64Histogram
	activeSessions  metric.Int64UpDownCounter
}

// New builds a provider. When config.Enabled is false no exporter is
// dialed and the provider is safe but inert.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.stepCounter, err = p.meter.Int64Counter("returns.steps.total",
		metric.WithDescription("Orchestrator steps attempted"),
		metric.WithUnit("{step}"))
	if err != nil {
		return err
	}

	p.failureCounter, err = p.meter.Int64Counter("returns.step_failures.total",
		metric.WithDescription("Orchestrator steps that failed, by failure kind"),
		metric.WithUnit("{step}"))
	if err != nil {
		return err
	}

	p.escalationCount, err = p.meter.Int64Counter("returns.escalations.total",
		metric.WithDescription("Sessions handed off to a human operator"),
		metric.WithUnit("{escalation}"))
	if err != nil {
		return err
	}

	p.stepDuration, err = p.meter.Float64Histogram("returns.step.duration",
		metric.WithDescription("Step execution time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0))
	if err != nil {
		return err
	}

	p.activeSessions, err = p.meter.Int64UpDownCounter("returns.sessions.active",
		metric.WithDescription("Sessions with at least one step and no terminal escalation"),
		metric.WithUnit("{session}"))
	return err
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer, or the global fallback when
// telemetry is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// StartStep opens a span for one orchestrator step and returns a closer
// that records duration and outcome.
func (p *Provider) StartStep(ctx context.Context, sessionID, op string) (context.Context, func(failed bool, failureKind string)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, "step."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("step.op", op),
		))

	attrs := metric.WithAttributes(attribute.String("step.op", op))
	if p.stepCounter != nil {
		p.stepCounter.Add(ctx, 1, attrs)
	}

	return ctx, func(failed bool, failureKind string) {
		if p.stepDuration != nil {
			p.stepDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if failed {
			span.SetAttributes(attribute.String("step.failure_kind", failureKind))
			if p.failureCounter != nil {
				p.failureCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("step.op", op),
					attribute.String("failure.kind", failureKind)))
			}
		}
		span.End()
	}
}

// RecordEscalation counts a hand-off by priority.
func (p *Provider) RecordEscalation(ctx context.Context, priority string) {
	if p.escalationCount != nil {
		p.escalationCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("escalation.priority", priority)))
	}
}

// SessionStarted and SessionEnded maintain the active-session gauge.
func (p *Provider) SessionStarted(ctx context.Context) {
	if p.activeSessions != nil {
		p.activeSessions.Add(ctx, 1)
	}
}

func (p *Provider) SessionEnded(ctx context.Context) {
	if p.activeSessions != nil {
		p.activeSessions.Add(ctx, -1)
	}
}

// NewLogger builds the process-wide slog logger at the given level,
// writing JSON to stderr.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
