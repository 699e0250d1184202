// Provider setup: OTLP tracing and metrics for the substrate, with
// instruments named for the things this system actually does —
// adjudications, lifecycle transitions, executions, suspensions — rather
// than generic request counters alone.
package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
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
	"google.golang.org/grpc/credentials"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	NodeID         string        // stamped on every span's resource
	OTLPEndpoint   string        // e.g. "localhost:4317" for gRPC
	SampleRate     float64       // 0.0 to 1.0, default 1.0 (sample all)
	BatchTimeout   time.Duration // how long to wait before sending batched spans
	Enabled        bool
	Insecure       bool   // plaintext connection (dev only)
	CertFile       string // client certificate for mTLS
	KeyFile        string // client key for mTLS
	CAFile         string // CA bundle for the collector
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "substrate-core",
		ServiceVersion: "2.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider owns the trace and metric pipelines plus the substrate's
// domain instruments. A disabled provider is fully functional: every
// method no-ops or returns the global no-op tracer/meter, so callers wire
// it unconditionally.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	// Domain instruments.
	adjudications metric.Int64Counter   // by verdict
	transitions   metric.Int64Counter   // by from/to status
	executions    metric.Int64Counter   // by outcome
	suspensions   metric.Int64UpDownCounter
	// Generic RED instruments backing TrackOperation.
	requests  metric.Int64Counter
	errors    metric.Int64Counter
	durations metric.Float64Histogram
	active    metric.Int64UpDownCounter
}

// New creates a new observability provider.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := p.buildResource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	transport, err := p.transportOptions()
	if err != nil {
		return nil, err
	}
	if err := p.startPipelines(ctx, res, transport); err != nil {
		return nil, err
	}
	if err := p.buildInstruments(); err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)

	return p, nil
}

func (p *Provider) buildResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
		attribute.String("substrate.component", "core"),
	}
	if p.config.NodeID != "" {
		attrs = append(attrs, attribute.String("substrate.node.id", p.config.NodeID))
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

// transportOptions resolves the connection security for both exporters:
// plaintext when Insecure, otherwise TLS with an optional private CA and
// client keypair for mTLS collectors.
func (p *Provider) transportOptions() (credentials.TransportCredentials, error) {
	if p.config.Insecure {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.config.CAFile != "" {
		pem, err := os.ReadFile(p.config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", p.config.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	if p.config.CertFile != "" && p.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(p.config.CertFile, p.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client keypair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(tlsCfg), nil
}

// startPipelines builds and registers the trace and metric providers.
func (p *Provider) startPipelines(ctx context.Context, res *resource.Resource, creds credentials.TransportCredentials) error {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if creds == nil {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	sampler := sdktrace.AlwaysSample()
	switch {
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	case p.config.SampleRate < 1.0:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.tracer = otel.Tracer("substrate.core",
		trace.WithInstrumentationVersion(p.config.ServiceVersion))
	p.meter = otel.Meter("substrate.core",
		metric.WithInstrumentationVersion(p.config.ServiceVersion))
	return nil
}

// buildInstruments creates the domain counters and the RED backing set.
func (p *Provider) buildInstruments() error {
	instruments := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&p.adjudications, "substrate.gate.adjudications.total", "Commitments adjudicated, by verdict", "{commitment}"},
		{&p.transitions, "substrate.ledger.transitions.total", "Lifecycle transitions applied, by edge", "{transition}"},
		{&p.executions, "substrate.executor.executions.total", "Approved commitments executed, by outcome", "{execution}"},
		{&p.requests, "substrate.requests.total", "Total operations processed", "{request}"},
		{&p.errors, "substrate.errors.total", "Total errors", "{error}"},
	}
	for _, in := range instruments {
		c, err := p.meter.Int64Counter(in.name,
			metric.WithDescription(in.desc), metric.WithUnit(in.unit))
		if err != nil {
			return err
		}
		*in.target = c
	}

	var err error
	p.suspensions, err = p.meter.Int64UpDownCounter("substrate.gate.suspensions.active",
		metric.WithDescription("Commitments awaiting co-signature or human review"),
		metric.WithUnit("{commitment}"))
	if err != nil {
		return err
	}
	p.active, err = p.meter.Int64UpDownCounter("substrate.operations.active",
		metric.WithDescription("Currently active operations"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}
	p.durations, err = p.meter.Float64Histogram("substrate.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0))
	return err
}

// Shutdown gracefully shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("substrate.core")
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter("substrate.core")
	}
	return p.meter
}

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordAdjudication counts a completed adjudication by verdict.
func (p *Provider) RecordAdjudication(ctx context.Context, verdict string, suspended bool) {
	if p.adjudications == nil {
		return
	}
	p.adjudications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("substrate.gate.verdict", verdict),
		attribute.Bool("substrate.gate.suspended", suspended),
	))
}

// RecordTransition counts a lifecycle edge taken in the ledger.
func (p *Provider) RecordTransition(ctx context.Context, from, to string) {
	if p.transitions == nil {
		return
	}
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("substrate.lifecycle.from", from),
		attribute.String("substrate.lifecycle.to", to),
	))
}

// RecordExecution counts an execution attempt by outcome.
func (p *Provider) RecordExecution(ctx context.Context, outcome string) {
	if p.executions == nil {
		return
	}
	p.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("substrate.executor.outcome", outcome),
	))
}

// TrackSuspension moves the awaiting-resolution gauge: +1 when a
// commitment suspends, -1 when its suspension resolves.
func (p *Provider) TrackSuspension(ctx context.Context, delta int64) {
	if p.suspensions == nil {
		return
	}
	p.suspensions.Add(ctx, delta)
}

// RecordError records an error with the given attributes.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.errors == nil {
		return
	}
	allAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
	p.errors.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// TrackOperation tracks an operation from start to finish: span, request
// count, active gauge, duration, and error accounting. The returned
// function must be called when the operation completes.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if p.active != nil {
		p.active.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.requests != nil {
		p.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.active != nil {
			p.active.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.durations != nil {
			p.durations.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			p.RecordError(ctx, err, attrs...)
		}
		span.End()
	}
}
