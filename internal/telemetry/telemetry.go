package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/webforge/sla-sentinel/internal/config"
)

// Service manages OpenTelemetry tracing for the prediction engine
type Service struct {
	config   config.TelemetryConfig
	logger   *zap.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewService creates a new telemetry service
func NewService(cfg config.TelemetryConfig, logger *zap.Logger) (*Service, error) {
	if !cfg.Enabled {
		logger.Info("Telemetry disabled")
		return &Service{
			config: cfg,
			logger: logger,
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := trace.TraceIDRatioBased(cfg.Sampling.Rate)
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	tracer := provider.Tracer(cfg.ServiceName)

	logger.Info("Telemetry initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
		zap.String("environment", cfg.Environment),
		zap.String("exporter", cfg.Exporter.Type),
		zap.Float64("sampling_rate", cfg.Sampling.Rate))

	return &Service{
		config:   cfg,
		logger:   logger,
		provider: provider,
		tracer:   tracer,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration
func createExporter(cfg config.TelemetryExporterConfig) (trace.SpanExporter, error) {
	switch cfg.Type {
	case "stdout":
		return stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case "otlp":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("OTLP endpoint is required")
		}

		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}

		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}

		return otlptracehttp.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Type)
	}
}

// Start starts the telemetry service
func (s *Service) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.logger.Info("Telemetry service started")
	return nil
}

// Stop stops the telemetry service and flushes remaining spans
func (s *Service) Stop(ctx context.Context) error {
	if !s.config.Enabled || s.provider == nil {
		return nil
	}

	s.logger.Info("Stopping telemetry service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.provider.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown telemetry provider", zap.Error(err))
		return err
	}

	s.logger.Info("Telemetry service stopped")
	return nil
}

// Tracer returns the OpenTelemetry tracer
func (s *Service) Tracer() oteltrace.Tracer {
	if s.tracer == nil {
		return otel.Tracer("noop")
	}
	return s.tracer
}

// IsEnabled returns true if telemetry is enabled
func (s *Service) IsEnabled() bool {
	return s.config.Enabled
}
