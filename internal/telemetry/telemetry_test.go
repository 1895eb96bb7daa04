package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/webforge/sla-sentinel/internal/config"
)

func TestNewService(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name      string
		config    config.TelemetryConfig
		wantError bool
	}{
		{
			name: "telemetry disabled",
			config: config.TelemetryConfig{
				Enabled: false,
			},
			wantError: false,
		},
		{
			name: "telemetry enabled with stdout exporter",
			config: config.TelemetryConfig{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
				Environment:    "test",
				Exporter: config.TelemetryExporterConfig{
					Type: "stdout",
				},
				Sampling: config.TelemetrySamplingConfig{
					Rate: 0.5,
				},
			},
			wantError: false,
		},
		{
			name: "otlp exporter without endpoint",
			config: config.TelemetryConfig{
				Enabled:     true,
				ServiceName: "test-service",
				Exporter: config.TelemetryExporterConfig{
					Type: "otlp",
				},
			},
			wantError: true,
		},
		{
			name: "unsupported exporter type",
			config: config.TelemetryConfig{
				Enabled:     true,
				ServiceName: "test-service",
				Exporter: config.TelemetryExporterConfig{
					Type: "unsupported",
				},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewService(tt.config, logger)
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if service == nil {
				t.Fatal("expected service, got nil")
			}
			if service.IsEnabled() != tt.config.Enabled {
				t.Errorf("IsEnabled() = %v, want %v", service.IsEnabled(), tt.config.Enabled)
			}
		})
	}
}

func TestServiceLifecycle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.TelemetryConfig{
		Enabled:        true,
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Exporter: config.TelemetryExporterConfig{
			Type: "stdout",
		},
		Sampling: config.TelemetrySamplingConfig{
			Rate: 1.0,
		},
	}

	service, err := NewService(cfg, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if service.Tracer() == nil {
		t.Error("expected tracer, got nil")
	}
	if err := service.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestDisabledServiceTracer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	service, err := NewService(config.TelemetryConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if service.Tracer() == nil {
		t.Error("disabled service should still return a noop tracer")
	}
	if helper := service.GetTraceHelper(); helper == nil {
		t.Error("disabled service should still return a trace helper")
	}
	if err := service.Stop(context.Background()); err != nil {
		t.Errorf("Stop on disabled service should be nil, got %v", err)
	}
}
