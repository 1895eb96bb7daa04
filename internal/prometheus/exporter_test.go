package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/webforge/sla-sentinel/internal/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		BindAddress: "127.0.0.1:0",
		MetricsPath: "/metrics",
		HealthPath:  "/healthz",
		MaxRequests: 100,
	}
}

func scrape(t *testing.T, handler http.Handler, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return rec.Code, string(body)
}

func TestExporterMetricsEndpoint(t *testing.T) {
	exporter, err := NewExporter(testServerConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	exporter.ObservePrediction("deploy-pipeline", "build_time", 0.82)
	exporter.ObservePredictionError("test_time")
	exporter.SetModelAccuracy("build_time", 0.91)
	exporter.ObserveRetrain("deployed")
	exporter.ObserveAlert("email", true)
	exporter.ObserveAlert("webhook", false)
	exporter.ObserveAlertSuppressed()
	exporter.ObserveScalingExecution("build_agents", "scale_up", 6)
	exporter.ObserveScalingRollback("build_agents", 4)
	exporter.ObserveThresholdRecommendation("build_time")
	exporter.ObserveABTestEvent("completed")

	code, body := scrape(t, exporter.Handler(), "/metrics")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	want := []string{
		`sla_predictions_total{violation_type="build_time"} 1`,
		`sla_prediction_errors_total{violation_type="test_time"} 1`,
		`sla_prediction_probability{violation_type="build_time",workflow="deploy-pipeline"} 0.82`,
		`sla_model_accuracy{violation_type="build_time"} 0.91`,
		`sla_model_retrains_total{outcome="deployed"} 1`,
		`sla_alerts_total{channel="email",outcome="delivered"} 1`,
		`sla_alerts_total{channel="webhook",outcome="failed"} 1`,
		`sla_alerts_suppressed_total 1`,
		`sla_scaling_executions_total{action="scale_up",resource="build_agents"} 1`,
		`sla_scaling_rollbacks_total{resource="build_agents"} 1`,
		`sla_resource_capacity{resource="build_agents"} 4`,
		`sla_threshold_recommendations_total{metric="build_time"} 1`,
		`sla_abtest_events_total{status="completed"} 1`,
	}
	for _, line := range want {
		if !strings.Contains(body, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestExporterHealthEndpoint(t *testing.T) {
	exporter, err := NewExporter(testServerConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	code, body := scrape(t, exporter.Handler(), "/healthz")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("health response missing status: %s", body)
	}
}

func TestExporterRootEndpoint(t *testing.T) {
	exporter, err := NewExporter(testServerConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	code, body := scrape(t, exporter.Handler(), "/")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, "/metrics") || !strings.Contains(body, "/healthz") {
		t.Errorf("root page should link both endpoints: %s", body)
	}
}

func TestExporterRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxRequests = 1 // burst of 2

	exporter, err := NewExporter(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	handler := exporter.Handler()
	limited := false
	for i := 0; i < 5; i++ {
		code, _ := scrape(t, handler, "/metrics")
		if code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected rate limiter to reject a burst of requests")
	}

	// Health endpoint is not rate limited
	if code, _ := scrape(t, handler, "/healthz"); code != http.StatusOK {
		t.Errorf("health endpoint should bypass rate limiting, got %d", code)
	}
}
