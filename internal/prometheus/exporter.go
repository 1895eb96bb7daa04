package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webforge/sla-sentinel/internal/config"
)

// Exporter exposes prediction engine metrics in Prometheus format
type Exporter struct {
	config config.ServerConfig
	logger *zap.Logger

	server   *http.Server
	registry *prometheus.Registry

	rateLimiter *rate.Limiter

	// Prediction metrics
	predictionsTotal      *prometheus.CounterVec
	predictionErrorsTotal *prometheus.CounterVec
	predictionProbability *prometheus.GaugeVec

	// Model metrics
	modelAccuracy      *prometheus.GaugeVec
	modelRetrainsTotal *prometheus.CounterVec

	// Alert metrics
	alertsTotal           *prometheus.CounterVec
	alertsSuppressedTotal prometheus.Counter

	// Scaling metrics
	scalingExecutionsTotal *prometheus.CounterVec
	scalingRollbacksTotal  *prometheus.CounterVec
	resourceCapacity       *prometheus.GaugeVec

	// Optimization metrics
	thresholdRecommendationsTotal *prometheus.CounterVec
	abTestEventsTotal             *prometheus.CounterVec

	mu      sync.RWMutex
	running bool
}

// NewExporter creates a new Prometheus exporter
func NewExporter(cfg config.ServerConfig, logger *zap.Logger) (*Exporter, error) {
	registry := prometheus.NewRegistry()

	limit := cfg.MaxRequests
	if limit <= 0 {
		limit = 100
	}

	e := &Exporter{
		config:      cfg,
		logger:      logger,
		registry:    registry,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), limit*2),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return e, nil
}

// initMetrics initializes all Prometheus metrics
func (e *Exporter) initMetrics() error {
	e.predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_predictions_total",
			Help: "Total number of SLA violation predictions issued",
		},
		[]string{"violation_type"},
	)

	e.predictionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_prediction_errors_total",
			Help: "Total number of per-type prediction failures",
		},
		[]string{"violation_type"},
	)

	e.predictionProbability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_prediction_probability",
			Help: "Latest predicted violation probability per workflow and type",
		},
		[]string{"workflow", "violation_type"},
	)

	e.modelAccuracy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_model_accuracy",
			Help: "Cross-validated accuracy of the deployed model per violation type",
		},
		[]string{"violation_type"},
	)

	e.modelRetrainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_model_retrains_total",
			Help: "Total retraining runs by outcome",
		},
		[]string{"outcome"},
	)

	e.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_alerts_total",
			Help: "Total alert deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	e.alertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sla_alerts_suppressed_total",
			Help: "Total alerts dropped by the suppression window",
		},
	)

	e.scalingExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_scaling_executions_total",
			Help: "Total executed scaling decisions by resource and action",
		},
		[]string{"resource", "action"},
	)

	e.scalingRollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_scaling_rollbacks_total",
			Help: "Total rolled back scaling actions by resource",
		},
		[]string{"resource"},
	)

	e.resourceCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_resource_capacity",
			Help: "Current capacity per managed resource",
		},
		[]string{"resource"},
	)

	e.thresholdRecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_threshold_recommendations_total",
			Help: "Total threshold recommendations by metric",
		},
		[]string{"metric"},
	)

	e.abTestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_abtest_events_total",
			Help: "Total A/B test lifecycle transitions by status",
		},
		[]string{"status"},
	)

	collectors := []prometheus.Collector{
		e.predictionsTotal,
		e.predictionErrorsTotal,
		e.predictionProbability,
		e.modelAccuracy,
		e.modelRetrainsTotal,
		e.alertsTotal,
		e.alertsSuppressedTotal,
		e.scalingExecutionsTotal,
		e.scalingRollbacksTotal,
		e.resourceCapacity,
		e.thresholdRecommendationsTotal,
		e.abTestEventsTotal,
	}

	for _, collector := range collectors {
		if err := e.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}

	e.logger.Info("Initialized Prometheus metrics", zap.Int("collectors", len(collectors)))
	return nil
}

// rateLimitMiddleware provides rate limiting for endpoints
func (e *Exporter) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !e.rateLimiter.Allow() {
			e.logger.Warn("Rate limit exceeded",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))

			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler serving metrics and health endpoints
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()

	metricsHandler := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(e.logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux.Handle(e.config.MetricsPath, e.rateLimitMiddleware(metricsHandler))

	mux.HandleFunc("/", e.rootHandler)
	mux.HandleFunc(e.config.HealthPath, e.healthHandler)

	return mux
}

// Start serves metrics until the context is cancelled
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("exporter is already running")
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Starting Prometheus exporter",
		zap.String("bind_address", e.config.BindAddress),
		zap.String("metrics_path", e.config.MetricsPath))

	e.server = &http.Server{
		Addr:         e.config.BindAddress,
		Handler:      e.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		err := e.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			e.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("Server shutdown failed", zap.Error(err))
		return err
	}

	e.logger.Info("Prometheus exporter stopped")
	return nil
}

// Stop halts the metrics server
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}

	return nil
}

// ObservePrediction records an issued prediction and its probability
func (e *Exporter) ObservePrediction(workflowID, violationType string, probability float64) {
	e.predictionsTotal.WithLabelValues(violationType).Inc()
	e.predictionProbability.WithLabelValues(workflowID, violationType).Set(probability)
}

// ObservePredictionError records a per-type prediction failure
func (e *Exporter) ObservePredictionError(violationType string) {
	e.predictionErrorsTotal.WithLabelValues(violationType).Inc()
}

// SetModelAccuracy exposes the deployed model's per-type accuracy
func (e *Exporter) SetModelAccuracy(violationType string, accuracy float64) {
	e.modelAccuracy.WithLabelValues(violationType).Set(accuracy)
}

// ObserveRetrain records a retraining run outcome ("deployed", "rejected", "failed")
func (e *Exporter) ObserveRetrain(outcome string) {
	e.modelRetrainsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAlert records an alert delivery attempt per channel
func (e *Exporter) ObserveAlert(channel string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	e.alertsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveAlertSuppressed records an alert dropped by the suppression window
func (e *Exporter) ObserveAlertSuppressed() {
	e.alertsSuppressedTotal.Inc()
}

// ObserveScalingExecution records an executed scaling decision
func (e *Exporter) ObserveScalingExecution(resource, action string, newCapacity int) {
	e.scalingExecutionsTotal.WithLabelValues(resource, action).Inc()
	e.resourceCapacity.WithLabelValues(resource).Set(float64(newCapacity))
}

// ObserveScalingRollback records a rolled back scaling action
func (e *Exporter) ObserveScalingRollback(resource string, newCapacity int) {
	e.scalingRollbacksTotal.WithLabelValues(resource).Inc()
	e.resourceCapacity.WithLabelValues(resource).Set(float64(newCapacity))
}

// ObserveThresholdRecommendation records a generated threshold recommendation
func (e *Exporter) ObserveThresholdRecommendation(metric string) {
	e.thresholdRecommendationsTotal.WithLabelValues(metric).Inc()
}

// ObserveABTestEvent records an A/B test lifecycle transition
func (e *Exporter) ObserveABTestEvent(status string) {
	e.abTestEventsTotal.WithLabelValues(status).Inc()
}

// rootHandler handles the root path
func (e *Exporter) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<html>
<head><title>SLA Sentinel</title></head>
<body>
<h1>SLA Sentinel</h1>
<p><a href="%s">Metrics</a></p>
<p><a href="%s">Health</a></p>
</body>
</html>`, e.config.MetricsPath, e.config.HealthPath)
}

// healthHandler handles health checks
func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
