package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/webforge/sla-sentinel/internal/types"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Prediction PredictionConfig `yaml:"prediction"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Scaling    ScalingConfig    `yaml:"scaling"`
	ABTesting  ABTestingConfig  `yaml:"ab_testing"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig contains the metrics/health HTTP endpoint settings
type ServerConfig struct {
	BindAddress string `yaml:"bind_address"`
	MetricsPath string `yaml:"metrics_path"`
	HealthPath  string `yaml:"health_path"`
	MaxRequests int    `yaml:"max_requests"` // per-second rate limit on the endpoint
}

// StorageConfig contains historical sample store settings
type StorageConfig struct {
	DatabasePath string          `yaml:"database_path"`
	Retention    RetentionConfig `yaml:"retention"`
	ModelDir     string          `yaml:"model_dir"`
}

// RetentionConfig defines data retention policies
type RetentionConfig struct {
	Samples time.Duration `yaml:"samples"`
	Audit   time.Duration `yaml:"audit"`
}

// PredictionConfig controls the prediction loop
type PredictionConfig struct {
	ConfidenceThreshold   float64       `yaml:"confidence_threshold"`
	Lookahead             time.Duration `yaml:"lookahead"`
	LookbackWindow        time.Duration `yaml:"lookback_window"`
	SampleWindow          int           `yaml:"sample_window"`
	CapacityCeiling       int           `yaml:"capacity_ceiling"`
	ExtractionTimeout     time.Duration `yaml:"extraction_timeout"`
	RecentViolationWindow time.Duration `yaml:"recent_violation_window"`

	// Thresholds maps each violation type to its SLA threshold value
	// (seconds for duration-based categories).
	Thresholds map[types.ViolationType]float64 `yaml:"thresholds"`
}

// ClassifierConfig controls model training and the deployment gate
type ClassifierConfig struct {
	AccuracyThreshold    float64 `yaml:"accuracy_threshold"`
	CrossValidationFolds int     `yaml:"cross_validation_folds"`
	TreeCount            int     `yaml:"tree_count"`
	MaxTreeDepth         int     `yaml:"max_tree_depth"`
	BootstrapSamples     int     `yaml:"bootstrap_samples"`
}

// AlertingConfig controls dispatch gating, rate limiting and channels
type AlertingConfig struct {
	ConfidenceThreshold float64         `yaml:"confidence_threshold"`
	SuppressionWindow   time.Duration   `yaml:"suppression_window"`
	ChannelTimeout      time.Duration   `yaml:"channel_timeout"`
	Email               EmailConfig     `yaml:"email"`
	Webhook             WebhookConfig   `yaml:"webhook"`
	Dashboard           DashboardConfig `yaml:"dashboard"`
}

// EmailConfig configures the email notification channel
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	SMTPAddr   string   `yaml:"smtp_addr"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// WebhookConfig configures the webhook notification channel
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DashboardConfig configures the dashboard event feed channel
type DashboardConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// ScalingConfig controls the auto-scaling controller
type ScalingConfig struct {
	Enabled              bool             `yaml:"enabled"`
	ProbabilityThreshold float64          `yaml:"probability_threshold"`
	ScaleFactor          float64          `yaml:"scale_factor"`
	Cooldown             time.Duration    `yaml:"cooldown"`
	HistoryLimit         int              `yaml:"history_limit"`
	ControlPlaneURL      string           `yaml:"control_plane_url,omitempty"`
	Resources            []ResourceConfig `yaml:"resources"`
	Overrides            []OverrideConfig `yaml:"overrides,omitempty"`
}

// ResourceConfig defines capacity bounds for one scalable resource type
type ResourceConfig struct {
	Resource        types.ResourceType `yaml:"resource"`
	MinCapacity     int                `yaml:"min_capacity"`
	MaxCapacity     int                `yaml:"max_capacity"`
	InitialCapacity int                `yaml:"initial_capacity"`
}

// OverrideConfig seeds a manual override at startup
type OverrideConfig struct {
	Resource types.ResourceType  `yaml:"resource"`
	Action   types.ScalingAction `yaml:"action"`
	Enabled  bool                `yaml:"enabled"`
}

// ABTestingConfig supplies experiment defaults
type ABTestingConfig struct {
	SignificanceLevel float64       `yaml:"significance_level"`
	StatisticalPower  float64       `yaml:"statistical_power"`
	TestDuration      time.Duration `yaml:"test_duration"`
	MonitorInterval   time.Duration `yaml:"monitor_interval"`
}

// OptimizerConfig controls threshold recommendation
type OptimizerConfig struct {
	LookbackWindow time.Duration `yaml:"lookback_window"`
	MinSamples     int           `yaml:"min_samples"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled        bool                    `yaml:"enabled"`
	ServiceName    string                  `yaml:"service_name"`
	ServiceVersion string                  `yaml:"service_version"`
	Environment    string                  `yaml:"environment"`
	Exporter       TelemetryExporterConfig `yaml:"exporter"`
	Sampling       TelemetrySamplingConfig `yaml:"sampling"`
}

// TelemetryExporterConfig configures telemetry exporters
type TelemetryExporterConfig struct {
	Type     string            `yaml:"type"` // "stdout", "otlp"
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// TelemetrySamplingConfig configures trace sampling
type TelemetrySamplingConfig struct {
	Rate float64 `yaml:"rate"` // 0.0 to 1.0
}

// LoadDefault returns a validated zero-config setup with an in-memory
// database, suitable for local runs and tests.
func LoadDefault() (*Config, error) {
	var config Config
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}
	return &config, nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "0.0.0.0:9092"
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.HealthPath == "" {
		cfg.Server.HealthPath = "/healthz"
	}
	if cfg.Server.MaxRequests == 0 {
		cfg.Server.MaxRequests = 100
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ":memory:"
	}
	if cfg.Storage.ModelDir == "" {
		cfg.Storage.ModelDir = "models"
	}
	if cfg.Storage.Retention.Samples == 0 {
		cfg.Storage.Retention.Samples = 90 * 24 * time.Hour
	}
	if cfg.Storage.Retention.Audit == 0 {
		cfg.Storage.Retention.Audit = 30 * 24 * time.Hour
	}

	if cfg.Prediction.ConfidenceThreshold == 0 {
		cfg.Prediction.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.Prediction.Lookahead == 0 {
		cfg.Prediction.Lookahead = DefaultPredictionLookahead
	}
	if cfg.Prediction.LookbackWindow == 0 {
		cfg.Prediction.LookbackWindow = DefaultLookbackWindow
	}
	if cfg.Prediction.SampleWindow == 0 {
		cfg.Prediction.SampleWindow = DefaultSampleWindow
	}
	if cfg.Prediction.CapacityCeiling == 0 {
		cfg.Prediction.CapacityCeiling = DefaultCapacityCeiling
	}
	if cfg.Prediction.ExtractionTimeout == 0 {
		cfg.Prediction.ExtractionTimeout = DefaultExtractionTimeout
	}
	if cfg.Prediction.RecentViolationWindow == 0 {
		cfg.Prediction.RecentViolationWindow = DefaultRecentViolationWindow
	}
	if cfg.Prediction.Thresholds == nil {
		cfg.Prediction.Thresholds = defaultThresholds()
	} else {
		for vt, threshold := range defaultThresholds() {
			if _, ok := cfg.Prediction.Thresholds[vt]; !ok {
				cfg.Prediction.Thresholds[vt] = threshold
			}
		}
	}

	if cfg.Classifier.AccuracyThreshold == 0 {
		cfg.Classifier.AccuracyThreshold = DefaultAccuracyThreshold
	}
	if cfg.Classifier.CrossValidationFolds == 0 {
		cfg.Classifier.CrossValidationFolds = DefaultCrossValidationFolds
	}
	if cfg.Classifier.TreeCount == 0 {
		cfg.Classifier.TreeCount = DefaultTreeCount
	}
	if cfg.Classifier.MaxTreeDepth == 0 {
		cfg.Classifier.MaxTreeDepth = DefaultMaxTreeDepth
	}
	if cfg.Classifier.BootstrapSamples == 0 {
		cfg.Classifier.BootstrapSamples = DefaultBootstrapSamples
	}

	if cfg.Alerting.ConfidenceThreshold == 0 {
		cfg.Alerting.ConfidenceThreshold = DefaultAlertConfidenceThreshold
	}
	if cfg.Alerting.SuppressionWindow == 0 {
		cfg.Alerting.SuppressionWindow = DefaultSuppressionWindow
	}
	if cfg.Alerting.ChannelTimeout == 0 {
		cfg.Alerting.ChannelTimeout = DefaultChannelTimeout
	}
	if cfg.Alerting.Dashboard.BufferSize == 0 {
		cfg.Alerting.Dashboard.BufferSize = 256
	}

	if cfg.Scaling.ProbabilityThreshold == 0 {
		cfg.Scaling.ProbabilityThreshold = DefaultScalingProbabilityThreshold
	}
	if cfg.Scaling.ScaleFactor == 0 {
		cfg.Scaling.ScaleFactor = DefaultScaleFactor
	}
	if cfg.Scaling.Cooldown == 0 {
		cfg.Scaling.Cooldown = DefaultScalingCooldown
	}
	if cfg.Scaling.HistoryLimit == 0 {
		cfg.Scaling.HistoryLimit = DefaultScalingHistoryLimit
	}
	if len(cfg.Scaling.Resources) == 0 {
		cfg.Scaling.Resources = defaultResources()
	}

	if cfg.ABTesting.SignificanceLevel == 0 {
		cfg.ABTesting.SignificanceLevel = DefaultSignificanceLevel
	}
	if cfg.ABTesting.StatisticalPower == 0 {
		cfg.ABTesting.StatisticalPower = DefaultStatisticalPower
	}
	if cfg.ABTesting.TestDuration == 0 {
		cfg.ABTesting.TestDuration = DefaultTestDuration
	}
	if cfg.ABTesting.MonitorInterval == 0 {
		cfg.ABTesting.MonitorInterval = DefaultMonitorInterval
	}

	if cfg.Optimizer.LookbackWindow == 0 {
		cfg.Optimizer.LookbackWindow = DefaultLookbackWindow
	}
	if cfg.Optimizer.MinSamples == 0 {
		cfg.Optimizer.MinSamples = 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stdout"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sla-sentinel"
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "dev"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "development"
	}
	if cfg.Telemetry.Exporter.Type == "" {
		cfg.Telemetry.Exporter.Type = "stdout"
	}
	if cfg.Telemetry.Sampling.Rate == 0 {
		cfg.Telemetry.Sampling.Rate = 0.1
	}
}

// defaultThresholds returns the built-in SLA thresholds in seconds.
func defaultThresholds() map[types.ViolationType]float64 {
	return map[types.ViolationType]float64{
		types.ViolationPRReviewTime:  4 * 3600,
		types.ViolationBuildTime:     600,
		types.ViolationTestExecution: 900,
		types.ViolationDeployTime:    1200,
		types.ViolationAgentResponse: 30,
		types.ViolationTaskComplete:  8 * 3600,
	}
}

// defaultResources returns the built-in capacity ranges per resource type.
func defaultResources() []ResourceConfig {
	return []ResourceConfig{
		{Resource: types.ResourceBuildAgents, MinCapacity: 1, MaxCapacity: 20, InitialCapacity: 3},
		{Resource: types.ResourceAPIInstances, MinCapacity: 2, MaxCapacity: 16, InitialCapacity: 4},
		{Resource: types.ResourceDBConnections, MinCapacity: 10, MaxCapacity: 200, InitialCapacity: 50},
		{Resource: types.ResourceWorkerNodes, MinCapacity: 1, MaxCapacity: 12, InitialCapacity: 2},
	}
}

// WriteExample writes a fully-populated example configuration to path.
func WriteExample(path string) error {
	cfg, err := LoadDefault()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ValidationError represents a structured validation error
type ValidationError struct {
	Field   string      // Configuration field path (e.g., "scaling.resources[0].min_capacity")
	Value   interface{} // Invalid value
	Message string      // Human-readable error message
}

// ValidationResult contains the results of configuration validation
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Error implements the error interface for ValidationResult
func (vr *ValidationResult) Error() string {
	if len(vr.Errors) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(vr.Errors)))
	for i, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s (got %v)\n", i+1, err.Field, err.Message, err.Value))
	}
	return sb.String()
}

func validate(cfg *Config) error {
	result := validateConfiguration(cfg)
	if !result.Valid {
		return result
	}
	return nil
}

// validateConfiguration performs full validation and returns detailed results
func validateConfiguration(cfg *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	validatePredictionConfig(&cfg.Prediction, result)
	validateClassifierConfig(&cfg.Classifier, result)
	validateAlertingConfig(&cfg.Alerting, result)
	validateScalingConfig(&cfg.Scaling, result)
	validateABTestingConfig(&cfg.ABTesting, result)
	validateLoggingConfig(&cfg.Logging, result)
	validateTelemetryConfig(&cfg.Telemetry, result)

	result.Valid = len(result.Errors) == 0
	return result
}

func validatePredictionConfig(cfg *PredictionConfig, result *ValidationResult) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "prediction.confidence_threshold", Value: cfg.ConfidenceThreshold,
			Message: "must be within [0,1]",
		})
	}
	if cfg.Lookahead <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "prediction.lookahead", Value: cfg.Lookahead,
			Message: "must be positive",
		})
	}
	if cfg.SampleWindow < 2 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "prediction.sample_window", Value: cfg.SampleWindow,
			Message: "must be at least 2",
		})
	}
	if cfg.CapacityCeiling < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "prediction.capacity_ceiling", Value: cfg.CapacityCeiling,
			Message: "must be at least 1",
		})
	}
	for vt, threshold := range cfg.Thresholds {
		if !vt.Valid() {
			result.Errors = append(result.Errors, ValidationError{
				Field: "prediction.thresholds", Value: string(vt),
				Message: "unknown violation type",
			})
		}
		if threshold <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field: fmt.Sprintf("prediction.thresholds[%s]", vt), Value: threshold,
				Message: "must be positive",
			})
		}
	}
}

func validateClassifierConfig(cfg *ClassifierConfig, result *ValidationResult) {
	if cfg.AccuracyThreshold < 0.5 || cfg.AccuracyThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "classifier.accuracy_threshold", Value: cfg.AccuracyThreshold,
			Message: "must be within [0.5,1]",
		})
	}
	if cfg.CrossValidationFolds < 2 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "classifier.cross_validation_folds", Value: cfg.CrossValidationFolds,
			Message: "must be at least 2",
		})
	}
	if cfg.TreeCount < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "classifier.tree_count", Value: cfg.TreeCount,
			Message: "must be at least 1",
		})
	}
	if cfg.MaxTreeDepth < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "classifier.max_tree_depth", Value: cfg.MaxTreeDepth,
			Message: "must be at least 1",
		})
	}
}

func validateAlertingConfig(cfg *AlertingConfig, result *ValidationResult) {
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "alerting.confidence_threshold", Value: cfg.ConfidenceThreshold,
			Message: "must be within [0,1]",
		})
	}
	if cfg.SuppressionWindow <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "alerting.suppression_window", Value: cfg.SuppressionWindow,
			Message: "must be positive",
		})
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field: "alerting.webhook.url", Value: cfg.Webhook.URL,
			Message: "required when the webhook channel is enabled",
		})
	}
	if cfg.Email.Enabled {
		if cfg.Email.SMTPAddr == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field: "alerting.email.smtp_addr", Value: cfg.Email.SMTPAddr,
				Message: "required when the email channel is enabled",
			})
		}
		if len(cfg.Email.Recipients) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field: "alerting.email.recipients", Value: cfg.Email.Recipients,
				Message: "at least one recipient is required",
			})
		}
	}
}

func validateScalingConfig(cfg *ScalingConfig, result *ValidationResult) {
	if cfg.ProbabilityThreshold < 0 || cfg.ProbabilityThreshold > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "scaling.probability_threshold", Value: cfg.ProbabilityThreshold,
			Message: "must be within [0,1]",
		})
	}
	if cfg.ScaleFactor <= 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "scaling.scale_factor", Value: cfg.ScaleFactor,
			Message: "must be greater than 1",
		})
	}
	if cfg.Cooldown < MinScalingCooldown || cfg.Cooldown > MaxScalingCooldown {
		result.Errors = append(result.Errors, ValidationError{
			Field: "scaling.cooldown", Value: cfg.Cooldown,
			Message: fmt.Sprintf("must be within [%s,%s]", MinScalingCooldown, MaxScalingCooldown),
		})
	}

	seen := map[types.ResourceType]bool{}
	for i, rc := range cfg.Resources {
		prefix := fmt.Sprintf("scaling.resources[%d]", i)
		if seen[rc.Resource] {
			result.Errors = append(result.Errors, ValidationError{
				Field: prefix + ".resource", Value: string(rc.Resource),
				Message: "duplicate resource entry",
			})
		}
		seen[rc.Resource] = true

		if rc.MinCapacity < 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field: prefix + ".min_capacity", Value: rc.MinCapacity,
				Message: "must not be negative",
			})
		}
		if rc.MaxCapacity < rc.MinCapacity {
			result.Errors = append(result.Errors, ValidationError{
				Field: prefix + ".max_capacity", Value: rc.MaxCapacity,
				Message: "must be at least min_capacity",
			})
		}
		if rc.InitialCapacity < rc.MinCapacity || rc.InitialCapacity > rc.MaxCapacity {
			result.Errors = append(result.Errors, ValidationError{
				Field: prefix + ".initial_capacity", Value: rc.InitialCapacity,
				Message: "must be within [min_capacity,max_capacity]",
			})
		}
	}
}

func validateABTestingConfig(cfg *ABTestingConfig, result *ValidationResult) {
	if cfg.SignificanceLevel <= 0 || cfg.SignificanceLevel >= 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "ab_testing.significance_level", Value: cfg.SignificanceLevel,
			Message: "must be within (0,1)",
		})
	}
	if cfg.StatisticalPower <= 0 || cfg.StatisticalPower >= 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "ab_testing.statistical_power", Value: cfg.StatisticalPower,
			Message: "must be within (0,1)",
		})
	}
	if cfg.MonitorInterval <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "ab_testing.monitor_interval", Value: cfg.MonitorInterval,
			Message: "must be positive",
		})
	}
}

func validateLoggingConfig(cfg *LoggingConfig, result *ValidationResult) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field: "logging.level", Value: cfg.Level,
			Message: "must be one of debug, info, warn, error",
		})
	}
	switch cfg.Format {
	case "json", "console":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field: "logging.format", Value: cfg.Format,
			Message: "must be json or console",
		})
	}
}

func validateTelemetryConfig(cfg *TelemetryConfig, result *ValidationResult) {
	if !cfg.Enabled {
		return
	}
	switch cfg.Exporter.Type {
	case "stdout", "otlp":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field: "telemetry.exporter.type", Value: cfg.Exporter.Type,
			Message: "must be stdout or otlp",
		})
	}
	if cfg.Exporter.Type == "otlp" && cfg.Exporter.Endpoint == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field: "telemetry.exporter.endpoint", Value: cfg.Exporter.Endpoint,
			Message: "required for the otlp exporter",
		})
	}
	if cfg.Sampling.Rate < 0 || cfg.Sampling.Rate > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field: "telemetry.sampling.rate", Value: cfg.Sampling.Rate,
			Message: "must be within [0,1]",
		})
	}
}
