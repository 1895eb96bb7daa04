// Package config loads and validates the YAML configuration for the SLA
// prediction engine. A single file configures storage, the prediction loop,
// classifier training, alert dispatch, auto-scaling bounds and experiment
// defaults. All fields have working defaults so the engine runs zero-config
// with an in-memory database.
package config

import "time"

// Prediction constants control the classifier-driven prediction loop.
const (
	// DefaultConfidenceThreshold below which predictions are dropped
	// entirely: not reported, not alerted, not acted on.
	DefaultConfidenceThreshold = 0.70

	// DefaultPredictionLookahead is how far ahead a prediction claims a
	// violation will occur.
	DefaultPredictionLookahead = 15 * time.Minute

	// DefaultLookbackWindow bounds the historical query behind feature
	// extraction.
	DefaultLookbackWindow = 30 * 24 * time.Hour

	// DefaultSampleWindow is the number of most recent samples used for
	// mean/stddev/trend computation.
	DefaultSampleWindow = 30

	// DefaultCapacityCeiling is the workflow count treated as 100% load
	// when computing the current_load feature.
	DefaultCapacityCeiling = 100

	// DefaultExtractionTimeout bounds the historical-data read behind a
	// single feature extraction.
	DefaultExtractionTimeout = 5 * time.Second

	// DefaultRecentViolationWindow is the window for the
	// recent_violation_count feature.
	DefaultRecentViolationWindow = 24 * time.Hour
)

// Classifier constants control model training and the deployment gate.
const (
	// DefaultAccuracyThreshold is the minimum cross-validated accuracy a
	// retrained model must reach before it replaces the deployed model.
	DefaultAccuracyThreshold = 0.85

	// DefaultCrossValidationFolds for retraining evaluation.
	DefaultCrossValidationFolds = 5

	// DefaultTreeCount is the ensemble size of the violation classifier.
	DefaultTreeCount = 25

	// DefaultMaxTreeDepth bounds individual trees to keep inference cheap
	// and artifacts small.
	DefaultMaxTreeDepth = 6

	// DefaultBootstrapSamples is the synthetic training-set size used when
	// no persisted model artifact exists on cold start.
	DefaultBootstrapSamples = 600
)

// Alerting constants control dispatch gating and rate limiting.
const (
	// DefaultAlertConfidenceThreshold filters predictions before dispatch.
	DefaultAlertConfidenceThreshold = 0.70

	// DefaultSuppressionWindow is the per-(workflow, violation type) rate
	// limit: at most one alert per window.
	DefaultSuppressionWindow = 30 * time.Minute

	// DefaultChannelTimeout bounds a single channel send. A timed-out send
	// counts as that channel's failure only.
	DefaultChannelTimeout = 10 * time.Second
)

// Scaling constants control the auto-scaling controller.
const (
	// DefaultScalingProbabilityThreshold is the prediction probability at
	// or above which scaling is considered.
	DefaultScalingProbabilityThreshold = 0.8

	// DefaultScaleFactor multiplies current capacity when scaling up.
	DefaultScaleFactor = 1.5

	// DefaultScalingCooldown is the minimum gap between scaling actions on
	// the same resource type.
	DefaultScalingCooldown = 10 * time.Minute

	// DefaultScalingHistoryLimit bounds the in-memory decision history.
	DefaultScalingHistoryLimit = 500
)

// Experiment constants supply A/B test defaults.
const (
	// DefaultSignificanceLevel (alpha) for experiment evaluation.
	DefaultSignificanceLevel = 0.05

	// DefaultStatisticalPower for sample-size planning.
	DefaultStatisticalPower = 0.8

	// DefaultTestDuration is the expected experiment runtime recorded at
	// start; tests may complete earlier once the sample target is met.
	DefaultTestDuration = 7 * 24 * time.Hour

	// DefaultMonitorInterval is how often running tests are checked for
	// completion.
	DefaultMonitorInterval = time.Minute
)

// Validation bounds.
const (
	MinScalingCooldown = 10 * time.Second
	MaxScalingCooldown = 24 * time.Hour
)
