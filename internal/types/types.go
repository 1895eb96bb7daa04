// Package types defines the shared domain model for the SLA prediction
// engine: tracked violation categories, prediction and scaling records, and
// the interfaces of external collaborators (sample storage, notification
// transports, infrastructure control plane).
package types

import (
	"fmt"
	"time"
)

// ViolationType identifies a tracked SLA category.
type ViolationType string

const (
	ViolationPRReviewTime  ViolationType = "pr_review_time"
	ViolationBuildTime     ViolationType = "build_time"
	ViolationTestExecution ViolationType = "test_execution"
	ViolationDeployTime    ViolationType = "deployment_time"
	ViolationAgentResponse ViolationType = "agent_response"
	ViolationTaskComplete  ViolationType = "task_completion"
)

// AllViolationTypes returns every tracked violation type in a stable order.
func AllViolationTypes() []ViolationType {
	return []ViolationType{
		ViolationPRReviewTime,
		ViolationBuildTime,
		ViolationTestExecution,
		ViolationDeployTime,
		ViolationAgentResponse,
		ViolationTaskComplete,
	}
}

// Valid reports whether vt is one of the tracked violation types.
func (vt ViolationType) Valid() bool {
	switch vt {
	case ViolationPRReviewTime, ViolationBuildTime, ViolationTestExecution,
		ViolationDeployTime, ViolationAgentResponse, ViolationTaskComplete:
		return true
	}
	return false
}

// ResourceType identifies a scalable infrastructure resource.
type ResourceType string

const (
	ResourceBuildAgents   ResourceType = "build_agents"
	ResourceAPIInstances  ResourceType = "api_instances"
	ResourceDBConnections ResourceType = "db_connections"
	ResourceWorkerNodes   ResourceType = "worker_nodes"
)

// ScalingAction is the direction of a scaling decision.
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionNone      ScalingAction = "no_action"
)

// Inverse returns the opposite scaling direction, used when synthesizing a
// rollback decision.
func (a ScalingAction) Inverse() ScalingAction {
	switch a {
	case ActionScaleUp:
		return ActionScaleDown
	case ActionScaleDown:
		return ActionScaleUp
	}
	return ActionNone
}

// OptimizationObjective steers threshold recommendation strategy.
type OptimizationObjective string

const (
	ObjectiveMinimizeViolations  OptimizationObjective = "minimize_violations"
	ObjectiveMaximizeReliability OptimizationObjective = "maximize_reliability"
	ObjectiveBalanceBoth         OptimizationObjective = "balance_both"
	ObjectiveMinimizeTeamStress  OptimizationObjective = "minimize_team_stress"
)

// RiskLevel classifies the implementation risk of a recommendation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AlertChannel identifies a notification transport.
type AlertChannel string

const (
	ChannelEmail     AlertChannel = "email"
	ChannelWebhook   AlertChannel = "webhook"
	ChannelDashboard AlertChannel = "dashboard"
)

// PerformanceSample is one historical observation for a (workflow,
// violation type) pair, as returned by the sample store.
type PerformanceSample struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Context   map[string]string `json:"context,omitempty"`
}

// SystemState is a point-in-time snapshot of operational load, consumed by
// feature extraction.
type SystemState struct {
	ActiveWorkflows   int     `json:"active_workflows"`
	CPUUsage          float64 `json:"cpu_usage"`
	MemoryUsage       float64 `json:"memory_usage"`
	DBConnectionUsage float64 `json:"db_connection_usage"`
}

// FeatureVector is the fixed-length numeric input to the violation
// classifier. It is built per prediction call and never mutated.
type FeatureVector struct {
	CurrentLoad           float64 `json:"current_load"`
	HourOfDay             float64 `json:"hour_of_day"`
	DayOfWeek             float64 `json:"day_of_week"`
	RecentViolationCount  float64 `json:"recent_violation_count"`
	HistoricalMean        float64 `json:"historical_mean"`
	HistoricalStdDev      float64 `json:"historical_stddev"`
	HistoricalTrendSlope  float64 `json:"historical_trend_slope"`
	CPUUsage              float64 `json:"cpu_usage"`
	MemoryUsage           float64 `json:"memory_usage"`
	DBConnectionUsage     float64 `json:"db_connection_usage"`
	ViolationTypeEncoding float64 `json:"violation_type_encoding"`
}

// FeatureCount is the dimensionality of a FeatureVector.
const FeatureCount = 11

// Values returns the vector in its canonical column order.
func (fv FeatureVector) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{
		fv.CurrentLoad,
		fv.HourOfDay,
		fv.DayOfWeek,
		fv.RecentViolationCount,
		fv.HistoricalMean,
		fv.HistoricalStdDev,
		fv.HistoricalTrendSlope,
		fv.CPUUsage,
		fv.MemoryUsage,
		fv.DBConnectionUsage,
		fv.ViolationTypeEncoding,
	}
}

// Validate checks the range invariants of the bounded features.
func (fv FeatureVector) Validate() error {
	if fv.CurrentLoad < 0 || fv.CurrentLoad > 1 {
		return fmt.Errorf("current_load %f outside [0,1]", fv.CurrentLoad)
	}
	if fv.HourOfDay < 0 || fv.HourOfDay > 23 {
		return fmt.Errorf("hour_of_day %f outside [0,23]", fv.HourOfDay)
	}
	if fv.DayOfWeek < 0 || fv.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week %f outside [0,6]", fv.DayOfWeek)
	}
	if fv.RecentViolationCount < 0 {
		return fmt.Errorf("recent_violation_count %f negative", fv.RecentViolationCount)
	}
	for name, v := range map[string]float64{
		"cpu_usage":           fv.CPUUsage,
		"memory_usage":        fv.MemoryUsage,
		"db_connection_usage": fv.DBConnectionUsage,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %f outside [0,1]", name, v)
		}
	}
	return nil
}

// ActionRecommendation is a human-facing mitigation suggestion attached to a
// prediction. Generated deterministically from the prediction context.
type ActionRecommendation struct {
	ActionID        string  `json:"action_id"`
	Description     string  `json:"description"`
	Confidence      float64 `json:"confidence"`
	EstimatedImpact string  `json:"estimated_impact"`
}

// SLAPrediction is the output of one classifier pass for one violation type.
// Instances are created fresh per prediction request and never mutated.
type SLAPrediction struct {
	ViolationType      ViolationType          `json:"violation_type"`
	Probability        float64                `json:"probability"`
	ConfidenceScore    float64                `json:"confidence_score"`
	PredictedTime      time.Time              `json:"predicted_time"`
	RecommendedActions []ActionRecommendation `json:"recommended_actions"`
	HistoricalAccuracy float64                `json:"historical_accuracy"`
}

// ScalingDecision records one bounded capacity change for a resource.
type ScalingDecision struct {
	ResourceType    ResourceType  `json:"resource_type"`
	Action          ScalingAction `json:"action"`
	CurrentCapacity int           `json:"current_capacity"`
	TargetCapacity  int           `json:"target_capacity"`
	Justification   string        `json:"justification"`
	Confidence      float64       `json:"confidence"`
	ExecutionTime   time.Time     `json:"execution_time"`
	RollbackTime    *time.Time    `json:"rollback_time,omitempty"`
	IdempotencyKey  string        `json:"idempotency_key"`
}

// PredictedOutcomes summarizes the expected effect of adopting a recommended
// threshold.
type PredictedOutcomes struct {
	ExpectedViolationRate float64 `json:"expected_violation_rate"`
	ReliabilityDelta      float64 `json:"reliability_delta"`
	TeamStressDelta       float64 `json:"team_stress_delta"`
	CostDelta             float64 `json:"cost_delta"`
	SatisfactionDelta     float64 `json:"satisfaction_delta"`
}

// OptimizationRationale is the structured justification attached to a
// threshold recommendation.
type OptimizationRationale struct {
	StatisticalBasis      string `json:"statistical_basis"`
	ReliabilityImpact     string `json:"reliability_impact"`
	Achievability         string `json:"achievability"`
	BusinessJustification string `json:"business_justification"`
}

// ThresholdRecommendation is the advisory output of the threshold optimizer.
// Immutable once emitted; committing the change is external.
type ThresholdRecommendation struct {
	ServiceType          ViolationType         `json:"service_type"`
	CurrentThreshold     float64               `json:"current_threshold"`
	RecommendedThreshold float64               `json:"recommended_threshold"`
	Rationale            OptimizationRationale `json:"rationale"`
	PredictedOutcomes    PredictedOutcomes     `json:"predicted_outcomes"`
	ConfidenceScore      float64               `json:"confidence_score"`
	ImplementationRisk   RiskLevel             `json:"implementation_risk"`
	RollbackCriteria     []string              `json:"rollback_criteria"`
	Timestamp            time.Time             `json:"timestamp"`
	ModelVersion         string                `json:"model_version"`
}
