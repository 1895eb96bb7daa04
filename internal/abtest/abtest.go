// Package abtest manages the lifecycle of threshold experiments: sample
// size planning, event accumulation, significance evaluation, stopping
// rules and winner declaration.
package abtest

import (
	"errors"
	"time"

	"github.com/webforge/sla-sentinel/internal/types"
)

// TestStatus is the lifecycle state of an experiment.
type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
	StatusStopped   TestStatus = "stopped"
	StatusFailed    TestStatus = "failed"
)

// EventType classifies a recorded experiment event.
type EventType string

const (
	EventView       EventType = "view"
	EventConversion EventType = "conversion"
	EventBounce     EventType = "bounce"
)

// Sentinel errors for expected failure modes; callers match with errors.Is.
var (
	ErrTestNotFound      = errors.New("ab test not found")
	ErrInvalidTransition = errors.New("invalid test state transition")
	ErrUnknownVariant    = errors.New("unknown variant")
	ErrInvalidConfig     = errors.New("invalid test configuration")
)

// VariantConfig describes one experiment arm.
type VariantConfig struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Value             float64 `json:"value"`
	TrafficAllocation float64 `json:"traffic_allocation"`
	IsControl         bool    `json:"is_control"`
}

// TestConfig is the immutable definition of an experiment.
type TestConfig struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	ServiceType  types.ViolationType `json:"service_type"`
	BaselineRate float64             `json:"baseline_rate"`
	MinEffect    float64             `json:"min_effect"`
	Variants     []VariantConfig     `json:"variants"`

	// Zero values fall back to the orchestrator's configured defaults.
	SignificanceLevel float64       `json:"significance_level,omitempty"`
	StatisticalPower  float64       `json:"statistical_power,omitempty"`
	Duration          time.Duration `json:"duration,omitempty"`
}

// VariantResult is the evaluated outcome of one arm. Non-control arms carry
// the pairwise significance test against control.
type VariantResult struct {
	VariantID          string     `json:"variant_id"`
	IsControl          bool       `json:"is_control"`
	Views              int64      `json:"views"`
	Conversions        int64      `json:"conversions"`
	Bounces            int64      `json:"bounces"`
	ConversionRate     float64    `json:"conversion_rate"`
	ZScore             float64    `json:"z_score,omitempty"`
	PValue             float64    `json:"p_value,omitempty"`
	Significant        bool       `json:"significant"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	IsWinner           bool       `json:"is_winner"`
}

// TestResults is the evaluated state of an experiment. Frozen once the test
// reaches a terminal status.
type TestResults struct {
	TestID     string          `json:"test_id"`
	Status     TestStatus      `json:"status"`
	TotalViews int64           `json:"total_views"`
	Variants   []VariantResult `json:"variants"`
	WinnerID   string          `json:"winner_id,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
	StopReason string          `json:"stop_reason,omitempty"`
}

// TestInfo is the externally visible snapshot of an experiment's lifecycle.
type TestInfo struct {
	TestID             string     `json:"test_id"`
	Config             TestConfig `json:"config"`
	Status             TestStatus `json:"status"`
	RequiredSampleSize int        `json:"required_sample_size"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}
