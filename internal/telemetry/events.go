package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventType represents the type of operational event
type EventType string

const (
	EventTypePrediction     EventType = "prediction"
	EventTypeModelLifecycle EventType = "model_lifecycle"
	EventTypeScaling        EventType = "scaling"
	EventTypeThreshold      EventType = "threshold"
	EventTypeABTest         EventType = "ab_test"
	EventTypeAlertDelivery  EventType = "alert_delivery"
)

// Event represents a structured operational event
type Event struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	Workflow      string                 `json:"workflow,omitempty"`
	Summary       string                 `json:"summary"`
	Details       map[string]interface{} `json:"details"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Severity      EventSeverity          `json:"severity"`
}

// EventSeverity represents the severity level of an event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// PredictionEventDetails represents details for prediction events
type PredictionEventDetails struct {
	ViolationType string  `json:"violation_type"`
	Probability   float64 `json:"probability"`
	Confidence    float64 `json:"confidence"`
	ModelVersion  string  `json:"model_version,omitempty"`
	Actions       int     `json:"actions,omitempty"`
}

// ModelLifecycleEventDetails represents details for model training events
type ModelLifecycleEventDetails struct {
	Action       string  `json:"action"` // "retrained", "deployed", "rejected", "bootstrapped"
	ModelVersion string  `json:"model_version,omitempty"`
	Accuracy     float64 `json:"accuracy,omitempty"`
	SampleCount  int     `json:"sample_count,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// ScalingEventDetails represents details for scaling events
type ScalingEventDetails struct {
	Action           string  `json:"action"` // "scale_up", "scale_down", "rollback"
	ResourceType     string  `json:"resource_type"`
	PreviousCapacity int     `json:"previous_capacity"`
	NewCapacity      int     `json:"new_capacity"`
	Probability      float64 `json:"probability,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// ThresholdEventDetails represents details for threshold recommendation events
type ThresholdEventDetails struct {
	MetricName       string  `json:"metric_name"`
	CurrentThreshold float64 `json:"current_threshold"`
	Recommended      float64 `json:"recommended"`
	Objective        string  `json:"objective"`
	Confidence       float64 `json:"confidence"`
	Risk             string  `json:"risk,omitempty"`
}

// ABTestEventDetails represents details for A/B test lifecycle events
type ABTestEventDetails struct {
	Action     string `json:"action"` // "created", "started", "completed", "stopped", "failed"
	TestID     string `json:"test_id"`
	TestName   string `json:"test_name,omitempty"`
	Winner     string `json:"winner,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	TotalViews int64  `json:"total_views,omitempty"`
}

// AlertDeliveryEventDetails represents details for alert delivery events
type AlertDeliveryEventDetails struct {
	ViolationType string   `json:"violation_type"`
	Channels      []string `json:"channels"`
	Delivered     int      `json:"delivered"`
	Failed        int      `json:"failed"`
	Suppressed    bool     `json:"suppressed,omitempty"`
}

// EventEmitter handles structured event emission with telemetry integration
type EventEmitter struct {
	service *Service
	logger  *zap.Logger
	storage EventStorage
}

// EventStorage interface for persisting events
type EventStorage interface {
	StoreEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// EventFilter represents filters for querying events
type EventFilter struct {
	StartTime time.Time
	EndTime   time.Time
	Workflow  string
	Type      EventType
	Severity  EventSeverity
	Limit     int
}

// NewEventEmitter creates a new event emitter
func NewEventEmitter(service *Service, logger *zap.Logger, storage EventStorage) *EventEmitter {
	return &EventEmitter{
		service: service,
		logger:  logger,
		storage: storage,
	}
}

// EmitPredictionEvent emits a violation prediction event
func (e *EventEmitter) EmitPredictionEvent(ctx context.Context, workflow string, details PredictionEventDetails) error {
	severity := SeverityInfo
	if details.Probability >= 0.8 {
		severity = SeverityWarning
	}

	event := Event{
		ID:        generateEventID(),
		Type:      EventTypePrediction,
		Timestamp: time.Now(),
		Workflow:  workflow,
		Summary:   formatPredictionSummary(details),
		Details:   structToMap(details),
		Severity:  severity,
	}

	return e.emitEvent(ctx, event)
}

// EmitModelLifecycleEvent emits a model training lifecycle event
func (e *EventEmitter) EmitModelLifecycleEvent(ctx context.Context, details ModelLifecycleEventDetails) error {
	severity := SeverityInfo
	if details.Action == "rejected" {
		severity = SeverityWarning
	}

	event := Event{
		ID:        generateEventID(),
		Type:      EventTypeModelLifecycle,
		Timestamp: time.Now(),
		Summary:   formatModelSummary(details),
		Details:   structToMap(details),
		Severity:  severity,
	}

	return e.emitEvent(ctx, event)
}

// EmitScalingEvent emits a resource scaling event
func (e *EventEmitter) EmitScalingEvent(ctx context.Context, workflow string, details ScalingEventDetails) error {
	event := Event{
		ID:        generateEventID(),
		Type:      EventTypeScaling,
		Timestamp: time.Now(),
		Workflow:  workflow,
		Summary:   formatScalingSummary(details),
		Details:   structToMap(details),
		Severity:  SeverityInfo,
	}

	return e.emitEvent(ctx, event)
}

// EmitThresholdEvent emits a threshold recommendation event
func (e *EventEmitter) EmitThresholdEvent(ctx context.Context, details ThresholdEventDetails) error {
	severity := SeverityInfo
	if details.Risk == "high" {
		severity = SeverityWarning
	}

	event := Event{
		ID:        generateEventID(),
		Type:      EventTypeThreshold,
		Timestamp: time.Now(),
		Summary:   formatThresholdSummary(details),
		Details:   structToMap(details),
		Severity:  severity,
	}

	return e.emitEvent(ctx, event)
}

// EmitABTestEvent emits an A/B test lifecycle event
func (e *EventEmitter) EmitABTestEvent(ctx context.Context, details ABTestEventDetails) error {
	severity := SeverityInfo
	if details.Action == "failed" {
		severity = SeverityError
	}

	event := Event{
		ID:        generateEventID(),
		Type:      EventTypeABTest,
		Timestamp: time.Now(),
		Summary:   formatABTestSummary(details),
		Details:   structToMap(details),
		Severity:  severity,
	}

	return e.emitEvent(ctx, event)
}

// EmitAlertDeliveryEvent emits an alert delivery event
func (e *EventEmitter) EmitAlertDeliveryEvent(ctx context.Context, workflow string, details AlertDeliveryEventDetails) error {
	severity := SeverityInfo
	if details.Failed > 0 {
		severity = SeverityWarning
	}

	event := Event{
		ID:        generateEventID(),
		Type:      EventTypeAlertDelivery,
		Timestamp: time.Now(),
		Workflow:  workflow,
		Summary:   formatAlertDeliverySummary(details),
		Details:   structToMap(details),
		Severity:  severity,
	}

	return e.emitEvent(ctx, event)
}

// emitEvent handles the actual event emission with telemetry and storage
func (e *EventEmitter) emitEvent(ctx context.Context, event Event) error {
	// Add correlation ID from context if available
	if span := oteltrace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		event.CorrelationID = span.SpanContext().TraceID().String()
	}

	if e.service.IsEnabled() {
		_, span := e.service.Tracer().Start(ctx, "event.emit",
			oteltrace.WithAttributes(
				attribute.String("event.type", string(event.Type)),
				attribute.String("event.workflow", event.Workflow),
				attribute.String("event.severity", string(event.Severity)),
				attribute.String("event.summary", event.Summary),
			),
		)
		defer span.End()
	}

	if e.storage != nil {
		if err := e.storage.StoreEvent(ctx, event); err != nil {
			e.logger.Error("Failed to store event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			return err
		}
	}

	e.logger.Info("Event emitted",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("workflow", event.Workflow),
		zap.String("summary", event.Summary),
		zap.String("severity", string(event.Severity)))

	return nil
}

// GetEvents retrieves events from storage
func (e *EventEmitter) GetEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	if e.storage == nil {
		return nil, fmt.Errorf("event storage not configured")
	}

	return e.storage.GetEvents(ctx, filter)
}

// Helper functions for formatting event summaries
func formatPredictionSummary(details PredictionEventDetails) string {
	return fmt.Sprintf("Predicted %s violation (probability %.2f, confidence %.2f)",
		details.ViolationType, details.Probability, details.Confidence)
}

func formatModelSummary(details ModelLifecycleEventDetails) string {
	switch details.Action {
	case "deployed":
		return fmt.Sprintf("Model %s deployed (accuracy %.3f)", details.ModelVersion, details.Accuracy)
	case "rejected":
		return fmt.Sprintf("Model candidate rejected: %s", details.Reason)
	case "bootstrapped":
		return fmt.Sprintf("Model bootstrapped from %d synthetic samples", details.SampleCount)
	default:
		return fmt.Sprintf("Model %s", details.Action)
	}
}

func formatScalingSummary(details ScalingEventDetails) string {
	return fmt.Sprintf("Resource %s scaled %s from %d to %d (%s)",
		details.ResourceType, details.Action, details.PreviousCapacity, details.NewCapacity, details.Reason)
}

func formatThresholdSummary(details ThresholdEventDetails) string {
	return fmt.Sprintf("Threshold for %s: %.2f recommended (current %.2f, objective %s)",
		details.MetricName, details.Recommended, details.CurrentThreshold, details.Objective)
}

func formatABTestSummary(details ABTestEventDetails) string {
	switch details.Action {
	case "completed":
		if details.Winner != "" {
			return fmt.Sprintf("A/B test %s completed, winner %s", details.TestID, details.Winner)
		}
		return fmt.Sprintf("A/B test %s completed without a winner", details.TestID)
	case "stopped":
		return fmt.Sprintf("A/B test %s stopped: %s", details.TestID, details.StopReason)
	default:
		return fmt.Sprintf("A/B test %s %s", details.TestID, details.Action)
	}
}

func formatAlertDeliverySummary(details AlertDeliveryEventDetails) string {
	if details.Suppressed {
		return fmt.Sprintf("Alert for %s suppressed", details.ViolationType)
	}
	return fmt.Sprintf("Alert for %s delivered on %d of %d channels",
		details.ViolationType, details.Delivered, details.Delivered+details.Failed)
}

// Utility functions
func generateEventID() string {
	// Generate 8 random bytes for a 16-character hex string
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("evt_%s", hex.EncodeToString(bytes))
}

func structToMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return make(map[string]interface{})
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return make(map[string]interface{})
	}

	return result
}
