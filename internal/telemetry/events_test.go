package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/webforge/sla-sentinel/internal/config"
)

// MockEventStorage implements EventStorage for testing
type MockEventStorage struct {
	storedEvents []Event
	storeError   error
	getError     error
}

func (m *MockEventStorage) StoreEvent(ctx context.Context, event Event) error {
	if m.storeError != nil {
		return m.storeError
	}
	m.storedEvents = append(m.storedEvents, event)
	return nil
}

func (m *MockEventStorage) GetEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	if m.getError != nil {
		return nil, m.getError
	}

	var filtered []Event
	for _, event := range m.storedEvents {
		if filter.Workflow != "" && event.Workflow != filter.Workflow {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered, nil
}

func newTestEmitter(t *testing.T, storage EventStorage) *EventEmitter {
	logger := zaptest.NewLogger(t)
	service, err := NewService(config.TelemetryConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return NewEventEmitter(service, logger, storage)
}

func TestEmitPredictionEvent(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)

	details := PredictionEventDetails{
		ViolationType: "build_time",
		Probability:   0.72,
		Confidence:    0.72,
		ModelVersion:  "20260101T000000.0001",
	}

	if err := emitter.EmitPredictionEvent(context.Background(), "deploy-pipeline", details); err != nil {
		t.Fatalf("EmitPredictionEvent failed: %v", err)
	}

	if len(storage.storedEvents) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(storage.storedEvents))
	}

	event := storage.storedEvents[0]
	if event.Type != EventTypePrediction {
		t.Errorf("expected event type %s, got %s", EventTypePrediction, event.Type)
	}
	if event.Workflow != "deploy-pipeline" {
		t.Errorf("expected workflow 'deploy-pipeline', got %s", event.Workflow)
	}
	if event.Severity != SeverityInfo {
		t.Errorf("expected severity %s, got %s", SeverityInfo, event.Severity)
	}
	if !strings.Contains(event.Summary, "build_time") {
		t.Errorf("summary should mention violation type, got %q", event.Summary)
	}
	if !strings.HasPrefix(event.ID, "evt_") {
		t.Errorf("event ID should carry evt_ prefix, got %q", event.ID)
	}
}

func TestEmitPredictionEventHighProbabilityWarns(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)

	details := PredictionEventDetails{ViolationType: "deploy_duration", Probability: 0.91, Confidence: 0.91}
	if err := emitter.EmitPredictionEvent(context.Background(), "release", details); err != nil {
		t.Fatalf("EmitPredictionEvent failed: %v", err)
	}

	if storage.storedEvents[0].Severity != SeverityWarning {
		t.Errorf("expected warning severity for high probability, got %s", storage.storedEvents[0].Severity)
	}
}

func TestEmitModelLifecycleEvent(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)

	rejected := ModelLifecycleEventDetails{Action: "rejected", Reason: "accuracy below threshold"}
	if err := emitter.EmitModelLifecycleEvent(context.Background(), rejected); err != nil {
		t.Fatalf("EmitModelLifecycleEvent failed: %v", err)
	}

	deployed := ModelLifecycleEventDetails{Action: "deployed", ModelVersion: "v2", Accuracy: 0.91}
	if err := emitter.EmitModelLifecycleEvent(context.Background(), deployed); err != nil {
		t.Fatalf("EmitModelLifecycleEvent failed: %v", err)
	}

	if storage.storedEvents[0].Severity != SeverityWarning {
		t.Errorf("rejected model should be warning severity, got %s", storage.storedEvents[0].Severity)
	}
	if storage.storedEvents[1].Severity != SeverityInfo {
		t.Errorf("deployed model should be info severity, got %s", storage.storedEvents[1].Severity)
	}
	if !strings.Contains(storage.storedEvents[1].Summary, "v2") {
		t.Errorf("deploy summary should mention version, got %q", storage.storedEvents[1].Summary)
	}
}

func TestEmitScalingEvent(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)

	details := ScalingEventDetails{
		Action:           "scale_up",
		ResourceType:     "build_agents",
		PreviousCapacity: 4,
		NewCapacity:      6,
		Probability:      0.85,
		Reason:           "predicted build_time violation",
	}

	if err := emitter.EmitScalingEvent(context.Background(), "ci", details); err != nil {
		t.Fatalf("EmitScalingEvent failed: %v", err)
	}

	event := storage.storedEvents[0]
	if event.Type != EventTypeScaling {
		t.Errorf("expected event type %s, got %s", EventTypeScaling, event.Type)
	}
	if !strings.Contains(event.Summary, "build_agents") {
		t.Errorf("summary should mention resource, got %q", event.Summary)
	}
	if event.Details["new_capacity"] != float64(6) {
		t.Errorf("details should carry new capacity, got %v", event.Details["new_capacity"])
	}
}

func TestEmitABTestEvent(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)

	completed := ABTestEventDetails{Action: "completed", TestID: "t-1", Winner: "variant-b"}
	if err := emitter.EmitABTestEvent(context.Background(), completed); err != nil {
		t.Fatalf("EmitABTestEvent failed: %v", err)
	}

	failed := ABTestEventDetails{Action: "failed", TestID: "t-2"}
	if err := emitter.EmitABTestEvent(context.Background(), failed); err != nil {
		t.Fatalf("EmitABTestEvent failed: %v", err)
	}

	if !strings.Contains(storage.storedEvents[0].Summary, "variant-b") {
		t.Errorf("completed summary should mention winner, got %q", storage.storedEvents[0].Summary)
	}
	if storage.storedEvents[1].Severity != SeverityError {
		t.Errorf("failed test should be error severity, got %s", storage.storedEvents[1].Severity)
	}
}

func TestEmitEventStorageFailure(t *testing.T) {
	storage := &MockEventStorage{storeError: errors.New("disk full")}
	emitter := newTestEmitter(t, storage)

	err := emitter.EmitThresholdEvent(context.Background(), ThresholdEventDetails{
		MetricName: "build_time", CurrentThreshold: 300, Recommended: 280, Objective: "reduce_violations",
	})
	if err == nil {
		t.Error("expected storage error to propagate")
	}
}

func TestGetEventsFiltering(t *testing.T) {
	storage := &MockEventStorage{}
	emitter := newTestEmitter(t, storage)
	ctx := context.Background()

	_ = emitter.EmitPredictionEvent(ctx, "alpha", PredictionEventDetails{ViolationType: "build_time", Probability: 0.6})
	_ = emitter.EmitPredictionEvent(ctx, "beta", PredictionEventDetails{ViolationType: "test_time", Probability: 0.6})
	_ = emitter.EmitScalingEvent(ctx, "alpha", ScalingEventDetails{Action: "scale_up", ResourceType: "worker_nodes"})

	events, err := emitter.GetEvents(ctx, EventFilter{Workflow: "alpha", Type: EventTypePrediction})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(events))
	}
	if events[0].Workflow != "alpha" || events[0].Type != EventTypePrediction {
		t.Errorf("filter returned wrong event: %+v", events[0])
	}
}

func TestGetEventsWithoutStorage(t *testing.T) {
	emitter := newTestEmitter(t, nil)

	if _, err := emitter.GetEvents(context.Background(), EventFilter{}); err == nil {
		t.Error("expected error when storage is not configured")
	}
}
