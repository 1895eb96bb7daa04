package app

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/webforge/sla-sentinel/internal/abtest"
	"github.com/webforge/sla-sentinel/internal/classifier"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/features"
	"github.com/webforge/sla-sentinel/internal/platform"
	"github.com/webforge/sla-sentinel/internal/telemetry"
	"github.com/webforge/sla-sentinel/internal/types"
)

type fakePlane struct {
	mu    sync.Mutex
	calls []struct {
		resource types.ResourceType
		target   int
	}
}

func (p *fakePlane) SetCapacity(ctx context.Context, resource types.ResourceType, target int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, struct {
		resource types.ResourceType
		target   int
	}{resource, target})
	return nil
}

func (p *fakePlane) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []types.AlertPayload
}

func (n *fakeNotifier) Channel() types.AlertChannel { return types.ChannelDashboard }

func (n *fakeNotifier) Send(ctx context.Context, payload types.AlertPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return nil
}

func testManagerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	cfg.Storage.ModelDir = t.TempDir()
	cfg.Server.BindAddress = "127.0.0.1:0"
	return cfg
}

func newTestManager(t *testing.T, deps Deps) *Manager {
	t.Helper()
	if deps.State == nil {
		deps.State = platform.Static{State: types.SystemState{
			ActiveWorkflows:   50,
			CPUUsage:          0.5,
			MemoryUsage:       0.4,
			DBConnectionUsage: 0.3,
		}}
	}
	if deps.ControlPlane == nil {
		deps.ControlPlane = &fakePlane{}
	}
	if deps.Notifiers == nil {
		deps.Notifiers = []types.Notifier{&fakeNotifier{}}
	}

	m, err := NewManagerWithDeps(testManagerConfig(t), deps, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewManagerWithDeps failed: %v", err)
	}
	return m
}

// separableFeedback builds examples whose label follows current load, so
// cross-validation accuracy clears the deployment gate.
func separableFeedback(n int) []classifier.Example {
	rng := rand.New(rand.NewSource(11))
	examples := make([]classifier.Example, n)
	for i := range examples {
		load := rng.Float64()
		examples[i] = classifier.Example{
			Features: types.FeatureVector{
				CurrentLoad:           load,
				HourOfDay:             float64(rng.Intn(24)),
				DayOfWeek:             float64(rng.Intn(7)),
				RecentViolationCount:  load * 8,
				HistoricalMean:        200 + 100*load,
				HistoricalStdDev:      20,
				CPUUsage:              load,
				MemoryUsage:           load,
				DBConnectionUsage:     load,
				ViolationTypeEncoding: features.TypeEncoding(types.ViolationBuildTime),
			},
			Violated: load > 0.5,
		}
	}
	return examples
}

func TestNewManagerWiring(t *testing.T) {
	m := newTestManager(t, Deps{})

	if m.IsRunning() {
		t.Error("manager should not be running before Run")
	}
	if m.ModelVersion() != "" {
		t.Errorf("expected no model before bootstrap, got %q", m.ModelVersion())
	}
	if m.StateTracker() != nil {
		t.Error("custom state provider should leave the built-in tracker nil")
	}
}

func TestNewManagerDefaultStateTracker(t *testing.T) {
	cfg := testManagerConfig(t)
	m, err := NewManagerWithDeps(cfg, Deps{ControlPlane: &fakePlane{}, Notifiers: []types.Notifier{&fakeNotifier{}}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewManagerWithDeps failed: %v", err)
	}
	if m.StateTracker() == nil {
		t.Fatal("expected built-in state tracker")
	}

	m.StateTracker().WorkflowStarted("wf")
	state, err := m.StateTracker().SystemState(context.Background())
	if err != nil {
		t.Fatalf("SystemState failed: %v", err)
	}
	if state.ActiveWorkflows != 1 {
		t.Errorf("expected 1 active workflow, got %d", state.ActiveWorkflows)
	}
}

func TestManagerRejectsMissingInputs(t *testing.T) {
	if _, err := NewManager(nil, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error for nil config")
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if _, err := NewManager(cfg, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestManagerRunLifecycle(t *testing.T) {
	m := newTestManager(t, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	for !m.IsRunning() {
		select {
		case err := <-done:
			t.Fatalf("Run exited early: %v", err)
		case <-deadline:
			t.Fatal("manager did not start in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if m.ModelVersion() == "" {
		t.Error("expected bootstrapped model after startup")
	}

	// Predictions work against an empty store: every violation type has no
	// history, so the result is empty but not an error.
	predictions, err := m.PredictViolations(ctx, "workflow-without-history")
	if err != nil {
		t.Fatalf("PredictViolations failed: %v", err)
	}
	if len(predictions) != 0 {
		t.Errorf("expected no predictions without history, got %d", len(predictions))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop in time")
	}

	if m.IsRunning() {
		t.Error("manager should not be running after shutdown")
	}
}

func TestManagerPredictionWithHistory(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newTestManager(t, Deps{
		State: platform.Static{State: types.SystemState{
			ActiveWorkflows:   100,
			CPUUsage:          0.95,
			MemoryUsage:       0.9,
			DBConnectionUsage: 0.9,
		}},
		Notifiers: []types.Notifier{notifier},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	deadline := time.After(10 * time.Second)
	for !m.IsRunning() {
		select {
		case err := <-done:
			t.Fatalf("Run exited early: %v", err)
		case <-deadline:
			t.Fatal("manager did not start in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Seed a violation-heavy history for one workflow.
	now := time.Now()
	threshold := m.config.Prediction.Thresholds[types.ViolationBuildTime]
	samples := make([]types.PerformanceSample, 30)
	for i := range samples {
		samples[i] = types.PerformanceSample{
			Timestamp: now.Add(-time.Duration(30-i) * time.Hour),
			Value:     threshold * 1.5,
		}
	}
	if err := m.IngestSamples(ctx, "hot-workflow", types.ViolationBuildTime, samples); err != nil {
		t.Fatalf("IngestSamples failed: %v", err)
	}

	predictions, err := m.PredictViolations(ctx, "hot-workflow")
	if err != nil {
		t.Fatalf("PredictViolations failed: %v", err)
	}

	// Only the seeded violation type can produce predictions, and any that
	// survive the confidence gate must be fully populated and alerted.
	for _, p := range predictions {
		if p.ViolationType != types.ViolationBuildTime {
			t.Errorf("unexpected violation type %s", p.ViolationType)
		}
		if p.ConfidenceScore < m.config.Prediction.ConfidenceThreshold {
			t.Errorf("prediction below confidence gate: %f", p.ConfidenceScore)
		}
		if !p.PredictedTime.After(now) {
			t.Error("predicted time should be in the future")
		}
	}

	notifier.mu.Lock()
	alerted := len(notifier.payloads)
	notifier.mu.Unlock()
	if len(predictions) > 0 && alerted == 0 {
		t.Error("surviving predictions should have been alerted")
	}

	// The prediction run is audited as events only for surviving
	// predictions; the query itself must work while running.
	if _, err := m.Events(ctx, telemetry.EventFilter{Type: telemetry.EventTypePrediction}); err != nil {
		t.Fatalf("Events query failed: %v", err)
	}

	// Each dispatched prediction is also recorded as a delivery event.
	deliveries, err := m.Events(ctx, telemetry.EventFilter{Type: telemetry.EventTypeAlertDelivery})
	if err != nil {
		t.Fatalf("Events query failed: %v", err)
	}
	if len(predictions) > 0 && len(deliveries) == 0 {
		t.Error("dispatched alerts should produce delivery events")
	}
}

func TestManagerRetrainModel(t *testing.T) {
	m := newTestManager(t, Deps{})
	ctx := context.Background()

	result, err := m.RetrainModel(ctx, separableFeedback(400))
	if err != nil {
		t.Fatalf("RetrainModel failed: %v", err)
	}
	if !result.Deployed {
		t.Fatalf("expected separable feedback to deploy, got reason %q", result.Reason)
	}
	if m.ModelVersion() != result.ModelVersion {
		t.Errorf("deployed version mismatch: %q vs %q", m.ModelVersion(), result.ModelVersion)
	}
	if len(m.ModelAccuracy()) == 0 {
		t.Error("expected per-type accuracy after deployment")
	}
}

func TestManagerScalingFacade(t *testing.T) {
	plane := &fakePlane{}
	m := newTestManager(t, Deps{ControlPlane: plane})
	ctx := context.Background()

	prediction := types.SLAPrediction{
		ViolationType:   types.ViolationBuildTime,
		Probability:     0.92,
		ConfidenceScore: 0.92,
		PredictedTime:   time.Now().Add(15 * time.Minute),
	}

	executed := m.EvaluateAndScale(ctx, "hot-workflow", []types.SLAPrediction{prediction})
	if len(executed) != 1 {
		t.Fatalf("expected 1 executed decision, got %d", len(executed))
	}
	if executed[0].ResourceType != types.ResourceBuildAgents {
		t.Errorf("expected build_agents resource, got %s", executed[0].ResourceType)
	}
	if plane.callCount() != 1 {
		t.Errorf("expected 1 control plane call, got %d", plane.callCount())
	}
	if len(m.ScalingHistory()) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(m.ScalingHistory()))
	}

	if !m.RollbackScalingAction(ctx, executed[0]) {
		t.Fatal("rollback should succeed")
	}
	if plane.callCount() != 2 {
		t.Errorf("expected 2 control plane calls after rollback, got %d", plane.callCount())
	}
}

func TestManagerScalingOverride(t *testing.T) {
	plane := &fakePlane{}
	m := newTestManager(t, Deps{ControlPlane: plane})

	m.SetManualOverride(types.ResourceBuildAgents, types.ActionScaleUp, true)

	prediction := types.SLAPrediction{
		ViolationType:   types.ViolationBuildTime,
		Probability:     0.95,
		ConfidenceScore: 0.95,
	}
	executed := m.EvaluateAndScale(context.Background(), "wf", []types.SLAPrediction{prediction})
	if len(executed) != 0 {
		t.Errorf("override should block scaling, got %d decisions", len(executed))
	}
	if plane.callCount() != 0 {
		t.Errorf("control plane should not be called, got %d calls", plane.callCount())
	}
}

func TestManagerABTestFacade(t *testing.T) {
	m := newTestManager(t, Deps{})
	ctx := context.Background()

	testID, err := m.CreateABTest(ctx, abtest.TestConfig{
		Name:         "threshold-trial",
		ServiceType:  types.ViolationBuildTime,
		BaselineRate: 0.10,
		MinEffect:    0.02,
		Variants: []abtest.VariantConfig{
			{ID: "control", Name: "control", Value: 300, TrafficAllocation: 0.5, IsControl: true},
			{ID: "candidate", Name: "candidate", Value: 280, TrafficAllocation: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("CreateABTest failed: %v", err)
	}

	if err := m.StartABTest(ctx, testID); err != nil {
		t.Fatalf("StartABTest failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		variant := "control"
		if i%2 == 0 {
			variant = "candidate"
		}
		if err := m.RecordTestEvent(ctx, testID, variant, abtest.EventView); err != nil {
			t.Fatalf("RecordTestEvent failed: %v", err)
		}
	}

	results, err := m.ABTestResults(testID)
	if err != nil {
		t.Fatalf("ABTestResults failed: %v", err)
	}
	if results.TotalViews != 50 {
		t.Errorf("expected 50 views, got %d", results.TotalViews)
	}

	final, err := m.StopABTest(ctx, testID, "manual stop")
	if err != nil {
		t.Fatalf("StopABTest failed: %v", err)
	}
	if final.Status != abtest.StatusStopped {
		t.Errorf("expected stopped status, got %s", final.Status)
	}

	info, err := m.ABTestInfo(testID)
	if err != nil {
		t.Fatalf("ABTestInfo failed: %v", err)
	}
	if info.CompletedAt == nil {
		t.Error("expected completion timestamp after stop")
	}

	events, err := m.Events(ctx, telemetry.EventFilter{Type: telemetry.EventTypeABTest})
	if err != nil {
		t.Fatalf("Events query failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected created/started/stopped events, got %d", len(events))
	}
}

func TestManagerFailABTest(t *testing.T) {
	m := newTestManager(t, Deps{})
	ctx := context.Background()

	testID, err := m.CreateABTest(ctx, abtest.TestConfig{
		Name:         "broken-trial",
		ServiceType:  types.ViolationBuildTime,
		BaselineRate: 0.10,
		MinEffect:    0.02,
		Variants: []abtest.VariantConfig{
			{ID: "control", Name: "control", Value: 300, TrafficAllocation: 0.5, IsControl: true},
			{ID: "candidate", Name: "candidate", Value: 280, TrafficAllocation: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("CreateABTest failed: %v", err)
	}
	if err := m.StartABTest(ctx, testID); err != nil {
		t.Fatalf("StartABTest failed: %v", err)
	}
	if err := m.RecordTestEvent(ctx, testID, "control", abtest.EventView); err != nil {
		t.Fatalf("RecordTestEvent failed: %v", err)
	}

	results, err := m.FailABTest(ctx, testID, "instrumentation bug")
	if err != nil {
		t.Fatalf("FailABTest failed: %v", err)
	}
	if results.Status != abtest.StatusFailed {
		t.Errorf("expected failed status, got %s", results.Status)
	}
	if results.WinnerID != "" {
		t.Errorf("failed test must not declare winner %q", results.WinnerID)
	}
	if err := m.RecordTestEvent(ctx, testID, "control", abtest.EventView); err == nil {
		t.Error("failed test should reject further events")
	}

	events, err := m.Events(ctx, telemetry.EventFilter{Type: telemetry.EventTypeABTest})
	if err != nil {
		t.Fatalf("Events query failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected created/started/failed events, got %d", len(events))
	}
}
