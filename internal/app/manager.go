// Package app wires the prediction engine's components together behind a
// single Manager facade and owns their shared lifecycle.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webforge/sla-sentinel/internal/abtest"
	"github.com/webforge/sla-sentinel/internal/alerting"
	"github.com/webforge/sla-sentinel/internal/classifier"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/features"
	"github.com/webforge/sla-sentinel/internal/optimizer"
	"github.com/webforge/sla-sentinel/internal/platform"
	"github.com/webforge/sla-sentinel/internal/prediction"
	"github.com/webforge/sla-sentinel/internal/prometheus"
	"github.com/webforge/sla-sentinel/internal/scaling"
	"github.com/webforge/sla-sentinel/internal/scheduler"
	"github.com/webforge/sla-sentinel/internal/storage"
	"github.com/webforge/sla-sentinel/internal/telemetry"
	"github.com/webforge/sla-sentinel/internal/types"
)

const (
	cleanupInterval         = time.Hour
	accuracyRefreshInterval = time.Minute
)

// Deps substitutes transport collaborators. Zero values get production
// defaults built from configuration.
type Deps struct {
	State        types.StateProvider
	ControlPlane types.ControlPlane
	Notifiers    []types.Notifier
}

// Manager coordinates all system components
type Manager struct {
	config *config.Config
	logger *zap.Logger

	store      *storage.SQLiteStore
	modelStore *storage.FileModelStore
	tracker    *platform.StateTracker // nil when a custom provider is injected

	classifier   *classifier.Classifier
	engine       *prediction.Engine
	dispatcher   *alerting.Dispatcher
	optimizer    *optimizer.Optimizer
	orchestrator *abtest.Orchestrator
	controller   *scaling.Controller
	scheduler    *scheduler.Scheduler

	telemetryService *telemetry.Service
	eventEmitter     *telemetry.EventEmitter
	exporter         *prometheus.Exporter
	traces           *telemetry.TraceHelper

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// alertTelemetry routes dispatcher outcomes into the metrics exporter and
// the event stream.
type alertTelemetry struct {
	exporter *prometheus.Exporter
	emitter  *telemetry.EventEmitter
	logger   *zap.Logger
}

func (a *alertTelemetry) AlertSuppressed(ctx context.Context, workflowID string, violationType types.ViolationType) {
	a.exporter.ObserveAlertSuppressed()
	if err := a.emitter.EmitAlertDeliveryEvent(ctx, workflowID, telemetry.AlertDeliveryEventDetails{
		ViolationType: string(violationType),
		Suppressed:    true,
	}); err != nil {
		a.logger.Warn("Failed to emit alert delivery event", zap.Error(err))
	}
}

func (a *alertTelemetry) AlertDispatched(ctx context.Context, workflowID string, violationType types.ViolationType, outcomes map[types.AlertChannel]bool) {
	details := telemetry.AlertDeliveryEventDetails{
		ViolationType: string(violationType),
	}
	for channel, delivered := range outcomes {
		a.exporter.ObserveAlert(string(channel), delivered)
		details.Channels = append(details.Channels, string(channel))
		if delivered {
			details.Delivered++
		} else {
			details.Failed++
		}
	}
	sort.Strings(details.Channels)
	if err := a.emitter.EmitAlertDeliveryEvent(ctx, workflowID, details); err != nil {
		a.logger.Warn("Failed to emit alert delivery event", zap.Error(err))
	}
}

// NewManager creates a manager with production collaborators.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	return NewManagerWithDeps(cfg, Deps{}, logger)
}

// NewManagerWithDeps creates a manager, substituting any collaborators set
// in deps.
func NewManagerWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	store, err := storage.NewSQLiteStore(cfg.Storage, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	modelStore, err := storage.NewFileModelStore(cfg.Storage.ModelDir, logger.Named("models"))
	if err != nil {
		return nil, fmt.Errorf("failed to create model store: %w", err)
	}

	telemetryService, err := telemetry.NewService(cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry service: %w", err)
	}

	eventStorage, err := storage.NewEventStorage(store, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("failed to create event storage: %w", err)
	}
	eventEmitter := telemetry.NewEventEmitter(telemetryService, logger.Named("events"), eventStorage)

	exporter, err := prometheus.NewExporter(cfg.Server, logger.Named("prometheus"))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	state := deps.State
	var tracker *platform.StateTracker
	if state == nil {
		tracker = platform.NewStateTracker(logger.Named("platform"))
		state = tracker
	}

	extractor := features.NewExtractor(cfg.Prediction, store, state, logger.Named("features"))
	cls := classifier.New(cfg.Classifier, modelStore, logger.Named("classifier"))

	notifiers := deps.Notifiers
	if notifiers == nil {
		notifiers = alerting.BuildNotifiers(cfg.Alerting, logger.Named("alerting"))
	}
	dispatcher := alerting.NewDispatcher(cfg.Alerting, notifiers, logger.Named("alerting"))
	dispatcher.SetObserver(&alertTelemetry{
		exporter: exporter,
		emitter:  eventEmitter,
		logger:   logger.Named("alerting"),
	})

	engine := prediction.NewEngine(cfg.Prediction, extractor, cls, dispatcher,
		store, logger.Named("prediction"))
	engine.SetFailureObserver(func(vt types.ViolationType) {
		exporter.ObservePredictionError(string(vt))
	})

	sched := scheduler.New(logger.Named("scheduler"))
	orchestrator := abtest.NewOrchestrator(cfg.ABTesting, sched, store, logger.Named("abtest"))

	plane := deps.ControlPlane
	if plane == nil {
		plane = scaling.NewControlPlane(cfg.Scaling, logger.Named("scaling"))
	}
	controller := scaling.NewController(cfg.Scaling, plane, store, logger)

	opt := optimizer.New(cfg.Optimizer, cfg.Prediction.Thresholds, store, cls, logger.Named("optimizer"))

	return &Manager{
		config:           cfg,
		logger:           logger,
		store:            store,
		modelStore:       modelStore,
		tracker:          tracker,
		classifier:       cls,
		engine:           engine,
		dispatcher:       dispatcher,
		optimizer:        opt,
		orchestrator:     orchestrator,
		controller:       controller,
		scheduler:        sched,
		telemetryService: telemetryService,
		eventEmitter:     eventEmitter,
		exporter:         exporter,
		traces:           telemetryService.GetTraceHelper(),
	}, nil
}

// Run starts all components and blocks until the context is cancelled or a
// component fails.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("manager is already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("Starting sla-sentinel")

	if err := m.classifier.LoadOrBootstrap(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	m.refreshAccuracyMetrics()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.logger.Info("Starting storage backend")
		return m.store.Start(gCtx)
	})

	g.Go(func() error {
		m.logger.Info("Starting telemetry service")
		return m.telemetryService.Start(gCtx)
	})

	g.Go(func() error {
		m.logger.Info("Starting Prometheus exporter")
		return m.exporter.Start(gCtx)
	})

	cancelCleanup := m.scheduler.Every("storage_cleanup", cleanupInterval, func(taskCtx context.Context) {
		if err := m.store.Cleanup(taskCtx); err != nil {
			m.logger.Error("Storage cleanup failed", zap.Error(err))
		}
	})
	defer cancelCleanup()

	cancelAccuracy := m.scheduler.Every("model_accuracy_refresh", accuracyRefreshInterval, func(context.Context) {
		m.refreshAccuracyMetrics()
	})
	defer cancelAccuracy()

	m.logger.Info("Manager started",
		zap.String("model_version", m.classifier.ModelVersion()),
		zap.Duration("startup_time", time.Since(m.startTime)))

	err := g.Wait()

	m.logger.Info("Stopping remaining services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if stopErr := m.scheduler.Shutdown(shutdownCtx); stopErr != nil {
		m.logger.Error("Failed to stop scheduler", zap.Error(stopErr))
	}
	if stopErr := m.telemetryService.Stop(shutdownCtx); stopErr != nil {
		m.logger.Error("Failed to stop telemetry", zap.Error(stopErr))
	}
	if stopErr := m.store.Stop(shutdownCtx); stopErr != nil {
		m.logger.Error("Failed to stop storage", zap.Error(stopErr))
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	if err != nil && err != context.Canceled {
		m.logger.Error("Manager stopped with error", zap.Error(err))
		return err
	}

	m.logger.Info("Manager stopped gracefully")
	return nil
}

// PredictViolations runs the prediction pipeline for one workflow. Returned
// predictions have already been dispatched as alerts and audited.
func (m *Manager) PredictViolations(ctx context.Context, workflowID string) ([]types.SLAPrediction, error) {
	var predictions []types.SLAPrediction
	err := m.traces.TracePredictionFunc(ctx, workflowID, func(ctx context.Context) error {
		var predictErr error
		predictions, predictErr = m.engine.PredictViolations(ctx, workflowID)
		return predictErr
	})
	if err != nil {
		return nil, err
	}

	for _, p := range predictions {
		m.exporter.ObservePrediction(workflowID, string(p.ViolationType), p.Probability)
		if emitErr := m.eventEmitter.EmitPredictionEvent(ctx, workflowID, telemetry.PredictionEventDetails{
			ViolationType: string(p.ViolationType),
			Probability:   p.Probability,
			Confidence:    p.ConfidenceScore,
			ModelVersion:  m.classifier.ModelVersion(),
			Actions:       len(p.RecommendedActions),
		}); emitErr != nil {
			m.logger.Warn("Failed to emit prediction event", zap.Error(emitErr))
		}
	}
	return predictions, nil
}

// ModelAccuracy returns the deployed model's per-type accuracy table.
func (m *Manager) ModelAccuracy() map[types.ViolationType]float64 {
	return m.classifier.Accuracy()
}

// ModelVersion returns the deployed model version.
func (m *Manager) ModelVersion() string {
	return m.classifier.ModelVersion()
}

// RetrainModel re-fits the classifier with labeled feedback. The new model
// deploys only if it clears the accuracy gate.
func (m *Manager) RetrainModel(ctx context.Context, feedback []classifier.Example) (classifier.RetrainResult, error) {
	var result classifier.RetrainResult
	err := m.traces.TraceModelRetrainFunc(ctx, m.classifier.ModelVersion(), func(ctx context.Context) error {
		var retrainErr error
		result, retrainErr = m.classifier.Retrain(ctx, feedback)
		return retrainErr
	})
	if err != nil {
		m.exporter.ObserveRetrain("failed")
		return result, err
	}

	outcome := "rejected"
	action := "rejected"
	if result.Deployed {
		outcome = "deployed"
		action = "deployed"
		m.refreshAccuracyMetrics()
	}
	m.exporter.ObserveRetrain(outcome)

	if emitErr := m.eventEmitter.EmitModelLifecycleEvent(ctx, telemetry.ModelLifecycleEventDetails{
		Action:       action,
		ModelVersion: result.ModelVersion,
		Accuracy:     result.Accuracy,
		SampleCount:  len(feedback),
		Reason:       result.Reason,
	}); emitErr != nil {
		m.logger.Warn("Failed to emit model event", zap.Error(emitErr))
	}

	return result, nil
}

// RecommendThreshold produces a threshold recommendation for a service type.
func (m *Manager) RecommendThreshold(ctx context.Context, serviceType types.ViolationType, objective types.OptimizationObjective) (types.ThresholdRecommendation, error) {
	var rec types.ThresholdRecommendation
	err := m.traces.TraceThresholdRecommendFunc(ctx, string(serviceType), func(ctx context.Context) error {
		var recErr error
		rec, recErr = m.optimizer.RecommendThreshold(ctx, serviceType, objective)
		return recErr
	})
	if err != nil {
		return rec, err
	}

	m.exporter.ObserveThresholdRecommendation(string(serviceType))
	if emitErr := m.eventEmitter.EmitThresholdEvent(ctx, telemetry.ThresholdEventDetails{
		MetricName:       string(serviceType),
		CurrentThreshold: rec.CurrentThreshold,
		Recommended:      rec.RecommendedThreshold,
		Objective:        string(objective),
		Confidence:       rec.ConfidenceScore,
		Risk:             string(rec.ImplementationRisk),
	}); emitErr != nil {
		m.logger.Warn("Failed to emit threshold event", zap.Error(emitErr))
	}
	return rec, nil
}

// CreateABTest registers a draft experiment and returns its ID.
func (m *Manager) CreateABTest(ctx context.Context, cfg abtest.TestConfig) (string, error) {
	testID, err := m.orchestrator.CreateTest(cfg)
	if err != nil {
		return "", err
	}
	m.exporter.ObserveABTestEvent("created")
	m.emitABTestEvent(ctx, "created", testID, cfg.Name, nil)
	return testID, nil
}

// StartABTest transitions a draft experiment to running.
func (m *Manager) StartABTest(ctx context.Context, testID string) error {
	if err := m.orchestrator.StartTest(ctx, testID); err != nil {
		return err
	}
	m.exporter.ObserveABTestEvent("started")
	m.emitABTestEvent(ctx, "started", testID, "", nil)
	return nil
}

// RecordTestEvent accumulates one experiment event on a variant.
func (m *Manager) RecordTestEvent(ctx context.Context, testID, variantID string, eventType abtest.EventType) error {
	return m.orchestrator.RecordEvent(ctx, testID, variantID, eventType)
}

// ABTestResults evaluates the current state of an experiment.
func (m *Manager) ABTestResults(testID string) (*abtest.TestResults, error) {
	return m.orchestrator.GetResults(testID)
}

// ABTestInfo returns an experiment's lifecycle snapshot.
func (m *Manager) ABTestInfo(testID string) (*abtest.TestInfo, error) {
	return m.orchestrator.Info(testID)
}

// StopABTest finalizes a running experiment and returns its frozen results.
func (m *Manager) StopABTest(ctx context.Context, testID, reason string) (*abtest.TestResults, error) {
	var results *abtest.TestResults
	err := m.traces.TraceABTestEvaluationFunc(ctx, testID, func(ctx context.Context) error {
		var stopErr error
		results, stopErr = m.orchestrator.StopTest(ctx, testID, reason)
		return stopErr
	})
	if err != nil {
		return nil, err
	}
	m.exporter.ObserveABTestEvent(string(results.Status))
	m.emitABTestEvent(ctx, string(results.Status), testID, "", results)
	return results, nil
}

// FailABTest invalidates an experiment. Its counters freeze without a
// winner and no further events are accepted.
func (m *Manager) FailABTest(ctx context.Context, testID, reason string) (*abtest.TestResults, error) {
	results, err := m.orchestrator.FailTest(ctx, testID, reason)
	if err != nil {
		return nil, err
	}
	m.exporter.ObserveABTestEvent("failed")
	m.emitABTestEvent(ctx, "failed", testID, "", results)
	return results, nil
}

// EvaluateScalingDecisions derives scaling decisions from predictions
// without executing them.
func (m *Manager) EvaluateScalingDecisions(predictions []types.SLAPrediction) []types.ScalingDecision {
	return m.controller.EvaluateScalingDecisions(predictions)
}

// ExecuteScalingDecision applies one decision through the control plane and
// reports whether it ran.
func (m *Manager) ExecuteScalingDecision(ctx context.Context, workflowID string, d types.ScalingDecision) bool {
	executed := false
	_ = m.traces.TraceScalingExecutionFunc(ctx, string(d.ResourceType), string(d.Action), func(ctx context.Context) error {
		executed = m.controller.ExecuteScalingDecision(ctx, d)
		return nil
	})
	if !executed {
		return false
	}
	m.exporter.ObserveScalingExecution(string(d.ResourceType), string(d.Action), d.TargetCapacity)
	if emitErr := m.eventEmitter.EmitScalingEvent(ctx, workflowID, telemetry.ScalingEventDetails{
		Action:           string(d.Action),
		ResourceType:     string(d.ResourceType),
		PreviousCapacity: d.CurrentCapacity,
		NewCapacity:      d.TargetCapacity,
		Probability:      d.Confidence,
		Reason:           d.Justification,
	}); emitErr != nil {
		m.logger.Warn("Failed to emit scaling event", zap.Error(emitErr))
	}
	return true
}

// EvaluateAndScale turns predictions into scaling decisions and executes
// them, returning the decisions that actually ran.
func (m *Manager) EvaluateAndScale(ctx context.Context, workflowID string, predictions []types.SLAPrediction) []types.ScalingDecision {
	decisions := m.controller.EvaluateScalingDecisions(predictions)

	executed := make([]types.ScalingDecision, 0, len(decisions))
	for _, d := range decisions {
		if m.ExecuteScalingDecision(ctx, workflowID, d) {
			executed = append(executed, d)
		}
	}
	return executed
}

// RollbackScalingAction reverts an executed scaling decision.
func (m *Manager) RollbackScalingAction(ctx context.Context, decision types.ScalingDecision) bool {
	if !m.controller.RollbackScalingAction(ctx, decision) {
		return false
	}
	m.exporter.ObserveScalingRollback(string(decision.ResourceType), decision.CurrentCapacity)
	if emitErr := m.eventEmitter.EmitScalingEvent(ctx, "", telemetry.ScalingEventDetails{
		Action:           "rollback",
		ResourceType:     string(decision.ResourceType),
		PreviousCapacity: decision.TargetCapacity,
		NewCapacity:      decision.CurrentCapacity,
		Reason:           "manual rollback",
	}); emitErr != nil {
		m.logger.Warn("Failed to emit scaling event", zap.Error(emitErr))
	}
	return true
}

// SetManualOverride toggles an operator override for one resource/action
// pair.
func (m *Manager) SetManualOverride(resource types.ResourceType, action types.ScalingAction, enabled bool) {
	m.controller.SetManualOverride(resource, action, enabled)
}

// ScalingHistory returns the executed scaling decisions, oldest first.
func (m *Manager) ScalingHistory() []types.ScalingDecision {
	return m.controller.History()
}

// IngestSamples feeds historical performance observations into the store.
func (m *Manager) IngestSamples(ctx context.Context, workflowID string, violationType types.ViolationType, samples []types.PerformanceSample) error {
	return m.store.InsertSamples(ctx, workflowID, violationType, samples)
}

// Events queries persisted operational events.
func (m *Manager) Events(ctx context.Context, filter telemetry.EventFilter) ([]telemetry.Event, error) {
	return m.eventEmitter.GetEvents(ctx, filter)
}

// StateTracker returns the built-in state tracker, or nil when a custom
// provider was injected.
func (m *Manager) StateTracker() *platform.StateTracker {
	return m.tracker
}

// IsRunning reports whether Run is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) refreshAccuracyMetrics() {
	for vt, acc := range m.classifier.Accuracy() {
		m.exporter.SetModelAccuracy(string(vt), acc)
	}
}

func (m *Manager) emitABTestEvent(ctx context.Context, action, testID, name string, results *abtest.TestResults) {
	details := telemetry.ABTestEventDetails{
		Action:   action,
		TestID:   testID,
		TestName: name,
	}
	if results != nil {
		details.Winner = results.WinnerID
		details.StopReason = results.StopReason
		details.TotalViews = results.TotalViews
	}
	if err := m.eventEmitter.EmitABTestEvent(ctx, details); err != nil {
		m.logger.Warn("Failed to emit ab test event", zap.Error(err))
	}
}
