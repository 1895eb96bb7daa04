package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/stats"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// allocationTolerance is the permitted deviation of the traffic allocation
// sum from 1.0.
const allocationTolerance = 0.01

// sampleSizeReachedReason marks the auto-completion stop path, which ends
// in "completed" rather than "stopped".
const sampleSizeReachedReason = "required sample size reached"

// variantState accumulates counters for one arm. The mutex serializes
// increments so concurrent event submission never loses updates.
type variantState struct {
	cfg VariantConfig

	mu          sync.Mutex
	views       int64
	conversions int64
	bounces     int64
}

func (v *variantState) snapshot() (views, conversions, bounces int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.views, v.conversions, v.bounces
}

// test is one experiment's runtime state. Lock ordering: test.mu before any
// variant.mu.
type test struct {
	id                 string
	cfg                TestConfig
	requiredSampleSize int
	createdAt          time.Time

	mu                 sync.RWMutex
	status             TestStatus
	startedAt          *time.Time
	expectedCompletion *time.Time
	completedAt        *time.Time
	stopReason         string
	finalResults       *TestResults
	variants           map[string]*variantState
	cancelMonitor      func()
}

// Orchestrator manages experiment lifecycles. Safe for concurrent use.
type Orchestrator struct {
	cfg       config.ABTestingConfig
	scheduler types.Scheduler
	audit     types.AuditSink
	logger    *zap.Logger

	mu    sync.RWMutex
	tests map[string]*test
}

// NewOrchestrator creates an experiment orchestrator. scheduler and audit
// may be nil; without a scheduler duration-based stopping is disabled and
// tests complete on sample size only.
func NewOrchestrator(cfg config.ABTestingConfig, scheduler types.Scheduler, audit types.AuditSink, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		scheduler: scheduler,
		audit:     audit,
		logger:    logger,
		tests:     make(map[string]*test),
	}
}

// CreateTest validates the configuration, plans the required sample size
// and persists the experiment in draft. Validation failure creates no
// record.
func (o *Orchestrator) CreateTest(cfg TestConfig) (string, error) {
	if err := o.validateConfig(&cfg); err != nil {
		return "", err
	}

	requiredSampleSize := stats.SampleSize(cfg.BaselineRate, cfg.MinEffect, cfg.StatisticalPower, cfg.SignificanceLevel)

	t := &test{
		id:                 uuid.NewString(),
		cfg:                cfg,
		requiredSampleSize: requiredSampleSize,
		createdAt:          time.Now().UTC(),
		status:             StatusDraft,
		variants:           make(map[string]*variantState, len(cfg.Variants)),
	}
	for _, vc := range cfg.Variants {
		t.variants[vc.ID] = &variantState{cfg: vc}
	}

	o.mu.Lock()
	o.tests[t.id] = t
	o.mu.Unlock()

	o.logger.Info("Created ab test",
		zap.String("test_id", t.id),
		zap.String("name", cfg.Name),
		zap.Int("required_sample_size", requiredSampleSize))
	return t.id, nil
}

// validateConfig applies defaults and checks the creation invariants.
func (o *Orchestrator) validateConfig(cfg *TestConfig) error {
	if len(cfg.Variants) < 2 {
		return fmt.Errorf("%w: at least 2 variants required, got %d", ErrInvalidConfig, len(cfg.Variants))
	}

	var allocationSum float64
	controls := 0
	seen := make(map[string]bool, len(cfg.Variants))
	for _, v := range cfg.Variants {
		if v.ID == "" {
			return fmt.Errorf("%w: variant with empty id", ErrInvalidConfig)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: duplicate variant id %q", ErrInvalidConfig, v.ID)
		}
		seen[v.ID] = true
		if v.TrafficAllocation <= 0 || v.TrafficAllocation > 1 {
			return fmt.Errorf("%w: variant %q allocation %f outside (0,1]", ErrInvalidConfig, v.ID, v.TrafficAllocation)
		}
		allocationSum += v.TrafficAllocation
		if v.IsControl {
			controls++
		}
	}
	if math.Abs(allocationSum-1.0) > allocationTolerance {
		return fmt.Errorf("%w: traffic allocations sum to %f, want 1.0 +/- %.2f", ErrInvalidConfig, allocationSum, allocationTolerance)
	}
	if controls != 1 {
		return fmt.Errorf("%w: exactly one control variant required, got %d", ErrInvalidConfig, controls)
	}
	if cfg.BaselineRate <= 0 || cfg.BaselineRate >= 1 {
		return fmt.Errorf("%w: baseline rate %f outside (0,1)", ErrInvalidConfig, cfg.BaselineRate)
	}
	if cfg.MinEffect <= 0 {
		return fmt.Errorf("%w: minimum detectable effect must be positive", ErrInvalidConfig)
	}

	if cfg.SignificanceLevel == 0 {
		cfg.SignificanceLevel = o.cfg.SignificanceLevel
	}
	if cfg.StatisticalPower == 0 {
		cfg.StatisticalPower = o.cfg.StatisticalPower
	}
	if cfg.Duration == 0 {
		cfg.Duration = o.cfg.TestDuration
	}
	return nil
}

// StartTest moves a draft test to running, records its expected completion
// and schedules the periodic duration check.
func (o *Orchestrator) StartTest(ctx context.Context, testID string) error {
	t, err := o.lookup(testID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.status != StatusDraft {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot start test in status %q", ErrInvalidTransition, status)
	}

	now := time.Now().UTC()
	expected := now.Add(t.cfg.Duration)
	t.status = StatusRunning
	t.startedAt = &now
	t.expectedCompletion = &expected

	if o.scheduler != nil {
		t.cancelMonitor = o.scheduler.Every(
			"abtest-monitor-"+t.id,
			o.cfg.MonitorInterval,
			func(ctx context.Context) { o.monitorTick(ctx, t.id) },
		)
	}
	t.mu.Unlock()

	o.logger.Info("Started ab test",
		zap.String("test_id", t.id),
		zap.Time("expected_completion", expected))
	return nil
}

// monitorTick stops a running test whose configured duration has elapsed.
func (o *Orchestrator) monitorTick(ctx context.Context, testID string) {
	t, err := o.lookup(testID)
	if err != nil {
		return
	}

	t.mu.RLock()
	expired := t.status == StatusRunning && t.expectedCompletion != nil && !time.Now().Before(*t.expectedCompletion)
	t.mu.RUnlock()

	if expired {
		if _, err := o.StopTest(ctx, testID, "test duration elapsed"); err != nil {
			o.logger.Warn("Failed to stop expired ab test",
				zap.String("test_id", testID),
				zap.Error(err))
		}
	}
}

// RecordEvent applies one event to a variant's counters. Allowed only while
// the test is running; reaching the required sample size auto-completes the
// test through the stop path.
func (o *Orchestrator) RecordEvent(ctx context.Context, testID, variantID string, eventType EventType) error {
	t, err := o.lookup(testID)
	if err != nil {
		return err
	}

	t.mu.RLock()
	if t.status != StatusRunning {
		status := t.status
		t.mu.RUnlock()
		return fmt.Errorf("%w: cannot record events in status %q", ErrInvalidTransition, status)
	}
	v, ok := t.variants[variantID]
	if !ok {
		t.mu.RUnlock()
		return fmt.Errorf("%w: %q", ErrUnknownVariant, variantID)
	}

	v.mu.Lock()
	switch eventType {
	case EventView:
		v.views++
	case EventConversion:
		v.conversions++
	case EventBounce:
		v.bounces++
	default:
		v.mu.Unlock()
		t.mu.RUnlock()
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidConfig, eventType)
	}
	v.mu.Unlock()

	var totalViews int64
	for _, variant := range t.variants {
		views, _, _ := variant.snapshot()
		totalViews += views
	}
	required := int64(t.requiredSampleSize)
	t.mu.RUnlock()

	if totalViews >= required {
		if _, err := o.StopTest(ctx, testID, sampleSizeReachedReason); err != nil {
			return err
		}
	}
	return nil
}

// GetResults returns the evaluated state of a test: a live snapshot while
// running, the frozen final results once terminal.
func (o *Orchestrator) GetResults(testID string) (*TestResults, error) {
	t, err := o.lookup(testID)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.finalResults != nil {
		return t.finalResults, nil
	}
	results := t.evaluateLocked()
	return &results, nil
}

// Info returns the lifecycle snapshot of a test.
func (o *Orchestrator) Info(testID string) (*TestInfo, error) {
	t, err := o.lookup(testID)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return &TestInfo{
		TestID:             t.id,
		Config:             t.cfg,
		Status:             t.status,
		RequiredSampleSize: t.requiredSampleSize,
		CreatedAt:          t.createdAt,
		StartedAt:          t.startedAt,
		ExpectedCompletion: t.expectedCompletion,
		CompletedAt:        t.completedAt,
	}, nil
}

// StopTest transitions a running test to its terminal state, freezing the
// final results. Idempotent: a second call returns the same frozen results
// and retains only the first call's reason and completion time. The status
// is "completed" when the sample size was reached and "stopped" for every
// other reason.
func (o *Orchestrator) StopTest(ctx context.Context, testID, reason string) (*TestResults, error) {
	t, err := o.lookup(testID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	switch t.status {
	case StatusCompleted, StatusStopped:
		results := t.finalResults
		t.mu.Unlock()
		return results, nil
	case StatusRunning:
	default:
		status := t.status
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop test in status %q", ErrInvalidTransition, status)
	}

	now := time.Now().UTC()
	if reason == sampleSizeReachedReason {
		t.status = StatusCompleted
	} else {
		t.status = StatusStopped
	}
	t.completedAt = &now
	t.stopReason = reason

	results := t.evaluateLocked()
	results.StopReason = reason
	results.Status = t.status
	t.finalResults = &results
	finalStatus := t.status

	cancel := t.cancelMonitor
	t.cancelMonitor = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if o.audit != nil {
		if payload, marshalErr := json.Marshal(results); marshalErr == nil {
			if auditErr := o.audit.RecordTestResult(ctx, testID, payload); auditErr != nil {
				o.logger.Warn("Failed to audit test result",
					zap.String("test_id", testID),
					zap.Error(auditErr))
			}
		}
	}

	o.logger.Info("Stopped ab test",
		zap.String("test_id", testID),
		zap.String("status", string(finalStatus)),
		zap.String("reason", reason),
		zap.String("winner", results.WinnerID))
	return &results, nil
}

// FailTest marks a draft or running test as failed, freezing its counters
// without declaring a winner. Used when an experiment is invalidated
// mid-flight, e.g. a deploy broke the traffic split or a rollback criterion
// fired. Idempotent on an already-failed test; a completed or stopped test
// cannot be retroactively failed.
func (o *Orchestrator) FailTest(ctx context.Context, testID, reason string) (*TestResults, error) {
	t, err := o.lookup(testID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	switch t.status {
	case StatusFailed:
		results := t.finalResults
		t.mu.Unlock()
		return results, nil
	case StatusDraft, StatusRunning:
	default:
		status := t.status
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot fail test in status %q", ErrInvalidTransition, status)
	}

	now := time.Now().UTC()
	t.status = StatusFailed
	t.completedAt = &now
	t.stopReason = reason

	results := t.evaluateLocked()
	results.StopReason = reason
	// An invalidated experiment never declares a winner.
	results.WinnerID = ""
	for i := range results.Variants {
		results.Variants[i].IsWinner = false
	}
	t.finalResults = &results

	cancel := t.cancelMonitor
	t.cancelMonitor = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if o.audit != nil {
		if payload, marshalErr := json.Marshal(results); marshalErr == nil {
			if auditErr := o.audit.RecordTestResult(ctx, testID, payload); auditErr != nil {
				o.logger.Warn("Failed to audit test result",
					zap.String("test_id", testID),
					zap.Error(auditErr))
			}
		}
	}

	o.logger.Warn("Failed ab test",
		zap.String("test_id", testID),
		zap.String("reason", reason))
	return &results, nil
}

// evaluateLocked computes the significance results. Caller holds t.mu in at
// least read mode.
func (t *test) evaluateLocked() TestResults {
	confidence := 1 - t.cfg.SignificanceLevel

	var control *variantState
	for _, v := range t.variants {
		if v.cfg.IsControl {
			control = v
		}
	}

	controlViews, controlConversions, _ := control.snapshot()

	results := TestResults{
		TestID:     t.id,
		Status:     t.status,
		ComputedAt: time.Now().UTC(),
		Variants:   make([]VariantResult, 0, len(t.variants)),
	}

	bestRate := -1.0
	bestIdx := -1
	for _, vc := range t.cfg.Variants {
		v := t.variants[vc.ID]
		views, conversions, bounces := v.snapshot()
		results.TotalViews += views

		vr := VariantResult{
			VariantID:   vc.ID,
			IsControl:   vc.IsControl,
			Views:       views,
			Conversions: conversions,
			Bounces:     bounces,
		}
		if views > 0 {
			vr.ConversionRate = float64(conversions) / float64(views)
		}
		lo, hi := stats.ConfidenceInterval(int(conversions), int(views), confidence)
		vr.ConfidenceInterval = [2]float64{lo, hi}

		if !vc.IsControl {
			test := stats.TwoProportionTest(
				int(controlViews), int(controlConversions),
				int(views), int(conversions),
				confidence)
			vr.ZScore = test.ZScore
			vr.PValue = test.PValue
			vr.Significant = test.Significant
		}

		results.Variants = append(results.Variants, vr)
		if vr.ConversionRate > bestRate {
			bestRate = vr.ConversionRate
			bestIdx = len(results.Variants) - 1
		}
	}

	// The best observed rate only wins if its pairwise test against
	// control is significant; control itself is never a winner.
	if bestIdx >= 0 {
		best := &results.Variants[bestIdx]
		if !best.IsControl && best.Significant {
			best.IsWinner = true
			results.WinnerID = best.VariantID
		}
	}

	return results
}

func (o *Orchestrator) lookup(testID string) (*test, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTestNotFound, testID)
	}
	return t, nil
}
