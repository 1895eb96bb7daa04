// Package scaling maps high-confidence violation predictions to bounded,
// reversible capacity changes with cooldown windows and manual overrides.
package scaling

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// resourceMapping fixes which resource mitigates each violation type.
// Types with no automatable mitigation (pr_review_time, task_completion)
// are absent and skipped during evaluation.
var resourceMapping = map[types.ViolationType]types.ResourceType{
	types.ViolationBuildTime:     types.ResourceBuildAgents,
	types.ViolationDeployTime:    types.ResourceAPIInstances,
	types.ViolationTestExecution: types.ResourceWorkerNodes,
	types.ViolationAgentResponse: types.ResourceDBConnections,
}

// overrideKey identifies a manual override flag.
type overrideKey struct {
	resource types.ResourceType
	action   types.ScalingAction
}

// resourceState tracks the live capacity and cooldown anchor per resource.
type resourceState struct {
	cfg        config.ResourceConfig
	capacity   int
	lastAction time.Time
}

// Controller owns scaling evaluation, execution, history and rollback.
// State is process-local; running multiple replicas requires centralizing
// cooldown and history or two replicas can bypass each other's cooldowns.
type Controller struct {
	cfg    config.ScalingConfig
	plane  types.ControlPlane
	audit  types.AuditSink
	logger *zap.Logger

	mu        sync.Mutex
	resources map[types.ResourceType]*resourceState
	overrides map[overrideKey]bool
	history   []types.ScalingDecision
	executed  map[string]bool
}

// NewController creates a controller seeded with the configured capacity
// ranges and any startup overrides. audit may be nil.
func NewController(cfg config.ScalingConfig, plane types.ControlPlane, audit types.AuditSink, logger *zap.Logger) *Controller {
	resources := make(map[types.ResourceType]*resourceState, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		resources[rc.Resource] = &resourceState{cfg: rc, capacity: rc.InitialCapacity}
	}

	overrides := make(map[overrideKey]bool)
	for _, oc := range cfg.Overrides {
		overrides[overrideKey{oc.Resource, oc.Action}] = oc.Enabled
	}

	return &Controller{
		cfg:       cfg,
		plane:     plane,
		audit:     audit,
		logger:    logger.Named("scaling"),
		resources: resources,
		overrides: overrides,
		executed:  make(map[string]bool),
	}
}

// EvaluateScalingDecisions turns qualifying predictions into bounded
// scale-up decisions. Predictions are skipped, not errored, when the type
// has no mapped resource, the probability is below the gate, the resource
// is cooling down, an override blocks the action, or the bounded target
// would be a no-op.
func (c *Controller) EvaluateScalingDecisions(predictions []types.SLAPrediction) []types.ScalingDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	var decisions []types.ScalingDecision

	for _, p := range predictions {
		resource, mapped := resourceMapping[p.ViolationType]
		if !mapped {
			continue
		}
		if p.Probability < c.cfg.ProbabilityThreshold {
			continue
		}

		state, ok := c.resources[resource]
		if !ok {
			c.logger.Warn("No capacity range configured for resource",
				zap.String("resource", string(resource)))
			continue
		}

		if c.inCooldownLocked(state, now) {
			c.logger.Debug("Resource in cooldown window",
				zap.String("resource", string(resource)))
			continue
		}
		if c.overrides[overrideKey{resource, types.ActionScaleUp}] {
			c.logger.Info("Manual override blocks scale-up evaluation",
				zap.String("resource", string(resource)))
			continue
		}

		target := int(math.Min(
			math.Ceil(float64(state.capacity)*c.cfg.ScaleFactor),
			float64(state.cfg.MaxCapacity)))
		if target <= state.capacity {
			continue
		}

		decisions = append(decisions, types.ScalingDecision{
			ResourceType:    resource,
			Action:          types.ActionScaleUp,
			CurrentCapacity: state.capacity,
			TargetCapacity:  target,
			Justification: fmt.Sprintf("predicted %s violation with probability %.2f",
				p.ViolationType, p.Probability),
			Confidence:     p.ConfidenceScore,
			ExecutionTime:  now,
			IdempotencyKey: uuid.NewString(),
		})
	}

	return decisions
}

// ExecuteScalingDecision applies one decision through the control plane.
// Returns false without side effects when an override blocks the action or
// the target violates the resource's bounds; a decision already executed
// under its idempotency key reports success without re-scaling. Control
// plane failures leave history untouched so cooldown tracking never records
// a phantom change.
func (c *Controller) ExecuteScalingDecision(ctx context.Context, decision types.ScalingDecision) bool {
	c.mu.Lock()

	if c.executed[decision.IdempotencyKey] {
		c.mu.Unlock()
		c.logger.Info("Decision already executed, skipping",
			zap.String("idempotency_key", decision.IdempotencyKey))
		return true
	}

	if c.overrides[overrideKey{decision.ResourceType, decision.Action}] {
		c.mu.Unlock()
		c.logger.Info("Manual override blocks execution",
			zap.String("resource", string(decision.ResourceType)),
			zap.String("action", string(decision.Action)))
		return false
	}

	state, ok := c.resources[decision.ResourceType]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if decision.TargetCapacity < state.cfg.MinCapacity || decision.TargetCapacity > state.cfg.MaxCapacity {
		c.mu.Unlock()
		c.logger.Warn("Decision target outside configured bounds",
			zap.String("resource", string(decision.ResourceType)),
			zap.Int("target", decision.TargetCapacity))
		return false
	}
	c.mu.Unlock()

	if err := c.plane.SetCapacity(ctx, decision.ResourceType, decision.TargetCapacity); err != nil {
		c.logger.Error("Control plane rejected capacity change",
			zap.String("resource", string(decision.ResourceType)),
			zap.Int("target", decision.TargetCapacity),
			zap.Error(err))
		return false
	}

	c.mu.Lock()
	state.capacity = decision.TargetCapacity
	state.lastAction = time.Now().UTC()
	c.executed[decision.IdempotencyKey] = true
	c.appendHistoryLocked(decision)
	c.mu.Unlock()

	if c.audit != nil {
		if err := c.audit.RecordScalingDecision(ctx, decision); err != nil {
			c.logger.Warn("Failed to audit scaling decision", zap.Error(err))
		}
	}

	c.logger.Info("Executed scaling decision",
		zap.String("resource", string(decision.ResourceType)),
		zap.String("action", string(decision.Action)),
		zap.Int("from", decision.CurrentCapacity),
		zap.Int("to", decision.TargetCapacity))
	return true
}

// RollbackScalingAction synthesizes and executes the inverse of a previously
// executed decision, restoring its original capacity. The rollback is not
// subject to the cooldown window but is still gated by overrides and bounds.
func (c *Controller) RollbackScalingAction(ctx context.Context, decision types.ScalingDecision) bool {
	if decision.Action == types.ActionNone {
		return false
	}

	now := time.Now().UTC()
	inverse := types.ScalingDecision{
		ResourceType:    decision.ResourceType,
		Action:          decision.Action.Inverse(),
		CurrentCapacity: decision.TargetCapacity,
		TargetCapacity:  decision.CurrentCapacity,
		Justification:   fmt.Sprintf("rollback of %s", decision.IdempotencyKey),
		Confidence:      decision.Confidence,
		ExecutionTime:   now,
		RollbackTime:    &now,
		IdempotencyKey:  uuid.NewString(),
	}

	return c.ExecuteScalingDecision(ctx, inverse)
}

// SetManualOverride toggles the override flag for a (resource, action)
// pair. An enabled override blocks both evaluation and execution.
func (c *Controller) SetManualOverride(resource types.ResourceType, action types.ScalingAction, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[overrideKey{resource, action}] = enabled
	c.logger.Info("Manual override changed",
		zap.String("resource", string(resource)),
		zap.String("action", string(action)),
		zap.Bool("enabled", enabled))
}

// History returns a copy of the executed decision history, oldest first.
func (c *Controller) History() []types.ScalingDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ScalingDecision, len(c.history))
	copy(out, c.history)
	return out
}

// Capacity returns the tracked capacity of a resource.
func (c *Controller) Capacity(resource types.ResourceType) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.resources[resource]
	if !ok {
		return 0, false
	}
	return state.capacity, true
}

func (c *Controller) inCooldownLocked(state *resourceState, now time.Time) bool {
	return !state.lastAction.IsZero() && now.Sub(state.lastAction) < c.cfg.Cooldown
}

// appendHistoryLocked appends under c.mu, trimming to the configured limit.
func (c *Controller) appendHistoryLocked(decision types.ScalingDecision) {
	c.history = append(c.history, decision)
	if limit := c.cfg.HistoryLimit; limit > 0 && len(c.history) > limit {
		c.history = c.history[len(c.history)-limit:]
	}
}
