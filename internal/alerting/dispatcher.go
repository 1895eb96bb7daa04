// Package alerting delivers violation predictions over the configured
// notification channels with per-key suppression windows, per-channel
// timeouts and circuit breaking.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/resilience"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// Observer receives per-prediction delivery outcomes. Implementations must
// not block; they run inline with dispatch.
type Observer interface {
	AlertSuppressed(ctx context.Context, workflowID string, violationType types.ViolationType)
	AlertDispatched(ctx context.Context, workflowID string, violationType types.ViolationType, outcomes map[types.AlertChannel]bool)
}

// Dispatcher fans predictions out to notification channels. Failures are
// isolated per channel; the per-channel result map lets the caller detect
// total delivery failure and escalate.
type Dispatcher struct {
	cfg         config.AlertingConfig
	notifiers   []types.Notifier
	breakers    map[types.AlertChannel]*resilience.Breaker
	suppression *cache.Cache
	observer    Observer
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channels. The
// suppression cache evicts entries itself once the window elapses.
func NewDispatcher(cfg config.AlertingConfig, notifiers []types.Notifier, logger *zap.Logger) *Dispatcher {
	breakers := make(map[types.AlertChannel]*resilience.Breaker, len(notifiers))
	for _, n := range notifiers {
		breakers[n.Channel()] = resilience.NewBreaker(string(n.Channel()), resilience.DefaultBreakerConfig(), logger)
	}

	return &Dispatcher{
		cfg:         cfg,
		notifiers:   notifiers,
		breakers:    breakers,
		suppression: cache.New(cfg.SuppressionWindow, cfg.SuppressionWindow/2),
		logger:      logger.Named("alerting"),
	}
}

// SendPredictionAlerts dispatches alerts for the given predictions. Each
// prediction is gated by the alerting confidence threshold and by the
// per-(workflow, violation type) suppression window; surviving alerts are
// attempted on every channel independently. The result maps each channel to
// whether at least one payload was delivered on it.
func (d *Dispatcher) SendPredictionAlerts(ctx context.Context, workflowID string, predictions []types.SLAPrediction) map[types.AlertChannel]bool {
	results := make(map[types.AlertChannel]bool, len(d.notifiers))
	for _, n := range d.notifiers {
		results[n.Channel()] = false
	}

	for _, prediction := range predictions {
		if prediction.ConfidenceScore < d.cfg.ConfidenceThreshold {
			d.logger.Debug("Alert below confidence threshold",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(prediction.ViolationType)),
				zap.Float64("confidence", prediction.ConfidenceScore))
			continue
		}

		key := suppressionKey(workflowID, prediction.ViolationType)
		if _, suppressed := d.suppression.Get(key); suppressed {
			d.logger.Info("Alert suppressed within rate-limit window",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(prediction.ViolationType)))
			if d.observer != nil {
				d.observer.AlertSuppressed(ctx, workflowID, prediction.ViolationType)
			}
			continue
		}
		d.suppression.SetDefault(key, time.Now())

		payload := types.AlertPayload{
			WorkflowID: workflowID,
			Prediction: prediction,
			Summary: fmt.Sprintf("predicted %s violation for workflow %s (probability %.0f%%)",
				prediction.ViolationType, workflowID, prediction.Probability*100),
			IssuedAt: time.Now().UTC(),
		}

		outcomes := make(map[types.AlertChannel]bool, len(d.notifiers))
		for _, n := range d.notifiers {
			delivered := d.sendOne(ctx, n, payload)
			outcomes[n.Channel()] = delivered
			if delivered {
				results[n.Channel()] = true
			}
		}
		if d.observer != nil {
			d.observer.AlertDispatched(ctx, workflowID, prediction.ViolationType, outcomes)
		}
	}

	return results
}

// SetObserver registers a delivery observer. Call before dispatching.
func (d *Dispatcher) SetObserver(obs Observer) {
	d.observer = obs
}

// sendOne attempts one payload on one channel under its timeout and breaker.
func (d *Dispatcher) sendOne(ctx context.Context, n types.Notifier, payload types.AlertPayload) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
	defer cancel()

	err := d.breakers[n.Channel()].Do(func() error {
		return n.Send(sendCtx, payload)
	})
	if err != nil {
		d.logger.Warn("Alert channel delivery failed",
			zap.String("channel", string(n.Channel())),
			zap.String("workflow_id", payload.WorkflowID),
			zap.Error(err))
		return false
	}
	return true
}

// ChannelStats exposes the breaker state per channel for diagnostics.
func (d *Dispatcher) ChannelStats() map[types.AlertChannel]resilience.BreakerStats {
	stats := make(map[types.AlertChannel]resilience.BreakerStats, len(d.breakers))
	for ch, b := range d.breakers {
		stats[ch] = b.Stats()
	}
	return stats
}

func suppressionKey(workflowID string, vt types.ViolationType) string {
	return workflowID + "|" + string(vt)
}
