// Package prediction orchestrates feature extraction and classifier
// inference across all tracked violation types, filters the results by
// confidence, and hands surviving predictions to the alert path.
package prediction

import (
	"context"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/features"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// Classifier is the trained model surface the engine consumes.
type Classifier interface {
	Predict(fv types.FeatureVector) (probability, confidence float64, err error)
	Accuracy() map[types.ViolationType]float64
}

// AlertSender delivers alerts for filtered predictions. Implemented by the
// alerting dispatcher; nil disables the alert side effect.
type AlertSender interface {
	SendPredictionAlerts(ctx context.Context, workflowID string, predictions []types.SLAPrediction) map[types.AlertChannel]bool
}

// Engine produces SLA violation predictions per workflow.
type Engine struct {
	cfg        config.PredictionConfig
	extractor  *features.Extractor
	classifier Classifier
	alerts     AlertSender
	audit      types.AuditSink
	onFailure  func(types.ViolationType)
	logger     *zap.Logger
}

// NewEngine creates a prediction engine. alerts and audit may be nil.
func NewEngine(
	cfg config.PredictionConfig,
	extractor *features.Extractor,
	cls Classifier,
	alerts AlertSender,
	audit types.AuditSink,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		extractor:  extractor,
		classifier: cls,
		alerts:     alerts,
		audit:      audit,
		logger:     logger,
	}
}

// PredictViolations runs the full extract-classify-filter pipeline for every
// tracked violation type of a workflow. A failure for one violation type is
// logged and skipped without aborting the others; a workflow with no history
// yields an empty list. Surviving predictions are dispatched as alerts
// before the call returns.
func (e *Engine) PredictViolations(ctx context.Context, workflowID string) ([]types.SLAPrediction, error) {
	now := time.Now().UTC()
	predictions := make([]types.SLAPrediction, 0, len(types.AllViolationTypes()))

	accuracy := e.classifier.Accuracy()

	for _, vt := range types.AllViolationTypes() {
		fv, err := e.extractor.Extract(ctx, workflowID, vt, now)
		if err != nil {
			e.logger.Warn("Feature extraction failed, skipping violation type",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(vt)),
				zap.Error(err))
			e.observeFailure(vt)
			continue
		}
		if fv == nil {
			e.logger.Debug("No history for violation type",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(vt)))
			continue
		}

		probability, confidence, err := e.classifier.Predict(*fv)
		if err != nil {
			e.logger.Warn("Classification failed, skipping violation type",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(vt)),
				zap.Error(err))
			e.observeFailure(vt)
			continue
		}

		if confidence < e.cfg.ConfidenceThreshold {
			e.logger.Debug("Prediction below confidence threshold",
				zap.String("workflow_id", workflowID),
				zap.String("violation_type", string(vt)),
				zap.Float64("confidence", confidence))
			continue
		}

		prediction := types.SLAPrediction{
			ViolationType:      vt,
			Probability:        probability,
			ConfidenceScore:    confidence,
			PredictedTime:      now.Add(e.cfg.Lookahead),
			RecommendedActions: recommendActions(vt, probability, *fv),
			HistoricalAccuracy: accuracy[vt],
		}
		predictions = append(predictions, prediction)

		if e.audit != nil {
			if auditErr := e.audit.RecordPrediction(ctx, workflowID, prediction); auditErr != nil {
				e.logger.Warn("Failed to audit prediction", zap.Error(auditErr))
			}
		}
	}

	if len(predictions) > 0 && e.alerts != nil {
		delivered := e.alerts.SendPredictionAlerts(ctx, workflowID, predictions)
		e.logger.Info("Dispatched prediction alerts",
			zap.String("workflow_id", workflowID),
			zap.Int("predictions", len(predictions)),
			zap.Any("channels", delivered))
	}

	return predictions, nil
}

// SetFailureObserver registers a callback for per-type pipeline failures
// dropped from a prediction pass. Call before predicting.
func (e *Engine) SetFailureObserver(fn func(types.ViolationType)) {
	e.onFailure = fn
}

func (e *Engine) observeFailure(vt types.ViolationType) {
	if e.onFailure != nil {
		e.onFailure(vt)
	}
}

// Accuracy exposes the per-type historical accuracy table of the deployed
// model.
func (e *Engine) Accuracy() map[types.ViolationType]float64 {
	return e.classifier.Accuracy()
}
