package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// Trace operation names
	TracePrediction         = "sla.prediction.predict"
	TraceFeatureExtraction  = "sla.features.extract"
	TraceModelRetrain       = "sla.model.retrain"
	TraceThresholdRecommend = "sla.threshold.recommend"
	TraceScalingExecution   = "sla.scaling.execute"
	TraceABTestEvaluation   = "sla.abtest.evaluate"
	TraceAlertDispatch      = "sla.alert.dispatch"

	// Attribute keys
	AttrWorkflowID    = "sla.workflow.id"
	AttrViolationType = "sla.violation.type"
	AttrModelVersion  = "sla.model.version"
	AttrResourceType  = "sla.scaling.resource"
	AttrScalingAction = "sla.scaling.action"
	AttrTestID        = "sla.abtest.id"
	AttrMetricName    = "sla.threshold.metric"
	AttrErrorType     = "sla.error.type"
)

// TraceHelper provides helper methods for creating traces
type TraceHelper struct {
	tracer oteltrace.Tracer
}

// NewTraceHelper creates a new trace helper
func NewTraceHelper(serviceName string) *TraceHelper {
	return &TraceHelper{
		tracer: otel.Tracer(serviceName),
	}
}

// StartSpan starts a new tracing span with common attributes
func (th *TraceHelper) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return th.tracer.Start(ctx, operationName, oteltrace.WithAttributes(attrs...))
}

// RecordError records an error on the span
func (th *TraceHelper) RecordError(span oteltrace.Span, err error, description string) {
	if err != nil {
		span.SetStatus(codes.Error, description)
		span.RecordError(err, oteltrace.WithAttributes(
			attribute.String(AttrErrorType, description),
		))
	}
}

// SetSpanSuccess marks span as successful
func (th *TraceHelper) SetSpanSuccess(span oteltrace.Span) {
	span.SetStatus(codes.Ok, "Success")
}

// TracePredictionFunc traces a prediction pass for a workflow
func (th *TraceHelper) TracePredictionFunc(ctx context.Context, workflowID string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TracePrediction,
		attribute.String(AttrWorkflowID, workflowID),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "prediction failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TraceModelRetrainFunc traces a model retraining run
func (th *TraceHelper) TraceModelRetrainFunc(ctx context.Context, modelVersion string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TraceModelRetrain,
		attribute.String(AttrModelVersion, modelVersion),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "model retraining failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TraceScalingExecutionFunc traces execution of a scaling decision
func (th *TraceHelper) TraceScalingExecutionFunc(ctx context.Context, resource, action string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TraceScalingExecution,
		attribute.String(AttrResourceType, resource),
		attribute.String(AttrScalingAction, action),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "scaling execution failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TraceThresholdRecommendFunc traces a threshold recommendation run
func (th *TraceHelper) TraceThresholdRecommendFunc(ctx context.Context, metricName string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TraceThresholdRecommend,
		attribute.String(AttrMetricName, metricName),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "threshold recommendation failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TraceABTestEvaluationFunc traces statistical evaluation of an A/B test
func (th *TraceHelper) TraceABTestEvaluationFunc(ctx context.Context, testID string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TraceABTestEvaluation,
		attribute.String(AttrTestID, testID),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "ab test evaluation failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// GetTraceHelper returns a trace helper instance from telemetry service
func (s *Service) GetTraceHelper() *TraceHelper {
	if !s.config.Enabled {
		return &TraceHelper{tracer: otel.Tracer("noop")}
	}
	return &TraceHelper{tracer: s.tracer}
}
