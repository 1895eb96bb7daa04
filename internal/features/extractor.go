// Package features turns raw historical performance samples and current
// system state into the fixed-length numeric vectors consumed by the
// violation classifier.
package features

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// Extractor builds feature vectors per (workflow, violation type) pair. It
// is side-effect free: a pure function of its inputs plus one read against
// historical storage.
type Extractor struct {
	cfg    config.PredictionConfig
	store  types.SampleStore
	state  types.StateProvider
	logger *zap.Logger
}

// NewExtractor creates a feature extractor.
func NewExtractor(cfg config.PredictionConfig, store types.SampleStore, state types.StateProvider, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		store:  store,
		state:  state,
		logger: logger,
	}
}

// Extract returns the feature vector for one violation type, or (nil, nil)
// when the workflow has no history for it. Storage errors are returned to
// the caller, which treats them as "skip this violation type".
func (e *Extractor) Extract(ctx context.Context, workflowID string, violationType types.ViolationType, now time.Time) (*types.FeatureVector, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ExtractionTimeout)
	defer cancel()

	since := now.Add(-e.cfg.LookbackWindow)
	samples, err := e.store.QuerySamples(ctx, workflowID, violationType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	if len(samples) == 0 {
		e.logger.Debug("No history for violation type",
			zap.String("workflow_id", workflowID),
			zap.String("violation_type", string(violationType)))
		return nil, nil
	}

	// Window to the most recent N points.
	if len(samples) > e.cfg.SampleWindow {
		samples = samples[len(samples)-e.cfg.SampleWindow:]
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	threshold := e.cfg.Thresholds[violationType]
	recentViolations, err := e.store.CountViolations(ctx, workflowID, violationType, threshold, now.Add(-e.cfg.RecentViolationWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent violations: %w", err)
	}

	state, err := e.state.SystemState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read system state: %w", err)
	}

	fv := &types.FeatureVector{
		CurrentLoad:           clamp01(float64(state.ActiveWorkflows) / float64(e.cfg.CapacityCeiling)),
		HourOfDay:             float64(now.Hour()),
		DayOfWeek:             float64(now.Weekday()),
		RecentViolationCount:  float64(recentViolations),
		HistoricalMean:        mean(values),
		HistoricalStdDev:      stddev(values),
		HistoricalTrendSlope:  trendSlope(values),
		CPUUsage:              clamp01(state.CPUUsage),
		MemoryUsage:           clamp01(state.MemoryUsage),
		DBConnectionUsage:     clamp01(state.DBConnectionUsage),
		ViolationTypeEncoding: TypeEncoding(violationType),
	}

	if err := fv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature vector: %w", err)
	}
	return fv, nil
}

// TypeEncoding maps a violation type to a stable scalar in [0,1). The value
// only needs to be distinct and stable per type, not ordered.
func TypeEncoding(violationType types.ViolationType) float64 {
	h := fnv.New32a()
	h.Write([]byte(violationType))
	return float64(h.Sum32()%1000) / 1000.0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// trendSlope is the least-squares slope over sample index, a cheap signal
// for whether the metric is drifting toward its threshold.
func trendSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
