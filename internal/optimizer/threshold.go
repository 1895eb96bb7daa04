// Package optimizer turns historical performance distributions into
// advisory SLA threshold recommendations. Recommendations are never
// committed here; an external threshold-management layer decides.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// ServiceSampleStore reads the service-wide sample distribution for one
// violation type.
type ServiceSampleStore interface {
	QueryServiceSamples(ctx context.Context, violationType types.ViolationType, since time.Time) ([]types.PerformanceSample, error)
}

// ModelVersioner reports the deployed classifier version stamped onto each
// recommendation.
type ModelVersioner interface {
	ModelVersion() string
}

// Optimizer recommends SLA threshold changes per service type.
type Optimizer struct {
	cfg        config.OptimizerConfig
	thresholds map[types.ViolationType]float64
	store      ServiceSampleStore
	model      ModelVersioner
	logger     *zap.Logger
}

// New creates a threshold optimizer. thresholds holds the currently
// configured SLA value per violation type.
func New(
	cfg config.OptimizerConfig,
	thresholds map[types.ViolationType]float64,
	store ServiceSampleStore,
	model ModelVersioner,
	logger *zap.Logger,
) *Optimizer {
	return &Optimizer{
		cfg:        cfg,
		thresholds: thresholds,
		store:      store,
		model:      model,
		logger:     logger,
	}
}

// distribution holds the descriptive statistics of a service's history.
type distribution struct {
	count    int
	mean     float64
	median   float64
	stddev   float64
	skewness float64
	p85      float64
	p90      float64
	p95      float64
	p99      float64
	sorted   []float64
}

// RecommendThreshold analyzes the service's historical distribution and
// proposes a new threshold for the given objective. The recommendation is
// advisory and immutable once returned.
func (o *Optimizer) RecommendThreshold(ctx context.Context, serviceType types.ViolationType, objective types.OptimizationObjective) (types.ThresholdRecommendation, error) {
	if !serviceType.Valid() {
		return types.ThresholdRecommendation{}, fmt.Errorf("unknown service type %q", serviceType)
	}

	current, ok := o.thresholds[serviceType]
	if !ok {
		return types.ThresholdRecommendation{}, fmt.Errorf("no configured threshold for %q", serviceType)
	}

	since := time.Now().Add(-o.cfg.LookbackWindow)
	samples, err := o.store.QueryServiceSamples(ctx, serviceType, since)
	if err != nil {
		return types.ThresholdRecommendation{}, fmt.Errorf("failed to load history: %w", err)
	}
	if len(samples) < o.cfg.MinSamples {
		return types.ThresholdRecommendation{}, fmt.Errorf("insufficient history for %q: %d samples, need %d",
			serviceType, len(samples), o.cfg.MinSamples)
	}

	dist := describe(samples)
	candidate := candidateThreshold(dist, objective)
	violationRate := empiricalViolationRate(dist.sorted, candidate)
	currentRate := empiricalViolationRate(dist.sorted, current)

	confidence := confidenceScore(dist)
	deviation := relativeDeviation(current, candidate)
	risk := implementationRisk(confidence, deviation)

	rec := types.ThresholdRecommendation{
		ServiceType:          serviceType,
		CurrentThreshold:     current,
		RecommendedThreshold: candidate,
		Rationale:            buildRationale(dist, objective, candidate, currentRate, violationRate),
		PredictedOutcomes: types.PredictedOutcomes{
			ExpectedViolationRate: violationRate,
			ReliabilityDelta:      currentRate - violationRate,
			TeamStressDelta:       stressDelta(objective, currentRate, violationRate),
			CostDelta:             costDelta(current, candidate),
			SatisfactionDelta:     (currentRate - violationRate) * 0.5,
		},
		ConfidenceScore:    confidence,
		ImplementationRisk: risk,
		RollbackCriteria:   rollbackCriteria(candidate, violationRate),
		Timestamp:          time.Now().UTC(),
		ModelVersion:       o.model.ModelVersion(),
	}

	o.logger.Info("Produced threshold recommendation",
		zap.String("service_type", string(serviceType)),
		zap.String("objective", string(objective)),
		zap.Float64("current", current),
		zap.Float64("recommended", candidate),
		zap.String("risk", string(risk)))

	return rec, nil
}

// describe computes the descriptive statistics of the sample distribution.
func describe(samples []types.PerformanceSample) distribution {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	sort.Float64s(values)

	n := len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sumSq, sumCube float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
		sumCube += d * d * d
	}
	variance := sumSq / float64(n)
	stddev := math.Sqrt(variance)

	var skewness float64
	if stddev > 0 {
		skewness = (sumCube / float64(n)) / math.Pow(stddev, 3)
	}

	return distribution{
		count:    n,
		mean:     mean,
		median:   percentile(values, 0.50),
		stddev:   stddev,
		skewness: skewness,
		p85:      percentile(values, 0.85),
		p90:      percentile(values, 0.90),
		p95:      percentile(values, 0.95),
		p99:      percentile(values, 0.99),
		sorted:   values,
	}
}

// percentile interpolates linearly between closest ranks; values must be
// sorted ascending.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// candidateThreshold picks the percentile strategy matching the objective:
// tighter thresholds surface more violations, looser ones absorb the tail.
func candidateThreshold(dist distribution, objective types.OptimizationObjective) float64 {
	switch objective {
	case types.ObjectiveMinimizeViolations:
		return dist.p99
	case types.ObjectiveMaximizeReliability:
		return dist.p85
	case types.ObjectiveMinimizeTeamStress:
		return dist.p95
	default:
		return dist.p90
	}
}

// empiricalViolationRate is the fraction of historical samples exceeding
// the candidate; sorted must be ascending.
func empiricalViolationRate(sorted []float64, threshold float64) float64 {
	idx := sort.SearchFloat64s(sorted, threshold)
	for idx < len(sorted) && sorted[idx] == threshold {
		idx++
	}
	return float64(len(sorted)-idx) / float64(len(sorted))
}

// confidenceScore grows with sample count and shrinks with relative
// dispersion. Bounded to [0.3, 0.95]: never certain, never useless.
func confidenceScore(dist distribution) float64 {
	sizeFactor := math.Min(float64(dist.count)/500.0, 1.0)

	var stability float64 = 1.0
	if dist.mean > 0 {
		cv := dist.stddev / dist.mean
		stability = math.Max(0, 1.0-cv)
	}

	score := 0.3 + 0.65*(0.6*sizeFactor+0.4*stability)
	return math.Min(score, 0.95)
}

func relativeDeviation(current, candidate float64) float64 {
	if current == 0 {
		return 1
	}
	return math.Abs(candidate-current) / current
}

// implementationRisk derives inversely from confidence and directly from
// how far the candidate moves the threshold.
func implementationRisk(confidence, deviation float64) types.RiskLevel {
	switch {
	case confidence >= 0.8 && deviation <= 0.2:
		return types.RiskLow
	case confidence >= 0.6 && deviation <= 0.5:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

func stressDelta(objective types.OptimizationObjective, currentRate, newRate float64) float64 {
	delta := currentRate - newRate
	if objective == types.ObjectiveMinimizeTeamStress {
		delta *= 1.5
	}
	return delta
}

// costDelta approximates operational cost impact: loosening a threshold
// reduces paging cost, tightening raises it.
func costDelta(current, candidate float64) float64 {
	if current == 0 {
		return 0
	}
	return (current - candidate) / current
}

// rollbackCriteria emits mechanically evaluatable threshold-comparison
// expressions; the list is never empty.
func rollbackCriteria(candidate, expectedRate float64) []string {
	tolerated := math.Min(expectedRate*2+0.02, 0.5)
	return []string{
		fmt.Sprintf("violation_rate > %.3f", tolerated),
		fmt.Sprintf("p99_latency > %.2f", candidate*1.5),
		"sustained_breach_minutes > 60",
	}
}

func buildRationale(dist distribution, objective types.OptimizationObjective, candidate float64, currentRate, newRate float64) types.OptimizationRationale {
	return types.OptimizationRationale{
		StatisticalBasis: fmt.Sprintf(
			"n=%d samples, mean=%.2f, median=%.2f, stddev=%.2f, skewness=%.2f, p85=%.2f p90=%.2f p95=%.2f p99=%.2f",
			dist.count, dist.mean, dist.median, dist.stddev, dist.skewness,
			dist.p85, dist.p90, dist.p95, dist.p99),
		ReliabilityImpact: fmt.Sprintf(
			"expected violation rate changes from %.1f%% to %.1f%% of observed samples",
			currentRate*100, newRate*100),
		Achievability: fmt.Sprintf(
			"threshold %.2f is met by %.1f%% of the observed distribution",
			candidate, (1-newRate)*100),
		BusinessJustification: businessJustification(objective),
	}
}

func businessJustification(objective types.OptimizationObjective) string {
	switch objective {
	case types.ObjectiveMinimizeViolations:
		return "fewer SLA breaches reduce contractual penalty exposure"
	case types.ObjectiveMaximizeReliability:
		return "tighter targets surface regressions before customers notice them"
	case types.ObjectiveMinimizeTeamStress:
		return "achievable targets reduce alert fatigue and after-hours paging"
	default:
		return "balances breach exposure against sustainable operational load"
	}
}
