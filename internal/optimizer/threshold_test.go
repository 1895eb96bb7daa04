package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

type stubServiceStore struct {
	samples []types.PerformanceSample
	err     error
}

func (s *stubServiceStore) QueryServiceSamples(context.Context, types.ViolationType, time.Time) ([]types.PerformanceSample, error) {
	return s.samples, s.err
}

type stubModel struct{ version string }

func (m *stubModel) ModelVersion() string { return m.version }

func uniformSamples(n int, base time.Time) []types.PerformanceSample {
	samples := make([]types.PerformanceSample, n)
	for i := range samples {
		samples[i] = types.PerformanceSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     100 + float64(i), // 100..100+n-1, uniform
		}
	}
	return samples
}

func newTestOptimizer(store ServiceSampleStore) *Optimizer {
	cfg := config.OptimizerConfig{LookbackWindow: 30 * 24 * time.Hour, MinSamples: 20}
	thresholds := map[types.ViolationType]float64{
		types.ViolationBuildTime: 600,
	}
	return New(cfg, thresholds, store, &stubModel{version: "20260101T000000.0001"}, zap.NewNop())
}

func TestRecommendThresholdUnknownService(t *testing.T) {
	o := newTestOptimizer(&stubServiceStore{})
	if _, err := o.RecommendThreshold(context.Background(), types.ViolationType("bogus"), types.ObjectiveBalanceBoth); err == nil {
		t.Fatal("expected error for unknown service type")
	}
}

func TestRecommendThresholdInsufficientHistory(t *testing.T) {
	o := newTestOptimizer(&stubServiceStore{samples: uniformSamples(5, time.Now())})
	if _, err := o.RecommendThreshold(context.Background(), types.ViolationBuildTime, types.ObjectiveBalanceBoth); err == nil {
		t.Fatal("expected error with fewer samples than the minimum")
	}
}

func TestRecommendThresholdStorageError(t *testing.T) {
	o := newTestOptimizer(&stubServiceStore{err: errors.New("db down")})
	if _, err := o.RecommendThreshold(context.Background(), types.ViolationBuildTime, types.ObjectiveBalanceBoth); err == nil {
		t.Fatal("expected storage error to propagate")
	}
}

func TestRecommendThresholdObjectiveOrdering(t *testing.T) {
	store := &stubServiceStore{samples: uniformSamples(200, time.Now().Add(-200*time.Minute))}
	o := newTestOptimizer(store)

	recommend := func(obj types.OptimizationObjective) float64 {
		rec, err := o.RecommendThreshold(context.Background(), types.ViolationBuildTime, obj)
		if err != nil {
			t.Fatalf("RecommendThreshold(%s) error = %v", obj, err)
		}
		return rec.RecommendedThreshold
	}

	// minimize_violations maps to p99, minimize_team_stress to p95,
	// balance_both to p90 and maximize_reliability to p85.
	loose := recommend(types.ObjectiveMinimizeViolations)
	stress := recommend(types.ObjectiveMinimizeTeamStress)
	balanced := recommend(types.ObjectiveBalanceBoth)
	tight := recommend(types.ObjectiveMaximizeReliability)

	if !(tight < balanced && balanced < stress && stress < loose) {
		t.Errorf("percentile ordering violated: p85=%.1f p90=%.1f p95=%.1f p99=%.1f",
			tight, balanced, stress, loose)
	}

	minVal, maxVal := 100.0, 299.0
	for _, v := range []float64{tight, balanced, stress, loose} {
		if v < minVal || v > maxVal {
			t.Errorf("recommended threshold %.1f outside observed range [%.0f,%.0f]", v, minVal, maxVal)
		}
	}
}

func TestRecommendThresholdFields(t *testing.T) {
	store := &stubServiceStore{samples: uniformSamples(200, time.Now().Add(-200*time.Minute))}
	o := newTestOptimizer(store)

	rec, err := o.RecommendThreshold(context.Background(), types.ViolationBuildTime, types.ObjectiveBalanceBoth)
	if err != nil {
		t.Fatalf("RecommendThreshold() error = %v", err)
	}

	if rec.ServiceType != types.ViolationBuildTime {
		t.Errorf("service_type = %q", rec.ServiceType)
	}
	if rec.CurrentThreshold != 600 {
		t.Errorf("current_threshold = %f, want 600", rec.CurrentThreshold)
	}
	if rec.ConfidenceScore <= 0 || rec.ConfidenceScore > 1 {
		t.Errorf("confidence_score %f outside (0,1]", rec.ConfidenceScore)
	}
	if len(rec.RollbackCriteria) == 0 {
		t.Error("rollback_criteria must never be empty")
	}
	if rec.ModelVersion != "20260101T000000.0001" {
		t.Errorf("model_version = %q", rec.ModelVersion)
	}
	if rec.ImplementationRisk != types.RiskLow && rec.ImplementationRisk != types.RiskMedium && rec.ImplementationRisk != types.RiskHigh {
		t.Errorf("implementation_risk = %q", rec.ImplementationRisk)
	}

	// Uniform 100..299 with a p90 candidate leaves about 10% above.
	if rec.PredictedOutcomes.ExpectedViolationRate < 0.05 || rec.PredictedOutcomes.ExpectedViolationRate > 0.15 {
		t.Errorf("expected_violation_rate = %f, want about 0.10", rec.PredictedOutcomes.ExpectedViolationRate)
	}
	if rec.Rationale.StatisticalBasis == "" || rec.Rationale.BusinessJustification == "" {
		t.Error("rationale fields must be populated")
	}
}

func TestRecommendationJSONRoundTrip(t *testing.T) {
	store := &stubServiceStore{samples: uniformSamples(200, time.Now().Add(-200*time.Minute))}
	o := newTestOptimizer(store)

	rec, err := o.RecommendThreshold(context.Background(), types.ViolationBuildTime, types.ObjectiveMinimizeTeamStress)
	if err != nil {
		t.Fatalf("RecommendThreshold() error = %v", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var parsed types.ThresholdRecommendation
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if parsed.ServiceType != rec.ServiceType {
		t.Errorf("service_type round-trip mismatch: %q vs %q", parsed.ServiceType, rec.ServiceType)
	}
	if parsed.ConfidenceScore != rec.ConfidenceScore {
		t.Errorf("confidence_score round-trip mismatch: %f vs %f", parsed.ConfidenceScore, rec.ConfidenceScore)
	}
	if !reflect.DeepEqual(parsed.RollbackCriteria, rec.RollbackCriteria) {
		t.Errorf("rollback_criteria round-trip mismatch: %v vs %v", parsed.RollbackCriteria, rec.RollbackCriteria)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{0.5, 30},
		{1, 50},
		{0.25, 20},
		{0.9, 46},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%.2f) = %f, want %f", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(empty) = %f, want 0", got)
	}
	if got := percentile([]float64{7}, 0.99); got != 7 {
		t.Errorf("percentile(single) = %f, want 7", got)
	}
}

func TestEmpiricalViolationRate(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := empiricalViolationRate(sorted, 8); got != 0.2 {
		t.Errorf("rate above 8 = %f, want 0.2 (strictly greater)", got)
	}
	if got := empiricalViolationRate(sorted, 100); got != 0 {
		t.Errorf("rate above max = %f, want 0", got)
	}
	if got := empiricalViolationRate(sorted, 0); got != 1 {
		t.Errorf("rate above 0 = %f, want 1", got)
	}
}

func TestImplementationRisk(t *testing.T) {
	tests := []struct {
		confidence float64
		deviation  float64
		want       types.RiskLevel
	}{
		{0.9, 0.1, types.RiskLow},
		{0.9, 0.4, types.RiskMedium},
		{0.7, 0.3, types.RiskMedium},
		{0.7, 0.8, types.RiskHigh},
		{0.4, 0.1, types.RiskHigh},
	}
	for _, tt := range tests {
		if got := implementationRisk(tt.confidence, tt.deviation); got != tt.want {
			t.Errorf("implementationRisk(%.1f, %.1f) = %q, want %q", tt.confidence, tt.deviation, got, tt.want)
		}
	}
}
