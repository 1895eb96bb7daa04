package classifier

import (
	"math/rand"

	"github.com/webforge/sla-sentinel/internal/features"
	"github.com/webforge/sla-sentinel/internal/types"
)

// bootstrapSeed fixes the synthetic training set so two cold-started
// instances deploy the same bootstrap model.
const bootstrapSeed = 0x51a5e47

// SyntheticExamples generates structurally realistic labeled training data
// for cold starts. Labels follow a weighted risk score over system load,
// recent violation pressure and peak-hour timing, with noise so the
// learned boundary is not trivially separable.
func SyntheticExamples(n int, seed int64) []Example {
	rng := rand.New(rand.NewSource(seed))
	violationTypes := types.AllViolationTypes()

	examples := make([]Example, n)
	for i := range examples {
		vt := violationTypes[rng.Intn(len(violationTypes))]
		hour := rng.Intn(24)
		load := rng.Float64()
		recentViolations := rng.Intn(8)

		mean := 100 + rng.Float64()*900
		fv := types.FeatureVector{
			CurrentLoad:           load,
			HourOfDay:             float64(hour),
			DayOfWeek:             float64(rng.Intn(7)),
			RecentViolationCount:  float64(recentViolations),
			HistoricalMean:        mean,
			HistoricalStdDev:      mean * (0.1 + rng.Float64()*0.4),
			HistoricalTrendSlope:  (rng.Float64() - 0.5) * mean * 0.2,
			CPUUsage:              clamp01(load + (rng.Float64()-0.5)*0.2),
			MemoryUsage:           rng.Float64(),
			DBConnectionUsage:     rng.Float64(),
			ViolationTypeEncoding: features.TypeEncoding(vt),
		}

		score := 0.45*load + 0.35*float64(recentViolations)/8.0
		if hour >= 9 && hour <= 17 {
			score += 0.20
		}
		score += (rng.Float64() - 0.5) * 0.15

		examples[i] = Example{
			Features: fv,
			Violated: score > 0.5,
		}
	}
	return examples
}
