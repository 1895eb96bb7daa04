// Package classifier implements the trained violation classifier: a bagged
// ensemble of depth-limited decision trees over the 11-feature vector, with
// versioned artifact persistence, a synthetic bootstrap for cold starts, and
// a cross-validated accuracy gate guarding every retrain.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/features"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// Example is one labeled training observation.
type Example struct {
	Features types.FeatureVector `json:"features"`
	Violated bool                `json:"violated"`
}

// RetrainResult reports the outcome of a retraining attempt. Deployed is
// false when cross-validated accuracy fell below the configured gate; the
// previously deployed model remains active in that case.
type RetrainResult struct {
	Deployed     bool    `json:"deployed"`
	Accuracy     float64 `json:"accuracy"`
	ModelVersion string  `json:"model_version"`
	Reason       string  `json:"reason,omitempty"`
}

// model is an immutable trained artifact. The classifier swaps whole model
// pointers under a lock, so readers always see a fully old or fully new
// model, never a partial one.
type model struct {
	Version         string                          `json:"version"`
	TrainedAt       time.Time                       `json:"trained_at"`
	Bootstrap       bool                            `json:"bootstrap"`
	Accuracy        float64                         `json:"accuracy"`
	PerTypeAccuracy map[types.ViolationType]float64 `json:"per_type_accuracy"`
	Trees           []*treeNode                     `json:"trees"`
}

// predict returns the ensemble violation probability for a feature vector.
func (m *model) predict(fv types.FeatureVector) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	values := fv.Values()
	var sum float64
	for _, tree := range m.Trees {
		sum += tree.predict(values)
	}
	return sum / float64(len(m.Trees))
}

// Classifier owns the deployed model, its training set, and the retrain
// gate. Safe for concurrent use.
type Classifier struct {
	cfg    config.ClassifierConfig
	store  types.ModelStore
	logger *zap.Logger

	mu       sync.RWMutex
	current  *model
	examples []Example
}

// New creates an untrained classifier; call LoadOrBootstrap before
// predicting.
func New(cfg config.ClassifierConfig, store types.ModelStore, logger *zap.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// LoadOrBootstrap restores the latest persisted artifact, or trains a
// bootstrap model on synthetic data when no artifact exists or the artifact
// is corrupt. The engine is therefore never unusable on cold start; the
// degraded mode is logged at warning level.
func (c *Classifier) LoadOrBootstrap(ctx context.Context) error {
	version, err := c.store.LatestVersion(ctx)
	if err == nil {
		data, loadErr := c.store.Load(ctx, version)
		if loadErr == nil {
			var m model
			if unmarshalErr := json.Unmarshal(data, &m); unmarshalErr == nil && len(m.Trees) > 0 {
				c.mu.Lock()
				c.current = &m
				c.mu.Unlock()
				c.logger.Info("Loaded model artifact",
					zap.String("version", m.Version),
					zap.Float64("accuracy", m.Accuracy))
				return nil
			}
			c.logger.Warn("Model artifact is corrupt, falling back to bootstrap",
				zap.String("version", version))
		} else {
			c.logger.Warn("Failed to load model artifact, falling back to bootstrap",
				zap.String("version", version),
				zap.Error(loadErr))
		}
	}

	return c.bootstrap(ctx)
}

// bootstrap trains on synthetically generated but structurally realistic
// data and deploys the result without the accuracy gate: a rough model beats
// no model on cold start.
func (c *Classifier) bootstrap(ctx context.Context) error {
	examples := SyntheticExamples(c.cfg.BootstrapSamples, bootstrapSeed)

	m := c.train(examples, rand.New(rand.NewSource(bootstrapSeed)))
	m.Bootstrap = true
	m.Accuracy = c.crossValidate(examples)
	m.PerTypeAccuracy = perTypeAccuracy(m, examples)

	c.mu.Lock()
	c.current = m
	c.examples = examples
	c.mu.Unlock()

	c.logger.Warn("Bootstrapped classifier from synthetic data",
		zap.String("version", m.Version),
		zap.Int("examples", len(examples)),
		zap.Float64("cv_accuracy", m.Accuracy))

	if err := c.persist(ctx, m); err != nil {
		// Persistence failure leaves a working in-memory model.
		c.logger.Error("Failed to persist bootstrap model", zap.Error(err))
	}
	return nil
}

// Predict returns the violation probability and the classifier's own
// confidence (the max class probability) for a feature vector.
func (c *Classifier) Predict(fv types.FeatureVector) (probability, confidence float64, err error) {
	c.mu.RLock()
	m := c.current
	c.mu.RUnlock()

	if m == nil {
		return 0, 0, fmt.Errorf("classifier has no deployed model")
	}

	probability = clamp01(m.predict(fv))
	confidence = math.Max(probability, 1-probability)
	return probability, confidence, nil
}

// Retrain appends labeled feedback to the training set, re-fits, and
// deploys the new model only if cross-validated accuracy clears the
// configured threshold. On failure the previous model stays deployed and
// the result reports why.
func (c *Classifier) Retrain(ctx context.Context, feedback []Example) (RetrainResult, error) {
	if len(feedback) == 0 {
		return RetrainResult{Reason: "no feedback examples"}, nil
	}

	c.mu.Lock()
	combined := make([]Example, 0, len(c.examples)+len(feedback))
	combined = append(combined, c.examples...)
	combined = append(combined, feedback...)
	c.mu.Unlock()

	accuracy := c.crossValidate(combined)
	if accuracy < c.cfg.AccuracyThreshold {
		c.logger.Warn("Retraining rejected by accuracy gate",
			zap.Float64("cv_accuracy", accuracy),
			zap.Float64("threshold", c.cfg.AccuracyThreshold))
		return RetrainResult{
			Deployed: false,
			Accuracy: accuracy,
			Reason: fmt.Sprintf("cross-validated accuracy %.3f below threshold %.2f",
				accuracy, c.cfg.AccuracyThreshold),
		}, nil
	}

	m := c.train(combined, rand.New(rand.NewSource(time.Now().UnixNano())))
	m.Accuracy = accuracy
	m.PerTypeAccuracy = perTypeAccuracy(m, combined)

	if err := c.persist(ctx, m); err != nil {
		return RetrainResult{
			Deployed: false,
			Accuracy: accuracy,
			Reason:   "failed to persist artifact",
		}, err
	}

	c.mu.Lock()
	c.current = m
	c.examples = combined
	c.mu.Unlock()

	c.logger.Info("Deployed retrained model",
		zap.String("version", m.Version),
		zap.Int("examples", len(combined)),
		zap.Float64("cv_accuracy", accuracy))

	return RetrainResult{
		Deployed:     true,
		Accuracy:     accuracy,
		ModelVersion: m.Version,
	}, nil
}

// Accuracy returns the deployed model's cross-validated accuracy per
// violation type.
func (c *Classifier) Accuracy() map[types.ViolationType]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[types.ViolationType]float64)
	if c.current == nil {
		return out
	}
	for vt, acc := range c.current.PerTypeAccuracy {
		out[vt] = acc
	}
	return out
}

// ModelVersion returns the deployed model version, or "" before load.
func (c *Classifier) ModelVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.Version
}

// train fits a bagged ensemble on the full example set.
func (c *Classifier) train(examples []Example, rng *rand.Rand) *model {
	trees := make([]*treeNode, c.cfg.TreeCount)
	featureSubset := int(math.Ceil(math.Sqrt(types.FeatureCount)))

	for i := range trees {
		bag := make([]Example, len(examples))
		for j := range bag {
			bag[j] = examples[rng.Intn(len(examples))]
		}
		trees[i] = buildTree(bag, c.cfg.MaxTreeDepth, featureSubset, rng)
	}

	return &model{
		Version:   time.Now().UTC().Format("20060102T150405") + fmt.Sprintf(".%04d", rng.Intn(10000)),
		TrainedAt: time.Now().UTC(),
		Trees:     trees,
	}
}

// crossValidate runs k-fold cross-validation and returns mean accuracy at
// the 0.5 decision threshold.
func (c *Classifier) crossValidate(examples []Example) float64 {
	folds := c.cfg.CrossValidationFolds
	if len(examples) < folds*2 {
		return 0
	}

	// Deterministic shuffle so repeated runs over the same data agree.
	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng := rand.New(rand.NewSource(int64(len(examples))))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var totalCorrect, totalSeen int
	foldSize := len(shuffled) / folds

	for fold := 0; fold < folds; fold++ {
		start := fold * foldSize
		end := start + foldSize
		if fold == folds-1 {
			end = len(shuffled)
		}

		holdout := shuffled[start:end]
		training := make([]Example, 0, len(shuffled)-len(holdout))
		training = append(training, shuffled[:start]...)
		training = append(training, shuffled[end:]...)

		m := c.train(training, rand.New(rand.NewSource(int64(fold+1))))
		for _, ex := range holdout {
			predicted := m.predict(ex.Features) >= 0.5
			if predicted == ex.Violated {
				totalCorrect++
			}
			totalSeen++
		}
	}

	if totalSeen == 0 {
		return 0
	}
	return float64(totalCorrect) / float64(totalSeen)
}

// perTypeAccuracy evaluates the final model against the training set,
// grouped by violation type via the type-encoding feature.
func perTypeAccuracy(m *model, examples []Example) map[types.ViolationType]float64 {
	encodings := make(map[float64]types.ViolationType)
	for _, vt := range types.AllViolationTypes() {
		encodings[features.TypeEncoding(vt)] = vt
	}

	correct := make(map[types.ViolationType]int)
	seen := make(map[types.ViolationType]int)
	for _, ex := range examples {
		vt, ok := encodings[ex.Features.ViolationTypeEncoding]
		if !ok {
			continue
		}
		seen[vt]++
		if (m.predict(ex.Features) >= 0.5) == ex.Violated {
			correct[vt]++
		}
	}

	out := make(map[types.ViolationType]float64)
	for vt, n := range seen {
		out[vt] = float64(correct[vt]) / float64(n)
	}
	return out
}

func (c *Classifier) persist(ctx context.Context, m *model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	return c.store.Save(ctx, m.Version, data)
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
