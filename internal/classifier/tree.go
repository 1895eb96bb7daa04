package classifier

import (
	"math"
	"math/rand"

	"github.com/webforge/sla-sentinel/internal/types"
)

// minLeafSize stops splitting once a node holds fewer examples than this.
const minLeafSize = 5

// treeNode is one node of a CART decision tree. Internal nodes route on a
// single feature threshold; leaves carry the violation fraction of the
// training examples that reached them.
type treeNode struct {
	Leaf        bool      `json:"leaf"`
	Feature     int       `json:"feature,omitempty"`
	Threshold   float64   `json:"threshold,omitempty"`
	Probability float64   `json:"probability,omitempty"`
	Left        *treeNode `json:"left,omitempty"`
	Right       *treeNode `json:"right,omitempty"`
}

// predict walks the tree and returns the leaf violation probability.
func (n *treeNode) predict(values [types.FeatureCount]float64) float64 {
	node := n
	for !node.Leaf {
		if values[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Probability
}

// buildTree grows a depth-limited CART tree with Gini impurity splits over
// the given examples. featureSubset controls how many randomly chosen
// features are considered per split, which decorrelates trees in a bagged
// ensemble.
func buildTree(examples []Example, maxDepth, featureSubset int, rng *rand.Rand) *treeNode {
	return growNode(examples, 0, maxDepth, featureSubset, rng)
}

func growNode(examples []Example, depth, maxDepth, featureSubset int, rng *rand.Rand) *treeNode {
	violations := countViolations(examples)
	n := len(examples)

	// Pure node, too small, or depth exhausted: emit a leaf.
	if depth >= maxDepth || n < 2*minLeafSize || violations == 0 || violations == n {
		return leafNode(violations, n)
	}

	feature, threshold, ok := bestSplit(examples, featureSubset, rng)
	if !ok {
		return leafNode(violations, n)
	}

	var left, right []Example
	for _, ex := range examples {
		if ex.Features.Values()[feature] <= threshold {
			left = append(left, ex)
		} else {
			right = append(right, ex)
		}
	}
	if len(left) < minLeafSize || len(right) < minLeafSize {
		return leafNode(violations, n)
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growNode(left, depth+1, maxDepth, featureSubset, rng),
		Right:     growNode(right, depth+1, maxDepth, featureSubset, rng),
	}
}

func leafNode(violations, total int) *treeNode {
	p := 0.0
	if total > 0 {
		p = float64(violations) / float64(total)
	}
	return &treeNode{Leaf: true, Probability: p}
}

func countViolations(examples []Example) int {
	count := 0
	for _, ex := range examples {
		if ex.Violated {
			count++
		}
	}
	return count
}

// bestSplit searches a random feature subset for the threshold with the
// lowest weighted Gini impurity. Returns ok=false when no split improves on
// the parent.
func bestSplit(examples []Example, featureSubset int, rng *rand.Rand) (feature int, threshold float64, ok bool) {
	parentGini := gini(countViolations(examples), len(examples))

	bestGini := parentGini
	candidates := rng.Perm(types.FeatureCount)
	if featureSubset < len(candidates) {
		candidates = candidates[:featureSubset]
	}

	for _, f := range candidates {
		values := make([]float64, 0, len(examples))
		for _, ex := range examples {
			values = append(values, ex.Features.Values()[f])
		}

		for _, candidate := range splitCandidates(values) {
			var leftN, leftV, rightN, rightV int
			for _, ex := range examples {
				if ex.Features.Values()[f] <= candidate {
					leftN++
					if ex.Violated {
						leftV++
					}
				} else {
					rightN++
					if ex.Violated {
						rightV++
					}
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}

			total := float64(leftN + rightN)
			weighted := float64(leftN)/total*gini(leftV, leftN) +
				float64(rightN)/total*gini(rightV, rightN)
			if weighted < bestGini-1e-12 {
				bestGini = weighted
				feature = f
				threshold = candidate
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

// splitCandidates returns up to 16 evenly spaced thresholds between the
// observed minimum and maximum. Exhaustive midpoint search is unnecessary
// for a bagged ensemble and quadratic in the sample count.
func splitCandidates(values []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return nil
	}

	const steps = 16
	candidates := make([]float64, 0, steps)
	for i := 1; i <= steps; i++ {
		candidates = append(candidates, lo+(hi-lo)*float64(i)/float64(steps+1))
	}
	return candidates
}

func gini(violations, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(violations) / float64(total)
	return 2 * p * (1 - p)
}
