// Package ensemble implements tree ensembles: random forests for
// classification and regression, and isolation forests for anomaly
// detection.
package ensemble

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
)

// Split criteria.
const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"
	CriterionMSE     = "mse"
	CriterionMAE     = "mae"
)

// regressionPurityTol is the spread below which a regression node is
// considered pure.
const regressionPurityTol = 1e-10

// TreeNode is a node of a fitted decision tree. Fields are exported for
// gob serialization.
type TreeNode struct {
	// Internal nodes.
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode

	// Leaves. Value is the mean for regression or the majority class id
	// for classification; Counts is the per-class sample count used for
	// probability estimates.
	Leaf   bool
	Value  float64
	Counts []float64
}

// DecisionTree is a single CART tree grown on a (possibly bootstrapped)
// sample. It is only used as a forest member and is fitted by the forest.
type DecisionTree struct {
	Root *TreeNode

	// InBag marks the training rows this tree saw; used for OOB scoring.
	InBag []bool

	// rawImportance accumulates impurity_reduction × samples_at_node per
	// splitting feature during growth.
	rawImportance []float64
}

// treeConfig carries the growth hyperparameters from the forest.
type treeConfig struct {
	criterion       string
	classification  bool
	nClasses        int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
}

// growTree builds a tree on the given rows. rows/labels are the full
// training set; indices selects this tree's (bootstrap) sample.
func growTree(rows [][]float64, labels []float64, indices []int, cfg treeConfig, rng *rand.Rand) *DecisionTree {
	tree := &DecisionTree{
		InBag:         make([]bool, len(rows)),
		rawImportance: make([]float64, len(rows[0])),
	}
	for _, idx := range indices {
		tree.InBag[idx] = true
	}
	tree.Root = tree.growNode(rows, labels, indices, 0, cfg, rng)
	return tree
}

func (t *DecisionTree) growNode(rows [][]float64, labels []float64, indices []int, depth int, cfg treeConfig, rng *rand.Rand) *TreeNode {
	impurity := nodeImpurity(labels, indices, cfg)

	if depth >= cfg.maxDepth || len(indices) < cfg.minSamplesSplit || isPure(labels, indices, cfg) {
		return makeLeaf(labels, indices, cfg)
	}

	feature, threshold, gain, leftIdx, rightIdx := t.bestSplit(rows, labels, indices, impurity, cfg, rng)
	if gain <= 0 {
		return makeLeaf(labels, indices, cfg)
	}

	t.rawImportance[feature] += gain * float64(len(indices))

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      t.growNode(rows, labels, leftIdx, depth+1, cfg, rng),
		Right:     t.growNode(rows, labels, rightIdx, depth+1, cfg, rng),
	}
}

// bestSplit draws a fresh random feature subset and scans midpoint
// candidates between consecutive unique values, scoring each split by the
// weighted impurity reduction.
func (t *DecisionTree) bestSplit(rows [][]float64, labels []float64, indices []int, parentImpurity float64, cfg treeConfig, rng *rand.Rand) (feature int, threshold, gain float64, leftIdx, rightIdx []int) {
	feature = -1
	gain = 0

	features := tensor.SampleWithoutReplacement(rng, len(rows[0]), cfg.maxFeatures)
	// Sorted so the scan order (and tie-breaking) is independent of the
	// draw order.
	sort.Ints(features)

	n := float64(len(indices))
	values := make([]float64, 0, len(indices))

	for _, f := range features {
		values = values[:0]
		for _, idx := range indices {
			values = append(values, rows[idx][f])
		}
		sort.Float64s(values)

		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			mid := (values[i] + values[i-1]) / 2

			var left, right []int
			for _, idx := range indices {
				if rows[idx][f] <= mid {
					left = append(left, idx)
				} else {
					right = append(right, idx)
				}
			}
			if len(left) < cfg.minSamplesLeaf || len(right) < cfg.minSamplesLeaf {
				continue
			}

			weighted := (float64(len(left))*nodeImpurity(labels, left, cfg) +
				float64(len(right))*nodeImpurity(labels, right, cfg)) / n
			if g := parentImpurity - weighted; g > gain {
				gain = g
				feature = f
				threshold = mid
				leftIdx = left
				rightIdx = right
			}
		}
	}
	return feature, threshold, gain, leftIdx, rightIdx
}

// predictRow walks the tree for a single sample.
func (t *DecisionTree) predictRow(row []float64) *TreeNode {
	node := t.Root
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func makeLeaf(labels []float64, indices []int, cfg treeConfig) *TreeNode {
	if cfg.classification {
		counts := make([]float64, cfg.nClasses)
		for _, idx := range indices {
			counts[int(labels[idx])]++
		}
		// Majority class; ArgMax breaks ties in favor of the lowest id.
		return &TreeNode{Leaf: true, Value: float64(tensor.ArgMax(counts)), Counts: counts}
	}

	var sum float64
	for _, idx := range indices {
		sum += labels[idx]
	}
	return &TreeNode{Leaf: true, Value: sum / float64(len(indices))}
}

func isPure(labels []float64, indices []int, cfg treeConfig) bool {
	if len(indices) == 0 {
		return true
	}
	first := labels[indices[0]]
	if cfg.classification {
		for _, idx := range indices[1:] {
			if labels[idx] != first {
				return false
			}
		}
		return true
	}
	lo, hi := first, first
	for _, idx := range indices[1:] {
		v := labels[idx]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo <= regressionPurityTol
}

func nodeImpurity(labels []float64, indices []int, cfg treeConfig) float64 {
	if len(indices) == 0 {
		return 0
	}
	if cfg.classification {
		counts := make([]float64, cfg.nClasses)
		for _, idx := range indices {
			counts[int(labels[idx])]++
		}
		n := float64(len(indices))
		if cfg.criterion == CriterionEntropy {
			var entropy float64
			for _, c := range counts {
				if c > 0 {
					p := c / n
					entropy -= p * math.Log2(p)
				}
			}
			return entropy
		}
		// Gini: 1 - Σ p².
		var sumSq float64
		for _, c := range counts {
			p := c / n
			sumSq += p * p
		}
		return 1 - sumSq
	}

	n := float64(len(indices))
	var mean float64
	for _, idx := range indices {
		mean += labels[idx]
	}
	mean /= n

	if cfg.criterion == CriterionMAE {
		var mae float64
		for _, idx := range indices {
			mae += math.Abs(labels[idx] - mean)
		}
		return mae / n
	}
	var mse float64
	for _, idx := range indices {
		d := labels[idx] - mean
		mse += d * d
	}
	return mse / n
}
