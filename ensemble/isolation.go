package ensemble

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// defaultSubsampleSize is the ψ of the original isolation forest paper.
const defaultSubsampleSize = 256

// IsoNode is a node of an isolation tree, exported for gob serialization.
type IsoNode struct {
	Feature   int
	Threshold float64
	Left      *IsoNode
	Right     *IsoNode

	// External nodes record the sample count that fell into them; the
	// expected remaining depth c(Size) extends the path length.
	External bool
	Size     int
}

// IsolationOptions holds the hyperparameters of IsolationForest.
type IsolationOptions struct {
	NEstimators   int
	SubsampleSize int
	// Threshold marks scores above it as anomalies. Ignored when
	// Contamination is set.
	Threshold float64
	// Contamination, when in (0, 0.5], sets the threshold at fit time to
	// the top-contamination quantile of training scores.
	Contamination float64
	RandomState   int64
}

// DefaultIsolationOptions returns the default hyperparameters.
func DefaultIsolationOptions() IsolationOptions {
	return IsolationOptions{
		NEstimators:   100,
		SubsampleSize: defaultSubsampleSize,
		Threshold:     0.5,
	}
}

// IsolationForest detects anomalies by how quickly random binary trees
// isolate a sample. Scores follow s(x) = 2^(−E[h(x)] / c(ψ)) and lie in
// (0, 1); higher means more anomalous.
type IsolationForest struct {
	model.BaseEstimator

	opts IsolationOptions

	// Fitted state, exported for gob serialization.
	Trees      []*IsoNode
	NFeatures  int
	NSamples   int
	Psi        int     // effective subsample size
	ScoreLimit float64 // effective anomaly threshold
}

// NewIsolationForest creates an IsolationForest with the given options.
func NewIsolationForest(opts IsolationOptions) *IsolationForest {
	return &IsolationForest{opts: opts}
}

// IsolationFromParams builds an IsolationForest from a free-form
// hyperparameter map, rejecting unknown keys.
func IsolationFromParams(hyperparams map[string]interface{}) (*IsolationForest, error) {
	opts := DefaultIsolationOptions()
	for key, value := range hyperparams {
		switch key {
		case "n_estimators":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "must be a positive integer", value)
			}
			opts.NEstimators = v
		case "max_samples":
			v, ok := params.Int(value)
			if !ok || v < 2 {
				return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "must be an integer >= 2", value)
			}
			opts.SubsampleSize = v
		case "threshold":
			v, ok := params.Float(value)
			if !ok || v <= 0 || v >= 1 {
				return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "must be in (0, 1)", value)
			}
			opts.Threshold = v
		case "contamination":
			v, ok := params.Float(value)
			if !ok || v <= 0 || v > 0.5 {
				return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "must be in (0, 0.5]", value)
			}
			opts.Contamination = v
		case "random_state":
			v, ok := params.Int(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "must be an integer", value)
			}
			opts.RandomState = int64(v)
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmIsolationForest, key, "unknown hyperparameter", value)
		}
	}
	return NewIsolationForest(opts), nil
}

// Fit builds the isolation trees. The optional y is ignored.
func (f *IsolationForest) Fit(X, y mat.Matrix) error {
	return f.FitContext(context.Background(), X, y)
}

// FitContext builds the trees with cooperative cancellation between trees.
func (f *IsolationForest) FitContext(ctx context.Context, X, _ mat.Matrix) error {
	const op = "IsolationForest.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	n, cols := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	psi := f.opts.SubsampleSize
	if psi > n {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	trees := make([]*IsoNode, f.opts.NEstimators)
	err := parallel.ForEachIndexed(ctx, op, f.opts.NEstimators, func(i int) error {
		rng := tensor.NewRand(tensor.DeriveSeed(f.opts.RandomState, i))
		sample := tensor.SampleWithoutReplacement(rng, n, psi)
		trees[i] = growIsoTree(rows, sample, 0, maxDepth, rng)
		return nil
	})
	if err != nil {
		return err
	}

	f.Trees = trees
	f.NFeatures = cols
	f.NSamples = n
	f.Psi = psi

	f.ScoreLimit = f.opts.Threshold
	if f.opts.Contamination > 0 {
		scores := make([]float64, n)
		for i := range rows {
			scores[i] = f.scoreRow(rows[i])
		}
		sort.Float64s(scores)
		cut := int(float64(n) * (1 - f.opts.Contamination))
		if cut >= n {
			cut = n - 1
		}
		f.ScoreLimit = scores[cut]
	}

	f.SetFitted()
	return nil
}

func growIsoTree(rows [][]float64, indices []int, depth, maxDepth int, rng *rand.Rand) *IsoNode {
	if depth >= maxDepth || len(indices) <= 1 {
		return &IsoNode{External: true, Size: len(indices)}
	}

	// Pick a random feature with spread in this node; give up after a few
	// draws when every chosen feature is constant.
	cols := len(rows[0])
	var feature int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < cols; attempt++ {
		feature = rng.IntN(cols)
		lo, hi = rows[indices[0]][feature], rows[indices[0]][feature]
		for _, idx := range indices[1:] {
			v := rows[idx][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			found = true
			break
		}
	}
	if !found {
		return &IsoNode{External: true, Size: len(indices)}
	}

	threshold := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, idx := range indices {
		if rows[idx][feature] < threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &IsoNode{External: true, Size: len(indices)}
	}

	return &IsoNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growIsoTree(rows, left, depth+1, maxDepth, rng),
		Right:     growIsoTree(rows, right, depth+1, maxDepth, rng),
	}
}

// pathLength walks one tree and returns the isolation depth of row,
// including the expected remaining depth at the external node.
func pathLength(node *IsoNode, row []float64) float64 {
	var depth float64
	for !node.External {
		if row[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return depth + averagePathLength(node.Size)
}

// averagePathLength is c(n): the average path length of an unsuccessful
// BST search on n points.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

func (f *IsolationForest) scoreRow(row []float64) float64 {
	// c(ψ) is zero when the subsample holds a single point; such a forest
	// carries no isolation signal, so every row gets the indifferent score.
	denom := averagePathLength(f.Psi)
	if denom <= 0 {
		return 0.5
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += pathLength(tree, row)
	}
	mean := sum / float64(len(f.Trees))
	return math.Pow(2, -mean/denom)
}

// ScoreSamples returns per-row anomaly scores in (0, 1).
func (f *IsolationForest) ScoreSamples(X mat.Matrix) ([]float64, error) {
	const op = "IsolationForest.ScoreSamples"
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError("IsolationForest", "ScoreSamples")
	}
	if err := tensor.CheckFeatures(op, X, f.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = f.scoreRow(tensor.Row(X, i))
	}
	return scores, nil
}

// Predict returns an N'×1 matrix with 1 for anomalies (score above the
// effective threshold) and 0 for normal samples.
func (f *IsolationForest) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	predictions := mat.NewDense(len(scores), 1, nil)
	for i, s := range scores {
		if s > f.ScoreLimit {
			predictions.Set(i, 0, 1)
		}
	}
	return predictions, nil
}

// Score returns the mean anomaly score over X; y is ignored.
func (f *IsolationForest) Score(X, _ mat.Matrix) (float64, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), nil
}

// GetParams returns the detector's hyperparameters.
func (f *IsolationForest) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  f.opts.NEstimators,
		"max_samples":   f.opts.SubsampleSize,
		"threshold":     f.opts.Threshold,
		"contamination": f.opts.Contamination,
		"random_state":  f.opts.RandomState,
	}
}
