package ensemble

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Max-features modes.
const (
	MaxFeaturesSqrt     = "sqrt"
	MaxFeaturesLog2     = "log2"
	MaxFeaturesAll      = "all"
	MaxFeaturesInt      = "int"
	MaxFeaturesFraction = "fraction"
)

// ForestOptions holds the hyperparameters of RandomForest.
type ForestOptions struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeaturesMode string
	MaxFeaturesVal  float64 // used by the int and fraction modes
	Criterion       string  // empty selects gini / mse by task
	Bootstrap       bool
	ComputeOOB      bool
	RandomState     int64
}

// DefaultForestOptions returns the default forest hyperparameters.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeaturesMode: MaxFeaturesSqrt,
		Bootstrap:       true,
	}
}

// RandomForest is a bagged ensemble of CART trees for classification or
// regression.
//
// Trees are grown in parallel with per-tree seeds derived from
// RandomState, and reduced in index order, so a fixed seed produces an
// identical forest regardless of thread count.
type RandomForest struct {
	model.BaseEstimator

	opts ForestOptions

	// Fitted state, exported for gob serialization.
	Task      string
	Trees     []*DecisionTree
	ClassIDs  []float64 // sorted class ids, classification only
	NFeatures int
	NSamples  int

	// Importances is the mean per-tree impurity importance, normalized to
	// sum to 1 when any split occurred.
	Importances []float64

	// OOBScore is populated when bootstrapping and ComputeOOB are on.
	OOBScore float64
	HasOOB   bool
}

// NewClassifier creates a RandomForest classifier.
func NewClassifier(opts ForestOptions) *RandomForest {
	if opts.Criterion == "" {
		opts.Criterion = CriterionGini
	}
	return &RandomForest{opts: opts, Task: model.TaskClassification}
}

// NewRegressor creates a RandomForest regressor.
func NewRegressor(opts ForestOptions) *RandomForest {
	if opts.Criterion == "" {
		opts.Criterion = CriterionMSE
	}
	return &RandomForest{opts: opts, Task: model.TaskRegression}
}

// ForestFromParams builds a RandomForest for the given task from a
// free-form hyperparameter map, rejecting unknown keys.
func ForestFromParams(task string, hyperparams map[string]interface{}) (*RandomForest, error) {
	opts := DefaultForestOptions()
	classification := task == model.TaskClassification

	for key, value := range hyperparams {
		switch key {
		case "n_estimators":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a positive integer", value)
			}
			opts.NEstimators = v
		case "max_depth":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a positive integer", value)
			}
			opts.MaxDepth = v
		case "min_samples_split":
			v, ok := params.Int(value)
			if !ok || v < 2 {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be an integer >= 2", value)
			}
			opts.MinSamplesSplit = v
		case "min_samples_leaf":
			v, ok := params.Int(value)
			if !ok || v < 1 {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a positive integer", value)
			}
			opts.MinSamplesLeaf = v
		case "max_features":
			switch v := value.(type) {
			case string:
				if v != MaxFeaturesSqrt && v != MaxFeaturesLog2 && v != MaxFeaturesAll {
					return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, `must be "sqrt", "log2", "all", an integer or a fraction`, value)
				}
				opts.MaxFeaturesMode = v
			default:
				f, ok := params.Float(value)
				if !ok || f <= 0 {
					return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be positive", value)
				}
				if f < 1 {
					opts.MaxFeaturesMode = MaxFeaturesFraction
					opts.MaxFeaturesVal = f
				} else if f == math.Trunc(f) {
					opts.MaxFeaturesMode = MaxFeaturesInt
					opts.MaxFeaturesVal = f
				} else {
					return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "fractional values must be below 1", value)
				}
			}
		case "criterion":
			v, ok := params.String(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a string", value)
			}
			if classification && v != CriterionGini && v != CriterionEntropy {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, `classification supports "gini" or "entropy"`, value)
			}
			if !classification && v != CriterionMSE && v != CriterionMAE {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, `regression supports "mse" or "mae"`, value)
			}
			opts.Criterion = v
		case "bootstrap":
			v, ok := params.Bool(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a boolean", value)
			}
			opts.Bootstrap = v
		case "oob_score":
			v, ok := params.Bool(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be a boolean", value)
			}
			opts.ComputeOOB = v
		case "random_state":
			v, ok := params.Int(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "must be an integer", value)
			}
			opts.RandomState = int64(v)
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, key, "unknown hyperparameter", value)
		}
	}

	if opts.ComputeOOB && !opts.Bootstrap {
		return nil, errors.NewHyperparameterError(model.AlgorithmRandomForest, "oob_score", "requires bootstrap", nil)
	}

	if classification {
		return NewClassifier(opts), nil
	}
	return NewRegressor(opts), nil
}

// Fit trains the forest on an N×F matrix and an N×1 target vector.
func (rf *RandomForest) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext trains the forest with cooperative cancellation between
// trees. Fit is all-or-nothing: on cancellation or error the model keeps
// its pre-call state.
func (rf *RandomForest) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "RandomForest.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}
	classification := rf.Task == model.TaskClassification
	if classification {
		if err := tensor.ValidateClassTargets(op, X, y); err != nil {
			return err
		}
	} else if err := tensor.ValidateTargets(op, X, y); err != nil {
		return err
	}

	n, f := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}
	rawLabels := tensor.VecToSlice(y)

	// Classification trees operate on class indices 0..K-1; the sorted
	// class ids are kept for decoding.
	var classIDs []float64
	labels := rawLabels
	if classification {
		classIDs = tensor.UniqueSorted(rawLabels)
		index := make(map[float64]int, len(classIDs))
		for i, id := range classIDs {
			index[id] = i
		}
		labels = make([]float64, n)
		for i, v := range rawLabels {
			labels[i] = float64(index[v])
		}
	}

	cfg := treeConfig{
		criterion:       rf.opts.Criterion,
		classification:  classification,
		nClasses:        len(classIDs),
		maxDepth:        rf.opts.MaxDepth,
		minSamplesSplit: rf.opts.MinSamplesSplit,
		minSamplesLeaf:  rf.opts.MinSamplesLeaf,
		maxFeatures:     rf.resolveMaxFeatures(f),
	}

	trees := make([]*DecisionTree, rf.opts.NEstimators)
	err := parallel.ForEachIndexed(ctx, op, rf.opts.NEstimators, func(i int) error {
		rng := tensor.NewRand(tensor.DeriveSeed(rf.opts.RandomState, i))
		var indices []int
		if rf.opts.Bootstrap {
			indices = tensor.BootstrapIndices(rng, n)
		} else {
			indices = make([]int, n)
			for j := range indices {
				indices[j] = j
			}
		}
		trees[i] = growTree(rows, labels, indices, cfg, rng)
		return nil
	})
	if err != nil {
		return err
	}

	rf.Trees = trees
	rf.ClassIDs = classIDs
	rf.NFeatures = f
	rf.NSamples = n
	rf.Importances = rf.computeImportances(f)

	if rf.opts.Bootstrap && rf.opts.ComputeOOB {
		rf.OOBScore, rf.HasOOB = rf.computeOOBScore(rows, rawLabels)
	} else {
		rf.OOBScore, rf.HasOOB = 0, false
	}

	rf.SetFitted()
	return nil
}

func (rf *RandomForest) resolveMaxFeatures(f int) int {
	var m int
	switch rf.opts.MaxFeaturesMode {
	case MaxFeaturesLog2:
		m = int(math.Log2(float64(f)))
	case MaxFeaturesAll:
		m = f
	case MaxFeaturesInt:
		m = int(rf.opts.MaxFeaturesVal)
	case MaxFeaturesFraction:
		m = int(rf.opts.MaxFeaturesVal * float64(f))
	default:
		m = int(math.Sqrt(float64(f)))
	}
	if m < 1 {
		m = 1
	}
	if m > f {
		m = f
	}
	return m
}

// computeImportances averages per-tree raw importances and normalizes the
// result to sum to 1. A forest of stumps-without-splits reports zeros.
func (rf *RandomForest) computeImportances(f int) []float64 {
	importances := make([]float64, f)
	for _, tree := range rf.Trees {
		var treeTotal float64
		for _, v := range tree.rawImportance {
			treeTotal += v
		}
		if treeTotal == 0 {
			continue
		}
		for j, v := range tree.rawImportance {
			importances[j] += v / treeTotal
		}
	}
	var total float64
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}
	return importances
}

// computeOOBScore aggregates, for each training row, only the trees that
// did not see it, then scores the aggregate predictions.
func (rf *RandomForest) computeOOBScore(rows [][]float64, rawLabels []float64) (float64, bool) {
	classification := rf.Task == model.TaskClassification
	n := len(rows)

	var correct, counted int
	var yMean, tss, rss float64
	preds := make([]float64, 0, n)
	truths := make([]float64, 0, n)

	for i := 0; i < n; i++ {
		if classification {
			votes := make([]float64, len(rf.ClassIDs))
			seen := false
			for _, tree := range rf.Trees {
				if tree.InBag[i] {
					continue
				}
				votes[int(tree.predictRow(rows[i]).Value)]++
				seen = true
			}
			if !seen {
				continue
			}
			counted++
			if rf.ClassIDs[tensor.ArgMax(votes)] == rawLabels[i] {
				correct++
			}
		} else {
			var sum float64
			var trees int
			for _, tree := range rf.Trees {
				if tree.InBag[i] {
					continue
				}
				sum += tree.predictRow(rows[i]).Value
				trees++
			}
			if trees == 0 {
				continue
			}
			preds = append(preds, sum/float64(trees))
			truths = append(truths, rawLabels[i])
		}
	}

	if classification {
		if counted == 0 {
			return 0, false
		}
		return float64(correct) / float64(counted), true
	}

	if len(truths) == 0 {
		return 0, false
	}
	for _, v := range truths {
		yMean += v
	}
	yMean /= float64(len(truths))
	for i := range truths {
		tss += (truths[i] - yMean) * (truths[i] - yMean)
		rss += (truths[i] - preds[i]) * (truths[i] - preds[i])
	}
	if tss == 0 {
		return 0, false
	}
	return 1 - rss/tss, true
}

// Predict returns per-row predictions: majority vote (ties broken by the
// lowest class id) for classification, tree-mean for regression.
func (rf *RandomForest) Predict(X mat.Matrix) (mat.Matrix, error) {
	const op = "RandomForest.Predict"
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForest", "Predict")
	}
	if err := tensor.CheckFeatures(op, X, rf.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	predictions := mat.NewDense(n, 1, nil)
	classification := rf.Task == model.TaskClassification

	for i := 0; i < n; i++ {
		row := tensor.Row(X, i)
		if classification {
			votes := make([]float64, len(rf.ClassIDs))
			for _, tree := range rf.Trees {
				votes[int(tree.predictRow(row).Value)]++
			}
			predictions.Set(i, 0, rf.ClassIDs[tensor.ArgMax(votes)])
		} else {
			var sum float64
			for _, tree := range rf.Trees {
				sum += tree.predictRow(row).Value
			}
			predictions.Set(i, 0, sum/float64(len(rf.Trees)))
		}
	}
	return predictions, nil
}

// PredictProba returns the per-class tree-vote fractions as an N'×K
// matrix whose columns align with Classes().
func (rf *RandomForest) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	const op = "RandomForest.PredictProba"
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForest", "PredictProba")
	}
	if rf.Task != model.TaskClassification {
		return nil, errors.NewInputError(op, "probabilities are only defined for classification forests")
	}
	if err := tensor.CheckFeatures(op, X, rf.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	k := len(rf.ClassIDs)
	probabilities := mat.NewDense(n, k, nil)
	trees := float64(len(rf.Trees))

	for i := 0; i < n; i++ {
		row := tensor.Row(X, i)
		for _, tree := range rf.Trees {
			c := int(tree.predictRow(row).Value)
			probabilities.Set(i, c, probabilities.At(i, c)+1)
		}
		for c := 0; c < k; c++ {
			probabilities.Set(i, c, probabilities.At(i, c)/trees)
		}
	}
	return probabilities, nil
}

// Classes returns the ordered class ids discovered during Fit.
func (rf *RandomForest) Classes() []float64 {
	if rf.ClassIDs == nil {
		return nil
	}
	out := make([]float64, len(rf.ClassIDs))
	copy(out, rf.ClassIDs)
	return out
}

// Score returns accuracy for classification or R² for regression.
func (rf *RandomForest) Score(X, y mat.Matrix) (float64, error) {
	if !rf.IsFitted() {
		return 0, errors.NewNotFittedError("RandomForest", "Score")
	}
	predictions, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}

	n, _ := y.Dims()
	if rf.Task == model.TaskClassification {
		// Labels outside the learned class set are rejected for
		// supervised evaluation.
		known := make(map[float64]struct{}, len(rf.ClassIDs))
		for _, id := range rf.ClassIDs {
			known[id] = struct{}{}
		}
		var correct int
		for i := 0; i < n; i++ {
			if _, ok := known[y.At(i, 0)]; !ok {
				return 0, errors.NewInputErrorAt("RandomForest.Score", "label outside the learned class set", i)
			}
			if predictions.At(i, 0) == y.At(i, 0) {
				correct++
			}
		}
		return float64(correct) / float64(n), nil
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(n)
	var tss, rss float64
	for i := 0; i < n; i++ {
		truth := y.At(i, 0)
		tss += (truth - yMean) * (truth - yMean)
		rss += (truth - predictions.At(i, 0)) * (truth - predictions.At(i, 0))
	}
	if tss == 0 {
		return 0, errors.NewNumericalError("RandomForest.Score", "no variance in targets")
	}
	return 1 - rss/tss, nil
}

// FeatureImportances returns the mean impurity importances, normalized to
// sum to 1 when the forest contains at least one split.
func (rf *RandomForest) FeatureImportances() []float64 {
	if rf.Importances == nil {
		return nil
	}
	out := make([]float64, len(rf.Importances))
	copy(out, rf.Importances)
	return out
}

// GetParams returns the forest's hyperparameters.
func (rf *RandomForest) GetParams() map[string]interface{} {
	maxFeatures := interface{}(rf.opts.MaxFeaturesMode)
	switch rf.opts.MaxFeaturesMode {
	case MaxFeaturesInt:
		maxFeatures = int(rf.opts.MaxFeaturesVal)
	case MaxFeaturesFraction:
		maxFeatures = rf.opts.MaxFeaturesVal
	}
	return map[string]interface{}{
		"n_estimators":      rf.opts.NEstimators,
		"max_depth":         rf.opts.MaxDepth,
		"min_samples_split": rf.opts.MinSamplesSplit,
		"min_samples_leaf":  rf.opts.MinSamplesLeaf,
		"max_features":      maxFeatures,
		"criterion":         rf.opts.Criterion,
		"bootstrap":         rf.opts.Bootstrap,
		"oob_score":         rf.opts.ComputeOOB,
		"random_state":      rf.opts.RandomState,
	}
}
