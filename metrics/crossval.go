package metrics

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Split is one train/test partition of row indices.
type Split struct {
	Train []int
	Test  []int
}

// Splitter produces train/test partitions over n rows. Splitters that
// balance classes read y; the others ignore it.
type Splitter interface {
	Split(n int, y []float64) ([]Split, error)
}

// KFold partitions rows into NSplits folds; each fold serves once as the
// test set.
type KFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// Split implements Splitter.
func (k KFold) Split(n int, _ []float64) ([]Split, error) {
	const op = "metrics.KFold"
	if k.NSplits < 2 {
		return nil, errors.NewHyperparameterError("kfold", "n_splits", "must be at least 2", k.NSplits)
	}
	if n < k.NSplits {
		return nil, errors.NewInputError(op, "fewer rows than folds")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if k.Shuffle {
		order = tensor.PermutedIndices(tensor.NewRand(k.RandomState), n)
	}

	// The first n % NSplits folds get one extra row.
	splits := make([]Split, k.NSplits)
	base := n / k.NSplits
	extra := n % k.NSplits
	start := 0
	for f := 0; f < k.NSplits; f++ {
		size := base
		if f < extra {
			size++
		}
		test := order[start : start+size]
		train := make([]int, 0, n-size)
		train = append(train, order[:start]...)
		train = append(train, order[start+size:]...)
		splits[f] = Split{Train: train, Test: append([]int(nil), test...)}
		start += size
	}
	return splits, nil
}

// StratifiedKFold partitions rows so every fold keeps each class's
// proportion within one row of exact balance. It requires labels.
type StratifiedKFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// Split implements Splitter.
func (s StratifiedKFold) Split(n int, y []float64) ([]Split, error) {
	const op = "metrics.StratifiedKFold"
	if s.NSplits < 2 {
		return nil, errors.NewHyperparameterError("stratified_kfold", "n_splits", "must be at least 2", s.NSplits)
	}
	if y == nil {
		return nil, errors.NewInputError(op, "stratification requires labels")
	}
	if len(y) != n {
		return nil, errors.NewDimensionError(op, n, len(y), 0)
	}

	// Group rows by class, optionally shuffled within each class.
	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	for _, c := range classes {
		if len(byClass[c]) < s.NSplits {
			return nil, errors.NewInputError(op, "a class has fewer rows than folds")
		}
	}

	rng := tensor.NewRand(s.RandomState)
	folds := make([][]int, s.NSplits)
	for _, c := range classes {
		rows := byClass[c]
		if s.Shuffle {
			rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		}
		// Deal the class's rows round-robin across folds.
		for i, row := range rows {
			f := i % s.NSplits
			folds[f] = append(folds[f], row)
		}
	}

	splits := make([]Split, s.NSplits)
	for f := 0; f < s.NSplits; f++ {
		test := folds[f]
		train := make([]int, 0, n-len(test))
		for other := 0; other < s.NSplits; other++ {
			if other != f {
				train = append(train, folds[other]...)
			}
		}
		sort.Ints(train)
		sorted := append([]int(nil), test...)
		sort.Ints(sorted)
		splits[f] = Split{Train: train, Test: sorted}
	}
	return splits, nil
}

// TimeSeriesSplit produces rolling-origin partitions: each fold trains
// on a prefix and tests on the block that follows it, so the test set
// never precedes its training data.
type TimeSeriesSplit struct {
	NSplits int
}

// Split implements Splitter.
func (t TimeSeriesSplit) Split(n int, _ []float64) ([]Split, error) {
	const op = "metrics.TimeSeriesSplit"
	if t.NSplits < 2 {
		return nil, errors.NewHyperparameterError("time_series_split", "n_splits", "must be at least 2", t.NSplits)
	}
	if n < t.NSplits+1 {
		return nil, errors.NewInputError(op, "too few rows for the requested folds")
	}

	testSize := n / (t.NSplits + 1)
	if testSize == 0 {
		testSize = 1
	}

	splits := make([]Split, t.NSplits)
	for f := 0; f < t.NSplits; f++ {
		testStart := n - (t.NSplits-f)*testSize
		testEnd := testStart + testSize
		train := make([]int, testStart)
		for i := range train {
			train[i] = i
		}
		test := make([]int, testEnd-testStart)
		for i := range test {
			test[i] = testStart + i
		}
		splits[f] = Split{Train: train, Test: test}
	}
	return splits, nil
}

// ScorableEstimator is the contract CrossValidate trains and scores per
// fold.
type ScorableEstimator interface {
	model.Estimator
	model.Scorer
}

// CVResult holds per-fold scores and their summary statistics.
type CVResult struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
}

// CrossValidate trains a fresh estimator from factory on each fold and
// scores it on the held-out rows. Folds run in parallel.
func CrossValidate(ctx context.Context, factory func() ScorableEstimator, X, y mat.Matrix, splitter Splitter) (*CVResult, error) {
	const op = "metrics.CrossValidate"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	var labels []float64
	if y != nil {
		labels = tensor.VecToSlice(y)
	}
	splits, err := splitter.Split(n, labels)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(splits))
	err = parallel.ForEachIndexed(ctx, op, len(splits), func(f int) error {
		split := splits[f]
		trainX := tensor.TakeRows(X, split.Train)
		testX := tensor.TakeRows(X, split.Test)

		var trainY, testY mat.Matrix
		if labels != nil {
			trainY = columnFrom(tensor.TakeValues(labels, split.Train))
			testY = columnFrom(tensor.TakeValues(labels, split.Test))
		}

		est := factory()
		if err := est.Fit(trainX, trainY); err != nil {
			return errors.Wrapf(err, "fold %d fit", f)
		}
		score, err := est.Score(testX, testY)
		if err != nil {
			return errors.Wrapf(err, "fold %d score", f)
		}
		scores[f] = score
		return nil
	})
	if err != nil {
		return nil, err
	}

	mean, variance := stat.MeanVariance(scores, nil)
	// Population deviation over the realized folds.
	std := 0.0
	if len(scores) > 1 {
		std = sqrtNonNeg(variance * float64(len(scores)-1) / float64(len(scores)))
	}
	return &CVResult{Scores: scores, Mean: mean, Std: std}, nil
}

func columnFrom(values []float64) mat.Matrix {
	return mat.NewDense(len(values), 1, values)
}

func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
