package metrics

import (
	"context"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/linear"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func TestKFoldCoversEveryRowOnce(t *testing.T) {
	splits, err := KFold{NSplits: 4}.Split(10, nil)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(splits) != 4 {
		t.Fatalf("got %d folds, want 4", len(splits))
	}

	seen := make(map[int]int)
	for _, s := range splits {
		for _, i := range s.Test {
			seen[i]++
		}
		if len(s.Train)+len(s.Test) != 10 {
			t.Errorf("fold covers %d rows, want 10", len(s.Train)+len(s.Test))
		}
	}
	for i := 0; i < 10; i++ {
		if seen[i] != 1 {
			t.Errorf("row %d appears in %d test sets, want 1", i, seen[i])
		}
	}
}

func TestKFoldShuffleDeterministic(t *testing.T) {
	a, err := KFold{NSplits: 3, Shuffle: true, RandomState: 42}.Split(9, nil)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	b, err := KFold{NSplits: 3, Shuffle: true, RandomState: 42}.Split(9, nil)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	for f := range a {
		for i := range a[f].Test {
			if a[f].Test[i] != b[f].Test[i] {
				t.Fatal("shuffled folds differ for identical seeds")
			}
		}
	}
}

func TestKFoldTooFewRows(t *testing.T) {
	_, err := KFold{NSplits: 5}.Split(3, nil)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestStratifiedKFoldBalance(t *testing.T) {
	// 12 rows of class 0, 6 of class 1, 3 folds: every fold should see
	// exactly 4 and 2.
	y := make([]float64, 18)
	for i := 12; i < 18; i++ {
		y[i] = 1
	}

	splits, err := StratifiedKFold{NSplits: 3}.Split(18, y)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	for f, s := range splits {
		var zeros, ones int
		for _, i := range s.Test {
			if y[i] == 0 {
				zeros++
			} else {
				ones++
			}
		}
		if zeros != 4 || ones != 2 {
			t.Errorf("fold %d has %d/%d, want 4/2", f, zeros, ones)
		}
	}
}

func TestStratifiedKFoldProportionsWithinOne(t *testing.T) {
	// 10 of class 0, 7 of class 1: per-fold counts may differ by at most
	// one from each other.
	y := make([]float64, 17)
	for i := 10; i < 17; i++ {
		y[i] = 1
	}

	splits, err := StratifiedKFold{NSplits: 3, Shuffle: true, RandomState: 1}.Split(17, y)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	counts := map[float64][]int{0: {}, 1: {}}
	for _, s := range splits {
		perFold := map[float64]int{}
		for _, i := range s.Test {
			perFold[y[i]]++
		}
		counts[0] = append(counts[0], perFold[0])
		counts[1] = append(counts[1], perFold[1])
	}
	for class, perFold := range counts {
		lo, hi := perFold[0], perFold[0]
		for _, c := range perFold[1:] {
			if c < lo {
				lo = c
			}
			if c > hi {
				hi = c
			}
		}
		if hi-lo > 1 {
			t.Errorf("class %v fold counts %v spread more than 1", class, perFold)
		}
	}
}

func TestStratifiedKFoldNeedsLabels(t *testing.T) {
	_, err := StratifiedKFold{NSplits: 2}.Split(10, nil)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestTimeSeriesSplitOrdering(t *testing.T) {
	splits, err := TimeSeriesSplit{NSplits: 3}.Split(20, nil)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(splits) != 3 {
		t.Fatalf("got %d folds, want 3", len(splits))
	}
	for f, s := range splits {
		maxTrain := -1
		for _, i := range s.Train {
			if i > maxTrain {
				maxTrain = i
			}
		}
		for _, i := range s.Test {
			if i <= maxTrain {
				t.Errorf("fold %d: test row %d not after training rows", f, i)
			}
		}
		if f > 0 && len(s.Train) <= len(splits[f-1].Train) {
			t.Errorf("fold %d training window did not grow", f)
		}
	}
}

func TestCrossValidateLinearRegression(t *testing.T) {
	rng := tensor.NewRand(1)
	X := mat.NewDense(60, 1, nil)
	y := mat.NewDense(60, 1, nil)
	for i := 0; i < 60; i++ {
		x := rng.Float64() * 10
		X.Set(i, 0, x)
		y.Set(i, 0, 2*x+1+rng.NormFloat64()*0.01)
	}

	result, err := CrossValidate(context.Background(), func() ScorableEstimator {
		return linear.NewDefault()
	}, X, y, KFold{NSplits: 5, Shuffle: true, RandomState: 42})
	if err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}

	if len(result.Scores) != 5 {
		t.Fatalf("got %d scores, want 5", len(result.Scores))
	}
	if result.Mean < 0.99 {
		t.Errorf("mean R² = %v, want > 0.99 on near-noiseless line", result.Mean)
	}
}

func TestCrossValidateCancelled(t *testing.T) {
	X := mat.NewDense(20, 1, nil)
	y := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CrossValidate(ctx, func() ScorableEstimator {
		return linear.NewDefault()
	}, X, y, KFold{NSplits: 4})
	if errors.KindOf(err) != errors.KindCancelled {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindCancelled)
	}
}

func TestGridSearchPicksBestRidge(t *testing.T) {
	rng := tensor.NewRand(2)
	X := mat.NewDense(60, 1, nil)
	y := mat.NewDense(60, 1, nil)
	for i := 0; i < 60; i++ {
		x := rng.Float64() * 10
		X.Set(i, 0, x)
		y.Set(i, 0, 2*x+1+rng.NormFloat64()*0.01)
	}

	grid := map[string][]interface{}{
		"l2": {0.0, 100.0},
	}
	result, err := GridSearch(context.Background(), grid,
		func(hyperparams map[string]interface{}) (ScorableEstimator, error) {
			return linear.FromParams(hyperparams)
		}, X, y, KFold{NSplits: 4, Shuffle: true, RandomState: 7})
	if err != nil {
		t.Fatalf("GridSearch failed: %v", err)
	}

	if len(result.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(result.Candidates))
	}
	// Heavy regularization on a clean line must lose.
	if result.Best.Params["l2"] != 0.0 {
		t.Errorf("best l2 = %v, want 0", result.Best.Params["l2"])
	}
}

func TestGridSearchRejectsBadCombination(t *testing.T) {
	X := mat.NewDense(10, 1, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i))
	}

	grid := map[string][]interface{}{"learning_rate": {-1.0}}
	_, err := GridSearch(context.Background(), grid,
		func(hyperparams map[string]interface{}) (ScorableEstimator, error) {
			return linear.FromParams(hyperparams)
		}, X, y, KFold{NSplits: 2})
	if errors.KindOf(err) != errors.KindInvalidHyperparameter {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidHyperparameter)
	}
}
