// Package metrics implements evaluation measures for regression,
// classification and clustering, plus cross-validation splitters and
// search helpers.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// pairedColumns validates that yTrue and yPred are same-length single
// columns and returns them as slices.
func pairedColumns(op string, yTrue, yPred mat.Matrix) ([]float64, []float64, error) {
	tr, tc := yTrue.Dims()
	pr, pc := yPred.Dims()
	if tc != 1 || pc != 1 {
		return nil, nil, errors.NewDimensionError(op, 1, tc, 1)
	}
	if tr != pr {
		return nil, nil, errors.NewDimensionError(op, tr, pr, 0)
	}
	if tr == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, op)
	}

	truth := make([]float64, tr)
	pred := make([]float64, tr)
	for i := 0; i < tr; i++ {
		truth[i] = yTrue.At(i, 0)
		pred[i] = yPred.At(i, 0)
		if math.IsNaN(truth[i]) || math.IsInf(truth[i], 0) ||
			math.IsNaN(pred[i]) || math.IsInf(pred[i], 0) {
			return nil, nil, errors.NewInputErrorAt(op, "non-finite value", i)
		}
	}
	return truth, pred, nil
}

// MAE returns the mean absolute error.
func MAE(yTrue, yPred mat.Matrix) (float64, error) {
	truth, pred, err := pairedColumns("metrics.MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range truth {
		sum += math.Abs(truth[i] - pred[i])
	}
	return sum / float64(len(truth)), nil
}

// MSE returns the mean squared error.
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	truth, pred, err := pairedColumns("metrics.MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range truth {
		d := truth[i] - pred[i]
		sum += d * d
	}
	return sum / float64(len(truth)), nil
}

// RMSE returns the root mean squared error.
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// R2 returns the coefficient of determination. Constant targets have no
// variance to explain and yield a numerical error.
func R2(yTrue, yPred mat.Matrix) (float64, error) {
	const op = "metrics.R2"
	truth, pred, err := pairedColumns(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var mean float64
	for _, v := range truth {
		mean += v
	}
	mean /= float64(len(truth))

	var tss, rss float64
	for i := range truth {
		tss += (truth[i] - mean) * (truth[i] - mean)
		rss += (truth[i] - pred[i]) * (truth[i] - pred[i])
	}
	if tss == 0 {
		return 0, errors.NewNumericalError(op, "targets have zero variance")
	}
	return 1 - rss/tss, nil
}

// AdjustedR2 penalizes R2 by the number of features used.
func AdjustedR2(yTrue, yPred mat.Matrix, nFeatures int) (float64, error) {
	const op = "metrics.AdjustedR2"
	if nFeatures <= 0 {
		return 0, errors.NewInputError(op, "feature count must be positive")
	}
	r2, err := R2(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	n, _ := yTrue.Dims()
	if n-nFeatures-1 <= 0 {
		return 0, errors.NewInputError(op, "too few samples for the feature count")
	}
	return 1 - (1-r2)*float64(n-1)/float64(n-nFeatures-1), nil
}

// RegressionReport bundles the regression metrics for one prediction
// set.
type RegressionReport struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// EvaluateRegression computes the full regression report.
func EvaluateRegression(yTrue, yPred mat.Matrix) (*RegressionReport, error) {
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r2, err := R2(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return &RegressionReport{MAE: mae, MSE: mse, RMSE: math.Sqrt(mse), R2: r2}, nil
}
