// Package linear implements linear regression with a closed-form normal
// equations solver and a gradient descent fallback for wide problems.
package linear

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// closedFormFeatureLimit is the feature count above which the Gram matrix
// becomes too expensive and gradient descent takes over.
const closedFormFeatureLimit = 2000

// convergenceWindow is the sliding window length for the relative loss
// change convergence test.
const convergenceWindow = 5

// LinearRegression fits y = Xw + b by ordinary least squares.
//
// When the problem is tall and narrow (F < 2000 and N >= F) the normal
// equations are solved directly; otherwise batch gradient descent runs with
// the configured learning rate, L1/L2 penalties and iteration cap.
type LinearRegression struct {
	model.BaseEstimator

	opts Options

	// Fitted parameters.
	Weights   *mat.VecDense
	Intercept float64
	NFeatures int
	NSamples  int

	// ResidualStd is the standard deviation of training residuals, used
	// for prediction intervals. Exported with the rest of the fitted
	// state so intervals survive a serialization round trip.
	ResidualStd float64
	// NIter counts gradient descent iterations; zero on the closed-form
	// path.
	NIter     int
	Converged bool
}

// Options holds the hyperparameters of LinearRegression.
type Options struct {
	LearningRate float64
	MaxIter      int
	Tol          float64
	L1           float64
	L2           float64
}

// DefaultOptions returns the default hyperparameters.
func DefaultOptions() Options {
	return Options{
		LearningRate: 0.01,
		MaxIter:      1000,
		Tol:          1e-6,
	}
}

// New creates a LinearRegression with the given options.
func New(opts Options) *LinearRegression {
	return &LinearRegression{opts: opts}
}

// NewDefault creates a LinearRegression with default options.
func NewDefault() *LinearRegression {
	return New(DefaultOptions())
}

// FromParams builds a LinearRegression from a free-form hyperparameter
// map, rejecting unknown keys.
func FromParams(hyperparams map[string]interface{}) (*LinearRegression, error) {
	opts := DefaultOptions()
	for key, value := range hyperparams {
		switch key {
		case "learning_rate":
			v, ok := params.Float(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "must be a positive number", value)
			}
			opts.LearningRate = v
		case "max_iter":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "must be a positive integer", value)
			}
			opts.MaxIter = v
		case "tol":
			v, ok := params.Float(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "must be a non-negative number", value)
			}
			opts.Tol = v
		case "l1":
			v, ok := params.Float(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "must be a non-negative number", value)
			}
			opts.L1 = v
		case "l2":
			v, ok := params.Float(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "must be a non-negative number", value)
			}
			opts.L2 = v
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmLinearRegression, key, "unknown hyperparameter", value)
		}
	}
	return New(opts), nil
}

// Fit trains the model on an N×F matrix and an N×1 target vector.
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	return lr.FitContext(context.Background(), X, y)
}

// FitContext trains the model with cooperative cancellation between
// gradient descent iterations. Fit is all-or-nothing: on any failure the
// model keeps its pre-call state.
func (lr *LinearRegression) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "LinearRegression.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}
	if err := tensor.ValidateTargets(op, X, y); err != nil {
		return err
	}

	n, f := X.Dims()

	var weights *mat.VecDense
	var intercept float64
	var nIter int
	var converged bool
	var err error

	if f < closedFormFeatureLimit && n >= f {
		weights, intercept, err = lr.solveNormalEquations(X, y)
		converged = true
	} else {
		weights, intercept, nIter, converged, err = lr.solveGradientDescent(ctx, X, y)
	}
	if err != nil {
		return err
	}

	// Commit fitted state only after the solve succeeded.
	lr.Weights = weights
	lr.Intercept = intercept
	lr.NFeatures = f
	lr.NSamples = n
	lr.NIter = nIter
	lr.Converged = converged
	lr.ResidualStd = lr.computeResidualStd(X, y)
	lr.SetFitted()
	return nil
}

// solveNormalEquations computes w = (XᵀX + λI)⁻¹ Xᵀy with the intercept
// absorbed into an augmented column of ones.
func (lr *LinearRegression) solveNormalEquations(X, y mat.Matrix) (*mat.VecDense, float64, error) {
	n, f := X.Dims()

	aug := mat.NewDense(n, f+1, nil)
	parallel.ParallelizeWithThreshold(n, 1000, func(start, end int) {
		for i := start; i < end; i++ {
			aug.Set(i, 0, 1.0)
			for j := 0; j < f; j++ {
				aug.Set(i, j+1, X.At(i, j))
			}
		}
	})

	var gram mat.Dense
	gram.Mul(aug.T(), aug)

	if lr.opts.L2 > 0 {
		// Ridge penalty on the weights; the intercept stays unpenalized.
		for j := 1; j <= f; j++ {
			gram.Set(j, j, gram.At(j, j)+lr.opts.L2)
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(&gram); err != nil {
		if lr.opts.L2 == 0 {
			return nil, 0, errors.NewNumericalError("LinearRegression.Fit", "singular Gram matrix; consider an l2 penalty")
		}
		return nil, 0, errors.NewNumericalError("LinearRegression.Fit", "Gram matrix inversion failed")
	}

	yVec := mat.NewVecDense(n, tensor.VecToSlice(y))
	var xty mat.VecDense
	xty.MulVec(aug.T(), yVec)

	solution := mat.NewVecDense(f+1, nil)
	solution.MulVec(&inv, &xty)

	weights := mat.NewVecDense(f, nil)
	for j := 0; j < f; j++ {
		weights.SetVec(j, solution.AtVec(j+1))
	}
	return weights, solution.AtVec(0), nil
}

// solveGradientDescent runs batch gradient descent with L1/L2 penalties.
// Convergence: relative loss change below tol over a sliding window.
func (lr *LinearRegression) solveGradientDescent(ctx context.Context, X, y mat.Matrix) (*mat.VecDense, float64, int, bool, error) {
	const op = "LinearRegression.Fit"
	n, f := X.Dims()
	nf := float64(n)

	weights := make([]float64, f)
	intercept := 0.0
	targets := tensor.VecToSlice(y)

	window := make([]float64, 0, convergenceWindow)
	var iter int
	converged := false

	for iter = 0; iter < lr.opts.MaxIter; iter++ {
		if err := parallel.CheckCancel(ctx, op); err != nil {
			return nil, 0, 0, false, err
		}

		gradW := make([]float64, f)
		gradB := 0.0
		loss := 0.0

		for i := 0; i < n; i++ {
			pred := intercept
			for j := 0; j < f; j++ {
				pred += X.At(i, j) * weights[j]
			}
			residual := pred - targets[i]
			loss += residual * residual
			gradB += residual
			for j := 0; j < f; j++ {
				gradW[j] += residual * X.At(i, j)
			}
		}
		loss /= nf

		for j := 0; j < f; j++ {
			grad := 2 * gradW[j] / nf
			if lr.opts.L2 > 0 {
				grad += 2 * lr.opts.L2 * weights[j]
				loss += lr.opts.L2 * weights[j] * weights[j]
			}
			if lr.opts.L1 > 0 {
				grad += lr.opts.L1 * sign(weights[j])
				loss += lr.opts.L1 * math.Abs(weights[j])
			}
			weights[j] -= lr.opts.LearningRate * grad
		}
		intercept -= lr.opts.LearningRate * 2 * gradB / nf

		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, 0, 0, false, errors.NewNumericalError(op, "gradient descent diverged to non-finite loss")
		}

		window = append(window, loss)
		if len(window) > convergenceWindow {
			window = window[1:]
		}
		if len(window) == convergenceWindow {
			oldest := window[0]
			if oldest > 0 && math.Abs(oldest-loss)/oldest < lr.opts.Tol {
				converged = true
				iter++
				break
			}
		}
	}

	return mat.NewVecDense(f, weights), intercept, iter, converged, nil
}

func (lr *LinearRegression) computeResidualStd(X, y mat.Matrix) float64 {
	n, f := X.Dims()
	var rss float64
	for i := 0; i < n; i++ {
		pred := lr.Intercept
		for j := 0; j < f; j++ {
			pred += X.At(i, j) * lr.Weights.AtVec(j)
		}
		residual := y.At(i, 0) - pred
		rss += residual * residual
	}
	dof := n - f - 1
	if dof < 1 {
		dof = 1
	}
	return math.Sqrt(rss / float64(dof))
}

// Predict returns an N'×1 matrix of predictions.
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}
	if err := tensor.CheckFeatures("LinearRegression.Predict", X, lr.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix("LinearRegression.Predict", X); err != nil {
		return nil, err
	}

	n, f := X.Dims()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		pred := lr.Intercept
		for j := 0; j < f; j++ {
			pred += X.At(i, j) * lr.Weights.AtVec(j)
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// PredictIntervals returns per-row lower/upper prediction bounds as an
// N'×2 matrix, using a normal approximation from the training residual
// standard deviation.
func (lr *LinearRegression) PredictIntervals(X mat.Matrix, confidence float64) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "PredictIntervals")
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, errors.NewInputError("LinearRegression.PredictIntervals", "confidence must be in (0, 1)")
	}

	predictions, err := lr.Predict(X)
	if err != nil {
		return nil, err
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + confidence/2)
	margin := z * lr.ResidualStd

	n, _ := predictions.Dims()
	intervals := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := predictions.At(i, 0)
		intervals.Set(i, 0, p-margin)
		intervals.Set(i, 1, p+margin)
	}
	return intervals, nil
}

// Score returns the coefficient of determination R².
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	if !lr.IsFitted() {
		return 0, errors.NewNotFittedError("LinearRegression", "Score")
	}
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	n, _ := y.Dims()
	var yMean float64
	for i := 0; i < n; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(n)

	var tss, rss float64
	for i := 0; i < n; i++ {
		truth := y.At(i, 0)
		pred := predictions.At(i, 0)
		tss += (truth - yMean) * (truth - yMean)
		rss += (truth - pred) * (truth - pred)
	}
	if tss == 0 {
		return 0, errors.NewNumericalError("LinearRegression.Score", "no variance in targets")
	}
	return 1 - rss/tss, nil
}

// FeatureImportances returns the absolute weights normalized to sum to 1.
func (lr *LinearRegression) FeatureImportances() []float64 {
	if lr.Weights == nil {
		return nil
	}
	importances := make([]float64, lr.Weights.Len())
	var total float64
	for j := range importances {
		importances[j] = math.Abs(lr.Weights.AtVec(j))
		total += importances[j]
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}
	return importances
}

// GetParams returns the model's hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate": lr.opts.LearningRate,
		"max_iter":      lr.opts.MaxIter,
		"tol":           lr.opts.Tol,
		"l1":            lr.opts.L1,
		"l2":            lr.opts.L2,
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
