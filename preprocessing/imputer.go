package preprocessing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Imputation strategies.
const (
	StrategyMean     = "mean"
	StrategyMedian   = "median"
	StrategyConstant = "constant"
)

// Imputer replaces NaN cells with a per-column statistic learned at fit
// time, or with a constant. Infinities are rejected; only NaN marks a
// missing value.
type Imputer struct {
	Strategy  string
	FillValue float64

	// Fitted state, exported for gob serialization.
	Fitted    bool
	Fill      []float64
	NFeatures int
}

// NewImputer creates an Imputer. fillValue is only used by the constant
// strategy.
func NewImputer(strategy string, fillValue float64) *Imputer {
	return &Imputer{Strategy: strategy, FillValue: fillValue}
}

// IsFitted reports whether Fit has succeeded.
func (im *Imputer) IsFitted() bool { return im.Fitted }

// Fit learns the per-column replacement values from the non-missing
// cells.
func (im *Imputer) Fit(X mat.Matrix) error {
	const op = "Imputer.Fit"
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}

	fill := make([]float64, c)
	var observed []float64
	for j := 0; j < c; j++ {
		observed = observed[:0]
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			if math.IsInf(v, 0) {
				return errors.NewInputErrorAt(op, "matrix contains an infinite value", i)
			}
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}

		switch im.Strategy {
		case StrategyConstant:
			fill[j] = im.FillValue
		case StrategyMean:
			if len(observed) == 0 {
				return errors.NewInputError(op, "column has no observed values to average")
			}
			fill[j] = stat.Mean(observed, nil)
		case StrategyMedian:
			if len(observed) == 0 {
				return errors.NewInputError(op, "column has no observed values to average")
			}
			sorted := append([]float64(nil), observed...)
			sort.Float64s(sorted)
			fill[j] = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		default:
			return errors.NewHyperparameterError(KindImputer, "strategy", "unknown strategy", im.Strategy)
		}
	}

	im.Fill = fill
	im.NFeatures = c
	im.Fitted = true
	return nil
}

// Transform replaces NaN cells with the learned values.
func (im *Imputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "Imputer.Transform"
	if !im.Fitted {
		return nil, errors.NewNotFittedError("Imputer", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, im.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsInf(v, 0) {
				return nil, errors.NewInputErrorAt(op, "matrix contains an infinite value", i)
			}
			if math.IsNaN(v) {
				v = im.Fill[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (im *Imputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := im.Fit(X); err != nil {
		return nil, err
	}
	return im.Transform(X)
}
