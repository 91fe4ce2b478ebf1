package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Log1pTransformer applies log(1+x) elementwise. It is stateless apart
// from the column count but still follows the fit/transform contract so
// it can sit in a Pipeline. Inputs must be greater than -1.
type Log1pTransformer struct {
	// Fitted state, exported for gob serialization.
	Fitted    bool
	NFeatures int
}

// NewLog1pTransformer creates a Log1pTransformer.
func NewLog1pTransformer() *Log1pTransformer {
	return &Log1pTransformer{}
}

// IsFitted reports whether Fit has succeeded.
func (l *Log1pTransformer) IsFitted() bool { return l.Fitted }

// Fit records the column count.
func (l *Log1pTransformer) Fit(X mat.Matrix) error {
	const op = "Log1pTransformer.Fit"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}
	_, c := X.Dims()
	l.NFeatures = c
	l.Fitted = true
	return nil
}

// Transform applies log1p elementwise.
func (l *Log1pTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "Log1pTransformer.Transform"
	if !l.Fitted {
		return nil, errors.NewNotFittedError("Log1pTransformer", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, l.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if v <= -1 {
				return nil, errors.NewInputErrorAt(op, "log1p requires values greater than -1", i)
			}
			out.Set(i, j, math.Log1p(v))
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (l *Log1pTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := l.Fit(X); err != nil {
		return nil, err
	}
	return l.Transform(X)
}

// InverseTransform applies expm1 elementwise.
func (l *Log1pTransformer) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !l.Fitted {
		return nil, errors.NewNotFittedError("Log1pTransformer", "InverseTransform")
	}
	if err := tensor.CheckFeatures("Log1pTransformer.InverseTransform", X, l.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, math.Expm1(X.At(i, j)))
		}
	}
	return out, nil
}
