package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// OneHotEncoder expands each input column into one indicator column per
// distinct value seen at fit time. Output columns are grouped by input
// column, categories in ascending order.
type OneHotEncoder struct {
	// IgnoreUnknown emits all-zero indicators for unseen values instead
	// of failing.
	IgnoreUnknown bool

	// Fitted state, exported for gob serialization.
	Fitted     bool
	Categories [][]float64
	NFeatures  int
	NOutputs   int
}

// NewOneHotEncoder creates an OneHotEncoder.
func NewOneHotEncoder(ignoreUnknown bool) *OneHotEncoder {
	return &OneHotEncoder{IgnoreUnknown: ignoreUnknown}
}

// IsFitted reports whether Fit has succeeded.
func (e *OneHotEncoder) IsFitted() bool { return e.Fitted }

// Fit records the sorted distinct values of every column.
func (e *OneHotEncoder) Fit(X mat.Matrix) error {
	const op = "OneHotEncoder.Fit"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	r, c := X.Dims()
	categories := make([][]float64, c)
	outputs := 0
	column := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			column[i] = X.At(i, j)
		}
		categories[j] = tensor.UniqueSorted(column)
		outputs += len(categories[j])
	}

	e.Categories = categories
	e.NFeatures = c
	e.NOutputs = outputs
	e.Fitted = true
	return nil
}

// Transform encodes each row into indicator columns.
func (e *OneHotEncoder) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "OneHotEncoder.Transform"
	if !e.Fitted {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, e.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	out := mat.NewDense(r, e.NOutputs, nil)
	for i := 0; i < r; i++ {
		offset := 0
		for j, cats := range e.Categories {
			v := X.At(i, j)
			hit := false
			for k, cat := range cats {
				if v == cat {
					out.Set(i, offset+k, 1)
					hit = true
					break
				}
			}
			if !hit && !e.IgnoreUnknown {
				return nil, errors.NewInputErrorAt(op,
					fmt.Sprintf("value %v in column %d was not seen during fit", v, j), i)
			}
			offset += len(cats)
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (e *OneHotEncoder) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}
