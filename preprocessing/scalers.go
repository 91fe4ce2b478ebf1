package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// StandardScaler centers each column to mean zero and scales it to unit
// standard deviation. Constant columns keep a scale of one so Transform
// never divides by zero.
type StandardScaler struct {
	// Fitted state, exported for gob serialization.
	Fitted    bool
	Mean      []float64
	Scale     []float64
	NFeatures int
}

// NewStandardScaler creates an unfitted StandardScaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// IsFitted reports whether Fit has succeeded.
func (s *StandardScaler) IsFitted() bool { return s.Fitted }

// Fit learns per-column mean and standard deviation.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	const op = "StandardScaler.Fit"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	means, stds := tensor.ColumnMeanStdDevs(X)
	for j, sd := range stds {
		if sd == 0 {
			stds[j] = 1
		}
	}

	_, c := X.Dims()
	s.Mean = means
	s.Scale = stds
	s.NFeatures = c
	s.Fitted = true
	return nil
}

// Transform applies the fitted centering and scaling.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "StandardScaler.Transform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps scaled data back to the original units.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	const op = "StandardScaler.InverseTransform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return out, nil
}

// MinMaxScaler rescales each column to [0, 1]. Constant columns map to
// zero.
type MinMaxScaler struct {
	// Fitted state, exported for gob serialization.
	Fitted    bool
	Min       []float64
	Range     []float64
	NFeatures int
}

// NewMinMaxScaler creates an unfitted MinMaxScaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// IsFitted reports whether Fit has succeeded.
func (s *MinMaxScaler) IsFitted() bool { return s.Fitted }

// Fit learns per-column minimum and range.
func (s *MinMaxScaler) Fit(X mat.Matrix) error {
	const op = "MinMaxScaler.Fit"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	mins, maxs := tensor.ColumnMinMax(X)
	ranges := make([]float64, len(mins))
	for j := range mins {
		ranges[j] = maxs[j] - mins[j]
		if ranges[j] == 0 {
			ranges[j] = 1
		}
	}

	_, c := X.Dims()
	s.Min = mins
	s.Range = ranges
	s.NFeatures = c
	s.Fitted = true
	return nil
}

// Transform applies the fitted rescaling.
func (s *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "MinMaxScaler.Transform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("MinMaxScaler", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.Min[j])/s.Range[j])
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (s *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps scaled data back to the original units.
func (s *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	const op = "MinMaxScaler.InverseTransform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("MinMaxScaler", "InverseTransform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(i, j)*s.Range[j]+s.Min[j])
		}
	}
	return out, nil
}

// RobustScaler centers on the median and scales by the interquartile
// range, which keeps outliers from dominating the fit. Columns with zero
// IQR keep a scale of one.
type RobustScaler struct {
	// Fitted state, exported for gob serialization.
	Fitted    bool
	Median    []float64
	IQR       []float64
	NFeatures int
}

// NewRobustScaler creates an unfitted RobustScaler.
func NewRobustScaler() *RobustScaler {
	return &RobustScaler{}
}

// IsFitted reports whether Fit has succeeded.
func (s *RobustScaler) IsFitted() bool { return s.Fitted }

// Fit learns per-column median and interquartile range.
func (s *RobustScaler) Fit(X mat.Matrix) error {
	const op = "RobustScaler.Fit"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	r, c := X.Dims()
	medians := make([]float64, c)
	iqrs := make([]float64, c)
	column := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			column[i] = X.At(i, j)
		}
		sort.Float64s(column)
		medians[j] = stat.Quantile(0.5, stat.Empirical, column, nil)
		iqr := stat.Quantile(0.75, stat.Empirical, column, nil) -
			stat.Quantile(0.25, stat.Empirical, column, nil)
		if iqr == 0 {
			iqr = 1
		}
		iqrs[j] = iqr
	}

	s.Median = medians
	s.IQR = iqrs
	s.NFeatures = c
	s.Fitted = true
	return nil
}

// Transform applies the fitted centering and scaling.
func (s *RobustScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	const op = "RobustScaler.Transform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("RobustScaler", "Transform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (X.At(i, j)-s.Median[j])/s.IQR[j])
		}
	}
	return out, nil
}

// FitTransform fits and transforms in one call.
func (s *RobustScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps scaled data back to the original units.
func (s *RobustScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	const op = "RobustScaler.InverseTransform"
	if !s.Fitted {
		return nil, errors.NewNotFittedError("RobustScaler", "InverseTransform")
	}
	if err := tensor.CheckFeatures(op, X, s.NFeatures); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(i, j)*s.IQR[j]+s.Median[j])
		}
	}
	return out, nil
}
