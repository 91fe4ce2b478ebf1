// Package tensor provides the numeric substrate shared by all estimators:
// input validation, axis-wise statistics, distances and index sampling on
// top of gonum's dense matrices.
package tensor

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// ValidateMatrix checks that X is non-empty and contains only finite values.
func ValidateMatrix(op string, X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewInputError(op, "empty dataset")
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewInputErrorAt(op, "non-finite feature value", i)
			}
		}
	}
	return nil
}

// ValidateTargets checks that y is a non-empty finite column vector with
// the same number of rows as X.
func ValidateTargets(op string, X, y mat.Matrix) error {
	r, _ := X.Dims()
	ry, cy := y.Dims()
	if ry == 0 {
		return errors.NewInputError(op, "empty targets")
	}
	if cy != 1 {
		return errors.NewInputError(op, "targets must be a column vector")
	}
	if ry != r {
		return errors.NewDimensionError(op, r, ry, 0)
	}
	for i := 0; i < ry; i++ {
		if v := y.At(i, 0); math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewInputErrorAt(op, "non-finite target value", i)
		}
	}
	return nil
}

// ValidateClassTargets additionally checks that every target is an integer
// class id, as required by classifiers.
func ValidateClassTargets(op string, X, y mat.Matrix) error {
	if err := ValidateTargets(op, X, y); err != nil {
		return err
	}
	r, _ := y.Dims()
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || v < 0 {
			return errors.NewInputErrorAt(op, "class label must be a non-negative integer", i)
		}
	}
	return nil
}

// CheckFeatures returns an InvalidShape error when the column count of X
// disagrees with the feature count learned at fit time.
func CheckFeatures(op string, X mat.Matrix, nFeatures int) error {
	_, c := X.Dims()
	if c != nFeatures {
		return errors.NewDimensionError(op, nFeatures, c, 1)
	}
	return nil
}

// Row extracts row i of X into a fresh slice.
func Row(X mat.Matrix, i int) []float64 {
	return mat.Row(nil, i, X)
}

// Col extracts column j of X into a fresh slice.
func Col(X mat.Matrix, j int) []float64 {
	return mat.Col(nil, j, X)
}

// VecToSlice copies a column vector into a plain slice.
func VecToSlice(y mat.Matrix) []float64 {
	r, _ := y.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = y.At(i, 0)
	}
	return out
}

// ColumnMeans returns the per-column mean of X.
func ColumnMeans(X mat.Matrix) []float64 {
	_, c := X.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		means[j] = stat.Mean(Col(X, j), nil)
	}
	return means
}

// ColumnMeanStdDevs returns the per-column mean and population standard
// deviation of X, using gonum's compensated estimators.
func ColumnMeanStdDevs(X mat.Matrix) (means, stds []float64) {
	r, c := X.Dims()
	means = make([]float64, c)
	stds = make([]float64, c)
	for j := 0; j < c; j++ {
		col := Col(X, j)
		mean, variance := stat.MeanVariance(col, nil)
		means[j] = mean
		// gonum reports the unbiased (sample) variance; convert to the
		// population form used throughout the core.
		stds[j] = math.Sqrt(variance * float64(r-1) / float64(r))
	}
	return means, stds
}

// ColumnMinMax returns the per-column minimum and maximum of X.
func ColumnMinMax(X mat.Matrix) (mins, maxs []float64) {
	_, c := X.Dims()
	mins = make([]float64, c)
	maxs = make([]float64, c)
	for j := 0; j < c; j++ {
		col := Col(X, j)
		mins[j] = floats.Min(col)
		maxs[j] = floats.Max(col)
	}
	return mins, maxs
}

// EuclideanDistance returns the L2 distance between two points.
func EuclideanDistance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// SquaredDistance returns the squared L2 distance between two points.
func SquaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// ArgMax returns the index of the largest value, breaking ties in favor of
// the lowest index.
func ArgMax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// UniqueSorted returns the sorted distinct values of y. Classifiers use it
// to discover class ids at fit time.
func UniqueSorted(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := make([]float64, 0, 8)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// BootstrapIndices draws n indices with replacement from [0, n).
func BootstrapIndices(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

// SampleWithoutReplacement draws k distinct indices from [0, n) via a
// partial Fisher-Yates shuffle.
func SampleWithoutReplacement(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

// PermutedIndices returns a random permutation of [0, n).
func PermutedIndices(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng.Shuffle(n, func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// TakeRows materializes the selected rows of X as a new dense matrix.
func TakeRows(X mat.Matrix, indices []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(indices), c, nil)
	for i, idx := range indices {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

// TakeValues gathers the selected entries of a slice.
func TakeValues(values []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}

// NewRand returns a PCG generator seeded deterministically from seed.
// Parallel units derive their own generators from a root seed and a unit
// index so results are reproducible regardless of scheduling.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9E3779B97F4A7C15))
}

// DeriveSeed produces the seed for parallel unit i from the root seed.
func DeriveSeed(root int64, i int) int64 {
	const mix = 0x9E3779B97F4A7C15
	h := uint64(root) ^ (uint64(i)+1)*mix
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	return int64(h)
}
