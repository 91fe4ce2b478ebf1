// Package cluster implements unsupervised grouping: k-means with
// k-means++ seeding and density-based DBSCAN.
package cluster

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/metrics"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// KMeansOptions holds the hyperparameters of KMeans.
type KMeansOptions struct {
	NClusters int
	MaxIter   int
	// Tol stops Lloyd iteration once the largest centroid move falls
	// below it.
	Tol float64
	// NInit runs the whole algorithm that many times from different
	// seedings and keeps the run with the lowest inertia.
	NInit       int
	RandomState int64
}

// DefaultKMeansOptions returns the default hyperparameters.
func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{
		NClusters: 8,
		MaxIter:   300,
		Tol:       1e-4,
		NInit:     10,
	}
}

// KMeans partitions rows into NClusters groups by Lloyd's algorithm with
// k-means++ seeding.
type KMeans struct {
	model.BaseEstimator

	opts KMeansOptions

	// Fitted state, exported for gob serialization.
	Centroids *mat.Dense
	Labels    []int
	Inertia   float64
	NFeatures int
	NSamples  int
	NIter     int
}

// NewKMeans creates a KMeans with the given options.
func NewKMeans(opts KMeansOptions) *KMeans {
	return &KMeans{opts: opts}
}

// KMeansFromParams builds a KMeans from a free-form hyperparameter map,
// rejecting unknown keys.
func KMeansFromParams(hyperparams map[string]interface{}) (*KMeans, error) {
	opts := DefaultKMeansOptions()
	for key, value := range hyperparams {
		switch key {
		case "n_clusters":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "must be a positive integer", value)
			}
			opts.NClusters = v
		case "max_iter":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "must be a positive integer", value)
			}
			opts.MaxIter = v
		case "tol":
			v, ok := params.Float(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "must be a non-negative number", value)
			}
			opts.Tol = v
		case "n_init":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "must be a positive integer", value)
			}
			opts.NInit = v
		case "random_state":
			v, ok := params.Int(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "must be an integer", value)
			}
			opts.RandomState = int64(v)
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmKMeans, key, "unknown hyperparameter", value)
		}
	}
	return NewKMeans(opts), nil
}

type kmeansRun struct {
	centroids [][]float64
	labels    []int
	inertia   float64
	iters     int
}

// Fit clusters the rows of X. The optional y is ignored.
func (km *KMeans) Fit(X, y mat.Matrix) error {
	return km.FitContext(context.Background(), X, y)
}

// FitContext clusters with cooperative cancellation; the NInit restarts
// run in parallel and the lowest-inertia run wins. Ties break toward the
// lowest restart index so results do not depend on thread count.
func (km *KMeans) FitContext(ctx context.Context, X, _ mat.Matrix) error {
	const op = "KMeans.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}
	n, features := X.Dims()
	if n < km.opts.NClusters {
		return errors.NewInputError(op, "fewer rows than clusters")
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	runs := make([]*kmeansRun, km.opts.NInit)
	err := parallel.ForEachIndexed(ctx, op, km.opts.NInit, func(i int) error {
		rng := tensor.NewRand(tensor.DeriveSeed(km.opts.RandomState, i))
		runs[i] = lloyd(rows, km.opts.NClusters, km.opts.MaxIter, km.opts.Tol, rng)
		return nil
	})
	if err != nil {
		return err
	}

	best := runs[0]
	for _, run := range runs[1:] {
		if run.inertia < best.inertia {
			best = run
		}
	}

	centroids := mat.NewDense(km.opts.NClusters, features, nil)
	for c, centroid := range best.centroids {
		centroids.SetRow(c, centroid)
	}

	km.Centroids = centroids
	km.Labels = best.labels
	km.Inertia = best.inertia
	km.NFeatures = features
	km.NSamples = n
	km.NIter = best.iters
	km.SetFitted()
	return nil
}

// lloyd runs one seeded k-means pass to convergence.
func lloyd(rows [][]float64, k, maxIter int, tol float64, rng *rand.Rand) *kmeansRun {
	centroids := seedPlusPlus(rows, k, rng)
	labels := make([]int, len(rows))
	features := len(rows[0])

	var iters int
	for iter := 0; iter < maxIter; iter++ {
		iters = iter + 1

		for i, row := range rows {
			labels[i] = nearestCentroid(row, centroids)
		}

		// Recompute centroids; empty clusters keep their position.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, features)
		}
		for i, row := range rows {
			c := labels[i]
			counts[c]++
			for j, v := range row {
				sums[c][j] += v
			}
		}

		var maxMove float64
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			updated := make([]float64, features)
			for j := range updated {
				updated[j] = sums[c][j] / float64(counts[c])
			}
			move := tensor.EuclideanDistance(centroids[c], updated)
			if move > maxMove {
				maxMove = move
			}
			centroids[c] = updated
		}
		if maxMove < tol {
			break
		}
	}

	var inertia float64
	for i, row := range rows {
		inertia += tensor.SquaredDistance(row, centroids[labels[i]])
	}
	return &kmeansRun{centroids: centroids, labels: labels, inertia: inertia, iters: iters}
}

// seedPlusPlus picks k initial centroids with k-means++: each new
// centroid is drawn with probability proportional to its squared
// distance from the nearest centroid chosen so far.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := make([]float64, len(rows[0]))
	copy(first, rows[rng.IntN(len(rows))])
	centroids = append(centroids, first)

	dists := make([]float64, len(rows))
	for len(centroids) < k {
		var total float64
		latest := centroids[len(centroids)-1]
		for i, row := range rows {
			d := tensor.SquaredDistance(row, latest)
			if len(centroids) == 1 || d < dists[i] {
				dists[i] = d
			}
			total += dists[i]
		}

		var chosen int
		if total == 0 {
			// All rows coincide with a centroid; any row will do.
			chosen = rng.IntN(len(rows))
		} else {
			target := rng.Float64() * total
			var cum float64
			for i, d := range dists {
				cum += d
				if cum >= target {
					chosen = i
					break
				}
			}
		}
		next := make([]float64, len(rows[0]))
		copy(next, rows[chosen])
		centroids = append(centroids, next)
	}
	return centroids
}

func nearestCentroid(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		d := tensor.SquaredDistance(row, centroid)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// Predict assigns each row to its nearest fitted centroid.
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	const op = "KMeans.Predict"
	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Predict")
	}
	if err := tensor.CheckFeatures(op, X, km.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	centroids := make([][]float64, km.opts.NClusters)
	for c := range centroids {
		centroids[c] = tensor.Row(km.Centroids, c)
	}

	n, _ := X.Dims()
	labels := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		labels.Set(i, 0, float64(nearestCentroid(tensor.Row(X, i), centroids)))
	}
	return labels, nil
}

// FitPredict fits and returns the training labels.
func (km *KMeans) FitPredict(X mat.Matrix) (mat.Matrix, error) {
	if err := km.Fit(X, nil); err != nil {
		return nil, err
	}
	labels := mat.NewDense(len(km.Labels), 1, nil)
	for i, l := range km.Labels {
		labels.Set(i, 0, float64(l))
	}
	return labels, nil
}

// Score returns the mean silhouette of X under the fitted centroids.
// The optional y is ignored.
func (km *KMeans) Score(X, _ mat.Matrix) (float64, error) {
	labels, err := km.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.Silhouette(X, labels)
}

// GetParams returns the clusterer's hyperparameters.
func (km *KMeans) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_clusters":   km.opts.NClusters,
		"max_iter":     km.opts.MaxIter,
		"tol":          km.opts.Tol,
		"n_init":       km.opts.NInit,
		"random_state": km.opts.RandomState,
	}
}
