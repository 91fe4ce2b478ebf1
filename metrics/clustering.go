package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// clusterRows groups row indices by their integer label, skipping
// negative (noise) labels.
func clusterRows(labels []float64) map[int][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		c := int(l)
		if c < 0 {
			continue
		}
		groups[c] = append(groups[c], i)
	}
	return groups
}

// Silhouette returns the mean silhouette coefficient over all
// non-noise rows. It needs at least two clusters.
func Silhouette(X mat.Matrix, labels mat.Matrix) (float64, error) {
	const op = "metrics.Silhouette"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return 0, err
	}

	n, _ := X.Dims()
	lr, lc := labels.Dims()
	if lc != 1 || lr != n {
		return 0, errors.NewDimensionError(op, n, lr, 0)
	}
	labelSlice := tensor.VecToSlice(labels)
	groups := clusterRows(labelSlice)
	if len(groups) < 2 {
		return 0, errors.NewInputError(op, "silhouette needs at least two clusters")
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	var total float64
	var counted int
	for i := 0; i < n; i++ {
		own := int(labelSlice[i])
		if own < 0 {
			continue
		}
		ownGroup := groups[own]
		if len(ownGroup) == 1 {
			// A singleton contributes zero.
			counted++
			continue
		}

		// a: mean distance to the own cluster, the point excluded.
		var a float64
		for _, j := range ownGroup {
			if j != i {
				a += tensor.EuclideanDistance(rows[i], rows[j])
			}
		}
		a /= float64(len(ownGroup) - 1)

		// b: lowest mean distance to any other cluster.
		b := math.Inf(1)
		for c, group := range groups {
			if c == own {
				continue
			}
			var d float64
			for _, j := range group {
				d += tensor.EuclideanDistance(rows[i], rows[j])
			}
			d /= float64(len(group))
			if d < b {
				b = d
			}
		}

		den := a
		if b > den {
			den = b
		}
		if den > 0 {
			total += (b - a) / den
		}
		counted++
	}
	if counted == 0 {
		return 0, errors.NewInputError(op, "no clustered rows to score")
	}
	return total / float64(counted), nil
}

// DaviesBouldin returns the Davies-Bouldin index; lower is better. It
// needs at least two clusters.
func DaviesBouldin(X mat.Matrix, labels mat.Matrix) (float64, error) {
	const op = "metrics.DaviesBouldin"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return 0, err
	}

	n, f := X.Dims()
	lr, lc := labels.Dims()
	if lc != 1 || lr != n {
		return 0, errors.NewDimensionError(op, n, lr, 0)
	}
	labelSlice := tensor.VecToSlice(labels)
	groups := clusterRows(labelSlice)
	if len(groups) < 2 {
		return 0, errors.NewInputError(op, "davies-bouldin needs at least two clusters")
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	// Ordered cluster ids for deterministic iteration.
	var ids []int
	for c := range groups {
		ids = append(ids, c)
	}
	sort.Ints(ids)

	centroids := make(map[int][]float64, len(groups))
	scatter := make(map[int]float64, len(groups))
	for _, c := range ids {
		group := groups[c]
		centroid := make([]float64, f)
		for _, i := range group {
			for j, v := range rows[i] {
				centroid[j] += v
			}
		}
		for j := range centroid {
			centroid[j] /= float64(len(group))
		}
		centroids[c] = centroid

		var s float64
		for _, i := range group {
			s += tensor.EuclideanDistance(rows[i], centroid)
		}
		scatter[c] = s / float64(len(group))
	}

	var total float64
	for _, c := range ids {
		worst := 0.0
		for _, other := range ids {
			if other == c {
				continue
			}
			sep := tensor.EuclideanDistance(centroids[c], centroids[other])
			if sep == 0 {
				return 0, errors.NewNumericalError(op, "coincident cluster centroids")
			}
			ratio := (scatter[c] + scatter[other]) / sep
			if ratio > worst {
				worst = ratio
			}
		}
		total += worst
	}
	return total / float64(len(ids)), nil
}

// Inertia returns the total within-cluster sum of squared distances to
// the centroid of each labeled cluster. Noise rows are skipped.
func Inertia(X mat.Matrix, labels mat.Matrix) (float64, error) {
	const op = "metrics.Inertia"
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return 0, err
	}

	n, f := X.Dims()
	lr, lc := labels.Dims()
	if lc != 1 || lr != n {
		return 0, errors.NewDimensionError(op, n, lr, 0)
	}
	groups := clusterRows(tensor.VecToSlice(labels))
	if len(groups) == 0 {
		return 0, errors.NewInputError(op, "no clustered rows to score")
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	var total float64
	for _, group := range groups {
		centroid := make([]float64, f)
		for _, i := range group {
			for j, v := range rows[i] {
				centroid[j] += v
			}
		}
		for j := range centroid {
			centroid[j] /= float64(len(group))
		}
		for _, i := range group {
			total += tensor.SquaredDistance(rows[i], centroid)
		}
	}
	return total, nil
}
