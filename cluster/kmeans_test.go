package cluster

import (
	"math"
	"sort"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// threeBlobs builds tight clusters around (0,0), (10,0) and (0,10).
func threeBlobs(perCluster int, seed int64) (*mat.Dense, [][]float64) {
	centers := [][]float64{{0, 0}, {10, 0}, {0, 10}}
	rng := tensor.NewRand(seed)
	X := mat.NewDense(3*perCluster, 2, nil)
	for c, center := range centers {
		for i := 0; i < perCluster; i++ {
			row := c*perCluster + i
			X.Set(row, 0, center[0]+rng.NormFloat64()*0.3)
			X.Set(row, 1, center[1]+rng.NormFloat64()*0.3)
		}
	}
	return X, centers
}

func TestKMeansRecoversCentroids(t *testing.T) {
	X, centers := threeBlobs(50, 1)

	opts := DefaultKMeansOptions()
	opts.NClusters = 3
	opts.RandomState = 42
	km := NewKMeans(opts)
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// Each true center must have a fitted centroid within 0.5.
	for _, center := range centers {
		best := math.Inf(1)
		for c := 0; c < 3; c++ {
			d := tensor.EuclideanDistance(center, tensor.Row(km.Centroids, c))
			if d < best {
				best = d
			}
		}
		if best > 0.5 {
			t.Errorf("no centroid within 0.5 of %v (nearest %v)", center, best)
		}
	}
}

func TestKMeansLabelsPartitionBlobs(t *testing.T) {
	X, _ := threeBlobs(40, 2)

	opts := DefaultKMeansOptions()
	opts.NClusters = 3
	opts.RandomState = 7
	km := NewKMeans(opts)
	labels, err := km.FitPredict(X)
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}

	// Rows of the same blob should share a label.
	for blob := 0; blob < 3; blob++ {
		first := labels.At(blob*40, 0)
		for i := 1; i < 40; i++ {
			if labels.At(blob*40+i, 0) != first {
				t.Errorf("blob %d split across clusters", blob)
				break
			}
		}
	}

	// And the three blobs should use three distinct labels.
	seen := map[float64]bool{}
	for blob := 0; blob < 3; blob++ {
		seen[labels.At(blob*40, 0)] = true
	}
	if len(seen) != 3 {
		t.Errorf("blobs mapped to %d distinct labels, want 3", len(seen))
	}
}

func TestKMeansDeterministic(t *testing.T) {
	X, _ := threeBlobs(30, 3)

	fit := func() []int {
		opts := DefaultKMeansOptions()
		opts.NClusters = 3
		opts.RandomState = 42
		km := NewKMeans(opts)
		if err := km.Fit(X, nil); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		return km.Labels
	}

	a := fit()
	b := fit()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("labels differ at row %d for identical seeds", i)
		}
	}
}

func TestKMeansRejectsTooFewRows(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	opts := DefaultKMeansOptions()
	opts.NClusters = 3
	km := NewKMeans(opts)
	err := km.Fit(X, nil)
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestKMeansPredictNearest(t *testing.T) {
	X, _ := threeBlobs(30, 4)

	opts := DefaultKMeansOptions()
	opts.NClusters = 3
	opts.RandomState = 42
	km := NewKMeans(opts)
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	probe := mat.NewDense(1, 2, []float64{10, 0.1})
	labels, err := km.Predict(probe)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	got := int(labels.At(0, 0))

	// The probe sits on the (10,0) blob; its label must match the
	// training label of that blob.
	want := km.Labels[30] // first row of second blob
	if got != want {
		t.Errorf("probe labeled %d, want %d", got, want)
	}
}

func TestKMeansFromParams(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"defaults", nil, false},
		{"full", map[string]interface{}{"n_clusters": 4, "max_iter": 100, "tol": 1e-5, "n_init": 3, "random_state": 42}, false},
		{"zero clusters", map[string]interface{}{"n_clusters": 0}, true},
		{"unknown key", map[string]interface{}{"init": "random"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KMeansFromParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("KMeansFromParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKMeansInertiaIsSumOfSquares(t *testing.T) {
	X, _ := threeBlobs(20, 5)

	opts := DefaultKMeansOptions()
	opts.NClusters = 3
	opts.RandomState = 1
	km := NewKMeans(opts)
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var want float64
	for i := 0; i < 60; i++ {
		want += tensor.SquaredDistance(tensor.Row(X, i), tensor.Row(km.Centroids, km.Labels[i]))
	}
	if math.Abs(km.Inertia-want) > 1e-9 {
		t.Errorf("Inertia = %v, want %v", km.Inertia, want)
	}

	labels := append([]int(nil), km.Labels...)
	sort.Ints(labels)
	if labels[0] < 0 || labels[len(labels)-1] >= 3 {
		t.Errorf("labels out of range: %v..%v", labels[0], labels[len(labels)-1])
	}
}

func TestKMeansScoreIsSilhouette(t *testing.T) {
	X, _ := threeBlobs(30, 6)
	km := NewKMeans(KMeansOptions{NClusters: 3, MaxIter: 100, Tol: 1e-4, NInit: 5, RandomState: 6})
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	score, err := km.Score(X, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score < 0.8 {
		t.Errorf("silhouette on tight blobs = %v, want >= 0.8", score)
	}
}
