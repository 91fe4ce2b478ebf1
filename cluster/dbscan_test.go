package cluster

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// twoBlobsWithNoise builds two dense blobs and a handful of far-away
// isolated points.
func twoBlobsWithNoise(seed int64) *mat.Dense {
	rng := tensor.NewRand(seed)
	X := mat.NewDense(64, 2, nil)
	for i := 0; i < 30; i++ {
		X.Set(i, 0, rng.NormFloat64()*0.2)
		X.Set(i, 1, rng.NormFloat64()*0.2)
	}
	for i := 30; i < 60; i++ {
		X.Set(i, 0, 5+rng.NormFloat64()*0.2)
		X.Set(i, 1, 5+rng.NormFloat64()*0.2)
	}
	// Isolated points far from both blobs and from each other.
	X.Set(60, 0, 20)
	X.Set(60, 1, -20)
	X.Set(61, 0, -20)
	X.Set(61, 1, 20)
	X.Set(62, 0, 40)
	X.Set(62, 1, 40)
	X.Set(63, 0, -40)
	X.Set(63, 1, -40)
	return X
}

func TestDBSCANFindsTwoClustersAndNoise(t *testing.T) {
	X := twoBlobsWithNoise(1)

	opts := DBSCANOptions{Eps: 0.8, MinSamples: 4}
	d := NewDBSCAN(opts)
	labels, err := d.FitPredict(X)
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}

	if d.NClusters != 2 {
		t.Fatalf("NClusters = %d, want 2", d.NClusters)
	}

	first := labels.At(0, 0)
	second := labels.At(30, 0)
	if first == second {
		t.Error("both blobs got the same cluster label")
	}
	for i := 0; i < 30; i++ {
		if labels.At(i, 0) != first {
			t.Errorf("row %d of first blob labeled %v, want %v", i, labels.At(i, 0), first)
		}
	}
	for i := 30; i < 60; i++ {
		if labels.At(i, 0) != second {
			t.Errorf("row %d of second blob labeled %v, want %v", i, labels.At(i, 0), second)
		}
	}
	for i := 60; i < 64; i++ {
		if labels.At(i, 0) != NoiseLabel {
			t.Errorf("isolated row %d labeled %v, want noise", i, labels.At(i, 0))
		}
	}
}

func TestDBSCANAllNoiseWithTinyEps(t *testing.T) {
	X := twoBlobsWithNoise(2)

	d := NewDBSCAN(DBSCANOptions{Eps: 1e-9, MinSamples: 3})
	if err := d.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if d.NClusters != 0 {
		t.Errorf("NClusters = %d, want 0", d.NClusters)
	}
	for i, l := range d.Labels {
		if l != NoiseLabel {
			t.Errorf("row %d labeled %d, want noise", i, l)
		}
	}
}

func TestDBSCANPredictNewPoints(t *testing.T) {
	X := twoBlobsWithNoise(3)

	d := NewDBSCAN(DBSCANOptions{Eps: 0.8, MinSamples: 4})
	if err := d.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	probes := mat.NewDense(2, 2, []float64{
		0.1, 0.1, // inside the first blob
		100, 100, // far from every core point
	})
	labels, err := d.Predict(probes)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got := int(labels.At(0, 0)); got != d.Labels[0] {
		t.Errorf("blob probe labeled %d, want %d", got, d.Labels[0])
	}
	if got := int(labels.At(1, 0)); got != NoiseLabel {
		t.Errorf("far probe labeled %d, want noise", got)
	}
}

func TestDBSCANPredictBeforeFit(t *testing.T) {
	d := NewDBSCAN(DefaultDBSCANOptions())
	_, err := d.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	if errors.KindOf(err) != errors.KindNotFitted {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindNotFitted)
	}
}

func TestDBSCANFromParams(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"defaults", nil, false},
		{"full", map[string]interface{}{"eps": 0.3, "min_samples": 10}, false},
		{"zero eps", map[string]interface{}{"eps": 0.0}, true},
		{"unknown key", map[string]interface{}{"metric": "cosine"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DBSCANFromParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("DBSCANFromParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
