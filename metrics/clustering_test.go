package metrics

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// separatedClusters builds two tight, far-apart groups of three rows.
func separatedClusters() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0.1, 0,
		0, 0.1,
		10, 10,
		10.1, 10,
		10, 10.1,
	})
	labels := column(0, 0, 0, 1, 1, 1)
	return X, labels
}

func TestSilhouetteSeparatedClusters(t *testing.T) {
	X, labels := separatedClusters()
	s, err := Silhouette(X, labels)
	if err != nil {
		t.Fatalf("Silhouette failed: %v", err)
	}
	if s < 0.9 {
		t.Errorf("silhouette = %v, want > 0.9 for well separated clusters", s)
	}
}

func TestSilhouetteSingleClusterRejected(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	_, err := Silhouette(X, column(0, 0, 0))
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestSilhouetteSkipsNoise(t *testing.T) {
	X := mat.NewDense(7, 2, []float64{
		0, 0,
		0.1, 0,
		0, 0.1,
		10, 10,
		10.1, 10,
		10, 10.1,
		100, 100, // noise
	})
	labels := column(0, 0, 0, 1, 1, 1, -1)
	s, err := Silhouette(X, labels)
	if err != nil {
		t.Fatalf("Silhouette failed: %v", err)
	}
	if s < 0.9 {
		t.Errorf("silhouette = %v, noise row should not drag it down", s)
	}
}

func TestDaviesBouldinLowerForTighterClusters(t *testing.T) {
	tight, tightLabels := separatedClusters()

	loose := mat.NewDense(6, 2, []float64{
		0, 0,
		3, 0,
		0, 3,
		10, 10,
		13, 10,
		10, 13,
	})

	tightScore, err := DaviesBouldin(tight, tightLabels)
	if err != nil {
		t.Fatalf("DaviesBouldin failed: %v", err)
	}
	looseScore, err := DaviesBouldin(loose, tightLabels)
	if err != nil {
		t.Fatalf("DaviesBouldin failed: %v", err)
	}
	if tightScore >= looseScore {
		t.Errorf("tight = %v, loose = %v; tighter clusters should score lower",
			tightScore, looseScore)
	}
}

func TestInertiaZeroForCoincidentPoints(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{5, 5, 2, 2})
	inertia, err := Inertia(X, column(0, 0, 1, 1))
	if err != nil {
		t.Fatalf("Inertia failed: %v", err)
	}
	if inertia != 0 {
		t.Errorf("inertia = %v, want 0", inertia)
	}
}

func TestInertiaAllNoiseRejected(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{1, 2})
	_, err := Inertia(X, column(-1, -1))
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}
