package preprocessing

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func matrixNear(t *testing.T, got, want mat.Matrix, tol float64) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		t.Fatalf("dims = %dx%d, want %dx%d", gr, gc, wr, wc)
	}
	for i := 0; i < gr; i++ {
		for j := 0; j < gc; j++ {
			if math.Abs(got.At(i, j)-want.At(i, j)) > tol {
				t.Fatalf("cell (%d,%d) = %v, want %v", i, j, got.At(i, j), want.At(i, j))
			}
		}
	}
}

func TestStandardScalerCentersAndScales(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	s := NewStandardScaler()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	r, _ := out.Dims()
	var sum, sumSq float64
	for i := 0; i < r; i++ {
		v := out.At(i, 0)
		sum += v
		sumSq += v * v
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("mean = %v, want 0", sum/4)
	}
	if math.Abs(sumSq/4-1) > 1e-9 {
		t.Errorf("variance = %v, want 1", sumSq/4)
	}
}

func TestScalersRoundTrip(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{
		1, 100,
		2, 200,
		3, 150,
		4, 400,
		5, 50,
	})

	scalers := map[string]InverseTransformer{
		"standard": NewStandardScaler(),
		"minmax":   NewMinMaxScaler(),
		"robust":   NewRobustScaler(),
	}
	for name, s := range scalers {
		t.Run(name, func(t *testing.T) {
			scaled, err := s.FitTransform(X)
			if err != nil {
				t.Fatalf("FitTransform failed: %v", err)
			}
			back, err := s.InverseTransform(scaled)
			if err != nil {
				t.Fatalf("InverseTransform failed: %v", err)
			}
			matrixNear(t, back, X, 1e-9)
		})
	}
}

func TestConstantColumnDoesNotDivideByZero(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{7, 7, 7})

	for name, s := range map[string]Transformer{
		"standard": NewStandardScaler(),
		"minmax":   NewMinMaxScaler(),
		"robust":   NewRobustScaler(),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := s.FitTransform(X)
			if err != nil {
				t.Fatalf("FitTransform failed: %v", err)
			}
			for i := 0; i < 3; i++ {
				if v := out.At(i, 0); math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("row %d = %v, want finite", i, v)
				}
			}
		})
	}
}

func TestFitTransformMatchesFitThenTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40})

	a := NewStandardScaler()
	combined, err := a.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	b := NewStandardScaler()
	if err := b.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	separate, err := b.Transform(X)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	matrixNear(t, combined, separate, 0)
}

func TestImputerStrategies(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, math.NaN(), 3, 8})

	tests := []struct {
		name     string
		strategy string
		fill     float64
		want     float64
	}{
		{"mean", StrategyMean, 0, 4},
		{"median", StrategyMedian, 0, 3},
		{"constant", StrategyConstant, -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := NewImputer(tt.strategy, tt.fill)
			out, err := im.FitTransform(X)
			if err != nil {
				t.Fatalf("FitTransform failed: %v", err)
			}
			if got := out.At(1, 0); got != tt.want {
				t.Errorf("imputed value = %v, want %v", got, tt.want)
			}
			// Observed cells pass through unchanged.
			if out.At(0, 0) != 1 || out.At(2, 0) != 3 {
				t.Error("observed cells modified")
			}
		})
	}
}

func TestImputerRejectsAllMissingColumn(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{math.NaN(), math.NaN()})
	im := NewImputer(StrategyMean, 0)
	if err := im.Fit(X); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestOneHotEncoder(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 1})

	e := NewOneHotEncoder(false)
	out, err := e.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	want := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0, 1, 0,
	})
	matrixNear(t, out, want, 0)
}

func TestOneHotUnknownValue(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	probe := mat.NewDense(1, 1, []float64{5})

	strict := NewOneHotEncoder(false)
	if _, err := strict.FitTransform(X); err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	if _, err := strict.Transform(probe); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}

	lax := NewOneHotEncoder(true)
	if _, err := lax.FitTransform(X); err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	out, err := lax.Transform(probe)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if out.At(0, 0) != 0 || out.At(0, 1) != 0 {
		t.Error("unknown value should encode to all zeros")
	}
}

func TestLog1pRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{0, 1, 99})

	l := NewLog1pTransformer()
	out, err := l.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	back, err := l.InverseTransform(out)
	if err != nil {
		t.Fatalf("InverseTransform failed: %v", err)
	}
	matrixNear(t, back, X, 1e-9)

	bad := mat.NewDense(1, 1, []float64{-2})
	if _, err := l.Transform(bad); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestPipelineOrderAndReplay(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, math.NaN(), 3, 5})

	p := NewPipeline(
		Step{Name: "impute", Transformer: NewImputer(StrategyMean, 0)},
		Step{Name: "scale", Transformer: NewStandardScaler()},
	)

	fitted, err := p.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	replayed, err := p.Transform(X)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	matrixNear(t, fitted, replayed, 0)
}

func TestPipelineGobRoundTrip(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40})

	p := NewPipeline(
		Step{Name: "impute", Transformer: NewImputer(StrategyMedian, 0)},
		Step{Name: "scale", Transformer: NewMinMaxScaler()},
	)
	want, err := p.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		t.Fatalf("gob encode failed: %v", err)
	}
	var restored Pipeline
	if err := gob.NewDecoder(&buf).Decode(&restored); err != nil {
		t.Fatalf("gob decode failed: %v", err)
	}

	got, err := restored.Transform(X)
	if err != nil {
		t.Fatalf("Transform after decode failed: %v", err)
	}
	matrixNear(t, got, want, 0)
}

func TestPipelineFromParams(t *testing.T) {
	p, err := PipelineFromParams([]map[string]interface{}{
		{"kind": "imputer", "strategy": "median"},
		{"kind": "standard_scaler", "name": "scale"},
	})
	if err != nil {
		t.Fatalf("PipelineFromParams failed: %v", err)
	}
	if len(p.Steps) != 2 || p.Steps[1].Name != "scale" {
		t.Errorf("unexpected steps: %+v", p.Steps)
	}

	if _, err := PipelineFromParams([]map[string]interface{}{{"kind": "pca"}}); errors.KindOf(err) != errors.KindInvalidHyperparameter {
		t.Error("unknown kind accepted")
	}
	if _, err := PipelineFromParams([]map[string]interface{}{{"strategy": "mean"}}); errors.KindOf(err) != errors.KindInvalidHyperparameter {
		t.Error("step without kind accepted")
	}
}

func TestTransformBeforeFit(t *testing.T) {
	X := mat.NewDense(1, 1, []float64{1})
	for name, tr := range map[string]Transformer{
		"standard": NewStandardScaler(),
		"minmax":   NewMinMaxScaler(),
		"robust":   NewRobustScaler(),
		"imputer":  NewImputer(StrategyMean, 0),
		"one_hot":  NewOneHotEncoder(false),
		"log1p":    NewLog1pTransformer(),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := tr.Transform(X); errors.KindOf(err) != errors.KindNotFitted {
				t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindNotFitted)
			}
		})
	}
}
