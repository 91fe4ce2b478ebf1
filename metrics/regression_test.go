package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func column(values ...float64) *mat.Dense {
	return mat.NewDense(len(values), 1, values)
}

func TestRegressionMetricsKnownValues(t *testing.T) {
	yTrue := column(1, 2, 3, 4)
	yPred := column(1, 2, 3, 6)

	mae, err := MAE(yTrue, yPred)
	if err != nil {
		t.Fatalf("MAE failed: %v", err)
	}
	if math.Abs(mae-0.5) > 1e-12 {
		t.Errorf("MAE = %v, want 0.5", mae)
	}

	mse, err := MSE(yTrue, yPred)
	if err != nil {
		t.Fatalf("MSE failed: %v", err)
	}
	if math.Abs(mse-1) > 1e-12 {
		t.Errorf("MSE = %v, want 1", mse)
	}

	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		t.Fatalf("RMSE failed: %v", err)
	}
	if math.Abs(rmse-1) > 1e-12 {
		t.Errorf("RMSE = %v, want 1", rmse)
	}
}

func TestR2PerfectAndMeanPredictor(t *testing.T) {
	yTrue := column(1, 2, 3, 4)

	r2, err := R2(yTrue, yTrue)
	if err != nil {
		t.Fatalf("R2 failed: %v", err)
	}
	if r2 != 1 {
		t.Errorf("perfect R2 = %v, want 1", r2)
	}

	mean := column(2.5, 2.5, 2.5, 2.5)
	r2, err = R2(yTrue, mean)
	if err != nil {
		t.Fatalf("R2 failed: %v", err)
	}
	if math.Abs(r2) > 1e-12 {
		t.Errorf("mean-predictor R2 = %v, want 0", r2)
	}
}

func TestR2ConstantTargets(t *testing.T) {
	yTrue := column(3, 3, 3)
	_, err := R2(yTrue, column(3, 3, 3))
	if errors.KindOf(err) != errors.KindNumerical {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindNumerical)
	}
}

func TestAdjustedR2(t *testing.T) {
	yTrue := column(1, 2, 3, 4, 5, 6)
	yPred := column(1.1, 1.9, 3.2, 3.8, 5.1, 5.9)

	r2, err := R2(yTrue, yPred)
	if err != nil {
		t.Fatalf("R2 failed: %v", err)
	}
	adj, err := AdjustedR2(yTrue, yPred, 2)
	if err != nil {
		t.Fatalf("AdjustedR2 failed: %v", err)
	}
	if adj >= r2 {
		t.Errorf("adjusted R2 = %v should be below R2 = %v", adj, r2)
	}

	if _, err := AdjustedR2(yTrue, yPred, 10); errors.KindOf(err) != errors.KindInvalidInput {
		t.Error("too many features accepted")
	}
}

func TestLengthMismatch(t *testing.T) {
	_, err := MAE(column(1, 2), column(1))
	if errors.KindOf(err) != errors.KindInvalidShape {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidShape)
	}
}

func TestNonFiniteRejected(t *testing.T) {
	_, err := MSE(column(1, math.NaN()), column(1, 2))
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestEvaluateRegressionReport(t *testing.T) {
	report, err := EvaluateRegression(column(1, 2, 3, 4), column(1, 2, 3, 6))
	if err != nil {
		t.Fatalf("EvaluateRegression failed: %v", err)
	}
	if report.MAE != 0.5 || report.MSE != 1 || report.RMSE != 1 {
		t.Errorf("report = %+v", report)
	}
}
