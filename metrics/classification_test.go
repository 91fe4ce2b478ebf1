package metrics

import (
	"math"
	"testing"
)

func TestAccuracy(t *testing.T) {
	acc, err := Accuracy(column(0, 1, 1, 0), column(0, 1, 0, 0))
	if err != nil {
		t.Fatalf("Accuracy failed: %v", err)
	}
	if acc != 0.75 {
		t.Errorf("Accuracy = %v, want 0.75", acc)
	}
}

func TestClassificationReportBinary(t *testing.T) {
	// Class 0: 2 true, both predicted 0 plus one false positive.
	// Class 1: 2 true, one caught.
	yTrue := column(0, 0, 1, 1)
	yPred := column(0, 0, 0, 1)

	report, err := EvaluateClassification(yTrue, yPred)
	if err != nil {
		t.Fatalf("EvaluateClassification failed: %v", err)
	}

	if report.Accuracy != 0.75 {
		t.Errorf("Accuracy = %v, want 0.75", report.Accuracy)
	}
	if len(report.Classes) != 2 || report.Classes[0] != 0 || report.Classes[1] != 1 {
		t.Fatalf("Classes = %v, want [0 1]", report.Classes)
	}

	class0 := report.PerClass[0]
	if math.Abs(class0.Precision-2.0/3.0) > 1e-12 {
		t.Errorf("class 0 precision = %v, want 2/3", class0.Precision)
	}
	if class0.Recall != 1 {
		t.Errorf("class 0 recall = %v, want 1", class0.Recall)
	}
	if class0.Support != 2 {
		t.Errorf("class 0 support = %v, want 2", class0.Support)
	}

	class1 := report.PerClass[1]
	if class1.Precision != 1 {
		t.Errorf("class 1 precision = %v, want 1", class1.Precision)
	}
	if class1.Recall != 0.5 {
		t.Errorf("class 1 recall = %v, want 0.5", class1.Recall)
	}

	// Confusion matrix rows are true classes.
	want := [][]int{{2, 0}, {1, 1}}
	for i := range want {
		for j := range want[i] {
			if report.ConfusionMatrix[i][j] != want[i][j] {
				t.Errorf("confusion[%d][%d] = %d, want %d",
					i, j, report.ConfusionMatrix[i][j], want[i][j])
			}
		}
	}
}

func TestMacroAndWeightedF1(t *testing.T) {
	// Imbalanced: five of class 0, one of class 1, class 1 always missed.
	yTrue := column(0, 0, 0, 0, 0, 1)
	yPred := column(0, 0, 0, 0, 0, 0)

	report, err := EvaluateClassification(yTrue, yPred)
	if err != nil {
		t.Fatalf("EvaluateClassification failed: %v", err)
	}
	// Macro treats classes equally, weighted follows support; the missed
	// minority class drags macro further down.
	if report.MacroF1 >= report.WeightedF1 {
		t.Errorf("macro F1 = %v should be below weighted F1 = %v",
			report.MacroF1, report.WeightedF1)
	}
}

func TestReportIncludesPredictedOnlyClasses(t *testing.T) {
	// Class 2 never appears in the truth but is predicted once.
	yTrue := column(0, 0, 1)
	yPred := column(0, 2, 1)

	report, err := EvaluateClassification(yTrue, yPred)
	if err != nil {
		t.Fatalf("EvaluateClassification failed: %v", err)
	}
	if len(report.Classes) != 3 {
		t.Fatalf("Classes = %v, want 3 entries", report.Classes)
	}
	if report.PerClass[2].Support != 0 {
		t.Errorf("phantom class support = %d, want 0", report.PerClass[2].Support)
	}
	if report.PerClass[2].Recall != 0 {
		t.Errorf("phantom class recall = %v, want 0", report.PerClass[2].Recall)
	}
}
