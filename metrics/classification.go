package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
)

// Accuracy returns the fraction of exactly matching labels.
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	truth, pred, err := pairedColumns("metrics.Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var correct int
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

// ClassReport holds per-class precision, recall, F1 and support.
type ClassReport struct {
	Class     float64 `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport bundles accuracy, per-class breakdowns and the
// confusion matrix. Classes are the sorted union of true and predicted
// labels; ConfusionMatrix[i][j] counts rows with true class i predicted
// as class j.
type ClassificationReport struct {
	Accuracy        float64       `json:"accuracy"`
	Classes         []float64     `json:"classes"`
	PerClass        []ClassReport `json:"per_class"`
	MacroF1         float64       `json:"macro_f1"`
	WeightedF1      float64       `json:"weighted_f1"`
	ConfusionMatrix [][]int       `json:"confusion_matrix"`
}

// EvaluateClassification computes the full classification report.
func EvaluateClassification(yTrue, yPred mat.Matrix) (*ClassificationReport, error) {
	truth, pred, err := pairedColumns("metrics.EvaluateClassification", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	classes := tensor.UniqueSorted(append(append([]float64(nil), truth...), pred...))
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	k := len(classes)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}
	var correct int
	for i := range truth {
		confusion[index[truth[i]]][index[pred[i]]]++
		if truth[i] == pred[i] {
			correct++
		}
	}

	perClass := make([]ClassReport, k)
	var macroF1, weightedF1 float64
	for c := 0; c < k; c++ {
		tp := confusion[c][c]
		var fp, fn int
		for other := 0; other < k; other++ {
			if other == c {
				continue
			}
			fp += confusion[other][c]
			fn += confusion[c][other]
		}

		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		support := tp + fn
		perClass[c] = ClassReport{
			Class:     classes[c],
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   support,
		}
		macroF1 += f1
		weightedF1 += f1 * float64(support)
	}
	macroF1 /= float64(k)
	weightedF1 /= float64(len(truth))

	return &ClassificationReport{
		Accuracy:        float64(correct) / float64(len(truth)),
		Classes:         classes,
		PerClass:        perClass,
		MacroF1:         macroF1,
		WeightedF1:      weightedF1,
		ConfusionMatrix: confusion,
	}, nil
}
