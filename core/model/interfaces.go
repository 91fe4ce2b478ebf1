package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Estimator is the common contract for all trainable models.
//
// Fit trains on an N×F feature matrix and an optional N×1 target vector;
// unsupervised estimators accept a nil y. Predict returns an N'×1 matrix
// and fails with NotFitted before training or InvalidShape on a feature
// count mismatch.
type Estimator interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

// ContextFitter is implemented by estimators whose Fit supports
// cooperative cancellation between units of work (trees, epochs,
// iterations). Fit is all-or-nothing: on cancellation the model keeps its
// pre-call state.
type ContextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// Scorer computes the estimator's natural quality metric: R² for
// regressors, accuracy for classifiers, mean silhouette for clusterers.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// FeatureImporter exposes per-feature importances normalized to sum to 1.
type FeatureImporter interface {
	FeatureImportances() []float64
}

// ParameterGetter exposes the model's hyperparameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// Regressor combines the interfaces of regression models.
type Regressor interface {
	Estimator
	Scorer

	// PredictIntervals returns per-row lower and upper prediction bounds
	// at the given confidence level in (0, 1), as an N'×2 matrix.
	PredictIntervals(X mat.Matrix, confidence float64) (mat.Matrix, error)
}

// Classifier combines the interfaces of classification models.
type Classifier interface {
	Estimator
	Scorer

	// PredictProba returns an N'×K matrix of class probabilities whose
	// columns align with Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the ordered class ids discovered during Fit.
	Classes() []float64
}

// Clusterer combines the interfaces of clustering models.
type Clusterer interface {
	Estimator

	// FitPredict fits the model and returns the training labels.
	FitPredict(X mat.Matrix) (mat.Matrix, error)
}

// AnomalyDetector scores samples for abnormality.
type AnomalyDetector interface {
	Estimator

	// ScoreSamples returns per-row anomaly scores in (0, 1); higher means
	// more anomalous.
	ScoreSamples(X mat.Matrix) ([]float64, error)
}

// Forecaster produces future values from a fitted time series model.
// Forecasters consume a univariate series and expose no feature matrix.
type Forecaster interface {
	IsFitted() bool

	// FitSeries trains on the observed series in time order.
	FitSeries(series []float64) error

	// Forecast rolls the model forward and returns the next horizon values.
	Forecast(horizon int) ([]float64, error)
}
