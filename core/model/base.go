// Package model defines the estimator contracts shared by every algorithm
// in the core, plus the stable algorithm and task tag vocabulary.
package model

// EstimatorState represents the training state of a model.
type EstimatorState int

const (
	// NotFitted is the state of a model before Fit has succeeded.
	NotFitted EstimatorState = iota
	// Fitted is the state of a trained model.
	Fitted
)

// BaseEstimator is embedded by every estimator and tracks fitted state.
// The field is exported so the state survives gob encoding of the
// embedding estimator.
type BaseEstimator struct {
	State EstimatorState
}

// IsFitted reports whether the model has been trained.
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted marks the model as trained.
func (e *BaseEstimator) SetFitted() {
	e.State = Fitted
}

// Reset returns the model to the untrained state.
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
}

// Algorithm tags, stable across persistence and the request surface.
const (
	AlgorithmLinearRegression = "linear_regression"
	AlgorithmRandomForest     = "random_forest"
	AlgorithmNeuralNetwork    = "neural_network"
	AlgorithmKMeans           = "kmeans"
	AlgorithmDBSCAN           = "dbscan"
	AlgorithmIsolationForest  = "isolation_forest"
	AlgorithmARIMA            = "arima"
)

// Task tags.
const (
	TaskRegression       = "regression"
	TaskClassification   = "classification"
	TaskClustering       = "clustering"
	TaskAnomalyDetection = "anomaly_detection"
	TaskTimeSeries       = "time_series"
)

// KnownAlgorithms lists every supported algorithm tag.
func KnownAlgorithms() []string {
	return []string{
		AlgorithmLinearRegression,
		AlgorithmRandomForest,
		AlgorithmNeuralNetwork,
		AlgorithmKMeans,
		AlgorithmDBSCAN,
		AlgorithmIsolationForest,
		AlgorithmARIMA,
	}
}

// KnownTasks lists every supported task tag.
func KnownTasks() []string {
	return []string{
		TaskRegression,
		TaskClassification,
		TaskClustering,
		TaskAnomalyDetection,
		TaskTimeSeries,
	}
}
