// Package registry tracks trained models: identity, lineage metadata,
// the live estimator, and the persisted blob behind each one.
package registry

import (
	"github.com/harborgrid-justin/phantom-spire-sub003/cluster"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/ensemble"
	"github.com/harborgrid-justin/phantom-spire-sub003/linear"
	"github.com/harborgrid-justin/phantom-spire-sub003/neural"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
	"github.com/harborgrid-justin/phantom-spire-sub003/timeseries"
)

// taskFor maps each algorithm to the tasks it supports.
var taskFor = map[string][]string{
	model.AlgorithmLinearRegression: {model.TaskRegression},
	model.AlgorithmRandomForest:     {model.TaskClassification, model.TaskRegression},
	model.AlgorithmNeuralNetwork:    {model.TaskClassification, model.TaskRegression},
	model.AlgorithmKMeans:           {model.TaskClustering},
	model.AlgorithmDBSCAN:           {model.TaskClustering},
	model.AlgorithmIsolationForest:  {model.TaskAnomalyDetection},
	model.AlgorithmARIMA:            {model.TaskTimeSeries},
}

// ValidatePair checks that the algorithm exists and supports the task.
func ValidatePair(algorithm, task string) error {
	supported, ok := taskFor[algorithm]
	if !ok {
		return errors.NewHyperparameterError(algorithm, "algorithm", "unknown algorithm", algorithm)
	}
	for _, t := range supported {
		if t == task {
			return nil
		}
	}
	return errors.NewHyperparameterError(algorithm, "task", "task not supported by this algorithm", task)
}

// NewEstimator builds an unfitted estimator for the algorithm and task
// from a free-form hyperparameter map.
func NewEstimator(algorithm, task string, hyperparams map[string]interface{}) (interface{}, error) {
	if err := ValidatePair(algorithm, task); err != nil {
		return nil, err
	}
	switch algorithm {
	case model.AlgorithmLinearRegression:
		return linear.FromParams(hyperparams)
	case model.AlgorithmRandomForest:
		return ensemble.ForestFromParams(task, hyperparams)
	case model.AlgorithmNeuralNetwork:
		return neural.NetworkFromParams(task, hyperparams)
	case model.AlgorithmKMeans:
		return cluster.KMeansFromParams(hyperparams)
	case model.AlgorithmDBSCAN:
		return cluster.DBSCANFromParams(hyperparams)
	case model.AlgorithmIsolationForest:
		return ensemble.IsolationFromParams(hyperparams)
	case model.AlgorithmARIMA:
		return timeseries.ARIMAFromParams(hyperparams)
	default:
		return nil, errors.NewHyperparameterError(algorithm, "algorithm", "unknown algorithm", algorithm)
	}
}
