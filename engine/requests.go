package engine

import (
	"time"
)

// CreateRequest registers a new unfitted model.
type CreateRequest struct {
	Name            string                 `json:"name"`
	Algorithm       string                 `json:"algorithm"`
	Task            string                 `json:"task"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
}

// CreateResponse returns the new model's id.
type CreateResponse struct {
	ModelID string `json:"model_id"`
}

// TrainRequest trains a model. When ModelID is empty a model is created
// from Algorithm/Task/Hyperparameters first. Supervised estimators need
// Targets; time-series models read Series instead of Features.
type TrainRequest struct {
	ModelID         string                 `json:"model_id,omitempty"`
	Name            string                 `json:"name,omitempty"`
	Algorithm       string                 `json:"algorithm,omitempty"`
	Task            string                 `json:"task,omitempty"`
	Features        [][]float64            `json:"features,omitempty"`
	Targets         []float64              `json:"targets,omitempty"`
	Series          []float64              `json:"series,omitempty"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
}

// TrainResponse reports the trained model and its training-set metrics.
type TrainResponse struct {
	ModelID string             `json:"model_id"`
	Metrics map[string]float64 `json:"metrics"`
}

// PredictRequest runs batch prediction.
type PredictRequest struct {
	ModelID  string      `json:"model_id"`
	Features [][]float64 `json:"features"`
}

// PredictResponse carries one prediction per input row.
type PredictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// PredictProbaRequest asks a classifier for class probabilities.
type PredictProbaRequest struct {
	ModelID  string      `json:"model_id"`
	Features [][]float64 `json:"features"`
}

// PredictProbaResponse carries per-row probabilities aligned with
// Classes.
type PredictProbaResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
	Classes       []float64   `json:"classes"`
}

// PredictIntervalsRequest asks a regressor for prediction intervals.
type PredictIntervalsRequest struct {
	ModelID    string      `json:"model_id"`
	Features   [][]float64 `json:"features"`
	Confidence float64     `json:"confidence"`
}

// PredictIntervalsResponse carries per-row interval bounds.
type PredictIntervalsResponse struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// ForecastRequest extends a fitted time-series model.
type ForecastRequest struct {
	ModelID string `json:"model_id"`
	Horizon int    `json:"horizon"`
}

// ForecastResponse carries the forecast values.
type ForecastResponse struct {
	Forecasts []float64 `json:"forecasts"`
}

// EvaluateRequest scores a model on a labeled test set.
type EvaluateRequest struct {
	ModelID  string      `json:"model_id"`
	Features [][]float64 `json:"features"`
	Targets  []float64   `json:"targets,omitempty"`
}

// EvaluateResponse carries the metric snapshot, which is also stored on
// the model envelope.
type EvaluateResponse struct {
	Metrics map[string]float64 `json:"metrics"`
}

// ListRequest filters the model catalog. Zero-valued fields match
// everything.
type ListRequest struct {
	Algorithm     string     `json:"algorithm,omitempty"`
	Task          string     `json:"task,omitempty"`
	MinAccuracy   *float64   `json:"min_accuracy,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
}

// ModelSummary is one row of a List response.
type ModelSummary struct {
	ModelID   string             `json:"model_id"`
	Name      string             `json:"name"`
	Algorithm string             `json:"algorithm"`
	Task      string             `json:"task"`
	Fitted    bool               `json:"fitted"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// ListResponse carries the matching models, newest first.
type ListResponse struct {
	Models []ModelSummary `json:"models"`
}

// ModelDetail is the full Get response.
type ModelDetail struct {
	ModelSummary
	Version         int                    `json:"version"`
	LastTrainedAt   time.Time              `json:"last_trained_at,omitempty"`
	FeatureCount    int                    `json:"feature_count"`
	TrainingSamples int                    `json:"training_samples"`
	Classes         []float64              `json:"classes,omitempty"`
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
}
