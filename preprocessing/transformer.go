// Package preprocessing implements fitted data transformations: scalers,
// imputation, one-hot encoding and a composable pipeline. Every
// transformer learns its parameters in Fit and applies them unchanged in
// Transform, so training and serving see identical behavior.
package preprocessing

import (
	"encoding/gob"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Step kind names accepted by FromParams.
const (
	KindStandardScaler = "standard_scaler"
	KindMinMaxScaler   = "minmax_scaler"
	KindRobustScaler   = "robust_scaler"
	KindImputer        = "imputer"
	KindOneHotEncoder  = "one_hot"
	KindLog1p          = "log1p"
)

// Transformer learns parameters from data and applies them to new data.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

// InverseTransformer maps transformed data back to the original scale.
type InverseTransformer interface {
	Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

func init() {
	// Concrete transformers travel through gob as Transformer interface
	// values inside Pipeline steps.
	gob.Register(&StandardScaler{})
	gob.Register(&MinMaxScaler{})
	gob.Register(&RobustScaler{})
	gob.Register(&Imputer{})
	gob.Register(&OneHotEncoder{})
	gob.Register(&Log1pTransformer{})
}

// FromParams builds a transformer of the given kind from a free-form
// hyperparameter map, rejecting unknown kinds and keys.
func FromParams(kind string, hyperparams map[string]interface{}) (Transformer, error) {
	switch kind {
	case KindStandardScaler:
		if err := rejectKeys(kind, hyperparams); err != nil {
			return nil, err
		}
		return NewStandardScaler(), nil
	case KindMinMaxScaler:
		if err := rejectKeys(kind, hyperparams); err != nil {
			return nil, err
		}
		return NewMinMaxScaler(), nil
	case KindRobustScaler:
		if err := rejectKeys(kind, hyperparams); err != nil {
			return nil, err
		}
		return NewRobustScaler(), nil
	case KindImputer:
		return imputerFromParams(hyperparams)
	case KindOneHotEncoder:
		return oneHotFromParams(hyperparams)
	case KindLog1p:
		if err := rejectKeys(kind, hyperparams); err != nil {
			return nil, err
		}
		return NewLog1pTransformer(), nil
	default:
		return nil, errors.NewHyperparameterError(kind, "kind", "unknown transformer kind", kind)
	}
}

func rejectKeys(kind string, hyperparams map[string]interface{}) error {
	for key, value := range hyperparams {
		return errors.NewHyperparameterError(kind, key, "unknown hyperparameter", value)
	}
	return nil
}

func imputerFromParams(hyperparams map[string]interface{}) (*Imputer, error) {
	strategy := StrategyMean
	fill := 0.0
	for key, value := range hyperparams {
		switch key {
		case "strategy":
			v, ok := params.String(value)
			if !ok || (v != StrategyMean && v != StrategyMedian && v != StrategyConstant) {
				return nil, errors.NewHyperparameterError(KindImputer, key, `must be "mean", "median" or "constant"`, value)
			}
			strategy = v
		case "fill_value":
			v, ok := params.Float(value)
			if !ok {
				return nil, errors.NewHyperparameterError(KindImputer, key, "must be a number", value)
			}
			fill = v
		default:
			return nil, errors.NewHyperparameterError(KindImputer, key, "unknown hyperparameter", value)
		}
	}
	return NewImputer(strategy, fill), nil
}

func oneHotFromParams(hyperparams map[string]interface{}) (*OneHotEncoder, error) {
	ignoreUnknown := false
	for key, value := range hyperparams {
		switch key {
		case "ignore_unknown":
			v, ok := params.Bool(value)
			if !ok {
				return nil, errors.NewHyperparameterError(KindOneHotEncoder, key, "must be a boolean", value)
			}
			ignoreUnknown = v
		default:
			return nil, errors.NewHyperparameterError(KindOneHotEncoder, key, "unknown hyperparameter", value)
		}
	}
	return NewOneHotEncoder(ignoreUnknown), nil
}
