// Package mlcore is an embeddable machine learning core for Go services:
// train, evaluate, persist and serve classical ML models in-process, with
// deterministic seeded results and structured, kind-tagged errors.
//
// # Quick Start
//
// Estimators follow a Fit/Predict contract over gonum matrices:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "gonum.org/v1/gonum/mat"
//
//	    "github.com/harborgrid-justin/phantom-spire-sub003/linear"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
//	    y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})
//
//	    model := linear.NewDefault()
//	    if err := model.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    predictions, err := model.Predict(mat.NewDense(2, 1, []float64{5, 6}))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(predictions))
//	}
//
// Services that manage many models use the engine facade instead, which
// adds a model registry, persistence and typed request/response types:
//
//	core, err := engine.New(engine.DefaultConfig())
//
// # Packages
//
//   - linear: linear regression with elastic-net regularization
//   - ensemble: random forests and isolation forests
//   - neural: feed-forward networks with early stopping
//   - cluster: k-means and DBSCAN
//   - timeseries: ARIMA forecasting
//   - preprocessing: scalers, imputation, encoding and pipelines
//   - metrics: evaluation metrics, cross-validation and grid search
//   - persistence: versioned, checksummed model blobs and stores
//   - registry: the concurrent model catalog
//   - engine: the facade tying everything together
//   - core/model, core/tensor, core/parallel: shared contracts and helpers
//
// # Determinism
//
// Every stochastic algorithm takes a random_state hyperparameter; the same
// seed and input produce bit-identical models, including under parallel
// training. The engine injects a configurable default seed so runs are
// reproducible unless a caller opts out.
//
// # Errors
//
// All failures carry a Kind (pkg/errors.KindOf) such as not_fitted,
// invalid_shape or invalid_hyperparameter, so callers branch on kinds
// rather than message text.
package mlcore
