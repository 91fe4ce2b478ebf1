package engine

import (
	"context"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/metrics"
	"github.com/harborgrid-justin/phantom-spire-sub003/persistence"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/log"
	"github.com/harborgrid-justin/phantom-spire-sub003/registry"
)

// Core is the facade over the registry, the estimators and the
// evaluator. Safe for concurrent use; training a model excludes other
// operations on that model only.
type Core struct {
	cfg      Config
	registry *registry.Registry
	logger   log.Logger
}

// seedableAlgorithms accept a random_state hyperparameter; the default
// seed is only injected for these.
var seedableAlgorithms = map[string]bool{
	model.AlgorithmRandomForest:    true,
	model.AlgorithmNeuralNetwork:   true,
	model.AlgorithmKMeans:          true,
	model.AlgorithmIsolationForest: true,
}

// New assembles a Core from its configuration.
func New(cfg Config) (*Core, error) {
	logger := log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))

	var store persistence.Store
	if cfg.StorageDir != "" {
		local, err := persistence.NewLocalStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		store = local
	} else {
		store = persistence.NewMemoryStore()
	}

	return &Core{
		cfg:      cfg,
		registry: registry.New(store, logger),
		logger:   logger,
	}, nil
}

// NewWithStore assembles a Core over an existing store, mainly for
// embedding and tests.
func NewWithStore(cfg Config, store persistence.Store, logger log.Logger) *Core {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Core{cfg: cfg, registry: registry.New(store, logger), logger: logger}
}

// CreateModel registers a new unfitted model and returns its id.
func (c *Core) CreateModel(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	env, err := c.registry.Create(ctx, req.Name, req.Algorithm, req.Task,
		c.withDefaultSeed(req.Algorithm, req.Hyperparameters))
	if err != nil {
		return nil, err
	}
	return &CreateResponse{ModelID: env.ID}, nil
}

// Train fits a model on the request data. A request without a model id
// creates the model first. Training is all-or-nothing: on any error the
// model keeps its pre-call state.
func (c *Core) Train(ctx context.Context, req TrainRequest) (*TrainResponse, error) {
	id := req.ModelID
	if id == "" {
		created, err := c.CreateModel(ctx, CreateRequest{
			Name:            req.Name,
			Algorithm:       req.Algorithm,
			Task:            req.Task,
			Hyperparameters: req.Hyperparameters,
		})
		if err != nil {
			return nil, err
		}
		id = created.ModelID
	}

	started := time.Now()
	var trained map[string]float64
	err := c.registry.WithModelLock(ctx, id, func(env *registry.Envelope) error {
		scores, err := c.fitEnvelope(ctx, env, req)
		if err != nil {
			return err
		}
		trained = scores
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("model trained",
		log.ModelIDKey, id,
		log.DurationKey, time.Since(started).Milliseconds())
	return &TrainResponse{ModelID: id, Metrics: trained}, nil
}

// fitEnvelope trains the envelope's estimator in place and returns the
// training-set metric snapshot.
func (c *Core) fitEnvelope(ctx context.Context, env *registry.Envelope, req TrainRequest) (map[string]float64, error) {
	const op = "engine.Train"

	if env.Task == model.TaskTimeSeries {
		forecaster, ok := env.Estimator.(seriesFitter)
		if !ok {
			return nil, errors.NewInputError(op, "model does not accept series training")
		}
		if len(req.Series) == 0 {
			return nil, errors.NewInputError(op, "time-series training requires a series")
		}
		if err := forecaster.FitSeriesContext(ctx, req.Series); err != nil {
			return nil, err
		}
		env.LastTrainedAt = time.Now().UTC()
		env.TrainingSamples = len(req.Series)
		env.FeatureCount = 0
		env.Metrics = map[string]float64{"observations": float64(len(req.Series))}
		return env.Metrics, nil
	}

	X, err := toMatrix(op, req.Features)
	if err != nil {
		return nil, err
	}
	rows, features := X.Dims()

	var y mat.Matrix
	if req.Targets != nil {
		if len(req.Targets) != rows {
			return nil, errors.NewDimensionError(op, rows, len(req.Targets), 0)
		}
		y = mat.NewDense(len(req.Targets), 1, req.Targets)
	}
	if supervised(env.Task) && y == nil {
		return nil, errors.NewInputError(op, "supervised training requires targets")
	}

	if err := fitWithContext(ctx, env.Estimator, X, y); err != nil {
		return nil, err
	}

	env.LastTrainedAt = time.Now().UTC()
	env.FeatureCount = features
	env.TrainingSamples = rows
	if classifier, ok := env.Estimator.(model.Classifier); ok && env.Task == model.TaskClassification {
		env.Classes = classifier.Classes()
	}
	env.Metrics = c.trainingMetrics(env, X, y)
	return env.Metrics, nil
}

type seriesFitter interface {
	FitSeriesContext(ctx context.Context, series []float64) error
}

type predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

func supervised(task string) bool {
	return task == model.TaskRegression || task == model.TaskClassification
}

func fitWithContext(ctx context.Context, est interface{}, X, y mat.Matrix) error {
	if fitter, ok := est.(model.ContextFitter); ok {
		return fitter.FitContext(ctx, X, y)
	}
	fitter, ok := est.(model.Estimator)
	if !ok {
		return errors.NewInputError("engine.Train", "model does not accept matrix training")
	}
	return fitter.Fit(X, y)
}

// trainingMetrics computes the natural training-set score per task.
// Failures here do not fail the train; the metric is just omitted.
func (c *Core) trainingMetrics(env *registry.Envelope, X, y mat.Matrix) map[string]float64 {
	out := map[string]float64{}
	switch env.Task {
	case model.TaskRegression:
		if scorer, ok := env.Estimator.(model.Scorer); ok {
			if r2, err := scorer.Score(X, y); err == nil {
				out["r2"] = r2
			}
		}
	case model.TaskClassification:
		if scorer, ok := env.Estimator.(model.Scorer); ok {
			if acc, err := scorer.Score(X, y); err == nil {
				out["accuracy"] = acc
			}
		}
	case model.TaskClustering:
		if p, ok := env.Estimator.(predictor); ok {
			if labels, err := p.Predict(X); err == nil {
				if inertia, err := metrics.Inertia(X, labels); err == nil {
					out["inertia"] = inertia
				}
				if silhouette, err := metrics.Silhouette(X, labels); err == nil {
					out["silhouette"] = silhouette
				}
			}
		}
	case model.TaskAnomalyDetection:
		if scorer, ok := env.Estimator.(model.Scorer); ok {
			if mean, err := scorer.Score(X, nil); err == nil {
				out["mean_anomaly_score"] = mean
			}
		}
	}
	return out
}

// Predict runs batch prediction. Any invalid row fails the whole batch
// with the index of the first offending row.
func (c *Core) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	const op = "engine.Predict"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}

	X, err := toMatrix(op, req.Features)
	if err != nil {
		return nil, err
	}

	var predictions mat.Matrix
	err = c.registry.WithModelRLock(req.ModelID, func(env *registry.Envelope) error {
		if env.Task == model.TaskTimeSeries {
			return errors.NewInputError(op, "time-series models forecast instead of predicting rows")
		}
		p, ok := env.Estimator.(predictor)
		if !ok {
			return errors.NewInputError(op, "model does not support prediction")
		}
		var perr error
		predictions, perr = p.Predict(X)
		return perr
	})
	if err != nil {
		return nil, err
	}
	return &PredictResponse{Predictions: flattenColumn(predictions)}, nil
}

// PredictProba returns class probabilities for a classifier.
func (c *Core) PredictProba(ctx context.Context, req PredictProbaRequest) (*PredictProbaResponse, error) {
	const op = "engine.PredictProba"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}

	X, err := toMatrix(op, req.Features)
	if err != nil {
		return nil, err
	}

	var proba mat.Matrix
	var classes []float64
	err = c.registry.WithModelRLock(req.ModelID, func(env *registry.Envelope) error {
		classifier, ok := env.Estimator.(model.Classifier)
		if !ok {
			return errors.NewInputError(op, "model does not expose class probabilities")
		}
		var perr error
		proba, perr = classifier.PredictProba(X)
		if perr != nil {
			return perr
		}
		classes = classifier.Classes()
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, cols := proba.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = proba.At(i, j)
		}
	}
	return &PredictProbaResponse{Probabilities: out, Classes: classes}, nil
}

// PredictIntervals returns per-row prediction bounds for a regressor.
func (c *Core) PredictIntervals(ctx context.Context, req PredictIntervalsRequest) (*PredictIntervalsResponse, error) {
	const op = "engine.PredictIntervals"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}
	if req.Confidence <= 0 || req.Confidence >= 1 {
		return nil, errors.NewInputError(op, "confidence must be in (0, 1)")
	}

	X, err := toMatrix(op, req.Features)
	if err != nil {
		return nil, err
	}

	var intervals mat.Matrix
	err = c.registry.WithModelRLock(req.ModelID, func(env *registry.Envelope) error {
		regressor, ok := env.Estimator.(model.Regressor)
		if !ok {
			return errors.NewInputError(op, "model does not expose prediction intervals")
		}
		var perr error
		intervals, perr = regressor.PredictIntervals(X, req.Confidence)
		return perr
	})
	if err != nil {
		return nil, err
	}

	rows, _ := intervals.Dims()
	lower := make([]float64, rows)
	upper := make([]float64, rows)
	for i := 0; i < rows; i++ {
		lower[i] = intervals.At(i, 0)
		upper[i] = intervals.At(i, 1)
	}
	return &PredictIntervalsResponse{Lower: lower, Upper: upper}, nil
}

// Forecast extends a fitted time-series model.
func (c *Core) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	const op = "engine.Forecast"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}

	var forecasts []float64
	err := c.registry.WithModelRLock(req.ModelID, func(env *registry.Envelope) error {
		forecaster, ok := env.Estimator.(model.Forecaster)
		if !ok {
			return errors.NewInputError(op, "model does not support forecasting")
		}
		var ferr error
		forecasts, ferr = forecaster.Forecast(req.Horizon)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return &ForecastResponse{Forecasts: forecasts}, nil
}

// Evaluate scores a model on a labeled set and stores the snapshot on
// the envelope.
func (c *Core) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	const op = "engine.Evaluate"

	var snapshot map[string]float64
	err := c.registry.WithModelRLock(req.ModelID, func(env *registry.Envelope) error {
		var eerr error
		snapshot, eerr = c.evaluate(op, env, req)
		return eerr
	})
	if err != nil {
		return nil, err
	}

	if err := c.registry.WithModelLock(ctx, req.ModelID, func(env *registry.Envelope) error {
		env.Metrics = snapshot
		return nil
	}); err != nil {
		return nil, err
	}
	return &EvaluateResponse{Metrics: snapshot}, nil
}

func (c *Core) evaluate(op string, env *registry.Envelope, req EvaluateRequest) (map[string]float64, error) {
	if env.Task == model.TaskTimeSeries {
		forecaster, ok := env.Estimator.(model.Forecaster)
		if !ok {
			return nil, errors.NewInputError(op, "model does not support forecasting")
		}
		if len(req.Targets) == 0 {
			return nil, errors.NewInputError(op, "time-series evaluation requires future targets")
		}
		forecasts, err := forecaster.Forecast(len(req.Targets))
		if err != nil {
			return nil, err
		}
		yTrue := mat.NewDense(len(req.Targets), 1, req.Targets)
		yPred := mat.NewDense(len(forecasts), 1, forecasts)
		mae, err := metrics.MAE(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		rmse, err := metrics.RMSE(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		return map[string]float64{"mae": mae, "rmse": rmse}, nil
	}

	X, err := toMatrix(op, req.Features)
	if err != nil {
		return nil, err
	}
	p, ok := env.Estimator.(predictor)
	if !ok {
		return nil, errors.NewInputError(op, "model does not support prediction")
	}
	predictions, err := p.Predict(X)
	if err != nil {
		return nil, err
	}

	switch env.Task {
	case model.TaskRegression:
		yTrue, err := toColumn(op, req.Targets, len(req.Features))
		if err != nil {
			return nil, err
		}
		report, err := metrics.EvaluateRegression(yTrue, predictions)
		if err != nil {
			return nil, err
		}
		return map[string]float64{
			"mae": report.MAE, "mse": report.MSE, "rmse": report.RMSE, "r2": report.R2,
		}, nil

	case model.TaskClassification:
		yTrue, err := toColumn(op, req.Targets, len(req.Features))
		if err != nil {
			return nil, err
		}
		if err := checkKnownLabels(op, env.Classes, req.Targets); err != nil {
			return nil, err
		}
		report, err := metrics.EvaluateClassification(yTrue, predictions)
		if err != nil {
			return nil, err
		}
		return map[string]float64{
			"accuracy":    report.Accuracy,
			"macro_f1":    report.MacroF1,
			"weighted_f1": report.WeightedF1,
		}, nil

	case model.TaskClustering:
		out := map[string]float64{}
		if inertia, err := metrics.Inertia(X, predictions); err == nil {
			out["inertia"] = inertia
		}
		if silhouette, err := metrics.Silhouette(X, predictions); err == nil {
			out["silhouette"] = silhouette
		}
		if db, err := metrics.DaviesBouldin(X, predictions); err == nil {
			out["davies_bouldin"] = db
		}
		if len(out) == 0 {
			return nil, errors.NewInputError(op, "no clustering metric is defined for this labeling")
		}
		return out, nil

	case model.TaskAnomalyDetection:
		scorer, ok := env.Estimator.(model.Scorer)
		if !ok {
			return nil, errors.NewInputError(op, "model does not support scoring")
		}
		mean, err := scorer.Score(X, nil)
		if err != nil {
			return nil, err
		}
		var flagged int
		rows, _ := predictions.Dims()
		for i := 0; i < rows; i++ {
			if predictions.At(i, 0) == 1 {
				flagged++
			}
		}
		return map[string]float64{
			"mean_anomaly_score": mean,
			"anomaly_rate":       float64(flagged) / float64(rows),
		}, nil
	}
	return nil, errors.NewInputError(op, "unknown task")
}

// checkKnownLabels rejects evaluation targets outside the learned class
// set.
func checkKnownLabels(op string, classes, targets []float64) error {
	if classes == nil {
		return nil
	}
	known := make(map[float64]bool, len(classes))
	for _, c := range classes {
		known[c] = true
	}
	for i, t := range targets {
		if !known[t] {
			return errors.NewInputErrorAt(op, "target label outside the learned class set", i)
		}
	}
	return nil
}

// List returns matching model summaries, newest first.
func (c *Core) List(_ context.Context, req ListRequest) (*ListResponse, error) {
	envelopes := c.registry.List(registry.Filter{
		Algorithm:     req.Algorithm,
		Task:          req.Task,
		MinAccuracy:   req.MinAccuracy,
		CreatedBefore: req.CreatedBefore,
		CreatedAfter:  req.CreatedAfter,
	})
	models := make([]ModelSummary, len(envelopes))
	for i, env := range envelopes {
		models[i] = summarize(env)
	}
	return &ListResponse{Models: models}, nil
}

// Get returns the full detail for one model.
func (c *Core) Get(_ context.Context, modelID string) (*ModelDetail, error) {
	var detail *ModelDetail
	err := c.registry.WithModelRLock(modelID, func(env *registry.Envelope) error {
		detail = &ModelDetail{
			ModelSummary:    summarize(env),
			Version:         env.Version,
			LastTrainedAt:   env.LastTrainedAt,
			FeatureCount:    env.FeatureCount,
			TrainingSamples: env.TrainingSamples,
			Classes:         env.Classes,
			Hyperparameters: env.Hyperparameters,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Delete removes a model from the registry and the store.
func (c *Core) Delete(ctx context.Context, modelID string) error {
	return c.registry.Delete(ctx, modelID)
}

// Export serializes a model to a portable blob.
func (c *Core) Export(_ context.Context, modelID string) ([]byte, error) {
	return c.registry.Export(modelID)
}

// Import registers a model from an exported blob under a fresh id.
func (c *Core) Import(ctx context.Context, blob []byte) (*CreateResponse, error) {
	env, err := c.registry.Import(ctx, blob)
	if err != nil {
		return nil, err
	}
	return &CreateResponse{ModelID: env.ID}, nil
}

// Health reports whether the backing store is reachable.
func (c *Core) Health(ctx context.Context) error {
	return c.registry.Health(ctx)
}

func summarize(env *registry.Envelope) ModelSummary {
	fitted := false
	if marker, ok := env.Estimator.(interface{ IsFitted() bool }); ok {
		fitted = marker.IsFitted()
	}
	return ModelSummary{
		ModelID:   env.ID,
		Name:      env.Name,
		Algorithm: env.Algorithm,
		Task:      env.Task,
		Fitted:    fitted,
		Metrics:   env.Metrics,
		CreatedAt: env.CreatedAt,
	}
}

func (c *Core) withDefaultSeed(algorithm string, hyperparams map[string]interface{}) map[string]interface{} {
	if !seedableAlgorithms[algorithm] {
		return hyperparams
	}
	if _, ok := hyperparams["random_state"]; ok {
		return hyperparams
	}
	out := make(map[string]interface{}, len(hyperparams)+1)
	for k, v := range hyperparams {
		out[k] = v
	}
	out["random_state"] = c.cfg.DefaultSeed
	return out
}

// toMatrix converts request rows into a dense matrix, rejecting ragged
// or empty input with the offending row index.
func toMatrix(op string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.NewInputError(op, "empty feature matrix")
	}
	cols := len(rows[0])
	out := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.NewInputErrorAt(op, "ragged feature rows", i)
		}
		out.SetRow(i, row)
	}
	return out, nil
}

func toColumn(op string, values []float64, wantRows int) (*mat.Dense, error) {
	if len(values) != wantRows {
		return nil, errors.NewDimensionError(op, wantRows, len(values), 0)
	}
	return mat.NewDense(len(values), 1, values), nil
}

func flattenColumn(m mat.Matrix) []float64 {
	rows, _ := m.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = m.At(i, 0)
	}
	return out
}
