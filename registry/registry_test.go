package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/ensemble"
	"github.com/harborgrid-justin/phantom-spire-sub003/linear"
	"github.com/harborgrid-justin/phantom-spire-sub003/persistence"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(persistence.NewMemoryStore(), nil)
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	env, err := r.Create(ctx, "demo", model.AlgorithmLinearRegression, model.TaskRegression, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, 1, env.Version)
	assert.IsType(t, &linear.LinearRegression{}, env.Estimator)

	got, err := r.Get(env.ID)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
}

func TestCreateRejectsBadPairs(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	_, err := r.Create(ctx, "m", model.AlgorithmKMeans, model.TaskRegression, nil)
	assert.Equal(t, errors.KindInvalidHyperparameter, errors.KindOf(err))

	_, err = r.Create(ctx, "m", "gradient_boosting", model.TaskRegression, nil)
	assert.Equal(t, errors.KindInvalidHyperparameter, errors.KindOf(err))

	_, err = r.Create(ctx, "m", model.AlgorithmRandomForest, model.TaskClassification,
		map[string]interface{}{"n_estimators": -5})
	assert.Equal(t, errors.KindInvalidHyperparameter, errors.KindOf(err))
}

func TestGetUnknownID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get("nope")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	forest, err := r.Create(ctx, "forest", model.AlgorithmRandomForest, model.TaskClassification, nil)
	require.NoError(t, err)
	_, err = r.Create(ctx, "line", model.AlgorithmLinearRegression, model.TaskRegression, nil)
	require.NoError(t, err)

	all := r.List(Filter{})
	assert.Len(t, all, 2)

	forests := r.List(Filter{Algorithm: model.AlgorithmRandomForest})
	require.Len(t, forests, 1)
	assert.Equal(t, forest.ID, forests[0].ID)

	regressions := r.List(Filter{Task: model.TaskRegression})
	assert.Len(t, regressions, 1)

	// Accuracy filter reads the stored metrics.
	require.NoError(t, r.WithModelLock(ctx, forest.ID, func(env *Envelope) error {
		env.Metrics = map[string]float64{"accuracy": 0.9}
		return nil
	}))
	minAcc := 0.8
	assert.Len(t, r.List(Filter{MinAccuracy: &minAcc}), 1)
	minAcc = 0.95
	assert.Len(t, r.List(Filter{MinAccuracy: &minAcc}), 0)

	future := time.Now().Add(time.Hour)
	assert.Len(t, r.List(Filter{CreatedBefore: &future}), 2)
	assert.Len(t, r.List(Filter{CreatedAfter: &future}), 0)
}

func TestDeleteRemovesMemoryAndStore(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	r := New(store, nil)

	env, err := r.Create(ctx, "m", model.AlgorithmKMeans, model.TaskClustering, nil)
	require.NoError(t, err)

	assert.True(t, r.Exists(env.ID))
	require.NoError(t, r.Delete(ctx, env.ID))
	assert.False(t, r.Exists(env.ID))
	_, err = r.Get(env.ID)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	_, err = store.Get(ctx, env.ID)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	assert.Equal(t, errors.KindNotFound, errors.KindOf(r.Delete(ctx, env.ID)))
}

func TestExportImportRoundTripPreservesPredictions(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	env, err := r.Create(ctx, "forest", model.AlgorithmRandomForest, model.TaskClassification,
		map[string]interface{}{"n_estimators": 15, "random_state": 42})
	require.NoError(t, err)

	X := mat.NewDense(40, 2, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		v := float64(i % 2 * 10)
		X.Set(i, 0, v)
		X.Set(i, 1, -v)
		y.Set(i, 0, float64(i%2))
	}
	require.NoError(t, r.WithModelLock(ctx, env.ID, func(e *Envelope) error {
		forest := e.Estimator.(*ensemble.RandomForest)
		if err := forest.Fit(X, y); err != nil {
			return err
		}
		e.LastTrainedAt = time.Now().UTC()
		e.FeatureCount = 2
		e.TrainingSamples = 40
		e.Classes = forest.Classes()
		return nil
	}))

	blob, err := r.Export(env.ID)
	require.NoError(t, err)

	imported, err := r.Import(ctx, blob)
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, imported.ID)
	assert.Equal(t, env.Name, imported.Name)
	assert.Equal(t, []float64{0, 1}, imported.Classes)

	original := env.Estimator.(*ensemble.RandomForest)
	restored := imported.Estimator.(*ensemble.RandomForest)
	require.True(t, restored.IsFitted())

	wantPred, err := original.Predict(X)
	require.NoError(t, err)
	gotPred, err := restored.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		assert.Equal(t, wantPred.At(i, 0), gotPred.At(i, 0), "row %d", i)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Import(context.Background(), []byte("not a model blob"))
	assert.Equal(t, errors.KindIncompatibleFormat, errors.KindOf(err))
}

func TestWithModelLockUnknownID(t *testing.T) {
	r := newTestRegistry(t)
	err := r.WithModelLock(context.Background(), "missing", func(*Envelope) error { return nil })
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestValidatePair(t *testing.T) {
	assert.NoError(t, ValidatePair(model.AlgorithmARIMA, model.TaskTimeSeries))
	assert.NoError(t, ValidatePair(model.AlgorithmRandomForest, model.TaskRegression))
	assert.Error(t, ValidatePair(model.AlgorithmARIMA, model.TaskRegression))
	assert.Error(t, ValidatePair("nope", model.TaskRegression))
}
