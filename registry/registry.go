package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborgrid-justin/phantom-spire-sub003/persistence"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/log"
)

// Envelope is one registered model: identity, lineage metadata and the
// live estimator.
type Envelope struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	LastTrainedAt   time.Time              `json:"last_trained_at,omitempty"`
	Algorithm       string                 `json:"algorithm"`
	Task            string                 `json:"task"`
	FeatureCount    int                    `json:"feature_count"`
	TrainingSamples int                    `json:"training_samples"`
	Classes         []float64              `json:"classes,omitempty"`
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`

	Estimator interface{} `json:"-"`
}

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	Algorithm     string
	Task          string
	MinAccuracy   *float64
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
}

func (f Filter) matches(env *Envelope) bool {
	if f.Algorithm != "" && env.Algorithm != f.Algorithm {
		return false
	}
	if f.Task != "" && env.Task != f.Task {
		return false
	}
	if f.MinAccuracy != nil {
		acc, ok := env.Metrics["accuracy"]
		if !ok || acc < *f.MinAccuracy {
			return false
		}
	}
	if f.CreatedBefore != nil && !env.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.CreatedAfter != nil && !env.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	return true
}

// Registry is the in-memory model catalog with a persistent store
// behind it. Catalog lookups take the catalog read lock; per-model
// work additionally takes that model's reader/writer lock, so training
// one model excludes reads of the same model but never blocks work on
// another.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Envelope
	locks  map[string]*sync.RWMutex

	store  persistence.Store
	logger log.Logger
}

// New creates a Registry over the given store.
func New(store persistence.Store, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		models: make(map[string]*Envelope),
		locks:  make(map[string]*sync.RWMutex),
		store:  store,
		logger: logger,
	}
}

// Create registers a new unfitted model and persists its envelope.
func (r *Registry) Create(ctx context.Context, name, algorithm, task string, hyperparams map[string]interface{}) (*Envelope, error) {
	est, err := NewEstimator(algorithm, task, hyperparams)
	if err != nil {
		return nil, err
	}
	if hyperparams == nil {
		hyperparams = map[string]interface{}{}
	}

	env := &Envelope{
		ID:              uuid.NewString(),
		Name:            name,
		Version:         1,
		CreatedAt:       time.Now().UTC(),
		Algorithm:       algorithm,
		Task:            task,
		Hyperparameters: hyperparams,
		Estimator:       est,
	}

	if err := r.persist(ctx, env); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models[env.ID] = env
	r.locks[env.ID] = &sync.RWMutex{}
	r.mu.Unlock()

	r.logger.Info("model created",
		log.ModelIDKey, env.ID,
		log.AlgorithmKey, algorithm,
		log.TaskKey, task)
	return env, nil
}

// Get returns the envelope for an id.
func (r *Registry) Get(id string) (*Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	env, ok := r.models[id]
	if !ok {
		return nil, errors.NewNotFoundError(id)
	}
	return env, nil
}

// Exists reports whether an id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[id]
	return ok
}

// List returns the envelopes matching the filter, newest first.
func (r *Registry) List(filter Filter) []*Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Envelope
	for _, env := range r.models {
		if filter.matches(env) {
			out = append(out, env)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithModelLock runs fn while holding the model's writer lock, then
// persists the envelope. Use it for training and any other mutation of
// a registered model.
func (r *Registry) WithModelLock(ctx context.Context, id string, fn func(env *Envelope) error) error {
	r.mu.RLock()
	env, ok := r.models[id]
	lock := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError(id)
	}

	lock.Lock()
	defer lock.Unlock()
	if err := fn(env); err != nil {
		return err
	}
	return r.persist(ctx, env)
}

// WithModelRLock runs fn while holding the model's reader lock. Use it
// for prediction, export and any other read of a registered model, so a
// concurrent retrain never hands fn a half-updated estimator.
func (r *Registry) WithModelRLock(id string, fn func(env *Envelope) error) error {
	r.mu.RLock()
	env, ok := r.models[id]
	lock := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError(id)
	}

	lock.RLock()
	defer lock.RUnlock()
	return fn(env)
}

// Delete removes a model from memory and from the store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.models[id]
	if ok {
		delete(r.models, id)
		delete(r.locks, id)
	}
	r.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError(id)
	}

	if err := r.store.Delete(ctx, id); err != nil && errors.KindOf(err) != errors.KindNotFound {
		return err
	}
	r.logger.Info("model deleted", log.ModelIDKey, id)
	return nil
}

// Export serializes a model to a portable blob. It holds the model's
// reader lock so the blob captures a consistent envelope.
func (r *Registry) Export(id string) ([]byte, error) {
	var blob []byte
	err := r.WithModelRLock(id, func(env *Envelope) error {
		var merr error
		blob, merr = marshalEnvelope(env)
		return merr
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Import registers a model from an exported blob under a fresh id and
// persists it.
func (r *Registry) Import(ctx context.Context, blob []byte) (*Envelope, error) {
	env, err := unmarshalEnvelope(blob)
	if err != nil {
		return nil, err
	}
	env.ID = uuid.NewString()

	if err := r.persist(ctx, env); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models[env.ID] = env
	r.locks[env.ID] = &sync.RWMutex{}
	r.mu.Unlock()

	r.logger.Info("model imported",
		log.ModelIDKey, env.ID,
		log.AlgorithmKey, env.Algorithm)
	return env, nil
}

// Health reports whether the backing store is reachable.
func (r *Registry) Health(ctx context.Context) error {
	return r.store.Health(ctx)
}

func (r *Registry) persist(ctx context.Context, env *Envelope) error {
	blob, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, env.ID, blob)
}
