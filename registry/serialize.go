package registry

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/harborgrid-justin/phantom-spire-sub003/persistence"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func init() {
	// Hyperparameter values travel inside interface{} map entries.
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(0.0)
	gob.Register("")
	gob.Register(false)
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
	gob.Register([]int{})
	gob.Register([]string{})
	gob.Register([]float64{})
}

// blobMeta is the serialized half of an Envelope. The estimator follows
// it in the same gob stream as a concrete value, decoded into an
// instance rebuilt from the hyperparameters.
type blobMeta struct {
	ID              string
	Name            string
	Version         int
	CreatedAt       time.Time
	LastTrainedAt   time.Time
	Algorithm       string
	Task            string
	FeatureCount    int
	TrainingSamples int
	Classes         []float64
	Hyperparameters map[string]interface{}
	Metrics         map[string]float64
	Fitted          bool
}

type fittedMarker interface {
	IsFitted() bool
	SetFitted()
}

// marshalEnvelope serializes an envelope into a persistence blob.
func marshalEnvelope(env *Envelope) ([]byte, error) {
	const op = "registry.marshalEnvelope"

	fitted := false
	if marker, ok := env.Estimator.(fittedMarker); ok {
		fitted = marker.IsFitted()
	}

	meta := blobMeta{
		ID:              env.ID,
		Name:            env.Name,
		Version:         env.Version,
		CreatedAt:       env.CreatedAt,
		LastTrainedAt:   env.LastTrainedAt,
		Algorithm:       env.Algorithm,
		Task:            env.Task,
		FeatureCount:    env.FeatureCount,
		TrainingSamples: env.TrainingSamples,
		Classes:         env.Classes,
		Hyperparameters: env.Hyperparameters,
		Metrics:         env.Metrics,
		Fitted:          fitted,
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&meta); err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	if err := enc.Encode(env.Estimator); err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	return persistence.Encode(env.Algorithm, env.Task, buf.Bytes())
}

// unmarshalEnvelope rebuilds an envelope from a persistence blob. The
// estimator is constructed from the stored hyperparameters, so its
// configuration survives even though it never leaves the process in
// serialized form, then the fitted state is decoded over it.
func unmarshalEnvelope(blob []byte) (*Envelope, error) {
	const op = "registry.unmarshalEnvelope"

	header, payload, err := persistence.Decode(blob)
	if err != nil {
		return nil, err
	}

	dec := gob.NewDecoder(bytes.NewReader(payload))
	var meta blobMeta
	if err := dec.Decode(&meta); err != nil {
		return nil, errors.NewFormatErrorf("metadata decode failed")
	}
	if meta.Algorithm != header.Algorithm || meta.Task != header.Task {
		return nil, errors.NewFormatErrorf("header tags disagree with metadata")
	}

	est, err := NewEstimator(meta.Algorithm, meta.Task, meta.Hyperparameters)
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(est); err != nil {
		return nil, errors.NewFormatErrorf("estimator state decode failed")
	}
	if meta.Fitted {
		if marker, ok := est.(fittedMarker); ok {
			marker.SetFitted()
		}
	}

	return &Envelope{
		ID:              meta.ID,
		Name:            meta.Name,
		Version:         meta.Version,
		CreatedAt:       meta.CreatedAt,
		LastTrainedAt:   meta.LastTrainedAt,
		Algorithm:       meta.Algorithm,
		Task:            meta.Task,
		FeatureCount:    meta.FeatureCount,
		TrainingSamples: meta.TrainingSamples,
		Classes:         meta.Classes,
		Hyperparameters: meta.Hyperparameters,
		Metrics:         meta.Metrics,
		Estimator:       est,
	}, nil
}
