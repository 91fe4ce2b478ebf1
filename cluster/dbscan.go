package cluster

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// NoiseLabel marks rows that belong to no cluster.
const NoiseLabel = -1

// DBSCANOptions holds the hyperparameters of DBSCAN.
type DBSCANOptions struct {
	// Eps is the neighborhood radius.
	Eps float64
	// MinSamples is the neighborhood size (the point itself included)
	// that makes a point a core point.
	MinSamples int
}

// DefaultDBSCANOptions returns the default hyperparameters.
func DefaultDBSCANOptions() DBSCANOptions {
	return DBSCANOptions{Eps: 0.5, MinSamples: 5}
}

// DBSCAN groups points that are density-reachable from core points.
// Points reachable from no core point are labeled NoiseLabel.
type DBSCAN struct {
	model.BaseEstimator

	opts DBSCANOptions

	// Fitted state, exported for gob serialization. Cores holds the core
	// points and CoreLabels their cluster ids; Predict assigns new rows
	// to the cluster of the nearest core point within Eps.
	Labels     []int
	Cores      [][]float64
	CoreLabels []int
	NClusters  int
	NFeatures  int
	NSamples   int
}

// NewDBSCAN creates a DBSCAN with the given options.
func NewDBSCAN(opts DBSCANOptions) *DBSCAN {
	return &DBSCAN{opts: opts}
}

// DBSCANFromParams builds a DBSCAN from a free-form hyperparameter map,
// rejecting unknown keys.
func DBSCANFromParams(hyperparams map[string]interface{}) (*DBSCAN, error) {
	opts := DefaultDBSCANOptions()
	for key, value := range hyperparams {
		switch key {
		case "eps":
			v, ok := params.Float(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmDBSCAN, key, "must be a positive number", value)
			}
			opts.Eps = v
		case "min_samples":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmDBSCAN, key, "must be a positive integer", value)
			}
			opts.MinSamples = v
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmDBSCAN, key, "unknown hyperparameter", value)
		}
	}
	return NewDBSCAN(opts), nil
}

// Fit runs the density scan over the rows of X. The optional y is
// ignored.
func (d *DBSCAN) Fit(X, y mat.Matrix) error {
	return d.FitContext(context.Background(), X, y)
}

// FitContext runs the scan with a cancellation check per seed point.
func (d *DBSCAN) FitContext(ctx context.Context, X, _ mat.Matrix) error {
	const op = "DBSCAN.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}

	n, features := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = tensor.Row(X, i)
	}

	eps2 := d.opts.Eps * d.opts.Eps
	neighbors := func(i int) []int {
		var out []int
		for j, row := range rows {
			if tensor.SquaredDistance(rows[i], row) <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	isCore := make([]bool, n)

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if err := parallel.CheckCancel(ctx, op); err != nil {
			return err
		}

		seedNeighbors := neighbors(i)
		if len(seedNeighbors) < d.opts.MinSamples {
			labels[i] = NoiseLabel
			continue
		}

		// Expand a new cluster from this core point.
		labels[i] = cluster
		isCore[i] = true
		queue := append([]int(nil), seedNeighbors...)
		for head := 0; head < len(queue); head++ {
			j := queue[head]
			if labels[j] == NoiseLabel {
				labels[j] = cluster // border point claimed by this cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			reach := neighbors(j)
			if len(reach) >= d.opts.MinSamples {
				isCore[j] = true
				queue = append(queue, reach...)
			}
		}
		cluster++
	}

	var cores [][]float64
	var coreLabels []int
	for i, core := range isCore {
		if core {
			cores = append(cores, rows[i])
			coreLabels = append(coreLabels, labels[i])
		}
	}

	d.Labels = labels
	d.Cores = cores
	d.CoreLabels = coreLabels
	d.NClusters = cluster
	d.NFeatures = features
	d.NSamples = n
	d.SetFitted()
	return nil
}

// Predict assigns each row the cluster of the nearest core point within
// Eps, or NoiseLabel when no core point is that close.
func (d *DBSCAN) Predict(X mat.Matrix) (mat.Matrix, error) {
	const op = "DBSCAN.Predict"
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError("DBSCAN", "Predict")
	}
	if err := tensor.CheckFeatures(op, X, d.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	eps2 := d.opts.Eps * d.opts.Eps
	n, _ := X.Dims()
	labels := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		row := tensor.Row(X, i)
		best := NoiseLabel
		bestDist := eps2
		for c, core := range d.Cores {
			dist := tensor.SquaredDistance(row, core)
			if dist <= bestDist {
				bestDist = dist
				best = d.CoreLabels[c]
			}
		}
		labels.Set(i, 0, float64(best))
	}
	return labels, nil
}

// FitPredict fits and returns the training labels.
func (d *DBSCAN) FitPredict(X mat.Matrix) (mat.Matrix, error) {
	if err := d.Fit(X, nil); err != nil {
		return nil, err
	}
	labels := mat.NewDense(len(d.Labels), 1, nil)
	for i, l := range d.Labels {
		labels.Set(i, 0, float64(l))
	}
	return labels, nil
}

// GetParams returns the clusterer's hyperparameters.
func (d *DBSCAN) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"eps":         d.opts.Eps,
		"min_samples": d.opts.MinSamples,
	}
}
