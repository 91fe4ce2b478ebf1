// Package neural implements a fully connected feed-forward network trained
// with mini-batch SGD. The output head follows the task: linear for
// regression, softmax for classification.
package neural

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/tensor"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Activation names.
const (
	ActivationReLU    = "relu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
	ActivationLinear  = "linear"
)

// NetworkOptions holds the hyperparameters of Network.
type NetworkOptions struct {
	HiddenLayers []int
	// Activations has one entry per hidden layer; a single entry is
	// broadcast to every layer.
	Activations []string

	LearningRate float64
	BatchSize    int
	Epochs       int
	L2           float64

	// Early stopping monitors a held-out validation split and stops when
	// it fails to improve for Patience epochs. Disabled when
	// ValidationFraction is zero.
	ValidationFraction float64
	Patience           int

	RandomState int64
}

// DefaultNetworkOptions returns the default hyperparameters.
func DefaultNetworkOptions() NetworkOptions {
	return NetworkOptions{
		HiddenLayers:       []int{64},
		Activations:        []string{ActivationReLU},
		LearningRate:       0.01,
		BatchSize:          32,
		Epochs:             200,
		ValidationFraction: 0.1,
		Patience:           10,
	}
}

// Network is a feed-forward neural network for regression or
// classification.
type Network struct {
	model.BaseEstimator

	opts NetworkOptions

	// Fitted state, exported for gob serialization. Weights[l] is the
	// row-major (LayerSizes[l] × LayerSizes[l+1]) weight matrix between
	// layer l and l+1.
	Task        string
	LayerSizes  []int
	LayerActs   []string
	Weights     [][]float64
	Biases      [][]float64
	ClassIDs    []float64
	NFeatures   int
	NSamples    int
	TrainedFor   int // epochs actually run
	StoppedEarly bool
}

// NewRegressor creates a Network for regression.
func NewRegressor(opts NetworkOptions) *Network {
	return &Network{opts: opts, Task: model.TaskRegression}
}

// NewClassifier creates a Network for classification.
func NewClassifier(opts NetworkOptions) *Network {
	return &Network{opts: opts, Task: model.TaskClassification}
}

// NetworkFromParams builds a Network for the given task from a free-form
// hyperparameter map, rejecting unknown keys.
func NetworkFromParams(task string, hyperparams map[string]interface{}) (*Network, error) {
	opts := DefaultNetworkOptions()
	for key, value := range hyperparams {
		switch key {
		case "hidden_layers":
			layers, ok := asIntSlice(value)
			if !ok || len(layers) == 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a non-empty list of positive integers", value)
			}
			for _, l := range layers {
				if l <= 0 {
					return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "layer sizes must be positive", value)
				}
			}
			opts.HiddenLayers = layers
		case "activation":
			v, ok := params.String(value)
			if !ok || !validActivation(v) {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, `must be "relu", "tanh", "sigmoid" or "linear"`, value)
			}
			opts.Activations = []string{v}
		case "activations":
			acts, ok := asStringSlice(value)
			if !ok || len(acts) == 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a non-empty list of activation names", value)
			}
			for _, a := range acts {
				if !validActivation(a) {
					return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "unknown activation "+a, value)
				}
			}
			opts.Activations = acts
		case "learning_rate":
			v, ok := params.Float(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a positive number", value)
			}
			opts.LearningRate = v
		case "batch_size":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a positive integer", value)
			}
			opts.BatchSize = v
		case "epochs":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a positive integer", value)
			}
			opts.Epochs = v
		case "l2":
			v, ok := params.Float(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a non-negative number", value)
			}
			opts.L2 = v
		case "validation_fraction":
			v, ok := params.Float(value)
			if !ok || v < 0 || v >= 1 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be in [0, 1)", value)
			}
			opts.ValidationFraction = v
		case "patience":
			v, ok := params.Int(value)
			if !ok || v <= 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be a positive integer", value)
			}
			opts.Patience = v
		case "random_state":
			v, ok := params.Int(value)
			if !ok {
				return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "must be an integer", value)
			}
			opts.RandomState = int64(v)
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmNeuralNetwork, key, "unknown hyperparameter", value)
		}
	}

	if task == model.TaskClassification {
		return NewClassifier(opts), nil
	}
	return NewRegressor(opts), nil
}

// Fit trains the network on an N×F matrix and an N×1 target vector.
func (n *Network) Fit(X, y mat.Matrix) error {
	return n.FitContext(context.Background(), X, y)
}

// FitContext trains with cooperative cancellation between epochs. Fit is
// all-or-nothing: on cancellation or error the model keeps its pre-call
// state.
func (n *Network) FitContext(ctx context.Context, X, y mat.Matrix) error {
	const op = "Network.Fit"

	if err := tensor.ValidateMatrix(op, X); err != nil {
		return err
	}
	classification := n.Task == model.TaskClassification
	if classification {
		if err := tensor.ValidateClassTargets(op, X, y); err != nil {
			return err
		}
	} else if err := tensor.ValidateTargets(op, X, y); err != nil {
		return err
	}

	rows, features := X.Dims()
	rawLabels := tensor.VecToSlice(y)

	var classIDs []float64
	outputs := 1
	if classification {
		classIDs = tensor.UniqueSorted(rawLabels)
		outputs = len(classIDs)
	}

	acts := broadcastActivations(n.opts.Activations, len(n.opts.HiddenLayers))

	sizes := make([]int, 0, len(n.opts.HiddenLayers)+2)
	sizes = append(sizes, features)
	sizes = append(sizes, n.opts.HiddenLayers...)
	sizes = append(sizes, outputs)

	rng := tensor.NewRand(n.opts.RandomState)
	weights, biases := initWeights(sizes, acts, rng)

	// Targets: one-hot class indices or raw values.
	targets := make([][]float64, rows)
	classIndex := make(map[float64]int, len(classIDs))
	for i, id := range classIDs {
		classIndex[id] = i
	}
	for i := 0; i < rows; i++ {
		if classification {
			t := make([]float64, outputs)
			t[classIndex[rawLabels[i]]] = 1
			targets[i] = t
		} else {
			targets[i] = []float64{rawLabels[i]}
		}
	}
	inputs := make([][]float64, rows)
	for i := range inputs {
		inputs[i] = tensor.Row(X, i)
	}

	// Held-out split for early stopping.
	perm := tensor.PermutedIndices(rng, rows)
	valSize := int(n.opts.ValidationFraction * float64(rows))
	useEarlyStopping := valSize > 0 && rows-valSize >= n.opts.BatchSize
	trainIdx := perm
	var valIdx []int
	if useEarlyStopping {
		valIdx = perm[:valSize]
		trainIdx = perm[valSize:]
	}

	net := &liveNetwork{
		sizes:   sizes,
		acts:    acts,
		weights: weights,
		biases:  biases,
		softmax: classification,
	}

	bestLoss := math.Inf(1)
	var bestWeights, bestBiases [][]float64
	patience := 0
	epochs := 0
	stopped := false

	for epoch := 0; epoch < n.opts.Epochs; epoch++ {
		if err := parallel.CheckCancel(ctx, op); err != nil {
			return err
		}
		epochs = epoch + 1

		rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		for start := 0; start < len(trainIdx); start += n.opts.BatchSize {
			end := start + n.opts.BatchSize
			if end > len(trainIdx) {
				end = len(trainIdx)
			}
			net.trainBatch(inputs, targets, trainIdx[start:end], n.opts.LearningRate, n.opts.L2)
		}

		var loss float64
		if useEarlyStopping {
			loss = net.meanLoss(inputs, targets, valIdx)
		} else {
			loss = net.meanLoss(inputs, targets, trainIdx)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return errors.NewNumericalError(op, "training diverged to non-finite loss")
		}

		if useEarlyStopping {
			if loss < bestLoss-1e-12 {
				bestLoss = loss
				bestWeights = copyLayers(net.weights)
				bestBiases = copyLayers(net.biases)
				patience = 0
			} else {
				patience++
				if patience >= n.opts.Patience {
					stopped = true
					break
				}
			}
		}
	}

	if useEarlyStopping && bestWeights != nil {
		net.weights = bestWeights
		net.biases = bestBiases
	}

	n.LayerSizes = sizes
	n.LayerActs = acts
	n.Weights = net.weights
	n.Biases = net.biases
	n.ClassIDs = classIDs
	n.NFeatures = features
	n.NSamples = rows
	n.TrainedFor = epochs
	n.StoppedEarly = stopped
	n.SetFitted()
	return nil
}

// Predict returns per-row predictions: the argmax class id for
// classification, the raw output for regression.
func (n *Network) Predict(X mat.Matrix) (mat.Matrix, error) {
	const op = "Network.Predict"
	if !n.IsFitted() {
		return nil, errors.NewNotFittedError("Network", "Predict")
	}
	if err := tensor.CheckFeatures(op, X, n.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	rows, _ := X.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	net := n.live()
	for i := 0; i < rows; i++ {
		out := net.forward(tensor.Row(X, i))
		if n.Task == model.TaskClassification {
			predictions.Set(i, 0, n.ClassIDs[tensor.ArgMax(out)])
		} else {
			predictions.Set(i, 0, out[0])
		}
	}
	return predictions, nil
}

// PredictProba returns softmax class probabilities aligned with Classes().
func (n *Network) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	const op = "Network.PredictProba"
	if !n.IsFitted() {
		return nil, errors.NewNotFittedError("Network", "PredictProba")
	}
	if n.Task != model.TaskClassification {
		return nil, errors.NewInputError(op, "probabilities are only defined for classification networks")
	}
	if err := tensor.CheckFeatures(op, X, n.NFeatures); err != nil {
		return nil, err
	}
	if err := tensor.ValidateMatrix(op, X); err != nil {
		return nil, err
	}

	rows, _ := X.Dims()
	probabilities := mat.NewDense(rows, len(n.ClassIDs), nil)
	net := n.live()
	for i := 0; i < rows; i++ {
		out := net.forward(tensor.Row(X, i))
		for c, p := range out {
			probabilities.Set(i, c, p)
		}
	}
	return probabilities, nil
}

// Classes returns the ordered class ids discovered during Fit.
func (n *Network) Classes() []float64 {
	if n.ClassIDs == nil {
		return nil
	}
	out := make([]float64, len(n.ClassIDs))
	copy(out, n.ClassIDs)
	return out
}

// Score returns accuracy for classification or R² for regression.
func (n *Network) Score(X, y mat.Matrix) (float64, error) {
	if !n.IsFitted() {
		return 0, errors.NewNotFittedError("Network", "Score")
	}
	predictions, err := n.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	if n.Task == model.TaskClassification {
		var correct int
		for i := 0; i < rows; i++ {
			if predictions.At(i, 0) == y.At(i, 0) {
				correct++
			}
		}
		return float64(correct) / float64(rows), nil
	}

	var yMean float64
	for i := 0; i < rows; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(rows)
	var tss, rss float64
	for i := 0; i < rows; i++ {
		truth := y.At(i, 0)
		tss += (truth - yMean) * (truth - yMean)
		rss += (truth - predictions.At(i, 0)) * (truth - predictions.At(i, 0))
	}
	if tss == 0 {
		return 0, errors.NewNumericalError("Network.Score", "no variance in targets")
	}
	return 1 - rss/tss, nil
}

// GetParams returns the network's hyperparameters.
func (n *Network) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layers":       n.opts.HiddenLayers,
		"activations":         n.opts.Activations,
		"learning_rate":       n.opts.LearningRate,
		"batch_size":          n.opts.BatchSize,
		"epochs":              n.opts.Epochs,
		"l2":                  n.opts.L2,
		"validation_fraction": n.opts.ValidationFraction,
		"patience":            n.opts.Patience,
		"random_state":        n.opts.RandomState,
	}
}

func (n *Network) live() *liveNetwork {
	return &liveNetwork{
		sizes:   n.LayerSizes,
		acts:    n.LayerActs,
		weights: n.Weights,
		biases:  n.Biases,
		softmax: n.Task == model.TaskClassification,
	}
}

func validActivation(name string) bool {
	switch name {
	case ActivationReLU, ActivationTanh, ActivationSigmoid, ActivationLinear:
		return true
	}
	return false
}

func broadcastActivations(acts []string, layers int) []string {
	out := make([]string, layers)
	for i := range out {
		if len(acts) == 1 {
			out[i] = acts[0]
		} else if i < len(acts) {
			out[i] = acts[i]
		} else {
			out[i] = ActivationReLU
		}
	}
	return out
}

func asIntSlice(value interface{}) ([]int, bool) {
	switch v := value.(type) {
	case []int:
		return v, true
	case []interface{}:
		out := make([]int, len(v))
		for i, item := range v {
			n, ok := params.Int(item)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func asStringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
