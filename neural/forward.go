package neural

import (
	"math"
	"math/rand/v2"
)

// liveNetwork is the in-memory training and inference view over the
// layer weights. Weights[l] is row-major (sizes[l] × sizes[l+1]).
type liveNetwork struct {
	sizes   []int
	acts    []string
	weights [][]float64
	biases  [][]float64
	softmax bool
}

// initWeights draws initial weights per layer: He for ReLU layers,
// Xavier otherwise.
func initWeights(sizes []int, acts []string, rng *rand.Rand) (weights, biases [][]float64) {
	layers := len(sizes) - 1
	weights = make([][]float64, layers)
	biases = make([][]float64, layers)
	for l := 0; l < layers; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in+out))
		if l < len(acts) && acts[l] == ActivationReLU {
			scale = math.Sqrt(2.0 / float64(in))
		}
		w := make([]float64, in*out)
		for i := range w {
			w[i] = rng.NormFloat64() * scale
		}
		weights[l] = w
		biases[l] = make([]float64, out)
	}
	return weights, biases
}

func copyLayers(layers [][]float64) [][]float64 {
	out := make([][]float64, len(layers))
	for i, layer := range layers {
		out[i] = make([]float64, len(layer))
		copy(out[i], layer)
	}
	return out
}

func activate(name string, z float64) float64 {
	switch name {
	case ActivationReLU:
		if z > 0 {
			return z
		}
		return 0
	case ActivationTanh:
		return math.Tanh(z)
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-z))
	default:
		return z
	}
}

// activateDeriv is the activation derivative expressed in terms of the
// activated output a.
func activateDeriv(name string, a float64) float64 {
	switch name {
	case ActivationReLU:
		if a > 0 {
			return 1
		}
		return 0
	case ActivationTanh:
		return 1 - a*a
	case ActivationSigmoid:
		return a * (1 - a)
	default:
		return 1
	}
}

// forward runs one row through the network and returns the output layer:
// softmax probabilities for classification, raw values for regression.
func (net *liveNetwork) forward(row []float64) []float64 {
	a := row
	layers := len(net.weights)
	for l := 0; l < layers; l++ {
		a = net.layerForward(l, a)
	}
	return a
}

// forwardAll runs one row and returns the activations of every layer,
// input included. Used by backprop.
func (net *liveNetwork) forwardAll(row []float64) [][]float64 {
	layers := len(net.weights)
	activations := make([][]float64, layers+1)
	activations[0] = row
	for l := 0; l < layers; l++ {
		activations[l+1] = net.layerForward(l, activations[l])
	}
	return activations
}

func (net *liveNetwork) layerForward(l int, in []float64) []float64 {
	inSize, outSize := net.sizes[l], net.sizes[l+1]
	out := make([]float64, outSize)
	w := net.weights[l]
	for j := 0; j < outSize; j++ {
		z := net.biases[l][j]
		for i := 0; i < inSize; i++ {
			z += in[i] * w[i*outSize+j]
		}
		out[j] = z
	}

	last := l == len(net.weights)-1
	if last {
		if net.softmax {
			stableSoftmax(out)
		}
		return out
	}
	for j := range out {
		out[j] = activate(net.acts[l], out[j])
	}
	return out
}

// stableSoftmax normalizes in place with the max-shift trick.
func stableSoftmax(z []float64) {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}
	var sum float64
	for i, v := range z {
		e := math.Exp(v - maxZ)
		z[i] = e
		sum += e
	}
	for i := range z {
		z[i] /= sum
	}
}

// trainBatch accumulates gradients over the batch and applies one SGD
// step with optional L2 weight decay. For both heads the output delta is
// prediction minus target: softmax with cross-entropy and linear with
// MSE share that form.
func (net *liveNetwork) trainBatch(inputs, targets [][]float64, batch []int, lr, l2 float64) {
	layers := len(net.weights)
	gradW := make([][]float64, layers)
	gradB := make([][]float64, layers)
	for l := 0; l < layers; l++ {
		gradW[l] = make([]float64, len(net.weights[l]))
		gradB[l] = make([]float64, len(net.biases[l]))
	}

	for _, idx := range batch {
		activations := net.forwardAll(inputs[idx])
		target := targets[idx]

		// Output delta.
		outSize := net.sizes[layers]
		delta := make([]float64, outSize)
		for j := 0; j < outSize; j++ {
			delta[j] = activations[layers][j] - target[j]
		}

		for l := layers - 1; l >= 0; l-- {
			in := activations[l]
			inSize, outSize := net.sizes[l], net.sizes[l+1]
			for j := 0; j < outSize; j++ {
				gradB[l][j] += delta[j]
				for i := 0; i < inSize; i++ {
					gradW[l][i*outSize+j] += in[i] * delta[j]
				}
			}
			if l == 0 {
				break
			}
			// Propagate to the previous layer through the weights, then
			// through that layer's activation.
			prev := make([]float64, inSize)
			w := net.weights[l]
			for i := 0; i < inSize; i++ {
				var sum float64
				for j := 0; j < outSize; j++ {
					sum += w[i*outSize+j] * delta[j]
				}
				prev[i] = sum * activateDeriv(net.acts[l-1], in[i])
			}
			delta = prev
		}
	}

	scale := lr / float64(len(batch))
	for l := 0; l < layers; l++ {
		w := net.weights[l]
		for i := range w {
			w[i] -= scale*gradW[l][i] + lr*l2*w[i]
		}
		b := net.biases[l]
		for j := range b {
			b[j] -= scale * gradB[l][j]
		}
	}
}

// meanLoss returns the mean loss over the given rows: cross-entropy for
// classification, MSE for regression.
func (net *liveNetwork) meanLoss(inputs, targets [][]float64, indices []int) float64 {
	var total float64
	for _, idx := range indices {
		out := net.forward(inputs[idx])
		target := targets[idx]
		if net.softmax {
			for j, t := range target {
				if t > 0 {
					p := out[j]
					if p < 1e-15 {
						p = 1e-15
					}
					total -= t * math.Log(p)
				}
			}
		} else {
			for j, t := range target {
				d := out[j] - t
				total += d * d
			}
		}
	}
	return total / float64(len(indices))
}
