package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Step is one named stage of a Pipeline.
type Step struct {
	Name        string
	Transformer Transformer
}

// Pipeline chains transformers in order: Fit runs each step's
// FitTransform on the output of the previous step, Transform replays the
// fitted steps unchanged. The whole pipeline serializes with gob, fitted
// parameters included.
type Pipeline struct {
	Steps  []Step
	Fitted bool
}

// NewPipeline creates a pipeline over the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{Steps: steps}
}

// PipelineFromParams builds a pipeline from an ordered list of step
// definitions, each a map with a "kind" key plus that kind's
// hyperparameters.
func PipelineFromParams(defs []map[string]interface{}) (*Pipeline, error) {
	steps := make([]Step, 0, len(defs))
	for i, def := range defs {
		kindValue, ok := def["kind"]
		if !ok {
			return nil, errors.NewHyperparameterError("pipeline", "kind", "every step needs a kind", i)
		}
		kind, ok := kindValue.(string)
		if !ok {
			return nil, errors.NewHyperparameterError("pipeline", "kind", "must be a string", kindValue)
		}

		hyperparams := make(map[string]interface{}, len(def))
		for k, v := range def {
			if k == "kind" || k == "name" {
				continue
			}
			hyperparams[k] = v
		}
		t, err := FromParams(kind, hyperparams)
		if err != nil {
			return nil, err
		}

		name := kind
		if n, ok := def["name"].(string); ok && n != "" {
			name = n
		}
		steps = append(steps, Step{Name: name, Transformer: t})
	}
	return NewPipeline(steps...), nil
}

// IsFitted reports whether Fit has succeeded.
func (p *Pipeline) IsFitted() bool { return p.Fitted }

// Fit fits every step in order, feeding each the output of the previous
// one.
func (p *Pipeline) Fit(X mat.Matrix) error {
	_, err := p.FitTransform(X)
	return err
}

// FitTransform fits the steps in order and returns the final output.
func (p *Pipeline) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	current := X
	for i := range p.Steps {
		out, err := p.Steps[i].Transformer.FitTransform(current)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", p.Steps[i].Name)
		}
		current = out
	}
	p.Fitted = true
	return current, nil
}

// Transform replays the fitted steps in order.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.Fitted {
		return nil, errors.NewNotFittedError("Pipeline", "Transform")
	}
	current := X
	for i := range p.Steps {
		out, err := p.Steps[i].Transformer.Transform(current)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", p.Steps[i].Name)
		}
		current = out
	}
	return current, nil
}

// InverseTransform replays the steps in reverse. Every step must
// implement InverseTransformer.
func (p *Pipeline) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !p.Fitted {
		return nil, errors.NewNotFittedError("Pipeline", "InverseTransform")
	}
	current := X
	for i := len(p.Steps) - 1; i >= 0; i-- {
		inv, ok := p.Steps[i].Transformer.(InverseTransformer)
		if !ok {
			return nil, errors.NewInputError("Pipeline.InverseTransform",
				"step "+p.Steps[i].Name+" is not invertible")
		}
		out, err := inv.InverseTransform(current)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", p.Steps[i].Name)
		}
		current = out
	}
	return current, nil
}
