// Package optim provides the built-in optimizers, losses and metrics.
// Everything registers itself by name so compiled training state can be
// restored from archives.
package optim

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	lr       float64
	momentum float64

	velocities []*tensor.Raw
}

// NewSGD creates an SGD optimizer.
func NewSGD(lr, momentum float64) *SGD {
	return &SGD{lr: lr, momentum: momentum}
}

// Name implements graph.Optimizer.
func (s *SGD) Name() string { return "SGD" }

// Config implements graph.Optimizer.
func (s *SGD) Config() map[string]any {
	return map[string]any{"lr": s.lr, "momentum": s.momentum}
}

// Build allocates one velocity slot per parameter.
func (s *SGD) Build(params []*graph.Weight) error {
	s.velocities = make([]*tensor.Raw, len(params))
	for i, p := range params {
		v, err := tensor.NewRaw(p.Value.Shape(), p.Value.DType())
		if err != nil {
			return err
		}
		s.velocities[i] = v
	}
	return nil
}

// Step applies v = momentum*v - lr*g; w += v.
func (s *SGD) Step(params []*graph.Weight, grads []*tensor.Raw) error {
	const op = "SGD.Step"
	if len(params) != len(grads) {
		return graph.Errorf(graph.KindCardinality, op,
			"got %d gradients for %d parameters", len(grads), len(params))
	}
	if len(s.velocities) != len(params) {
		return graph.Errorf(graph.KindPrecondition, op, "optimizer state not built")
	}
	for i, p := range params {
		w := p.Value.AsFloat32()
		g := grads[i].AsFloat32()
		v := s.velocities[i].AsFloat32()
		if len(g) != len(w) {
			return graph.Errorf(graph.KindShape, op,
				"gradient %d has %d elements, parameter %q has %d", i, len(g), p.Name, len(w))
		}
		for j := range w {
			v[j] = float32(s.momentum)*v[j] - float32(s.lr)*g[j]
			w[j] += v[j]
		}
	}
	return nil
}

// Weights returns the velocity tensors.
func (s *SGD) Weights() []*tensor.Raw { return s.velocities }

// SetWeights restores the velocity tensors.
func (s *SGD) SetWeights(values []*tensor.Raw) error {
	const op = "SGD.SetWeights"
	if len(values) != len(s.velocities) {
		return graph.Errorf(graph.KindShape, op,
			"expected %d state tensors, got %d", len(s.velocities), len(values))
	}
	for i, v := range values {
		if !v.Shape().Equal(s.velocities[i].Shape()) {
			return graph.Errorf(graph.KindShape, op,
				"state tensor %d has shape %s, expected %s", i, v.Shape(), s.velocities[i].Shape())
		}
		copy(s.velocities[i].Data(), v.Data())
	}
	return nil
}

func sgdFromConfig(cfg map[string]any) (graph.Optimizer, error) {
	lr, ok := graph.ConfigFloat(cfg, "lr")
	if !ok {
		lr = 0.01
	}
	momentum, _ := graph.ConfigFloat(cfg, "momentum")
	return NewSGD(lr, momentum), nil
}
