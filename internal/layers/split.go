package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Split duplicates its input into n identical output tensors, letting
// separate branches of a functional graph consume the same value through
// distinct tensors.
type Split struct {
	graph.Base
	n int
}

// NewSplit creates a split layer with n outputs.
func NewSplit(n int, opts ...Option) (*Split, error) {
	if n < 2 {
		return nil, graph.Errorf(graph.KindValidation, "layers.NewSplit",
			"split needs at least 2 outputs, got %d", n)
	}
	o := applyOptions(opts)
	return &Split{Base: o.newBase("split"), n: n}, nil
}

// ClassName implements graph.Layer.
func (s *Split) ClassName() string { return "Split" }

// OutputShapes replicates the input shape n times.
func (s *Split) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	out := make([]tensor.Shape, s.n)
	for i := range out {
		out[i] = inputShapes[0].Clone()
	}
	return out, nil
}

// Forward returns n views of the input.
func (s *Split) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	out := make([]*tensor.Raw, s.n)
	for i := range out {
		out[i] = inputs[0]
	}
	return out, nil
}

// Backward sums the gradients of all branches.
func (s *Split) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	sum := outputGrads[0].Clone()
	v := sum.AsFloat32()
	for _, g := range outputGrads[1:] {
		for i, e := range g.AsFloat32() {
			v[i] += e
		}
	}
	return []*tensor.Raw{sum}, nil, nil
}

// Config implements graph.Layer.
func (s *Split) Config() map[string]any {
	return baseConfig(s.Name(), s.BatchInputShape(), s.DType(), map[string]any{
		"n": s.n,
	})
}

func splitFromConfig(cfg map[string]any) (graph.Layer, error) {
	n, ok := graph.ConfigInt(cfg, "n")
	if !ok {
		return nil, graph.Errorf(graph.KindConfig, "layers.splitFromConfig",
			"split config needs an n entry")
	}
	return NewSplit(n, optionsFromConfig(cfg)...)
}
