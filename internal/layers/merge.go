package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Add sums its inputs elementwise. All inputs must share shape and dtype.
type Add struct {
	graph.Base
}

// NewAdd creates an elementwise add merge layer.
func NewAdd(opts ...Option) (*Add, error) {
	o := applyOptions(opts)
	a := &Add{Base: o.newBase("add")}
	a.SetSupportsMasking(true)
	return a, nil
}

// ClassName implements graph.Layer.
func (a *Add) ClassName() string { return "Add" }

// OutputShapes requires at least two identically shaped inputs.
func (a *Add) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	const op = "Add.OutputShapes"
	if len(inputShapes) < 2 {
		return nil, graph.Errorf(graph.KindCardinality, op,
			"add layer %q needs at least two inputs, got %d", a.Name(), len(inputShapes))
	}
	for _, s := range inputShapes[1:] {
		if !s.Equal(inputShapes[0]) {
			return nil, graph.Errorf(graph.KindShape, op,
				"add layer %q inputs must share a shape: %s vs %s", a.Name(), inputShapes[0], s)
		}
	}
	return []tensor.Shape{inputShapes[0].Clone()}, nil
}

// Forward sums the inputs.
func (a *Add) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	out := inputs[0].Clone()
	v := out.AsFloat32()
	for _, in := range inputs[1:] {
		for i, e := range in.AsFloat32() {
			v[i] += e
		}
	}
	return []*tensor.Raw{out}, nil
}

// Backward fans the output gradient out to every input.
func (a *Add) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	g := outputGrads[0]
	inGrads := make([]*tensor.Raw, len(inputs))
	for i := range inputs {
		inGrads[i] = g.Clone()
	}
	return inGrads, nil, nil
}

// Config implements graph.Layer.
func (a *Add) Config() map[string]any {
	return baseConfig(a.Name(), a.BatchInputShape(), a.DType(), map[string]any{})
}

func addFromConfig(cfg map[string]any) (graph.Layer, error) {
	return NewAdd(optionsFromConfig(cfg)...)
}
