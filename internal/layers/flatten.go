package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Flatten collapses all axes except the batch axis into one.
type Flatten struct {
	graph.Base
}

// NewFlatten creates a flatten layer.
func NewFlatten(opts ...Option) (*Flatten, error) {
	o := applyOptions(opts)
	return &Flatten{Base: o.newBase("flatten")}, nil
}

// ClassName implements graph.Layer.
func (f *Flatten) ClassName() string { return "Flatten" }

// OutputShapes collapses trailing axes. The trailing axes must be defined.
func (f *Flatten) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	in := inputShapes[0]
	if len(in) < 2 {
		return nil, graph.Errorf(graph.KindShape, "Flatten.OutputShapes",
			"flatten needs at least 2 axes, got %s", in)
	}
	rest := 1
	for _, d := range in[1:] {
		if d < 0 {
			return nil, graph.Errorf(graph.KindShape, "Flatten.OutputShapes",
				"flatten needs defined non-batch axes, got %s", in)
		}
		rest *= d
	}
	return []tensor.Shape{{in[0], rest}}, nil
}

// Forward reshapes the batch without copying element data.
func (f *Flatten) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	x := inputs[0]
	shapes, err := f.OutputShapes([]tensor.Shape{x.Shape()})
	if err != nil {
		return nil, err
	}
	out, err := tensor.FromBytes(x.Data(), shapes[0], x.DType())
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{out}, nil
}

// Backward reshapes the gradient back to the input shape.
func (f *Flatten) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	dx, err := tensor.FromBytes(outputGrads[0].Data(), inputs[0].Shape().Clone(), outputGrads[0].DType())
	if err != nil {
		return nil, nil, err
	}
	return []*tensor.Raw{dx}, nil, nil
}

// Config implements graph.Layer.
func (f *Flatten) Config() map[string]any {
	return baseConfig(f.Name(), f.BatchInputShape(), f.DType(), map[string]any{})
}

func flattenFromConfig(cfg map[string]any) (graph.Layer, error) {
	return NewFlatten(optionsFromConfig(cfg)...)
}
