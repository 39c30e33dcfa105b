package graph

import (
	"github.com/lamina-ml/lamina/internal/tensor"
)

// InputLayer is the synthetic source layer of a graph: it owns a single
// placeholder tensor and a single node with no inputs. It is the only legal
// injection point when cloning a Sequential onto a replacement tensor.
type InputLayer struct {
	Base
	sparse bool
}

// NewInputLayer creates an input layer and its placeholder node. batchShape
// includes the batch axis (commonly -1).
func NewInputLayer(batchShape tensor.Shape, dtype tensor.DataType, sparse bool, name string) (*InputLayer, error) {
	if len(batchShape) == 0 {
		return nil, Errorf(KindConfig, "graph.NewInputLayer", "input layer needs a batch shape")
	}
	l := &InputLayer{
		Base:   NewBase(name, "input", dtype),
		sparse: sparse,
	}
	l.SetBatchInputShape(batchShape)
	l.MarkBuilt()
	placeholder := newTensor(l.Name()+":0", batchShape, dtype, sparse)
	newNode(l, nil, []*Tensor{placeholder}, nil)
	return l, nil
}

// wrapTensor creates an InputLayer that passes an existing tensor through,
// used when a caller supplies a raw replacement tensor to the clone engine.
func wrapTensor(t *Tensor, name string) (*InputLayer, *Tensor, error) {
	l := &InputLayer{
		Base:   NewBase(name, "input", t.DType()),
		sparse: t.Sparse(),
	}
	l.SetBatchInputShape(t.Shape())
	l.MarkBuilt()
	out := newTensor(l.Name()+":0", t.Shape(), t.DType(), t.Sparse())
	newNode(l, nil, []*Tensor{out}, nil)
	return l, out, nil
}

// Input creates a placeholder tensor to build a graph on, returning the
// tensor; the owning InputLayer is reachable through the tensor's origin.
func Input(batchShape tensor.Shape, dtype tensor.DataType, name string) (*Tensor, error) {
	l, err := NewInputLayer(batchShape, dtype, false, name)
	if err != nil {
		return nil, err
	}
	return l.inboundNodes[0].outputTensors[0], nil
}

// Output returns the layer's placeholder tensor.
func (l *InputLayer) Output() *Tensor {
	return l.inboundNodes[0].outputTensors[0]
}

// OutputShapes implements Layer; an input layer is never re-invoked.
func (l *InputLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return nil, Errorf(KindUnsupported, "InputLayer.OutputShapes",
		"input layer %q cannot be called on tensors", l.Name())
}

// Forward implements Layer: the identity on its single input.
func (l *InputLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	return inputs, nil
}

// ClassName implements Layer.
func (l *InputLayer) ClassName() string { return "InputLayer" }

// Config implements Layer.
func (l *InputLayer) Config() map[string]any {
	return map[string]any{
		"batch_input_shape": []int(l.BatchInputShape()),
		"dtype":             l.DType().String(),
		"sparse":            l.sparse,
		"name":              l.Name(),
	}
}
