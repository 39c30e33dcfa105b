package graph

import (
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Tensor is a symbolic tensor: an opaque handle flowing between layers
// during graph construction. It carries shape and dtype metadata but no
// values; concrete values are tensor.Raw and only appear at execution time.
//
// The first axis of Shape is the batch axis and may be -1 (unknown).
type Tensor struct {
	handle Handle
	name   string
	shape  tensor.Shape
	dtype  tensor.DataType
	sparse bool
}

func newTensor(name string, shape tensor.Shape, dtype tensor.DataType, sparse bool) *Tensor {
	return &Tensor{
		handle: nextHandle(),
		name:   name,
		shape:  shape.Clone(),
		dtype:  dtype,
		sparse: sparse,
	}
}

// Handle returns the tensor's stable identity.
func (t *Tensor) Handle() Handle { return t.handle }

// Name returns the tensor's name, e.g. "dense_1/output:0".
func (t *Tensor) Name() string { return t.name }

// Shape returns the tensor's batch shape (batch axis first, may be -1).
func (t *Tensor) Shape() tensor.Shape { return t.shape }

// DType returns the tensor's data type.
func (t *Tensor) DType() tensor.DataType { return t.dtype }

// Sparse reports whether the tensor is a sparse placeholder.
func (t *Tensor) Sparse() bool { return t.sparse }

// NewMask mints a boolean mask tensor covering the non-feature axes of
// source. Mask-producing layers use it from their ComputeMask.
func NewMask(source *Tensor) *Tensor {
	shape := source.Shape().Clone()
	if len(shape) > 1 {
		shape = shape[:len(shape)-1]
	}
	return newTensor(source.Name()+"/mask", shape, tensor.Bool, false)
}

// SourceInputs walks back through origins from t and returns the placeholder
// tensors it ultimately depends on, in stable discovery order.
func SourceInputs(t *Tensor) []*Tensor {
	seen := make(map[Handle]bool)
	var sources []*Tensor
	var visit func(x *Tensor)
	visit = func(x *Tensor) {
		if seen[x.handle] {
			return
		}
		seen[x.handle] = true
		origin, ok := OriginOf(x)
		if !ok {
			sources = append(sources, x)
			return
		}
		node := origin.Layer.base().inboundNodes[origin.NodeIndex]
		if len(node.inputTensors) == 0 {
			// Origin is an input node: x itself is a source.
			sources = append(sources, x)
			return
		}
		for _, in := range node.inputTensors {
			visit(in)
		}
	}
	visit(t)
	return sources
}
