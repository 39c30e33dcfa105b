// Package graph implements the layer-graph model core: symbolic tensors,
// layer-call nodes, depth-ordered DAG models, the Sequential container, and
// the clone engine. Layers themselves are polymorphic collaborators; the
// package defines their contract and the invocation mechanics that weave
// them into a graph.
package graph

import (
	"fmt"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// CallArgs holds optional call-time arguments recorded on a Node (for
// example {"training": true}). They are replayed verbatim when the node is
// re-executed during cloning.
type CallArgs map[string]any

func (a CallArgs) clone() CallArgs {
	if len(a) == 0 {
		return nil
	}
	c := make(CallArgs, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Weight is a named parameter tensor owned by a layer or an optimizer.
type Weight struct {
	Name      string
	Value     *tensor.Raw
	Trainable bool
}

// Layer is the contract every computational unit satisfies. Identity is by
// instance: two layers with identical configs are never the same layer.
//
// Layers embed Base, which carries the graph bookkeeping (inbound/outbound
// nodes, naming, declared input shape).
type Layer interface {
	// Name returns the layer's unique name.
	Name() string

	// ClassName returns the registered class name used in serialized
	// configs.
	ClassName() string

	// DType returns the layer's parameter/output data type.
	DType() tensor.DataType

	// Built reports whether Build has run.
	Built() bool

	// Build creates the layer's weights for the given input shapes.
	// Called exactly once, on first invocation.
	Build(inputShapes []tensor.Shape) error

	// OutputShapes infers the output batch shapes for the given input
	// batch shapes.
	OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error)

	// Forward computes concrete outputs from concrete inputs.
	Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error)

	// ComputeMask propagates masks through the layer; entries may be nil.
	ComputeMask(inputs []*Tensor, masks []*Tensor) []*Tensor

	// Config returns the layer's reconstruction hyperparameters.
	Config() map[string]any

	// Weights returns the layer's parameter tensors in a stable order.
	Weights() []*Weight

	// SetWeights assigns parameter values, matching Weights() order.
	SetWeights(values []*tensor.Raw) error

	base() *Base
}

// Base carries the graph bookkeeping shared by all layers. Embed it by
// value and initialize it with NewBase.
type Base struct {
	name   string
	handle Handle
	dtype  tensor.DataType
	built  bool

	// Declared input batch shape, when the layer was constructed with one.
	// Only the first layer of a Sequential needs it.
	batchInputShape tensor.Shape

	supportsMasking bool

	inboundNodes  []*Node
	outboundNodes []*Node
}

// NewBase initializes layer bookkeeping. An empty name is auto-generated
// from prefix ("dense" yields "dense_1", "dense_2", ...).
func NewBase(name, prefix string, dtype tensor.DataType) Base {
	if name == "" {
		name = NewUID(prefix + "_")
	}
	return Base{name: name, handle: nextHandle(), dtype: dtype}
}

// Name returns the layer's name.
func (b *Base) Name() string { return b.name }

// Handle returns the layer's stable identity.
func (b *Base) Handle() Handle { return b.handle }

// DType returns the layer's data type.
func (b *Base) DType() tensor.DataType { return b.dtype }

// Built reports whether the layer has been built.
func (b *Base) Built() bool { return b.built }

// MarkBuilt records that Build has run.
func (b *Base) MarkBuilt() { b.built = true }

// BatchInputShape returns the declared input batch shape, or nil.
func (b *Base) BatchInputShape() tensor.Shape { return b.batchInputShape }

// SetBatchInputShape declares the layer's expected input batch shape.
func (b *Base) SetBatchInputShape(shape tensor.Shape) { b.batchInputShape = shape.Clone() }

// SetSupportsMasking enables default mask pass-through for the layer.
func (b *Base) SetSupportsMasking(v bool) { b.supportsMasking = v }

// SupportsMasking reports whether the layer propagates masks.
func (b *Base) SupportsMasking() bool { return b.supportsMasking }

// InboundNodes returns the layer's invocation records, oldest first.
func (b *Base) InboundNodes() []*Node { return b.inboundNodes }

// OutboundNodes returns the nodes consuming this layer's outputs.
func (b *Base) OutboundNodes() []*Node { return b.outboundNodes }

// ComputeMask is the default mask rule: pass the first input mask through
// unchanged when the layer supports masking, otherwise drop masks.
func (b *Base) ComputeMask(inputs []*Tensor, masks []*Tensor) []*Tensor {
	if !b.supportsMasking || len(masks) == 0 {
		return nil
	}
	return []*Tensor{masks[0]}
}

// Weights is the default for parameterless layers.
func (b *Base) Weights() []*Weight { return nil }

// SetWeights is the default for parameterless layers.
func (b *Base) SetWeights(values []*tensor.Raw) error {
	if len(values) != 0 {
		return Errorf(KindShape, "layer.SetWeights",
			"layer %q has no weights, got %d values", b.name, len(values))
	}
	return nil
}

// Build is the default for layers without parameters.
func (b *Base) Build(inputShapes []tensor.Shape) error { return nil }

func (b *Base) base() *Base { return b }

// Call invokes a layer on symbolic inputs: builds the layer on first use,
// infers output shapes, mints output tensors, and records the invocation as
// a new Node. This is the only way edges enter the graph.
func Call(layer Layer, inputs []*Tensor, args CallArgs) ([]*Tensor, error) {
	const op = "graph.Call"
	if len(inputs) == 0 {
		return nil, Errorf(KindCardinality, op, "layer %q called with no inputs", layer.Name())
	}
	shapes := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		shapes[i] = in.Shape()
	}
	b := layer.base()
	if !layer.Built() {
		if err := layer.Build(shapes); err != nil {
			return nil, err
		}
		b.MarkBuilt()
	}
	outShapes, err := layer.OutputShapes(shapes)
	if err != nil {
		return nil, err
	}
	outputs := make([]*Tensor, len(outShapes))
	for i, s := range outShapes {
		name := tensorName(layer.Name(), len(b.inboundNodes), i)
		outputs[i] = newTensor(name, s, layer.DType(), false)
	}
	newNode(layer, inputs, outputs, args)
	attachMasks(layer, inputs, outputs)
	return outputs, nil
}

// attachMasks runs the layer's mask rule on the input masks and records the
// result on the output tensors. A single mask covers all outputs; otherwise
// masks and outputs pair up positionally.
func attachMasks(layer Layer, inputs, outputs []*Tensor) {
	inMasks := make([]*Tensor, len(inputs))
	for i, in := range inputs {
		if m, ok := MaskOf(in); ok {
			inMasks[i] = m
		}
	}
	outMasks := layer.ComputeMask(inputs, inMasks)
	switch {
	case len(outMasks) == len(outputs):
		for i, out := range outputs {
			if outMasks[i] != nil {
				recordMask(out, outMasks[i])
			}
		}
	case len(outMasks) == 1 && outMasks[0] != nil:
		for _, out := range outputs {
			recordMask(out, outMasks[0])
		}
	}
}

func tensorName(layerName string, nodeIndex, tensorIndex int) string {
	if nodeIndex == 0 {
		return fmt.Sprintf("%s/output:%d", layerName, tensorIndex)
	}
	return fmt.Sprintf("%s_%d/output:%d", layerName, nodeIndex, tensorIndex)
}
