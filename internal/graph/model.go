package graph

import (
	"fmt"
	"sort"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// Model is a DAG of layer-call nodes reachable from a set of input tensors
// to a set of output tensors. Construction computes the depth-ordered node
// index used by deterministic traversal: output nodes sit at depth 0 and
// depth grows toward the inputs, so a node at depth d only consumes tensors
// produced at depths strictly greater than d.
//
// A Model is itself a Layer and can be nested inside other models.
type Model struct {
	Base

	inputs  []*Tensor
	outputs []*Tensor

	layers       []Layer
	inputLayers  []Layer
	outputLayers []Layer

	nodesByDepth map[int][]*Node
	depthKeys    []int // descending
	nodeDepth    map[*Node]int

	// Training state, populated by Compile.
	compiled         bool
	optimizer        Optimizer
	loss             Loss
	metrics          []string
	sampleWeightMode string
	lossWeights      []float64
	trainFnBuilt     bool
}

// NewModel builds a model from input placeholder tensors to output tensors.
// Fails with ConfigKind when an input is not a placeholder or an output is
// not reachable from the inputs.
func NewModel(inputs, outputs []*Tensor, name string) (*Model, error) {
	const op = "graph.NewModel"
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, Errorf(KindConfig, op, "model needs at least one input and one output")
	}
	if name == "" {
		name = NewUID("model_")
	}
	m := &Model{
		Base:    Base{name: name, handle: nextHandle()},
		inputs:  append([]*Tensor(nil), inputs...),
		outputs: append([]*Tensor(nil), outputs...),
	}
	for _, in := range inputs {
		origin, ok := OriginOf(in)
		if !ok {
			return nil, Errorf(KindConfig, op, "input tensor %q was not produced by an input layer", in.Name())
		}
		if _, isInput := origin.Layer.(*InputLayer); !isInput {
			return nil, Errorf(KindConfig, op, "input tensor %q comes from layer %q, not an input layer",
				in.Name(), origin.Layer.Name())
		}
		m.inputLayers = append(m.inputLayers, origin.Layer)
	}
	if err := m.mapGraph(); err != nil {
		return nil, err
	}
	m.dtype = m.outputs[0].DType()
	m.built = true
	return m, nil
}

// mapGraph discovers all nodes reachable from the outputs, assigns each a
// depth by reverse topological relaxation, buckets nodes by depth, and
// derives the depth-ordered layer list.
func (m *Model) mapGraph() error {
	const op = "graph.NewModel"

	// Post-order DFS over inbound edges: producers come out before consumers.
	var order []*Node
	visited := make(map[*Node]bool)
	var visit func(n *Node) error
	visit = func(n *Node) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		for i, l := range n.inboundLayers {
			if l == nil {
				return Errorf(KindConfig, op,
					"tensor %q consumed by layer %q has no producing layer",
					n.inputTensors[i].Name(), n.outboundLayer.Name())
			}
			if err := visit(l.base().inboundNodes[n.nodeIndices[i]]); err != nil {
				return err
			}
		}
		order = append(order, n)
		return nil
	}
	for _, out := range m.outputs {
		origin, ok := OriginOf(out)
		if !ok {
			return Errorf(KindConfig, op, "output tensor %q was not produced by any layer", out.Name())
		}
		if err := visit(origin.Layer.base().inboundNodes[origin.NodeIndex]); err != nil {
			return err
		}
	}

	// Relax depths walking consumers before producers.
	m.nodeDepth = make(map[*Node]int, len(order))
	for _, n := range order {
		m.nodeDepth[n] = 0
	}
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		for j, l := range n.inboundLayers {
			producer := l.base().inboundNodes[n.nodeIndices[j]]
			if d := m.nodeDepth[n] + 1; d > m.nodeDepth[producer] {
				m.nodeDepth[producer] = d
			}
		}
	}

	m.nodesByDepth = make(map[int][]*Node)
	for _, n := range order {
		d := m.nodeDepth[n]
		m.nodesByDepth[d] = append(m.nodesByDepth[d], n)
	}
	m.depthKeys = m.depthKeys[:0]
	for d := range m.nodesByDepth {
		m.depthKeys = append(m.depthKeys, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.depthKeys)))

	// Layers ordered by depth descending (inputs first); a layer's depth is
	// the maximum depth among its nodes.
	layerDepth := make(map[Layer]int)
	var layerOrder []Layer
	for _, n := range order {
		l := n.outboundLayer
		if _, seen := layerDepth[l]; !seen {
			layerOrder = append(layerOrder, l)
		}
		if d := m.nodeDepth[n]; d > layerDepth[l] {
			layerDepth[l] = d
		}
	}
	sort.SliceStable(layerOrder, func(i, j int) bool {
		return layerDepth[layerOrder[i]] > layerDepth[layerOrder[j]]
	})
	m.layers = layerOrder

	m.outputLayers = m.outputLayers[:0]
	for _, out := range m.outputs {
		origin, _ := OriginOf(out)
		m.outputLayers = append(m.outputLayers, origin.Layer)
	}

	// Every model input must actually be reachable.
	for _, in := range m.inputs {
		origin, _ := OriginOf(in)
		if _, ok := m.nodeDepth[origin.Layer.base().inboundNodes[origin.NodeIndex]]; !ok {
			return Errorf(KindConfig, op, "input tensor %q is disconnected from the outputs", in.Name())
		}
	}
	return nil
}

// Inputs returns the model's input placeholder tensors.
func (m *Model) Inputs() []*Tensor { return m.inputs }

// Outputs returns the model's output tensors.
func (m *Model) Outputs() []*Tensor { return m.outputs }

// Layers returns the model's layers ordered by depth, inputs first.
func (m *Model) Layers() []Layer { return m.layers }

// InputLayers returns the model's input layers, in input order.
func (m *Model) InputLayers() []Layer { return m.inputLayers }

// OutputLayers returns the layers producing the model's outputs.
func (m *Model) OutputLayers() []Layer { return m.outputLayers }

// NodesByDepth returns the depth-bucketed node index. The returned map is a
// read-only view owned by the model.
func (m *Model) NodesByDepth() map[int][]*Node { return m.nodesByDepth }

// DepthKeys returns the bucket depths in descending order (inputs first).
func (m *Model) DepthKeys() []int { return m.depthKeys }

// GetLayer retrieves a layer by name.
func (m *Model) GetLayer(name string) (Layer, error) {
	for _, l := range m.layers {
		if l.Name() == name {
			return l, nil
		}
	}
	return nil, Errorf(KindValidation, "Model.GetLayer", "no layer named %q", name)
}

// LayerAt retrieves a layer by its index in depth order.
func (m *Model) LayerAt(index int) (Layer, error) {
	if index < 0 || index >= len(m.layers) {
		return nil, Errorf(KindValidation, "Model.LayerAt",
			"layer index %d out of range [0, %d)", index, len(m.layers))
	}
	return m.layers[index], nil
}

// Weights returns all layer weights in depth order.
func (m *Model) Weights() []*Weight {
	var ws []*Weight
	for _, l := range m.layers {
		ws = append(ws, l.Weights()...)
	}
	return ws
}

// TrainableWeights returns the trainable subset of Weights.
func (m *Model) TrainableWeights() []*Weight {
	var ws []*Weight
	for _, w := range m.Weights() {
		if w.Trainable {
			ws = append(ws, w)
		}
	}
	return ws
}

// SetWeights assigns values to all layer weights, matching Weights() order.
func (m *Model) SetWeights(values []*tensor.Raw) error {
	offset := 0
	for _, l := range m.layers {
		n := len(l.Weights())
		if offset+n > len(values) {
			return Errorf(KindShape, "Model.SetWeights",
				"expected %d weight values, got %d", len(m.Weights()), len(values))
		}
		if err := l.SetWeights(values[offset : offset+n]); err != nil {
			return err
		}
		offset += n
	}
	if offset != len(values) {
		return Errorf(KindShape, "Model.SetWeights",
			"expected %d weight values, got %d", offset, len(values))
	}
	return nil
}

// Run executes the DAG on concrete inputs and returns the output values.
func (m *Model) Run(inputs []*tensor.Raw) ([]*tensor.Raw, error) {
	values, err := m.execute(inputs)
	if err != nil {
		return nil, err
	}
	outs := make([]*tensor.Raw, len(m.outputs))
	for i, out := range m.outputs {
		v, ok := values[out.handle]
		if !ok {
			return nil, Errorf(KindAssertion, "Model.Run", "could not compute output %q", out.Name())
		}
		outs[i] = v
	}
	return outs, nil
}

// execute walks the nodes in decreasing depth order, invoking every layer on
// the already-computed values of its node inputs.
func (m *Model) execute(inputs []*tensor.Raw) (map[Handle]*tensor.Raw, error) {
	const op = "Model.Run"
	if len(inputs) != len(m.inputs) {
		return nil, Errorf(KindCardinality, op,
			"model expects %d input tensors, got %d", len(m.inputs), len(inputs))
	}
	values := make(map[Handle]*tensor.Raw)
	for i, in := range m.inputs {
		values[in.handle] = inputs[i]
	}
	for _, depth := range m.depthKeys {
		for _, node := range m.nodesByDepth[depth] {
			if node.isInput() {
				continue
			}
			inVals := make([]*tensor.Raw, len(node.inputTensors))
			for i, in := range node.inputTensors {
				v, ok := values[in.handle]
				if !ok {
					return nil, Errorf(KindAssertion, op,
						"input %q of layer %q not computed yet", in.Name(), node.outboundLayer.Name())
				}
				inVals[i] = v
			}
			outVals, err := node.outboundLayer.Forward(inVals, node.arguments)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", node.outboundLayer.Name(), err)
			}
			if len(outVals) != len(node.outputTensors) {
				return nil, Errorf(KindAssertion, op,
					"layer %q produced %d outputs, node records %d",
					node.outboundLayer.Name(), len(outVals), len(node.outputTensors))
			}
			for i, out := range node.outputTensors {
				values[out.handle] = outVals[i]
			}
		}
	}
	return values, nil
}

// OutputShapes implements Layer for nested use: symbolic shape inference by
// walking the DAG with substituted input shapes.
func (m *Model) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	const op = "Model.OutputShapes"
	if len(inputShapes) != len(m.inputs) {
		return nil, Errorf(KindCardinality, op,
			"model expects %d input shapes, got %d", len(m.inputs), len(inputShapes))
	}
	shapes := make(map[Handle]tensor.Shape)
	for i, in := range m.inputs {
		shapes[in.handle] = inputShapes[i]
	}
	for _, depth := range m.depthKeys {
		for _, node := range m.nodesByDepth[depth] {
			if node.isInput() {
				continue
			}
			inShapes := make([]tensor.Shape, len(node.inputTensors))
			for i, in := range node.inputTensors {
				s, ok := shapes[in.handle]
				if !ok {
					return nil, Errorf(KindAssertion, op,
						"shape of %q not inferred yet", in.Name())
				}
				inShapes[i] = s
			}
			outShapes, err := node.outboundLayer.OutputShapes(inShapes)
			if err != nil {
				return nil, err
			}
			for i, out := range node.outputTensors {
				shapes[out.handle] = outShapes[i]
			}
		}
	}
	outs := make([]tensor.Shape, len(m.outputs))
	for i, out := range m.outputs {
		outs[i] = shapes[out.handle]
	}
	return outs, nil
}

// Forward implements Layer for nested use: executes the DAG.
func (m *Model) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	return m.Run(inputs)
}

// Build implements Layer; a model is built at construction.
func (m *Model) Build(inputShapes []tensor.Shape) error { return nil }

// firstConcreteLayer unwraps nested models to the first non-model layer.
// Bounded to reject pathological nesting.
func firstConcreteLayer(l Layer) (Layer, error) {
	const op = "graph.firstConcreteLayer"
	const maxNestingDepth = 64
	for i := 0; i < maxNestingDepth; i++ {
		nested, ok := l.(interface{ Layers() []Layer })
		if !ok {
			return l, nil
		}
		inner := nested.Layers()
		if len(inner) == 0 {
			return nil, Errorf(KindConfig, op, "cannot infer an input shape from an empty model")
		}
		l = inner[0]
	}
	return nil, Errorf(KindConfig, op, "model nesting exceeds %d levels", maxNestingDepth)
}
