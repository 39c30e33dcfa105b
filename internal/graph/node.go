package graph

// Node is an immutable record of one invocation of a layer on a specific set
// of input tensors. A layer owns one Node per call; calling the same layer
// on different inputs appends further nodes.
//
// For each input tensor i, inboundLayers[i] / nodeIndices[i] /
// tensorIndices[i] identify the producing layer-call and the output slot the
// tensor came out of. Input nodes (no inputs) have empty inbound lists.
type Node struct {
	outboundLayer Layer

	inboundLayers []Layer
	nodeIndices   []int
	tensorIndices []int

	inputTensors  []*Tensor
	outputTensors []*Tensor

	arguments CallArgs
}

// newNode derives the inbound bookkeeping from the origins of the input
// tensors and links the node into the layer graph: it appends itself to the
// outbound layer's inbound node list and to each producing layer's outbound
// node list.
func newNode(layer Layer, inputs, outputs []*Tensor, args CallArgs) *Node {
	n := &Node{
		outboundLayer: layer,
		inputTensors:  inputs,
		outputTensors: outputs,
		arguments:     args.clone(),
	}
	for _, in := range inputs {
		origin, ok := OriginOf(in)
		if !ok {
			n.inboundLayers = append(n.inboundLayers, nil)
			n.nodeIndices = append(n.nodeIndices, -1)
			n.tensorIndices = append(n.tensorIndices, -1)
			continue
		}
		n.inboundLayers = append(n.inboundLayers, origin.Layer)
		n.nodeIndices = append(n.nodeIndices, origin.NodeIndex)
		n.tensorIndices = append(n.tensorIndices, origin.TensorIndex)
		origin.Layer.base().outboundNodes = append(origin.Layer.base().outboundNodes, n)
	}
	base := layer.base()
	nodeIndex := len(base.inboundNodes)
	base.inboundNodes = append(base.inboundNodes, n)
	for i, out := range outputs {
		recordOrigin(out, layer, nodeIndex, i)
	}
	return n
}

// Layer returns the layer this node is an invocation of.
func (n *Node) Layer() Layer { return n.outboundLayer }

// InputTensors returns the node's input tensors.
func (n *Node) InputTensors() []*Tensor { return n.inputTensors }

// OutputTensors returns the node's output tensors.
func (n *Node) OutputTensors() []*Tensor { return n.outputTensors }

// InboundLayers returns the layers that produced the node's inputs (nil
// entries for externally constructed tensors).
func (n *Node) InboundLayers() []Layer { return n.inboundLayers }

// NodeIndices returns, per input, the producing node's index within its
// layer's inbound node list.
func (n *Node) NodeIndices() []int { return n.nodeIndices }

// TensorIndices returns, per input, the output slot the tensor came out of.
func (n *Node) TensorIndices() []int { return n.tensorIndices }

// Arguments returns the call-time arguments recorded with the invocation.
func (n *Node) Arguments() CallArgs { return n.arguments.clone() }

// isInput reports whether the node is a source node (an InputLayer call).
func (n *Node) isInput() bool { return len(n.inputTensors) == 0 }
