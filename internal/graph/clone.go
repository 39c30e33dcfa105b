package graph

// CloneModel creates a fresh model with the same architecture and newly
// initialized weights. Layer instances are re-created from their configs, so
// the clone shares no state with the source. When inputTensors is nil, new
// placeholders mirroring the source inputs are created; otherwise the clone
// is built on the given replacement tensors.
func CloneModel(model Layer, inputTensors []*Tensor) (Layer, error) {
	switch v := model.(type) {
	case *Sequential:
		return CloneSequential(v, inputTensors)
	case *Model:
		return CloneFunctional(v, inputTensors)
	default:
		return nil, Errorf(KindType, "graph.CloneModel",
			"expected a Sequential or functional model, got %T", model)
	}
}

// CloneSequential clones a sequential model. At most one replacement tensor
// is accepted; it must be a placeholder or a raw external tensor.
func CloneSequential(s *Sequential, inputTensors []*Tensor) (*Sequential, error) {
	const op = "graph.CloneSequential"
	cloned := make([]Layer, 0, len(s.layers))
	for _, l := range s.layers {
		c, err := DeserializeLayer(l.ClassName(), l.Config(), nil)
		if err != nil {
			return nil, err
		}
		cloned = append(cloned, c)
	}

	if len(inputTensors) == 0 {
		return NewSequentialNamed(s.Name(), cloned...)
	}
	if len(inputTensors) != 1 {
		return nil, Errorf(KindCardinality, op,
			"a Sequential model takes exactly one replacement tensor, got %d", len(inputTensors))
	}

	t := inputTensors[0]
	var inputLayer *InputLayer
	if origin, ok := OriginOf(t); ok {
		in, isInput := origin.Layer.(*InputLayer)
		if !isInput {
			return nil, Errorf(KindUnsupported, op,
				"cannot clone onto tensor %q produced by layer %q; only placeholder or raw tensors are supported",
				t.Name(), origin.Layer.Name())
		}
		inputLayer = in
	} else {
		wrapped, _, err := wrapTensor(t, s.Name()+"_input")
		if err != nil {
			return nil, err
		}
		inputLayer = wrapped
	}

	out, err := NewSequentialNamed(s.Name())
	if err != nil {
		return nil, err
	}
	if err := out.Add(inputLayer); err != nil {
		return nil, err
	}
	for _, l := range cloned {
		if err := out.Add(l); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// cloneSub is one substitution-map entry: the cloned tensor standing in for
// a source tensor, together with the mask the cloned layer computed for it.
type cloneSub struct {
	tensor *Tensor
	mask   *Tensor
}

// CloneFunctional clones a functional model by replaying its nodes in
// decreasing depth order, mapping every source tensor to its clone and the
// clone's computed mask.
func CloneFunctional(m *Model, inputTensors []*Tensor) (*Model, error) {
	const op = "graph.CloneFunctional"

	// layerMap caches clones so a layer shared by several nodes is
	// instantiated once.
	layerMap := make(map[Handle]Layer)
	tensorMap := make(map[Handle]cloneSub)

	seed := func(src, repl *Tensor) {
		sub := cloneSub{tensor: repl}
		if mask, ok := MaskOf(repl); ok {
			sub.mask = mask
		}
		tensorMap[src.handle] = sub
	}

	var newInputs []*Tensor
	if len(inputTensors) == 0 {
		for i, in := range m.inputs {
			src := m.inputLayers[i].(*InputLayer)
			fresh, err := NewInputLayer(in.Shape().Clone(), in.DType(), in.Sparse(), src.Name())
			if err != nil {
				return nil, err
			}
			layerMap[src.base().handle] = fresh
			seed(in, fresh.Output())
			newInputs = append(newInputs, fresh.Output())
		}
	} else {
		if len(inputTensors) != len(m.inputs) {
			return nil, Errorf(KindCardinality, op,
				"model expects %d replacement tensors, got %d", len(m.inputs), len(inputTensors))
		}
		for i, t := range inputTensors {
			if origin, ok := OriginOf(t); ok {
				if in, isInput := origin.Layer.(*InputLayer); isInput {
					layerMap[m.inputLayers[i].base().handle] = in
					seed(m.inputs[i], t)
					newInputs = append(newInputs, t)
					continue
				}
			}
			wrapped, out, err := wrapTensor(t, m.inputLayers[i].Name())
			if err != nil {
				return nil, err
			}
			layerMap[m.inputLayers[i].base().handle] = wrapped
			seed(m.inputs[i], out)
			newInputs = append(newInputs, out)
		}
	}

	for _, depth := range m.depthKeys {
		for _, node := range m.nodesByDepth[depth] {
			// Input placeholders are always pre-seeded in tensorMap.
			if node.isInput() {
				continue
			}
			orig := node.outboundLayer
			clone, ok := layerMap[orig.base().handle]
			if !ok {
				var err error
				clone, err = DeserializeLayer(orig.ClassName(), orig.Config(), nil)
				if err != nil {
					return nil, err
				}
				layerMap[orig.base().handle] = clone
			}
			inputs := make([]*Tensor, 0, len(node.inputTensors))
			ready := true
			for _, in := range node.inputTensors {
				sub, ok := tensorMap[in.handle]
				if !ok {
					ready = false
					break
				}
				inputs = append(inputs, sub.tensor)
			}
			if !ready {
				continue
			}
			outs, err := Call(clone, inputs, node.arguments.clone())
			if err != nil {
				return nil, err
			}
			for i, out := range node.outputTensors {
				seed(out, outs[i])
			}
		}
	}

	newOutputs := make([]*Tensor, len(m.outputs))
	for i, out := range m.outputs {
		sub, ok := tensorMap[out.handle]
		if !ok {
			return nil, Errorf(KindAssertion, op, "could not compute output %q", out.Name())
		}
		newOutputs[i] = sub.tensor
	}
	return NewModel(newInputs, newOutputs, m.Name())
}
