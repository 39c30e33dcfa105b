package graph

import (
	"encoding/json"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// InboundRef identifies one produced tensor: a layer-call (layer name plus
// node index within that layer) and an output slot.
type InboundRef struct {
	Layer       string `json:"layer"`
	NodeIndex   int    `json:"node_index"`
	TensorIndex int    `json:"tensor_index"`
}

// NodeRecord describes one replayable layer invocation in a functional
// model config.
type NodeRecord struct {
	Inbound   []InboundRef   `json:"inbound"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// LayerRecord is the serialized form of one layer: class name, its config
// map, and (functional models only) the invocations to replay.
type LayerRecord struct {
	ClassName    string         `json:"class_name"`
	Name         string         `json:"name,omitempty"`
	Config       map[string]any `json:"config"`
	InboundNodes []NodeRecord   `json:"inbound_nodes,omitempty"`
}

// ModelConfig is the serialized topology of a functional model.
type ModelConfig struct {
	Name         string        `json:"name"`
	Layers       []LayerRecord `json:"layers"`
	InputLayers  []InboundRef  `json:"input_layers"`
	OutputLayers []InboundRef  `json:"output_layers"`
}

// TopologyRecord is the top-level {class_name, config} envelope written to
// archives and JSON/YAML exports.
type TopologyRecord struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
}

// Named is implemented by values that serialize to their registered name
// (losses, metrics, activation functions).
type Named interface {
	Name() string
}

// EncodeConfigValue converts a config value into a JSON-serializable
// structure. Values exposing a config-export capability become
// {class_name, config}; numeric arrays become value lists; Named values
// become their name. Anything else fails with SerializationKind.
func EncodeConfigValue(v any) (any, error) {
	const op = "graph.EncodeConfigValue"
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return x, nil
	case tensor.Shape:
		return []int(x), nil
	case []int, []int64, []float32, []float64, []string, []bool:
		return x, nil
	case *tensor.Raw:
		vals := make([]float64, x.NumElements())
		switch x.DType() {
		case tensor.Float32:
			for i, f := range x.AsFloat32() {
				vals[i] = float64(f)
			}
		case tensor.Float64:
			copy(vals, x.AsFloat64())
		default:
			return nil, Errorf(KindSerialization, op, "cannot encode %s tensor value", x.DType())
		}
		return map[string]any{"type": "ndarray", "shape": []int(x.Shape()), "value": vals}, nil
	case Layer:
		cfg, err := EncodeConfigMap(x.Config())
		if err != nil {
			return nil, err
		}
		return map[string]any{"class_name": x.ClassName(), "config": cfg}, nil
	case Named:
		return x.Name(), nil
	case map[string]any:
		return EncodeConfigMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			enc, err := EncodeConfigValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	default:
		if reflect.TypeOf(v).Kind() == reflect.Func {
			return nil, Errorf(KindSerialization, op, "cannot encode unnamed function value")
		}
		return nil, Errorf(KindSerialization, op, "value of type %T is not JSON serializable", v)
	}
}

// EncodeConfigMap applies EncodeConfigValue to every entry of a config map.
func EncodeConfigMap(cfg map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		enc, err := EncodeConfigValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// layerRecordOf serializes one layer into a record, without inbound nodes.
func layerRecordOf(l Layer) (LayerRecord, error) {
	cfg, err := EncodeConfigMap(l.Config())
	if err != nil {
		return LayerRecord{}, fmt.Errorf("layer %q: %w", l.Name(), err)
	}
	return LayerRecord{ClassName: l.ClassName(), Name: l.Name(), Config: cfg}, nil
}

// ConfigRecords returns the functional model's typed topology config.
func (m *Model) ConfigRecords() (*ModelConfig, error) {
	mc := &ModelConfig{Name: m.Name()}
	inModel := make(map[*Node]int) // node -> model-relative index within its layer
	for _, l := range m.layers {
		rec, err := layerRecordOf(l)
		if err != nil {
			return nil, err
		}
		idx := 0
		for _, node := range l.base().inboundNodes {
			if _, ok := m.nodeDepth[node]; !ok {
				continue
			}
			inModel[node] = idx
			idx++
			if node.isInput() {
				continue
			}
			nr := NodeRecord{Arguments: node.arguments}
			for i := range node.inputTensors {
				producer := node.inboundLayers[i].base().inboundNodes[node.nodeIndices[i]]
				nr.Inbound = append(nr.Inbound, InboundRef{
					Layer:       node.inboundLayers[i].Name(),
					NodeIndex:   inModel[producer],
					TensorIndex: node.tensorIndices[i],
				})
			}
			rec.InboundNodes = append(rec.InboundNodes, nr)
		}
		mc.Layers = append(mc.Layers, rec)
	}
	for _, in := range m.inputs {
		origin, _ := OriginOf(in)
		node := origin.Layer.base().inboundNodes[origin.NodeIndex]
		mc.InputLayers = append(mc.InputLayers, InboundRef{
			Layer:       origin.Layer.Name(),
			NodeIndex:   inModel[node],
			TensorIndex: origin.TensorIndex,
		})
	}
	for _, out := range m.outputs {
		origin, _ := OriginOf(out)
		node := origin.Layer.base().inboundNodes[origin.NodeIndex]
		mc.OutputLayers = append(mc.OutputLayers, InboundRef{
			Layer:       origin.Layer.Name(),
			NodeIndex:   inModel[node],
			TensorIndex: origin.TensorIndex,
		})
	}
	return mc, nil
}

// Config implements Layer for nested use.
func (m *Model) Config() map[string]any {
	mc, err := m.ConfigRecords()
	if err != nil {
		return map[string]any{"name": m.Name()}
	}
	return structToMap(mc)
}

// ClassName implements Layer.
func (m *Model) ClassName() string { return "Model" }

// FunctionalFromConfig reconstructs a functional model by instantiating
// every layer from its record and replaying the recorded invocations. A
// worklist defers nodes whose producers have not been replayed yet; no
// progress on a non-empty worklist means the config references tensors that
// are never produced.
func FunctionalFromConfig(mc *ModelConfig, custom CustomObjects) (*Model, error) {
	const op = "graph.FunctionalFromConfig"
	created := make(map[string]Layer, len(mc.Layers))
	type pendingCall struct {
		layer Layer
		rec   NodeRecord
	}
	var pending []pendingCall
	for _, rec := range mc.Layers {
		l, err := DeserializeLayer(rec.ClassName, rec.Config, custom)
		if err != nil {
			return nil, err
		}
		name := rec.Name
		if name == "" {
			name = l.Name()
		}
		created[name] = l
		for _, nr := range rec.InboundNodes {
			pending = append(pending, pendingCall{layer: l, rec: nr})
		}
	}

	resolve := func(ref InboundRef) (*Tensor, bool, error) {
		l, ok := created[ref.Layer]
		if !ok {
			return nil, false, Errorf(KindConfig, op, "inbound reference to unknown layer %q", ref.Layer)
		}
		nodes := l.base().inboundNodes
		if ref.NodeIndex >= len(nodes) {
			return nil, false, nil // producer not replayed yet
		}
		outs := nodes[ref.NodeIndex].outputTensors
		if ref.TensorIndex >= len(outs) {
			return nil, false, Errorf(KindConfig, op,
				"layer %q node %d has no output %d", ref.Layer, ref.NodeIndex, ref.TensorIndex)
		}
		return outs[ref.TensorIndex], true, nil
	}

	for len(pending) > 0 {
		progressed := false
		var remaining []pendingCall
		for _, p := range pending {
			inputs := make([]*Tensor, 0, len(p.rec.Inbound))
			ready := true
			for _, ref := range p.rec.Inbound {
				t, ok, err := resolve(ref)
				if err != nil {
					return nil, err
				}
				if !ok {
					ready = false
					break
				}
				inputs = append(inputs, t)
			}
			if !ready {
				remaining = append(remaining, p)
				continue
			}
			if _, err := Call(p.layer, inputs, CallArgs(p.rec.Arguments)); err != nil {
				return nil, err
			}
			progressed = true
		}
		if !progressed {
			return nil, Errorf(KindConfig, op, "config contains unresolvable node references")
		}
		pending = remaining
	}

	inputs := make([]*Tensor, 0, len(mc.InputLayers))
	for _, ref := range mc.InputLayers {
		t, ok, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, Errorf(KindConfig, op, "input layer %q node %d never replayed", ref.Layer, ref.NodeIndex)
		}
		inputs = append(inputs, t)
	}
	outputs := make([]*Tensor, 0, len(mc.OutputLayers))
	for _, ref := range mc.OutputLayers {
		t, ok, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, Errorf(KindConfig, op, "output layer %q node %d never replayed", ref.Layer, ref.NodeIndex)
		}
		outputs = append(outputs, t)
	}
	return NewModel(inputs, outputs, mc.Name)
}

// ModelToJSON serializes a model's topology as a {class_name, config}
// JSON document.
func ModelToJSON(model Layer) ([]byte, error) {
	rec, err := TopologyOf(model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// ModelToYAML serializes a model's topology as a YAML document with the
// same structure as ModelToJSON.
func ModelToYAML(model Layer) ([]byte, error) {
	data, err := ModelToJSON(model)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, WrapErr(KindSerialization, "graph.ModelToYAML", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, WrapErr(KindSerialization, "graph.ModelToYAML", err)
	}
	return out, nil
}

// TopologyOf builds the top-level topology envelope for a model.
func TopologyOf(model Layer) (*TopologyRecord, error) {
	switch v := model.(type) {
	case *Sequential:
		records, err := v.ConfigRecords()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		return &TopologyRecord{ClassName: "Sequential", Config: raw}, nil
	case *Model:
		mc, err := v.ConfigRecords()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(mc)
		if err != nil {
			return nil, err
		}
		return &TopologyRecord{ClassName: "Model", Config: raw}, nil
	default:
		cfg, err := EncodeConfigMap(model.Config())
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		return &TopologyRecord{ClassName: model.ClassName(), Config: raw}, nil
	}
}

// DeserializeTopology reconstructs a model from a topology envelope.
func DeserializeTopology(rec *TopologyRecord, custom CustomObjects) (Layer, error) {
	switch rec.ClassName {
	case "Sequential":
		var records []LayerRecord
		if err := json.Unmarshal(rec.Config, &records); err != nil {
			// Nested form: {"name": ..., "layers": [...]}.
			var m map[string]any
			if err2 := json.Unmarshal(rec.Config, &m); err2 != nil {
				return nil, WrapErr(KindValidation, "graph.DeserializeTopology", err)
			}
			return sequentialFromConfigMap(m, custom)
		}
		return SequentialFromConfig(records, custom)
	case "Model":
		var mc ModelConfig
		if err := json.Unmarshal(rec.Config, &mc); err != nil {
			return nil, WrapErr(KindValidation, "graph.DeserializeTopology", err)
		}
		return FunctionalFromConfig(&mc, custom)
	default:
		var cfg map[string]any
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, WrapErr(KindValidation, "graph.DeserializeTopology", err)
		}
		return DeserializeLayer(rec.ClassName, cfg, custom)
	}
}

// ModelFromJSON parses a JSON topology document into a model.
func ModelFromJSON(data []byte, custom CustomObjects) (Layer, error) {
	var rec TopologyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, WrapErr(KindValidation, "graph.ModelFromJSON", err)
	}
	if rec.ClassName == "" {
		return nil, Errorf(KindValidation, "graph.ModelFromJSON", "document has no class_name")
	}
	return DeserializeTopology(&rec, custom)
}

// ModelFromYAML parses a YAML topology document into a model.
func ModelFromYAML(data []byte, custom CustomObjects) (Layer, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, WrapErr(KindValidation, "graph.ModelFromYAML", err)
	}
	jsonBytes, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, WrapErr(KindValidation, "graph.ModelFromYAML", err)
	}
	return ModelFromJSON(jsonBytes, custom)
}

// ModelFromConfigValue reconstructs a model from an already-parsed config
// tree. A bare list is a Sequential layer list passed to the wrong entry
// point.
func ModelFromConfigValue(v any, custom CustomObjects) (Layer, error) {
	if _, isList := v.([]any); isList {
		return nil, Errorf(KindType, "graph.ModelFromConfigValue",
			"expected a {class_name, config} mapping, not a list; use SequentialFromConfig instead")
	}
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, WrapErr(KindValidation, "graph.ModelFromConfigValue", err)
	}
	return ModelFromJSON(jsonBytes, custom)
}

// modelConfigFromValue coerces an already-parsed config tree into a typed
// functional model config.
func modelConfigFromValue(v any) (*ModelConfig, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, WrapErr(KindValidation, "graph.modelConfigFromValue", err)
	}
	var mc ModelConfig
	if err := json.Unmarshal(jsonBytes, &mc); err != nil {
		return nil, WrapErr(KindValidation, "graph.modelConfigFromValue", err)
	}
	return &mc, nil
}

// normalizeYAML converts yaml map keys to strings so the tree re-marshals
// as JSON.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = normalizeYAML(e)
		}
		return x
	default:
		return v
	}
}

// structToMap converts a JSON-taggable struct into a generic config map.
func structToMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Config helpers: layer factories read loosely typed maps that have been
// through JSON or YAML, so numbers may be float64 or json.Number.

// ConfigString reads a string entry.
func ConfigString(cfg map[string]any, key string) (string, bool) {
	s, ok := cfg[key].(string)
	return s, ok
}

// ConfigBool reads a bool entry.
func ConfigBool(cfg map[string]any, key string) (bool, bool) {
	b, ok := cfg[key].(bool)
	return b, ok
}

// ConfigInt reads an integer entry, accepting JSON float64 representations.
func ConfigInt(cfg map[string]any, key string) (int, bool) {
	switch x := cfg[key].(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// ConfigFloat reads a float entry.
func ConfigFloat(cfg map[string]any, key string) (float64, bool) {
	switch x := cfg[key].(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ConfigIntSlice reads an integer slice entry; fails with ConfigKind when
// the entry is missing or malformed.
func ConfigIntSlice(cfg map[string]any, key string) (tensor.Shape, error) {
	const op = "graph.ConfigIntSlice"
	switch x := cfg[key].(type) {
	case []int:
		return tensor.Shape(x).Clone(), nil
	case tensor.Shape:
		return x.Clone(), nil
	case []any:
		out := make(tensor.Shape, len(x))
		for i, e := range x {
			switch n := e.(type) {
			case int:
				out[i] = n
			case float64:
				out[i] = int(n)
			case json.Number:
				v, err := n.Int64()
				if err != nil {
					return nil, Errorf(KindConfig, op, "entry %q[%d] is not an integer", key, i)
				}
				out[i] = int(v)
			default:
				return nil, Errorf(KindConfig, op, "entry %q[%d] is not an integer", key, i)
			}
		}
		return out, nil
	case nil:
		return nil, Errorf(KindConfig, op, "missing config entry %q", key)
	default:
		return nil, Errorf(KindConfig, op, "entry %q is not an integer list", key)
	}
}

// ConfigDType reads a dtype entry, defaulting to float32.
func ConfigDType(cfg map[string]any, key string) tensor.DataType {
	if s, ok := ConfigString(cfg, key); ok {
		if dt, ok := tensor.ParseDataType(s); ok {
			return dt
		}
	}
	return tensor.Float32
}
