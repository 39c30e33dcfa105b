package graph

import (
	"encoding/json"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// Sequential is a linear stack of layers. Layers are chained single input
// to single output; the underlying functional model is materialized lazily
// on first use and invalidated by Add and Pop.
type Sequential struct {
	Base

	layers  []Layer
	inputs  []*Tensor
	outputs []*Tensor

	// model is the lazily built functional equivalent.
	model *Model
}

// NewSequential creates a sequential model and adds the given layers in
// order.
func NewSequential(layers ...Layer) (*Sequential, error) {
	return NewSequentialNamed("", layers...)
}

// NewSequentialNamed creates a named sequential model.
func NewSequentialNamed(name string, layers ...Layer) (*Sequential, error) {
	if name == "" {
		name = NewUID("sequential_")
	}
	s := &Sequential{Base: Base{name: name, handle: nextHandle(), dtype: tensor.Float32}}
	for _, l := range layers {
		if err := s.Add(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ClassName implements Layer.
func (s *Sequential) ClassName() string { return "Sequential" }

// Layers returns the stacked layers in order.
func (s *Sequential) Layers() []Layer { return s.layers }

// Add appends a layer to the stack. The first layer must know its input
// shape, either directly or through an InputLayer or nested model; later
// layers are connected to the current output tensor. Layers producing more
// than one output tensor cannot be stacked.
func (s *Sequential) Add(layer Layer) error {
	const op = "graph.Sequential.Add"
	if layer == nil {
		return Errorf(KindType, op, "added layer must be a Layer instance, got nil")
	}

	if len(s.outputs) == 0 {
		var outs []*Tensor
		if in, ok := layer.(*InputLayer); ok {
			outs = []*Tensor{in.Output()}
		} else {
			shape, dtype, err := s.firstLayerInputSpec(layer)
			if err != nil {
				return err
			}
			x, err := Input(shape, dtype, layer.Name()+"_input")
			if err != nil {
				return err
			}
			outs, err = Call(layer, []*Tensor{x}, nil)
			if err != nil {
				return err
			}
		}
		if len(outs) != 1 {
			return Errorf(KindShape, op,
				"all layers in a Sequential model should have a single output tensor, got %d", len(outs))
		}
		s.outputs = outs
		s.inputs = SourceInputs(outs[0])

		// Top-level node so the model itself can be called when nested.
		// Built directly: it must not register as an outbound consumer of
		// the layers it wraps.
		s.inboundNodes = append(s.inboundNodes, &Node{
			outboundLayer: s,
			inputTensors:  s.inputs,
			outputTensors: s.outputs,
		})
	} else {
		outs, err := Call(layer, []*Tensor{s.outputs[0]}, nil)
		if err != nil {
			return err
		}
		if len(outs) != 1 {
			return Errorf(KindShape, op,
				"all layers in a Sequential model should have a single output tensor, got %d", len(outs))
		}
		s.outputs = outs
		s.inboundNodes[0].outputTensors = s.outputs
	}

	s.layers = append(s.layers, layer)
	s.built = false
	s.model = nil
	return nil
}

// firstLayerInputSpec derives the input placeholder shape and dtype for the
// first stacked layer.
func (s *Sequential) firstLayerInputSpec(layer Layer) (tensor.Shape, tensor.DataType, error) {
	const op = "graph.Sequential.Add"
	probe := layer
	if _, nested := layer.(interface{ Layers() []Layer }); nested {
		first, err := firstConcreteLayer(layer)
		if err != nil {
			return nil, 0, err
		}
		probe = first
	}
	shape := probe.base().batchInputShape
	if shape == nil {
		return nil, 0, Errorf(KindConfig, op,
			"the first layer in a Sequential model must declare an input shape, layer %q does not", layer.Name())
	}
	return shape.Clone(), probe.DType(), nil
}

// Pop removes the last layer in the model.
func (s *Sequential) Pop() error {
	if len(s.layers) == 0 {
		return Errorf(KindEmpty, "graph.Sequential.Pop", "there are no layers in the model")
	}
	s.layers = s.layers[:len(s.layers)-1]
	if len(s.layers) == 0 {
		s.outputs = nil
		s.inputs = nil
		s.inboundNodes = nil
	} else {
		last := s.layers[len(s.layers)-1]
		nodes := last.base().inboundNodes
		s.outputs = []*Tensor{nodes[len(nodes)-1].outputTensors[0]}
		s.inboundNodes[0].outputTensors = s.outputs
	}
	s.built = false
	s.model = nil
	return nil
}

// Build materializes the underlying functional model.
func (s *Sequential) Build(inputShapes []tensor.Shape) error {
	if s.built && s.model != nil {
		return nil
	}
	if len(s.outputs) == 0 {
		return Errorf(KindConfig, "graph.Sequential.Build",
			"cannot build an empty Sequential model, add layers first")
	}
	m, err := NewModel(s.inputs, s.outputs, s.Name()+"_model")
	if err != nil {
		return err
	}
	s.model = m
	s.built = true
	return nil
}

func (s *Sequential) ensureBuilt() error {
	if s.built && s.model != nil {
		return nil
	}
	return s.Build(nil)
}

// Model returns the underlying functional model, building it if needed.
func (s *Sequential) Model() (*Model, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model, nil
}

// GetLayer retrieves a stacked layer by name.
func (s *Sequential) GetLayer(name string) (Layer, error) {
	for _, l := range s.layers {
		if l.Name() == name {
			return l, nil
		}
	}
	return nil, Errorf(KindValidation, "graph.Sequential.GetLayer", "no such layer: %q", name)
}

// Weights returns all layer weights in stack order.
func (s *Sequential) Weights() []*Weight {
	var out []*Weight
	for _, l := range s.layers {
		out = append(out, l.Weights()...)
	}
	return out
}

// TrainableWeights returns the trainable layer weights in stack order.
func (s *Sequential) TrainableWeights() []*Weight {
	var out []*Weight
	for _, w := range s.Weights() {
		if w.Trainable {
			out = append(out, w)
		}
	}
	return out
}

// SetWeights distributes flat weight values across the stacked layers.
func (s *Sequential) SetWeights(values []*tensor.Raw) error {
	const op = "graph.Sequential.SetWeights"
	for _, l := range s.layers {
		n := len(l.Weights())
		if n > len(values) {
			return Errorf(KindShape, op,
				"layer %q expects %d weight arrays, only %d left", l.Name(), n, len(values))
		}
		if err := l.SetWeights(values[:n]); err != nil {
			return err
		}
		values = values[n:]
	}
	if len(values) != 0 {
		return Errorf(KindShape, op, "%d provided weight arrays were not consumed", len(values))
	}
	return nil
}

// OutputShapes implements Layer for nested use.
func (s *Sequential) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model.OutputShapes(inputShapes)
}

// Forward implements Layer for nested use.
func (s *Sequential) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model.Forward(inputs, args)
}

// ConfigRecords returns the ordered per-layer records of the stack.
func (s *Sequential) ConfigRecords() ([]LayerRecord, error) {
	records := make([]LayerRecord, 0, len(s.layers))
	for _, l := range s.layers {
		rec, err := layerRecordOf(l)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Config implements Layer for nested use.
func (s *Sequential) Config() map[string]any {
	records, err := s.ConfigRecords()
	if err != nil {
		return map[string]any{"name": s.Name()}
	}
	layerList := make([]any, len(records))
	for i, rec := range records {
		layerList[i] = structToMap(rec)
	}
	return map[string]any{"name": s.Name(), "layers": layerList}
}

// SequentialFromConfig rebuilds a sequential model from ordered layer
// records by re-adding each layer, which re-runs all Add validation.
func SequentialFromConfig(records []LayerRecord, custom CustomObjects) (*Sequential, error) {
	return sequentialFromRecords("", records, custom)
}

func sequentialFromRecords(name string, records []LayerRecord, custom CustomObjects) (*Sequential, error) {
	s, err := NewSequentialNamed(name)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		l, err := DeserializeLayer(rec.ClassName, rec.Config, custom)
		if err != nil {
			return nil, err
		}
		if err := s.Add(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sequentialFromConfigMap handles the nested {"name", "layers"} config form
// produced when a Sequential model is embedded in another model's config.
func sequentialFromConfigMap(cfg map[string]any, custom CustomObjects) (*Sequential, error) {
	const op = "graph.sequentialFromConfigMap"
	name, _ := ConfigString(cfg, "name")
	rawLayers, ok := cfg["layers"]
	if !ok {
		return nil, Errorf(KindConfig, op, "sequential config has no layer list")
	}
	jsonBytes, err := json.Marshal(rawLayers)
	if err != nil {
		return nil, WrapErr(KindValidation, op, err)
	}
	var records []LayerRecord
	if err := json.Unmarshal(jsonBytes, &records); err != nil {
		return nil, WrapErr(KindValidation, op, err)
	}
	return sequentialFromRecords(name, records, custom)
}

// Compile configures the model for training. The configuration lives on
// the underlying functional model.
func (s *Sequential) Compile(optimizer Optimizer, loss Loss, opts *CompileOptions) error {
	if err := s.ensureBuilt(); err != nil {
		return err
	}
	return s.model.Compile(optimizer, loss, opts)
}

// Compiled reports whether Compile has been called.
func (s *Sequential) Compiled() bool {
	return s.model != nil && s.model.Compiled()
}

// Optimizer returns the configured optimizer, or nil.
func (s *Sequential) Optimizer() Optimizer {
	if s.model == nil {
		return nil
	}
	return s.model.Optimizer()
}

// Loss returns the configured loss, or nil.
func (s *Sequential) Loss() Loss {
	if s.model == nil {
		return nil
	}
	return s.model.Loss()
}

// Metrics returns the configured metric names.
func (s *Sequential) Metrics() []string {
	if s.model == nil {
		return nil
	}
	return s.model.Metrics()
}

// SampleWeightMode returns the configured sample weight mode.
func (s *Sequential) SampleWeightMode() string {
	if s.model == nil {
		return ""
	}
	return s.model.SampleWeightMode()
}

// LossWeights returns the configured per-output loss weights.
func (s *Sequential) LossWeights() []float64 {
	if s.model == nil {
		return nil
	}
	return s.model.LossWeights()
}

// MakeTrainFunction prepares the optimizer state.
func (s *Sequential) MakeTrainFunction() error {
	m, err := s.compiledModel("graph.Sequential.MakeTrainFunction")
	if err != nil {
		return err
	}
	return m.MakeTrainFunction()
}

func (s *Sequential) compiledModel(op string) (*Model, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	if !s.model.Compiled() {
		return nil, Errorf(KindPrecondition, op, "the model needs to be compiled before being used")
	}
	return s.model, nil
}

// Fit trains the model on batches sliced from x and y.
func (s *Sequential) Fit(x, y *tensor.Raw, opts *FitOptions) (*History, error) {
	m, err := s.compiledModel("graph.Sequential.Fit")
	if err != nil {
		return nil, err
	}
	return m.Fit(x, y, opts)
}

// Evaluate computes the loss and metrics on held-out data.
func (s *Sequential) Evaluate(x, y *tensor.Raw, batchSize int) ([]float64, error) {
	m, err := s.compiledModel("graph.Sequential.Evaluate")
	if err != nil {
		return nil, err
	}
	return m.Evaluate(x, y, batchSize)
}

// TrainOnBatch runs one optimization step on a single batch.
func (s *Sequential) TrainOnBatch(x, y *tensor.Raw) ([]float64, error) {
	m, err := s.compiledModel("graph.Sequential.TrainOnBatch")
	if err != nil {
		return nil, err
	}
	return m.TrainOnBatch(x, y)
}

// TestOnBatch evaluates a single batch.
func (s *Sequential) TestOnBatch(x, y *tensor.Raw) ([]float64, error) {
	m, err := s.compiledModel("graph.Sequential.TestOnBatch")
	if err != nil {
		return nil, err
	}
	return m.TestOnBatch(x, y)
}

// Predict runs inference over x in batches. Compilation is not required.
func (s *Sequential) Predict(x *tensor.Raw, batchSize int) (*tensor.Raw, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model.Predict(x, batchSize)
}

// PredictOnBatch runs inference on a single batch.
func (s *Sequential) PredictOnBatch(x *tensor.Raw) (*tensor.Raw, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model.PredictOnBatch(x)
}

// PredictProba returns class probability estimates. Output rows that do
// not sum to one are per-sample scores rather than probabilities.
func (s *Sequential) PredictProba(x *tensor.Raw, batchSize int) (*tensor.Raw, error) {
	return s.Predict(x, batchSize)
}

// PredictClasses returns hard class predictions: the argmax for
// multi-column outputs, a 0.5 threshold for single-column outputs.
func (s *Sequential) PredictClasses(x *tensor.Raw, batchSize int) ([]int, error) {
	proba, err := s.Predict(x, batchSize)
	if err != nil {
		return nil, err
	}
	shape := proba.Shape()
	rows, cols := shape[0], 1
	if len(shape) > 1 {
		cols = shape[len(shape)-1]
	}
	vals := proba.AsFloat32()
	classes := make([]int, rows)
	for r := 0; r < rows; r++ {
		if cols == 1 {
			if vals[r] > 0.5 {
				classes[r] = 1
			}
			continue
		}
		best := 0
		for c := 1; c < cols; c++ {
			if vals[r*cols+c] > vals[r*cols+best] {
				best = c
			}
		}
		classes[r] = best
	}
	return classes, nil
}

// FitGenerator trains on batches pulled from a generator.
func (s *Sequential) FitGenerator(g Generator, opts *GeneratorOptions) (*History, error) {
	m, err := s.compiledModel("graph.Sequential.FitGenerator")
	if err != nil {
		return nil, err
	}
	return m.FitGenerator(g, opts)
}

// EvaluateGenerator evaluates on batches pulled from a generator.
func (s *Sequential) EvaluateGenerator(g Generator, steps int, opts *GeneratorOptions) ([]float64, error) {
	m, err := s.compiledModel("graph.Sequential.EvaluateGenerator")
	if err != nil {
		return nil, err
	}
	return m.EvaluateGenerator(g, steps, opts)
}

// PredictGenerator runs inference on batches pulled from a generator.
func (s *Sequential) PredictGenerator(g Generator, steps int, opts *GeneratorOptions) (*tensor.Raw, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	return s.model.PredictGenerator(g, steps, opts)
}
