package graph

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// Optimizer applies weight updates from gradients. Implementations live in
// the optim package and register themselves for deserialization.
type Optimizer interface {
	Name() string
	Config() map[string]any

	// Build allocates per-parameter state slots. Called once before the
	// first Step.
	Build(params []*Weight) error

	// Step applies one update. grads is aligned with params.
	Step(params []*Weight, grads []*tensor.Raw) error

	// Weights returns the optimizer's internal state tensors.
	Weights() []*tensor.Raw

	// SetWeights restores internal state saved by Weights.
	SetWeights(values []*tensor.Raw) error
}

// Loss scores predictions against targets and provides the gradient of the
// loss with respect to the prediction.
type Loss interface {
	Name() string
	Forward(yTrue, yPred *tensor.Raw) (float64, *tensor.Raw, error)
}

// Metric computes a scalar score for a batch of predictions.
type Metric interface {
	Name() string
	Compute(yTrue, yPred *tensor.Raw) (float64, error)
}

// BackwardLayer is implemented by layers that define a local backward rule.
// Given the forward inputs and the gradients flowing into each output, it
// returns the gradients for each input and for each weight, in Weights()
// order.
type BackwardLayer interface {
	Backward(inputs, outputGrads []*tensor.Raw, args CallArgs) (inputGrads, weightGrads []*tensor.Raw, err error)
}

// CompileOptions carries the optional compile configuration.
type CompileOptions struct {
	Metrics          []string
	SampleWeightMode string
	LossWeights      []float64
}

// FitOptions carries the optional training loop configuration.
type FitOptions struct {
	BatchSize    int
	Epochs       int
	Shuffle      bool
	InitialEpoch int
}

// History records per-epoch averaged training metrics, keyed by metric name
// with "loss" always present.
type History struct {
	Epochs  []int
	Metrics map[string][]float64
}

// Compile configures the model for training.
func (m *Model) Compile(optimizer Optimizer, loss Loss, opts *CompileOptions) error {
	const op = "Model.Compile"
	if optimizer == nil {
		return Errorf(KindValidation, op, "an optimizer is required")
	}
	if loss == nil {
		return Errorf(KindValidation, op, "a loss is required")
	}
	m.optimizer = optimizer
	m.loss = loss
	if opts != nil {
		m.metrics = append([]string(nil), opts.Metrics...)
		m.sampleWeightMode = opts.SampleWeightMode
		m.lossWeights = append([]float64(nil), opts.LossWeights...)
	} else {
		m.metrics = nil
		m.sampleWeightMode = ""
		m.lossWeights = nil
	}
	m.compiled = true
	m.trainFnBuilt = false
	return nil
}

// Compiled reports whether Compile has been called.
func (m *Model) Compiled() bool { return m.compiled }

// Optimizer returns the configured optimizer, or nil.
func (m *Model) Optimizer() Optimizer { return m.optimizer }

// Loss returns the configured loss, or nil.
func (m *Model) Loss() Loss { return m.loss }

// Metrics returns the configured metric names.
func (m *Model) Metrics() []string { return m.metrics }

// SampleWeightMode returns the configured sample weight mode.
func (m *Model) SampleWeightMode() string { return m.sampleWeightMode }

// LossWeights returns the configured per-output loss weights.
func (m *Model) LossWeights() []float64 { return m.lossWeights }

// MetricKeys returns the history keys in reporting order.
func (m *Model) MetricKeys() []string {
	return append([]string{"loss"}, m.metrics...)
}

// MakeTrainFunction prepares the optimizer state. Idempotent; called
// implicitly by the first training step.
func (m *Model) MakeTrainFunction() error {
	if !m.compiled {
		return Errorf(KindPrecondition, "Model.MakeTrainFunction",
			"the model needs to be compiled before being used")
	}
	if m.trainFnBuilt {
		return nil
	}
	if err := m.optimizer.Build(m.TrainableWeights()); err != nil {
		return err
	}
	m.trainFnBuilt = true
	return nil
}

// TrainOnBatch runs a single forward/backward pass and one optimizer step.
// Returns the batch loss followed by the configured metric values.
func (m *Model) TrainOnBatch(x, y *tensor.Raw) ([]float64, error) {
	if err := m.MakeTrainFunction(); err != nil {
		return nil, err
	}
	scores, weightGrads, err := m.forwardBackward(x, y)
	if err != nil {
		return nil, err
	}
	params := m.TrainableWeights()
	if err := m.optimizer.Step(params, weightGrads); err != nil {
		return nil, err
	}
	return scores, nil
}

// TestOnBatch evaluates a single batch without updating weights.
func (m *Model) TestOnBatch(x, y *tensor.Raw) ([]float64, error) {
	if !m.compiled {
		return nil, Errorf(KindPrecondition, "Model.TestOnBatch",
			"the model needs to be compiled before being used")
	}
	yPred, err := m.PredictOnBatch(x)
	if err != nil {
		return nil, err
	}
	lossVal, _, err := m.loss.Forward(y, yPred)
	if err != nil {
		return nil, err
	}
	return m.appendMetricScores([]float64{lossVal}, y, yPred)
}

// PredictOnBatch runs a forward pass on a single batch.
func (m *Model) PredictOnBatch(x *tensor.Raw) (*tensor.Raw, error) {
	if len(m.inputs) != 1 || len(m.outputs) != 1 {
		return nil, Errorf(KindUnsupported, "Model.PredictOnBatch",
			"batch prediction supports single-input single-output models, this model has %d inputs and %d outputs",
			len(m.inputs), len(m.outputs))
	}
	outs, err := m.Run([]*tensor.Raw{x})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// Predict runs inference over x in batches and concatenates the results.
func (m *Model) Predict(x *tensor.Raw, batchSize int) (*tensor.Raw, error) {
	parts := make([]*tensor.Raw, 0, 1)
	for _, b := range batchRanges(x.Shape()[0], batchSize) {
		xb, err := x.Slice0(b.start, b.end)
		if err != nil {
			return nil, err
		}
		out, err := m.PredictOnBatch(xb)
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	return tensor.ConcatRows(parts)
}

// Evaluate computes the loss and metrics over x and y in batches, averaged
// and weighted by batch size.
func (m *Model) Evaluate(x, y *tensor.Raw, batchSize int) ([]float64, error) {
	if !m.compiled {
		return nil, Errorf(KindPrecondition, "Model.Evaluate",
			"the model needs to be compiled before being used")
	}
	sums := make([]float64, len(m.MetricKeys()))
	total := 0
	for _, b := range batchRanges(x.Shape()[0], batchSize) {
		xb, err := x.Slice0(b.start, b.end)
		if err != nil {
			return nil, err
		}
		yb, err := y.Slice0(b.start, b.end)
		if err != nil {
			return nil, err
		}
		scores, err := m.TestOnBatch(xb, yb)
		if err != nil {
			return nil, err
		}
		n := b.end - b.start
		for i, s := range scores {
			sums[i] += s * float64(n)
		}
		total += n
	}
	if total == 0 {
		return nil, Errorf(KindEmpty, "Model.Evaluate", "no samples to evaluate")
	}
	for i := range sums {
		sums[i] /= float64(total)
	}
	return sums, nil
}

// Fit trains the model for a number of epochs over x and y, slicing batches
// along the first axis.
func (m *Model) Fit(x, y *tensor.Raw, opts *FitOptions) (*History, error) {
	if err := m.MakeTrainFunction(); err != nil {
		return nil, err
	}
	batchSize, epochs, initial := 32, 1, 0
	shuffle := true
	if opts != nil {
		if opts.BatchSize > 0 {
			batchSize = opts.BatchSize
		}
		if opts.Epochs > 0 {
			epochs = opts.Epochs
		}
		shuffle = opts.Shuffle
		initial = opts.InitialEpoch
	}
	samples := x.Shape()[0]
	if y.Shape()[0] != samples {
		return nil, Errorf(KindShape, "Model.Fit",
			"input and target sample counts differ: %d vs %d", samples, y.Shape()[0])
	}

	hist := &History{Metrics: make(map[string][]float64)}
	keys := m.MetricKeys()
	for epoch := initial; epoch < initial+epochs; epoch++ {
		xe, ye := x, y
		if shuffle {
			perm := rand.Perm(samples)
			var err error
			if xe, err = x.Gather(perm); err != nil {
				return nil, err
			}
			if ye, err = y.Gather(perm); err != nil {
				return nil, err
			}
		}
		sums := make([]float64, len(keys))
		total := 0
		for _, b := range batchRanges(samples, batchSize) {
			xb, err := xe.Slice0(b.start, b.end)
			if err != nil {
				return nil, err
			}
			yb, err := ye.Slice0(b.start, b.end)
			if err != nil {
				return nil, err
			}
			scores, err := m.TrainOnBatch(xb, yb)
			if err != nil {
				return nil, err
			}
			n := b.end - b.start
			for i, s := range scores {
				sums[i] += s * float64(n)
			}
			total += n
		}
		hist.Epochs = append(hist.Epochs, epoch)
		for i, k := range keys {
			hist.Metrics[k] = append(hist.Metrics[k], sums[i]/float64(total))
		}
	}
	return hist, nil
}

// forwardBackward runs one forward pass, seeds the loss gradient, and
// propagates gradients back through the nodes in increasing depth order.
// Returns the reported scores and the gradients aligned with
// TrainableWeights.
func (m *Model) forwardBackward(x, y *tensor.Raw) ([]float64, []*tensor.Raw, error) {
	const op = "Model.TrainOnBatch"
	if len(m.inputs) != 1 || len(m.outputs) != 1 {
		return nil, nil, Errorf(KindUnsupported, op,
			"training supports single-input single-output models, this model has %d inputs and %d outputs",
			len(m.inputs), len(m.outputs))
	}
	values, err := m.execute([]*tensor.Raw{x})
	if err != nil {
		return nil, nil, err
	}
	yPred, ok := values[m.outputs[0].handle]
	if !ok {
		return nil, nil, Errorf(KindAssertion, op, "could not compute output %q", m.outputs[0].Name())
	}
	lossVal, lossGrad, err := m.loss.Forward(y, yPred)
	if err != nil {
		return nil, nil, err
	}

	grads := map[Handle]*tensor.Raw{m.outputs[0].handle: lossGrad}
	layerGrads := make(map[Layer][]*tensor.Raw)

	// depthKeys is descending; walk it ascending so consumers run before
	// their producers.
	for i := 0; i < len(m.depthKeys); i++ {
		depth := m.depthKeys[len(m.depthKeys)-1-i]
		for _, node := range m.nodesByDepth[depth] {
			if node.isInput() {
				continue
			}
			outGrads := make([]*tensor.Raw, len(node.outputTensors))
			onLossPath := false
			for j, out := range node.outputTensors {
				if g, ok := grads[out.handle]; ok {
					outGrads[j] = g
					onLossPath = true
				} else {
					zero, err := tensor.NewRaw(values[out.handle].Shape(), values[out.handle].DType())
					if err != nil {
						return nil, nil, err
					}
					outGrads[j] = zero
				}
			}
			if !onLossPath {
				continue
			}
			bl, ok := node.outboundLayer.(BackwardLayer)
			if !ok {
				return nil, nil, Errorf(KindUnsupported, op,
					"layer %q does not define a backward rule", node.outboundLayer.Name())
			}
			inVals := make([]*tensor.Raw, len(node.inputTensors))
			for j, in := range node.inputTensors {
				inVals[j] = values[in.handle]
			}
			inGrads, wGrads, err := bl.Backward(inVals, outGrads, node.arguments)
			if err != nil {
				return nil, nil, fmt.Errorf("layer %q: %w", node.outboundLayer.Name(), err)
			}
			for j, in := range node.inputTensors {
				if j >= len(inGrads) || inGrads[j] == nil {
					continue
				}
				if existing, ok := grads[in.handle]; ok {
					if err := addInPlace(existing, inGrads[j]); err != nil {
						return nil, nil, err
					}
				} else {
					grads[in.handle] = inGrads[j]
				}
			}
			if len(wGrads) > 0 {
				l := node.outboundLayer
				if existing, ok := layerGrads[l]; ok {
					for j := range existing {
						if j < len(wGrads) && wGrads[j] != nil {
							if err := addInPlace(existing[j], wGrads[j]); err != nil {
								return nil, nil, err
							}
						}
					}
				} else {
					layerGrads[l] = wGrads
				}
			}
		}
	}

	// Flatten, matching TrainableWeights order.
	var flat []*tensor.Raw
	for _, l := range m.layers {
		ws := l.Weights()
		wg := layerGrads[l]
		for j, w := range ws {
			if !w.Trainable {
				continue
			}
			if j < len(wg) && wg[j] != nil {
				flat = append(flat, wg[j])
				continue
			}
			zero, err := tensor.NewRaw(w.Value.Shape(), w.Value.DType())
			if err != nil {
				return nil, nil, err
			}
			flat = append(flat, zero)
		}
	}

	scores, err := m.appendMetricScores([]float64{lossVal}, y, yPred)
	if err != nil {
		return nil, nil, err
	}
	return scores, flat, nil
}

func (m *Model) appendMetricScores(scores []float64, yTrue, yPred *tensor.Raw) ([]float64, error) {
	for _, name := range m.metrics {
		metric, err := MetricByName(name, nil)
		if err != nil {
			return nil, err
		}
		v, err := metric.Compute(yTrue, yPred)
		if err != nil {
			return nil, err
		}
		scores = append(scores, v)
	}
	return scores, nil
}

type batchRange struct{ start, end int }

func batchRanges(samples, batchSize int) []batchRange {
	if batchSize <= 0 {
		batchSize = 32
	}
	var out []batchRange
	for start := 0; start < samples; start += batchSize {
		end := start + batchSize
		if end > samples {
			end = samples
		}
		out = append(out, batchRange{start, end})
	}
	return out
}

func addInPlace(dst, src *tensor.Raw) error {
	if !dst.Shape().Equal(src.Shape()) || dst.DType() != src.DType() {
		return Errorf(KindShape, "graph.addInPlace",
			"gradient shape mismatch: %s/%s vs %s/%s", dst.Shape(), dst.DType(), src.Shape(), src.DType())
	}
	switch dst.DType() {
	case tensor.Float32:
		d, s := dst.AsFloat32(), src.AsFloat32()
		for i := range d {
			d[i] += s[i]
		}
	case tensor.Float64:
		d, s := dst.AsFloat64(), src.AsFloat64()
		for i := range d {
			d[i] += s[i]
		}
	default:
		return Errorf(KindUnsupported, "graph.addInPlace", "cannot accumulate %s gradients", dst.DType())
	}
	return nil
}

// Name registries for losses, metrics and optimizers. Implementations
// register themselves at init time; custom objects are consulted first.

var (
	registryMu sync.RWMutex
	losses     = map[string]Loss{}
	metrics    = map[string]Metric{}
	optimizers = map[string]func(map[string]any) (Optimizer, error){}
)

// RegisterLoss makes a loss resolvable by name.
func RegisterLoss(l Loss) {
	registryMu.Lock()
	defer registryMu.Unlock()
	losses[l.Name()] = l
}

// LossByName resolves a loss, consulting custom objects first.
func LossByName(name string, custom CustomObjects) (Loss, error) {
	if v, ok := custom[name]; ok {
		if l, ok := v.(Loss); ok {
			return l, nil
		}
		return nil, Errorf(KindType, "graph.LossByName", "custom object %q is not a Loss", name)
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	if l, ok := losses[name]; ok {
		return l, nil
	}
	return nil, Errorf(KindValidation, "graph.LossByName", "unknown loss %q", name)
}

// RegisterMetric makes a metric resolvable by name.
func RegisterMetric(mt Metric) {
	registryMu.Lock()
	defer registryMu.Unlock()
	metrics[mt.Name()] = mt
}

// MetricByName resolves a metric, consulting custom objects first.
func MetricByName(name string, custom CustomObjects) (Metric, error) {
	if v, ok := custom[name]; ok {
		if mt, ok := v.(Metric); ok {
			return mt, nil
		}
		return nil, Errorf(KindType, "graph.MetricByName", "custom object %q is not a Metric", name)
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	if mt, ok := metrics[name]; ok {
		return mt, nil
	}
	return nil, Errorf(KindValidation, "graph.MetricByName", "unknown metric %q", name)
}

// RegisterOptimizer makes an optimizer class reconstructable from config.
func RegisterOptimizer(className string, factory func(map[string]any) (Optimizer, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	optimizers[className] = factory
}

// OptimizerRegistered reports whether an optimizer class can be
// reconstructed from config.
func OptimizerRegistered(className string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := optimizers[className]
	return ok
}

// DeserializeOptimizer reconstructs an optimizer from its class name and
// config, consulting custom objects first.
func DeserializeOptimizer(className string, cfg map[string]any, custom CustomObjects) (Optimizer, error) {
	if v, ok := custom[className]; ok {
		if o, ok := v.(Optimizer); ok {
			return o, nil
		}
		return nil, Errorf(KindType, "graph.DeserializeOptimizer", "custom object %q is not an Optimizer", className)
	}
	registryMu.RLock()
	factory, ok := optimizers[className]
	registryMu.RUnlock()
	if !ok {
		return nil, Errorf(KindValidation, "graph.DeserializeOptimizer", "unknown optimizer %q", className)
	}
	return factory(cfg)
}
