package archive

import (
	"encoding/json"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"

	// Built-in layers must be registered before topologies are replayed.
	_ "github.com/lamina-ml/lamina/internal/layers"
	// Built-in optimizers, losses and metrics likewise.
	_ "github.com/lamina-ml/lamina/internal/optim"
)

// compilable is satisfied by both sequential and functional models.
type compilable interface {
	Compile(graph.Optimizer, graph.Loss, *graph.CompileOptions) error
	MakeTrainFunction() error
	Optimizer() graph.Optimizer
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Compile restores the training configuration and optimizer state when
	// the archive carries them. Enabled by default through NewLoadOptions;
	// disable it to get the bare model back regardless of training state.
	Compile bool
}

// NewLoadOptions returns the default load configuration.
func NewLoadOptions() *LoadOptions {
	return &LoadOptions{Compile: true}
}

// Load reconstructs a whole model from path with default options. The
// topology is replayed from config, weights are restored layer by layer,
// and, when the archive holds a training configuration, the model comes
// back compiled with its optimizer state.
//
// Two degradations are deliberate: an archive without training
// configuration yields an uncompiled model with a warning, and optimizer
// state that no longer matches yields a freshly initialized optimizer with
// a warning. Both mirror how archives written by older versions or other
// setups stay loadable.
func Load(path string, custom graph.CustomObjects) (graph.Layer, error) {
	return LoadWithOptions(path, custom, nil)
}

// LoadWithOptions reconstructs a model from path. With Compile disabled the
// model is returned uncompiled as soon as its weights are restored.
func LoadWithOptions(path string, custom graph.CustomObjects, opts *LoadOptions) (graph.Layer, error) {
	const op = "archive.Load"
	codec, err := requireCodec(op)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = NewLoadOptions()
	}
	a, err := codec.Read(path)
	if err != nil {
		return nil, err
	}

	if a.Header.ModelConfig == nil {
		return nil, graph.Errorf(graph.KindValidation, op,
			"no model configuration found in %q; was the file written by SaveWeights?", path)
	}
	var topology graph.TopologyRecord
	if err := json.Unmarshal(a.Header.ModelConfig, &topology); err != nil {
		return nil, graph.WrapErr(graph.KindSerialization, op, err)
	}
	model, err := graph.DeserializeTopology(&topology, custom)
	if err != nil {
		return nil, err
	}

	if err := restoreWeights(a, model); err != nil {
		return nil, err
	}
	if !opts.Compile {
		return model, nil
	}

	tc := a.Header.TrainingConfig
	if tc == nil {
		logger.Warn("no training configuration found in archive, the model was not compiled",
			"path", path)
		return model, nil
	}
	target, ok := model.(compilable)
	if !ok {
		return nil, graph.Errorf(graph.KindType, op, "model of type %T cannot be compiled", model)
	}
	optimizer, err := graph.DeserializeOptimizer(tc.OptimizerClass, tc.OptimizerConfig, custom)
	if err != nil {
		return nil, err
	}
	loss, err := graph.LossByName(tc.Loss, custom)
	if err != nil {
		return nil, err
	}
	err = target.Compile(optimizer, loss, &graph.CompileOptions{
		Metrics:          tc.Metrics,
		SampleWeightMode: tc.SampleWeightMode,
		LossWeights:      tc.LossWeights,
	})
	if err != nil {
		return nil, err
	}

	if len(a.Header.OptimizerWeights) > 0 {
		if err := restoreOptimizerState(a, target); err != nil {
			logger.Warn("error in loading the saved optimizer state; the model starts with a freshly initialized optimizer",
				"err", err)
		}
	}
	return model, nil
}

// LoadWeights restores weights into an existing model by layer name. Layer
// shapes must match what was saved.
func LoadWeights(model graph.Layer, path string) error {
	const op = "archive.LoadWeights"
	codec, err := requireCodec(op)
	if err != nil {
		return err
	}
	a, err := codec.Read(path)
	if err != nil {
		return err
	}
	return restoreWeights(a, model)
}

// restoreWeights distributes saved tensors to layers by name, in the saved
// weight order.
func restoreWeights(a *Archive, model graph.Layer) error {
	const op = "archive.Load"
	l, ok := model.(layered)
	if !ok {
		return graph.Errorf(graph.KindType, op, "expected a model with layers, got %T", model)
	}
	byName := make(map[string]graph.Layer)
	for _, layer := range l.Layers() {
		byName[layer.Name()] = layer
	}
	for _, lw := range a.Header.ModelWeights {
		if len(lw.WeightNames) == 0 {
			continue
		}
		layer, ok := byName[lw.LayerName]
		if !ok {
			return graph.Errorf(graph.KindValidation, op,
				"archive holds weights for layer %q, which the model does not have", lw.LayerName)
		}
		values := make([]*tensor.Raw, 0, len(lw.WeightNames))
		for _, name := range lw.WeightNames {
			t, ok := a.Tensor(name)
			if !ok {
				return graph.Errorf(graph.KindValidation, op,
					"archive header references missing tensor %q", name)
			}
			values = append(values, t)
		}
		if err := layer.SetWeights(values); err != nil {
			return err
		}
	}
	return nil
}

// restoreOptimizerState builds the optimizer slots and loads the saved
// state into them.
func restoreOptimizerState(a *Archive, target compilable) error {
	if err := target.MakeTrainFunction(); err != nil {
		return err
	}
	values := make([]*tensor.Raw, 0, len(a.Header.OptimizerWeights))
	for _, name := range a.Header.OptimizerWeights {
		t, ok := a.Tensor(name)
		if !ok {
			return graph.Errorf(graph.KindValidation, "archive.Load",
				"archive header references missing optimizer tensor %q", name)
		}
		values = append(values, t)
	}
	return target.Optimizer().SetWeights(values)
}
