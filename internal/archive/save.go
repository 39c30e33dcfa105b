package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "archive"})

// SetLogger replaces the package logger.
func SetLogger(l *log.Logger) { logger = l }

// SaveOptions configures Save.
type SaveOptions struct {
	// IncludeOptimizer persists the optimizer state of a compiled model.
	// Enabled by default through NewSaveOptions.
	IncludeOptimizer bool

	// Overwrite replaces an existing file without asking.
	Overwrite bool

	// AskToProceed is consulted when the target exists and Overwrite is
	// false. Returning false aborts the save without error. When nil, an
	// existing target is an error.
	AskToProceed func(path string) bool
}

// NewSaveOptions returns the default save configuration.
func NewSaveOptions() *SaveOptions {
	return &SaveOptions{IncludeOptimizer: true, Overwrite: true}
}

// trainable is satisfied by both sequential and functional models.
type trainable interface {
	Compiled() bool
	Optimizer() graph.Optimizer
	Loss() graph.Loss
	Metrics() []string
	SampleWeightMode() string
	LossWeights() []float64
}

// layered exposes a model's layer list.
type layered interface {
	Layers() []graph.Layer
}

// Save writes a whole model to path: topology, per-layer weights, and the
// training configuration and optimizer state when the model is compiled.
// Models whose optimizer cannot be reconstructed from config are saved
// without training state, with a warning.
func Save(model graph.Layer, path string, opts *SaveOptions) error {
	const op = "archive.Save"
	codec, err := requireCodec(op)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = NewSaveOptions()
	}

	if !opts.Overwrite {
		if _, statErr := os.Stat(path); statErr == nil {
			if opts.AskToProceed == nil {
				return graph.Errorf(graph.KindValidation, op,
					"%q already exists; enable Overwrite or set AskToProceed", path)
			}
			if !opts.AskToProceed(path) {
				return nil
			}
		}
	}

	topology, err := graph.TopologyOf(model)
	if err != nil {
		return err
	}
	rawTopology, err := json.Marshal(topology)
	if err != nil {
		return graph.WrapErr(graph.KindSerialization, op, err)
	}

	a := &Archive{
		Header: Header{
			FileID:      uuid.NewString(),
			CreatedAt:   time.Now().UTC(),
			BackendTag:  "cpu",
			ModelConfig: rawTopology,
		},
		Tensors: make(map[string]*tensor.Raw),
	}
	if err := collectModelWeights(a, model); err != nil {
		return err
	}

	if t, ok := model.(trainable); ok && t.Compiled() {
		if err := collectTrainingState(a, t, opts.IncludeOptimizer); err != nil {
			return err
		}
	}

	return codec.Write(path, a)
}

// SaveWeights writes a weights-only archive: no topology, no training
// state. The target model of LoadWeights must already have matching layers.
func SaveWeights(model graph.Layer, path string) error {
	const op = "archive.SaveWeights"
	codec, err := requireCodec(op)
	if err != nil {
		return err
	}
	a := &Archive{
		Header: Header{
			FileID:     uuid.NewString(),
			CreatedAt:  time.Now().UTC(),
			BackendTag: "cpu",
		},
		Tensors: make(map[string]*tensor.Raw),
	}
	if err := collectModelWeights(a, model); err != nil {
		return err
	}
	return codec.Write(path, a)
}

// collectModelWeights groups every layer's weights under the layer's name.
func collectModelWeights(a *Archive, model graph.Layer) error {
	l, ok := model.(layered)
	if !ok {
		return graph.Errorf(graph.KindType, "archive.Save",
			"expected a model with layers, got %T", model)
	}
	for _, layer := range l.Layers() {
		lw := LayerWeights{LayerName: layer.Name()}
		for _, w := range layer.Weights() {
			name := fmt.Sprintf("%s/%s", layer.Name(), shortWeightName(layer.Name(), w.Name))
			lw.WeightNames = append(lw.WeightNames, name)
			a.Tensors[name] = w.Value
		}
		a.Header.ModelWeights = append(a.Header.ModelWeights, lw)
	}
	return nil
}

// shortWeightName strips a leading "<layer>/" prefix from a weight name so
// saved names do not repeat the layer name twice.
func shortWeightName(layerName, weightName string) string {
	prefix := layerName + "/"
	if len(weightName) > len(prefix) && weightName[:len(prefix)] == prefix {
		return weightName[len(prefix):]
	}
	return weightName
}

// collectTrainingState records the compile configuration and, optionally,
// the optimizer state tensors.
func collectTrainingState(a *Archive, t trainable, includeOptimizer bool) error {
	opt := t.Optimizer()
	if !graph.OptimizerRegistered(opt.Name()) {
		logger.Warn("optimizer cannot be reconstructed from config, saving the model without training state",
			"optimizer", opt.Name())
		return nil
	}
	a.Header.TrainingConfig = &TrainingConfig{
		OptimizerClass:   opt.Name(),
		OptimizerConfig:  opt.Config(),
		Loss:             t.Loss().Name(),
		Metrics:          t.Metrics(),
		SampleWeightMode: t.SampleWeightMode(),
		LossWeights:      t.LossWeights(),
	}
	if !includeOptimizer {
		return nil
	}
	for i, w := range opt.Weights() {
		name := fmt.Sprintf("optimizer/%d", i)
		a.Header.OptimizerWeights = append(a.Header.OptimizerWeights, name)
		a.Tensors[name] = w
	}
	return nil
}
