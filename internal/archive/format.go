// Package archive persists whole models to .lamina files: topology,
// weights, and, when available, the training configuration and optimizer
// state needed to resume training exactly where it stopped.
//
// The binary layout is a 64-byte fixed header (magic, version, flags,
// header size, data size, SHA-256 checksum of the data section), a JSON
// header describing the model and its tensors, alignment padding, and the
// raw tensor data.
package archive

import (
	"encoding/json"
	"time"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "LMNA"
	FormatVersion   = 1  // v1: no checksum
	FormatVersionV2 = 2  // v2: fixed 64-byte header with SHA-256 checksum
	HeaderAlignment = 64 // tensor data aligned for mmap-friendly reads
	FixedHeaderSize = 64 // v2 fixed header size
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Flags in the fixed header.
const (
	FlagHasTopology  uint32 = 1 << 0
	FlagHasTraining  uint32 = 1 << 1
	FlagHasOptimizer uint32 = 1 << 2
)

// laminaVersion is written into every archive for provenance.
const laminaVersion = "0.3.1"

// Header is the JSON header of a .lamina file.
type Header struct {
	FormatVersion int       `json:"format_version"`
	LaminaVersion string    `json:"lamina_version"`
	BackendTag    string    `json:"backend"`
	FileID        string    `json:"file_id"`
	CreatedAt     time.Time `json:"created_at"`

	// ModelConfig is the {class_name, config} topology document. Absent in
	// weights-only archives.
	ModelConfig json.RawMessage `json:"model_config,omitempty"`

	// TrainingConfig restores Compile state. Absent for uncompiled models
	// and optimizers that cannot be serialized.
	TrainingConfig *TrainingConfig `json:"training_config,omitempty"`

	// ModelWeights lists, per layer, the tensor names belonging to that
	// layer in weight order.
	ModelWeights []LayerWeights `json:"model_weights"`

	// OptimizerWeights lists the optimizer state tensor names in order.
	OptimizerWeights []string `json:"optimizer_weights,omitempty"`

	Tensors []TensorMeta `json:"tensors"`
}

// TrainingConfig captures the arguments of Compile.
type TrainingConfig struct {
	OptimizerClass   string         `json:"optimizer_class"`
	OptimizerConfig  map[string]any `json:"optimizer_config"`
	Loss             string         `json:"loss"`
	Metrics          []string       `json:"metrics,omitempty"`
	SampleWeightMode string         `json:"sample_weight_mode,omitempty"`
	LossWeights      []float64      `json:"loss_weights,omitempty"`
}

// LayerWeights groups saved tensors by the layer that owns them.
type LayerWeights struct {
	LayerName   string   `json:"layer_name"`
	WeightNames []string `json:"weight_names"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// Archive is an in-memory .lamina file: the parsed header plus the tensor
// payloads keyed by name.
type Archive struct {
	Header  Header
	Tensors map[string]*tensor.Raw
}

// Tensor retrieves a payload by name.
func (a *Archive) Tensor(name string) (*tensor.Raw, bool) {
	t, ok := a.Tensors[name]
	return t, ok
}
