// Package layers provides the built-in layer implementations. Every layer
// registers a config factory so serialized models can be reconstructed by
// class name.
package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Option configures a layer constructor.
type Option func(*options)

type options struct {
	name            string
	dtype           tensor.DataType
	batchInputShape tensor.Shape
}

// WithName sets an explicit layer name instead of an auto-generated one.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDType sets the layer's data type. Defaults to float32.
func WithDType(dt tensor.DataType) Option {
	return func(o *options) { o.dtype = dt }
}

// WithInputShape declares the per-sample input shape, without the batch
// axis. Only the first layer of a Sequential model needs it.
func WithInputShape(shape tensor.Shape) Option {
	return func(o *options) {
		o.batchInputShape = append(tensor.Shape{-1}, shape...)
	}
}

// WithBatchInputShape declares the full input shape including the batch
// axis.
func WithBatchInputShape(shape tensor.Shape) Option {
	return func(o *options) { o.batchInputShape = shape.Clone() }
}

func applyOptions(opts []Option) options {
	o := options{dtype: tensor.Float32}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newBase builds the embedded graph bookkeeping from resolved options.
func (o options) newBase(prefix string) graph.Base {
	b := graph.NewBase(o.name, prefix, o.dtype)
	if o.batchInputShape != nil {
		b.SetBatchInputShape(o.batchInputShape)
	}
	return b
}

// baseConfig collects the config entries shared by all layers.
func baseConfig(name string, batchShape tensor.Shape, dtype tensor.DataType, cfg map[string]any) map[string]any {
	cfg["name"] = name
	if batchShape != nil {
		cfg["batch_input_shape"] = []int(batchShape)
		cfg["dtype"] = dtype.String()
	}
	return cfg
}

// optionsFromConfig recovers the shared constructor options from a config
// map produced by baseConfig.
func optionsFromConfig(cfg map[string]any) []Option {
	var opts []Option
	if name, ok := graph.ConfigString(cfg, "name"); ok {
		opts = append(opts, WithName(name))
	}
	if _, present := cfg["batch_input_shape"]; present {
		if shape, err := graph.ConfigIntSlice(cfg, "batch_input_shape"); err == nil {
			opts = append(opts, WithBatchInputShape(shape))
		}
	}
	opts = append(opts, WithDType(graph.ConfigDType(cfg, "dtype")))
	return opts
}
