// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model provides the public API for building, training, cloning and
// persisting models.
//
// Sequential stacks layers linearly; functional models connect layers into
// an arbitrary DAG through symbolic tensors:
//
//	in, _ := model.Input(tensor.Shape{-1, 4}, tensor.Float32, "")
//	d, _ := layers.Dense(8)
//	out, _ := model.Call(d, []*model.Tensor{in}, nil)
//	m, _ := model.New([]*model.Tensor{in}, out, "")
//
// Whole-model persistence goes through Save and Load, which round-trip
// topology, weights, training configuration and optimizer state.
package model

import (
	"github.com/lamina-ml/lamina/internal/archive"
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Shape and DataType mirror the tensor package for convenience in Input
// calls.
type (
	Shape    = tensor.Shape
	DataType = tensor.DataType
)

// Tensor is a symbolic graph tensor, produced by Input and layer calls.
type Tensor = graph.Tensor

// Layer is the interface all layers implement.
type Layer = graph.Layer

// Node records one layer invocation in the graph.
type Node = graph.Node

// Sequential is a linear stack of layers.
type Sequential = graph.Sequential

// Model is a functional layer DAG.
type Model = graph.Model

// Optimizer, Loss and Metric are the training plug points.
type (
	Optimizer = graph.Optimizer
	Loss      = graph.Loss
	Metric    = graph.Metric
)

// CompileOptions, FitOptions, GeneratorOptions and History configure and
// report training runs.
type (
	CompileOptions   = graph.CompileOptions
	FitOptions       = graph.FitOptions
	GeneratorOptions = graph.GeneratorOptions
	History          = graph.History
	Generator        = graph.Generator
)

// CustomObjects maps class names to caller-supplied factories used during
// deserialization.
type CustomObjects = graph.CustomObjects

// SaveOptions and LoadOptions configure Save and LoadWithOptions.
type (
	SaveOptions = archive.SaveOptions
	LoadOptions = archive.LoadOptions
)

// NewSequential creates a sequential model from layers.
func NewSequential(layers ...Layer) (*Sequential, error) {
	return graph.NewSequential(layers...)
}

// NewSequentialNamed creates a named sequential model.
func NewSequentialNamed(name string, layers ...Layer) (*Sequential, error) {
	return graph.NewSequentialNamed(name, layers...)
}

// New creates a functional model from input placeholders to outputs.
func New(inputs, outputs []*Tensor, name string) (*Model, error) {
	return graph.NewModel(inputs, outputs, name)
}

// Input creates a placeholder tensor. batchShape includes the batch axis,
// commonly -1.
func Input(batchShape Shape, dtype DataType, name string) (*Tensor, error) {
	return graph.Input(batchShape, dtype, name)
}

// Call invokes a layer on symbolic inputs, extending the graph.
func Call(layer Layer, inputs []*Tensor, args graph.CallArgs) ([]*Tensor, error) {
	return graph.Call(layer, inputs, args)
}

// Clone creates a fresh model with the same architecture and newly
// initialized weights, optionally rebuilt on replacement input tensors.
func Clone(m Layer, inputTensors []*Tensor) (Layer, error) {
	return graph.CloneModel(m, inputTensors)
}

// Save writes a whole model to a .lamina file.
func Save(m Layer, path string, opts *SaveOptions) error {
	return archive.Save(m, path, opts)
}

// Load reconstructs a whole model from a .lamina file.
func Load(path string, custom CustomObjects) (Layer, error) {
	return archive.Load(path, custom)
}

// LoadWithOptions reconstructs a model, optionally skipping compilation.
func LoadWithOptions(path string, custom CustomObjects, opts *LoadOptions) (Layer, error) {
	return archive.LoadWithOptions(path, custom, opts)
}

// SaveWeights writes a weights-only archive.
func SaveWeights(m Layer, path string) error {
	return archive.SaveWeights(m, path)
}

// LoadWeights restores weights into an existing model by layer name.
func LoadWeights(m Layer, path string) error {
	return archive.LoadWeights(m, path)
}

// ToJSON serializes a model's topology as JSON.
func ToJSON(m Layer) ([]byte, error) {
	return graph.ModelToJSON(m)
}

// ToYAML serializes a model's topology as YAML.
func ToYAML(m Layer) ([]byte, error) {
	return graph.ModelToYAML(m)
}

// FromJSON reconstructs a model from a JSON topology document.
func FromJSON(data []byte, custom CustomObjects) (Layer, error) {
	return graph.ModelFromJSON(data, custom)
}

// FromYAML reconstructs a model from a YAML topology document.
func FromYAML(data []byte, custom CustomObjects) (Layer, error) {
	return graph.ModelFromYAML(data, custom)
}

// FromConfig reconstructs a model from an already-parsed config tree.
func FromConfig(v any, custom CustomObjects) (Layer, error) {
	return graph.ModelFromConfigValue(v, custom)
}

// SequentialFromConfig rebuilds a sequential model from ordered layer
// records.
func SequentialFromConfig(records []graph.LayerRecord, custom CustomObjects) (*Sequential, error) {
	return graph.SequentialFromConfig(records, custom)
}
