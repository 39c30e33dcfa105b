// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layers provides the public API for the built-in layers.
//
// Example:
//
//	d, _ := layers.Dense(64, layers.WithInputShape(tensor.Shape{784}))
//	a, _ := layers.Activation("relu")
//	m, _ := model.NewSequential(d, a)
package layers

import (
	"github.com/lamina-ml/lamina/internal/layers"
)

// Option configures a layer constructor.
type Option = layers.Option

// WithName sets an explicit layer name.
var WithName = layers.WithName

// WithDType sets the layer's data type.
var WithDType = layers.WithDType

// WithInputShape declares the per-sample input shape, without the batch
// axis.
var WithInputShape = layers.WithInputShape

// WithBatchInputShape declares the full input shape including the batch
// axis.
var WithBatchInputShape = layers.WithBatchInputShape

// Dense creates a fully connected layer.
func Dense(units int, opts ...Option) (*layers.Dense, error) {
	return layers.NewDense(units, opts...)
}

// Activation creates an elementwise nonlinearity layer. Supported
// functions: linear, relu, sigmoid, tanh, softmax.
func Activation(fn string, opts ...Option) (*layers.Activation, error) {
	return layers.NewActivation(fn, opts...)
}

// Dropout creates a dropout layer with the given drop rate.
func Dropout(rate float64, opts ...Option) (*layers.Dropout, error) {
	return layers.NewDropout(rate, opts...)
}

// Flatten creates a layer collapsing all non-batch axes.
func Flatten(opts ...Option) (*layers.Flatten, error) {
	return layers.NewFlatten(opts...)
}

// Add creates an elementwise add merge layer.
func Add(opts ...Option) (*layers.Add, error) {
	return layers.NewAdd(opts...)
}

// Split creates a layer duplicating its input into n outputs.
func Split(n int, opts ...Option) (*layers.Split, error) {
	return layers.NewSplit(n, opts...)
}

// Masking creates a timestep masking layer.
func Masking(maskValue float64, opts ...Option) (*layers.Masking, error) {
	return layers.NewMasking(maskValue, opts...)
}
