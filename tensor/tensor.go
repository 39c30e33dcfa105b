// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for tensor values in Lamina.
//
// Two kinds of tensors exist in the framework: Raw tensors carry concrete
// values (weights, input batches), while symbolic tensors live in the model
// package and only describe graph topology.
//
// Example:
//
//	x, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	fmt.Println(x.Shape()) // (2, 2)
package tensor

import (
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Shape describes tensor dimensions. A leading -1 marks an unknown batch
// axis.
type Shape = tensor.Shape

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Raw is a value-carrying tensor: a flat buffer with shape and type.
type Raw = tensor.Raw

// NewRaw creates a zero-initialized tensor.
func NewRaw(shape Shape, dtype DataType) (*Raw, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a Float32 tensor from a value slice.
func FromFloat32(values []float32, shape Shape) (*Raw, error) {
	return tensor.FromFloat32(values, shape)
}

// FromBytes wraps an existing byte buffer without copying.
func FromBytes(data []byte, shape Shape, dtype DataType) (*Raw, error) {
	return tensor.FromBytes(data, shape, dtype)
}

// ConcatRows concatenates tensors along the first axis.
func ConcatRows(parts []*Raw) (*Raw, error) {
	return tensor.ConcatRows(parts)
}

// ParseDataType resolves a dtype tag like "float32".
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
