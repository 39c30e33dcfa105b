package tensor

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Raw is the low-level value-carrying tensor: a flat byte buffer with shape
// and runtime type information. Layer weights and concrete input batches are
// Raw tensors; symbolic graph tensors live in the graph package and never
// hold values.
type Raw struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw creates a new Raw tensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Raw{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromFloat32 creates a Float32 Raw tensor from a value slice.
// The slice length must match the element count of the shape.
func FromFloat32(values []float32, shape Shape) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(values) != shape.NumElements() {
		return nil, fmt.Errorf("value count %d does not match shape %s (%d elements)",
			len(values), shape, shape.NumElements())
	}
	r, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), values)
	return r, nil
}

// FromBytes wraps an existing byte buffer without copying.
// The caller must not reuse the buffer afterwards.
func FromBytes(data []byte, shape Shape, dtype DataType) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	want := shape.NumElements() * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("buffer size %d does not match shape %s of %s (%d bytes)",
			len(data), shape, dtype, want)
	}
	return &Raw{data: data, shape: shape.Clone(), dtype: dtype}, nil
}

// Shape returns the tensor's shape.
func (r *Raw) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *Raw) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *Raw) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *Raw) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice backing the tensor.
func (r *Raw) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *Raw) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *Raw) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy of the tensor.
func (r *Raw) Clone() *Raw {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &Raw{data: data, shape: r.shape.Clone(), dtype: r.dtype}
}

// RowBytes returns the byte size of one slice along the first axis.
func (r *Raw) RowBytes() int {
	if len(r.shape) == 0 || r.shape[0] == 0 {
		return 0
	}
	return len(r.data) / r.shape[0]
}

// Slice0 returns a view of rows [start, end) along the first axis.
// The view shares memory with the source tensor.
func (r *Raw) Slice0(start, end int) (*Raw, error) {
	if len(r.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar tensor")
	}
	if start < 0 || end > r.shape[0] || start > end {
		return nil, fmt.Errorf("slice [%d:%d] out of range for first axis of size %d", start, end, r.shape[0])
	}
	shape := r.shape.Clone()
	shape[0] = end - start
	rb := r.RowBytes()
	return &Raw{data: r.data[start*rb : end*rb], shape: shape, dtype: r.dtype}, nil
}

// Gather copies the given rows along the first axis into a new tensor.
func (r *Raw) Gather(rows []int) (*Raw, error) {
	if len(r.shape) == 0 {
		return nil, fmt.Errorf("cannot gather from a scalar tensor")
	}
	shape := r.shape.Clone()
	shape[0] = len(rows)
	rb := r.RowBytes()
	out := &Raw{data: make([]byte, len(rows)*rb), shape: shape, dtype: r.dtype}
	for i, row := range rows {
		if row < 0 || row >= r.shape[0] {
			return nil, fmt.Errorf("row %d out of range for first axis of size %d", row, r.shape[0])
		}
		copy(out.data[i*rb:(i+1)*rb], r.data[row*rb:(row+1)*rb])
	}
	return out, nil
}

// ConcatRows concatenates tensors along the first axis. All parts must
// share trailing shape and dtype.
func ConcatRows(parts []*Raw) (*Raw, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	first := parts[0]
	shape := first.shape.Clone()
	total := 0
	size := 0
	for _, p := range parts {
		if p.dtype != first.dtype {
			return nil, fmt.Errorf("dtype mismatch: %s vs %s", p.dtype, first.dtype)
		}
		if len(p.shape) != len(first.shape) || !p.shape[1:].Equal(first.shape[1:]) {
			return nil, fmt.Errorf("trailing shape mismatch: %s vs %s", p.shape, first.shape)
		}
		total += p.shape[0]
		size += len(p.data)
	}
	shape[0] = total
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p.data...)
	}
	return &Raw{data: data, shape: shape, dtype: first.dtype}, nil
}

// Equal reports whether two tensors have identical shape, dtype and bytes.
func (r *Raw) Equal(other *Raw) bool {
	if other == nil {
		return false
	}
	return r.dtype == other.dtype &&
		r.shape.Equal(other.shape) &&
		bytes.Equal(r.data, other.data)
}
