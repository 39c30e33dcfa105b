package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloat32Validation(t *testing.T) {
	_, err := FromFloat32([]float32{1, 2, 3}, Shape{2, 2})
	require.Error(t, err)

	r, err := FromFloat32([]float32{1, 2, 3, 4}, Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, 4, r.NumElements())
	assert.Equal(t, 16, r.ByteSize())
	assert.Equal(t, Float32, r.DType())
}

func TestSlice0SharesMemory(t *testing.T) {
	r, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{3, 2})
	require.NoError(t, err)

	view, err := r.Slice0(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, view.Shape())
	assert.Equal(t, []float32{3, 4, 5, 6}, view.AsFloat32())

	// Mutating the view is visible in the source.
	view.AsFloat32()[0] = 99
	assert.Equal(t, float32(99), r.AsFloat32()[2])
}

func TestSlice0Range(t *testing.T) {
	r, err := FromFloat32([]float32{1, 2}, Shape{2, 1})
	require.NoError(t, err)

	_, err = r.Slice0(-1, 1)
	require.Error(t, err)
	_, err = r.Slice0(0, 3)
	require.Error(t, err)
	_, err = r.Slice0(2, 1)
	require.Error(t, err)

	empty, err := r.Slice0(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumElements())
}

func TestGather(t *testing.T) {
	r, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{3, 2})
	require.NoError(t, err)

	g, err := r.Gather([]int{2, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, g.Shape())
	assert.Equal(t, []float32{5, 6, 1, 2, 5, 6}, g.AsFloat32())

	// Gather copies; mutating the result leaves the source alone.
	g.AsFloat32()[0] = 0
	assert.Equal(t, float32(5), r.AsFloat32()[4])

	_, err = r.Gather([]int{3})
	require.Error(t, err)
}

func TestConcatRows(t *testing.T) {
	a, err := FromFloat32([]float32{1, 2}, Shape{1, 2})
	require.NoError(t, err)
	b, err := FromFloat32([]float32{3, 4, 5, 6}, Shape{2, 2})
	require.NoError(t, err)

	out, err := ConcatRows([]*Raw{a, b})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out.AsFloat32())

	_, err = ConcatRows(nil)
	require.Error(t, err)

	c, err := FromFloat32([]float32{1, 2, 3}, Shape{1, 3})
	require.NoError(t, err)
	_, err = ConcatRows([]*Raw{a, c})
	require.Error(t, err)

	d, err := NewRaw(Shape{1, 2}, Float64)
	require.NoError(t, err)
	_, err = ConcatRows([]*Raw{a, d})
	require.Error(t, err)
}

func TestCloneAndEqual(t *testing.T) {
	r, err := FromFloat32([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	c := r.Clone()
	assert.True(t, r.Equal(c))

	c.AsFloat32()[0] = 9
	assert.False(t, r.Equal(c))
	assert.False(t, r.Equal(nil))
}
