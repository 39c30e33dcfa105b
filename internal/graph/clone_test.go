package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/internal/tensor"
)

func TestCloneSequentialFreshWeights(t *testing.T) {
	src, err := NewSequential(newBiasLayer(tensor.Shape{-1, 2}, "src_bias"))
	require.NoError(t, err)
	require.NoError(t, src.SetWeights([]*tensor.Raw{mustRaw(t, []float32{5, 5}, tensor.Shape{2})}))

	clone, err := CloneModel(src, nil)
	require.NoError(t, err)
	cs, ok := clone.(*Sequential)
	require.True(t, ok)

	x := mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2})
	out, err := cs.Predict(x, 32)
	require.NoError(t, err)
	// The clone starts from freshly initialized (zero) weights.
	assert.Equal(t, []float32{1, 1}, out.AsFloat32())

	// Mutating the original afterwards does not touch the clone.
	require.NoError(t, src.SetWeights([]*tensor.Raw{mustRaw(t, []float32{9, 9}, tensor.Shape{2})}))
	out, err = cs.Predict(x, 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, out.AsFloat32())
}

func TestCloneSequentialOntoPlaceholder(t *testing.T) {
	src, err := NewSequential(newScaleLayer(3, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	x, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "replacement")
	require.NoError(t, err)
	clone, err := CloneSequential(src, []*Tensor{x})
	require.NoError(t, err)

	out, err := clone.Predict(mustRaw(t, []float32{1, 2}, tensor.Shape{1, 2}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 6}, out.AsFloat32())
}

func TestCloneSequentialOntoRawTensor(t *testing.T) {
	src, err := NewSequential(newScaleLayer(4, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	external := newTensor("external:0", tensor.Shape{-1, 2}, tensor.Float32, false)
	clone, err := CloneSequential(src, []*Tensor{external})
	require.NoError(t, err)

	out, err := clone.Predict(mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4}, out.AsFloat32())
}

func TestCloneSequentialRejectsDerivedTensor(t *testing.T) {
	src, err := NewSequential(newScaleLayer(2, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	x, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "")
	require.NoError(t, err)
	derived, err := Call(newScaleLayer(2, nil, ""), []*Tensor{x}, nil)
	require.NoError(t, err)

	_, err = CloneSequential(src, derived)
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, KindOf(err))
}

func TestCloneSequentialCardinality(t *testing.T) {
	src, err := NewSequential(newScaleLayer(2, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	a, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "")
	require.NoError(t, err)
	b, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "")
	require.NoError(t, err)

	_, err = CloneSequential(src, []*Tensor{a, b})
	require.Error(t, err)
	assert.Equal(t, KindCardinality, KindOf(err))
}

func TestCloneModelRejectsPlainLayer(t *testing.T) {
	_, err := CloneModel(newScaleLayer(2, nil, ""), nil)
	require.Error(t, err)
	assert.Equal(t, KindType, KindOf(err))
}

func TestCloneFunctional(t *testing.T) {
	x, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "fc_in")
	require.NoError(t, err)

	branches, err := Call(newForkLayer(""), []*Tensor{x}, nil)
	require.NoError(t, err)
	left, err := Call(newScaleLayer(2, nil, ""), branches[:1], nil)
	require.NoError(t, err)
	right, err := Call(newScaleLayer(3, nil, ""), branches[1:], nil)
	require.NoError(t, err)
	out, err := Call(newSumLayer(""), []*Tensor{left[0], right[0]}, nil)
	require.NoError(t, err)

	src, err := NewModel([]*Tensor{x}, out, "fc_src")
	require.NoError(t, err)

	clone, err := CloneFunctional(src, nil)
	require.NoError(t, err)
	require.Len(t, clone.Layers(), len(src.Layers()))
	for i, l := range clone.Layers() {
		assert.NotSame(t, src.Layers()[i], l)
	}

	in := mustRaw(t, []float32{1, 2}, tensor.Shape{1, 2})
	want, err := src.Run([]*tensor.Raw{in})
	require.NoError(t, err)
	got, err := clone.Run([]*tensor.Raw{in})
	require.NoError(t, err)
	assert.Equal(t, want[0].AsFloat32(), got[0].AsFloat32())
}

func TestCloneFunctionalOntoReplacement(t *testing.T) {
	x, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "")
	require.NoError(t, err)
	out, err := Call(newScaleLayer(6, nil, ""), []*Tensor{x}, nil)
	require.NoError(t, err)
	src, err := NewModel([]*Tensor{x}, out, "")
	require.NoError(t, err)

	replacement, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "swap_in")
	require.NoError(t, err)
	clone, err := CloneFunctional(src, []*Tensor{replacement})
	require.NoError(t, err)
	assert.Same(t, replacement, clone.Inputs()[0])

	got, err := clone.Run([]*tensor.Raw{mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2})})
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 6}, got[0].AsFloat32())
}

func TestCloneFunctionalCardinality(t *testing.T) {
	x, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "")
	require.NoError(t, err)
	out, err := Call(newScaleLayer(2, nil, ""), []*Tensor{x}, nil)
	require.NoError(t, err)
	src, err := NewModel([]*Tensor{x}, out, "")
	require.NoError(t, err)

	_, err = CloneFunctional(src, []*Tensor{})
	require.NoError(t, err)
	_, err = CloneFunctional(src, make([]*Tensor, 2))
	require.Error(t, err)
	assert.Equal(t, KindCardinality, KindOf(err))
}
