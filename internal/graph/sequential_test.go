package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/internal/tensor"
)

func TestSequentialAddNil(t *testing.T) {
	s, err := NewSequential()
	require.NoError(t, err)
	err = s.Add(nil)
	require.Error(t, err)
	assert.Equal(t, KindType, KindOf(err))
}

func TestSequentialFirstLayerNeedsShape(t *testing.T) {
	s, err := NewSequential()
	require.NoError(t, err)
	err = s.Add(newScaleLayer(2, nil, ""))
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestSequentialAddAndRun(t *testing.T) {
	s, err := NewSequential(
		newScaleLayer(2, tensor.Shape{-1, 3}, "double"),
		newScaleLayer(3, nil, "triple"),
	)
	require.NoError(t, err)
	require.Len(t, s.Layers(), 2)

	out, err := s.Predict(mustRaw(t, []float32{1, 2, 3}, tensor.Shape{1, 3}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 12, 18}, out.AsFloat32())
}

func TestSequentialPop(t *testing.T) {
	s, err := NewSequential(
		newScaleLayer(2, tensor.Shape{-1, 2}, ""),
		newScaleLayer(5, nil, ""),
	)
	require.NoError(t, err)

	require.NoError(t, s.Pop())
	require.Len(t, s.Layers(), 1)

	// The model now ends at the first layer again.
	out, err := s.Predict(mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2}, out.AsFloat32())

	require.NoError(t, s.Pop())
	require.Empty(t, s.Layers())

	err = s.Pop()
	require.Error(t, err)
	assert.Equal(t, KindEmpty, KindOf(err))
}

func TestSequentialRejectsMultiOutputLayer(t *testing.T) {
	s, err := NewSequential(newScaleLayer(2, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)
	err = s.Add(newForkLayer(""))
	require.Error(t, err)
	assert.Equal(t, KindShape, KindOf(err))
}

func TestSequentialMultiOutputFirstLayer(t *testing.T) {
	fork := newForkLayer("")
	fork.SetBatchInputShape(tensor.Shape{-1, 2})
	s, err := NewSequential()
	require.NoError(t, err)
	err = s.Add(fork)
	require.Error(t, err)
	assert.Equal(t, KindShape, KindOf(err))
}

func TestSequentialInputLayerPassthrough(t *testing.T) {
	in, err := NewInputLayer(tensor.Shape{-1, 4}, tensor.Float32, false, "")
	require.NoError(t, err)
	s, err := NewSequential()
	require.NoError(t, err)
	require.NoError(t, s.Add(in))
	require.NoError(t, s.Add(newScaleLayer(10, nil, "")))

	out, err := s.Predict(mustRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 4}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20, 30, 40}, out.AsFloat32())
}

func TestSequentialNestedAsFirstLayer(t *testing.T) {
	inner, err := NewSequential(newScaleLayer(2, tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	outer, err := NewSequential()
	require.NoError(t, err)
	require.NoError(t, outer.Add(inner))
	require.NoError(t, outer.Add(newScaleLayer(4, nil, "")))

	out, err := outer.Predict(mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2}), 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 8}, out.AsFloat32())
}

func TestSequentialBuildEmpty(t *testing.T) {
	s, err := NewSequential()
	require.NoError(t, err)
	err = s.Build(nil)
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestSequentialTrainingRequiresCompile(t *testing.T) {
	s, err := NewSequential(newBiasLayer(tensor.Shape{-1, 2}, ""))
	require.NoError(t, err)

	x := mustRaw(t, []float32{1, 2}, tensor.Shape{1, 2})
	_, err = s.Fit(x, x, nil)
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, err = s.TrainOnBatch(x, x)
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))

	// Predict does not need compilation.
	_, err = s.Predict(x, 32)
	require.NoError(t, err)
}

func TestSequentialGetLayerAndWeights(t *testing.T) {
	b := newBiasLayer(tensor.Shape{-1, 3}, "offsets")
	s, err := NewSequential(b)
	require.NoError(t, err)

	got, err := s.GetLayer("offsets")
	require.NoError(t, err)
	assert.Same(t, Layer(b), got)

	_, err = s.GetLayer("missing")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	ws := s.Weights()
	require.Len(t, ws, 1)
	newVals := mustRaw(t, []float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, s.SetWeights([]*tensor.Raw{newVals}))
	assert.Equal(t, []float32{1, 2, 3}, ws[0].Value.AsFloat32())

	err = s.SetWeights(nil)
	require.Error(t, err)
	assert.Equal(t, KindShape, KindOf(err))
}

func TestSequentialConfigRoundTrip(t *testing.T) {
	s, err := NewSequential(
		newScaleLayer(2, tensor.Shape{-1, 2}, "first"),
		newScaleLayer(7, nil, "second"),
	)
	require.NoError(t, err)

	restored, err := sequentialFromConfigMap(s.Config(), nil)
	require.NoError(t, err)
	require.Len(t, restored.Layers(), 2)
	assert.Equal(t, "first", restored.Layers()[0].Name())
	assert.Equal(t, "second", restored.Layers()[1].Name())

	x := mustRaw(t, []float32{1, 1}, tensor.Shape{1, 2})
	want, err := s.Predict(x, 32)
	require.NoError(t, err)
	got, err := restored.Predict(x, 32)
	require.NoError(t, err)
	assert.Equal(t, want.AsFloat32(), got.AsFloat32())
}
