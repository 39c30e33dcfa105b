package layers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

func builtDense(t *testing.T, units int, in tensor.Shape) *Dense {
	t.Helper()
	d, err := NewDense(units)
	require.NoError(t, err)
	require.NoError(t, d.Build([]tensor.Shape{in}))
	return d
}

func raw(t *testing.T, values []float32, shape tensor.Shape) *tensor.Raw {
	t.Helper()
	r, err := tensor.FromFloat32(values, shape)
	require.NoError(t, err)
	return r
}

func TestDenseKernelInitWithinXavierBound(t *testing.T) {
	d := builtDense(t, 4, tensor.Shape{-1, 3})
	kernel := d.Weights()[0].Value.AsFloat32()
	bound := float32(math.Sqrt(6.0 / float64(3+4)))

	nonzero := false
	for _, v := range kernel {
		assert.GreaterOrEqual(t, v, -bound)
		assert.LessOrEqual(t, v, bound)
		if v != 0 {
			nonzero = true
		}
	}
	assert.True(t, nonzero)
}

func TestNewDenseValidation(t *testing.T) {
	_, err := NewDense(0)
	require.Error(t, err)
	assert.Equal(t, graph.KindValidation, graph.KindOf(err))
}

func TestDenseBuildShapes(t *testing.T) {
	d, err := NewDense(4)
	require.NoError(t, err)

	err = d.Build([]tensor.Shape{{-1, 3, 2}})
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))

	err = d.Build([]tensor.Shape{{-1, -1}})
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))

	require.NoError(t, d.Build([]tensor.Shape{{-1, 3}}))
	ws := d.Weights()
	require.Len(t, ws, 2)
	assert.Equal(t, tensor.Shape{3, 4}, ws[0].Value.Shape())
	assert.Equal(t, tensor.Shape{4}, ws[1].Value.Shape())
	assert.True(t, ws[0].Trainable)
}

func TestDenseForward(t *testing.T) {
	d := builtDense(t, 3, tensor.Shape{-1, 2})
	require.NoError(t, d.SetWeights([]*tensor.Raw{
		raw(t, []float32{1, 0, 1, 0, 1, 1}, tensor.Shape{2, 3}),
		raw(t, []float32{0.5, 0.5, 0.5}, tensor.Shape{3}),
	}))

	out, err := d.Forward([]*tensor.Raw{raw(t, []float32{1, 2}, tensor.Shape{1, 2})}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tensor.Shape{1, 3}, out[0].Shape())
	assert.InDeltaSlice(t, []float32{1.5, 2.5, 3.5}, out[0].AsFloat32(), 1e-6)
}

func TestDenseBackward(t *testing.T) {
	d := builtDense(t, 3, tensor.Shape{-1, 2})
	require.NoError(t, d.SetWeights([]*tensor.Raw{
		raw(t, []float32{1, 0, 1, 0, 1, 1}, tensor.Shape{2, 3}),
		raw(t, []float32{0, 0, 0}, tensor.Shape{3}),
	}))

	x := raw(t, []float32{1, 2}, tensor.Shape{1, 2})
	g := raw(t, []float32{1, 1, 1}, tensor.Shape{1, 3})
	inGrads, wGrads, err := d.Backward([]*tensor.Raw{x}, []*tensor.Raw{g}, nil)
	require.NoError(t, err)

	require.Len(t, inGrads, 1)
	assert.InDeltaSlice(t, []float32{2, 2}, inGrads[0].AsFloat32(), 1e-6)

	require.Len(t, wGrads, 2)
	assert.InDeltaSlice(t, []float32{1, 1, 1, 2, 2, 2}, wGrads[0].AsFloat32(), 1e-6)
	assert.InDeltaSlice(t, []float32{1, 1, 1}, wGrads[1].AsFloat32(), 1e-6)
}

func TestDenseSetWeightsValidation(t *testing.T) {
	d := builtDense(t, 2, tensor.Shape{-1, 2})

	err := d.SetWeights([]*tensor.Raw{raw(t, []float32{1, 1, 1, 1}, tensor.Shape{2, 2})})
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))

	err = d.SetWeights([]*tensor.Raw{
		raw(t, []float32{1, 1, 1, 1}, tensor.Shape{4}),
		raw(t, []float32{0, 0}, tensor.Shape{2}),
	})
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))
}

func TestDenseConfigRoundTrip(t *testing.T) {
	d, err := NewDense(5, WithName("proj"), WithInputShape(tensor.Shape{7}))
	require.NoError(t, err)

	l, err := graph.DeserializeLayer(d.ClassName(), d.Config(), nil)
	require.NoError(t, err)
	rd, ok := l.(*Dense)
	require.True(t, ok)
	assert.Equal(t, 5, rd.Units())
	assert.Equal(t, "proj", rd.Name())
	assert.Equal(t, tensor.Shape{-1, 7}, rd.BatchInputShape())
}

func TestDenseInSequential(t *testing.T) {
	d, err := NewDense(1, WithInputShape(tensor.Shape{2}))
	require.NoError(t, err)
	s, err := graph.NewSequential(d)
	require.NoError(t, err)
	require.NoError(t, d.SetWeights([]*tensor.Raw{
		raw(t, []float32{2, 3}, tensor.Shape{2, 1}),
		raw(t, []float32{1}, tensor.Shape{1}),
	}))

	out, err := s.Predict(raw(t, []float32{1, 1, 2, 2}, tensor.Shape{2, 2}), 32)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{6, 11}, out.AsFloat32(), 1e-6)
}
