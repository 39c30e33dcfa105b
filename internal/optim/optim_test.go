package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

func raw(t *testing.T, values []float32, shape tensor.Shape) *tensor.Raw {
	t.Helper()
	r, err := tensor.FromFloat32(values, shape)
	require.NoError(t, err)
	return r
}

func singleParam(t *testing.T, values []float32) []*graph.Weight {
	t.Helper()
	return []*graph.Weight{{
		Name:      "w",
		Value:     raw(t, values, tensor.Shape{len(values)}),
		Trainable: true,
	}}
}

func TestSGDStep(t *testing.T) {
	s := NewSGD(0.1, 0)
	params := singleParam(t, []float32{1, 2})
	require.NoError(t, s.Build(params))

	require.NoError(t, s.Step(params, []*tensor.Raw{raw(t, []float32{1, -1}, tensor.Shape{2})}))
	assert.InDeltaSlice(t, []float32{0.9, 2.1}, params[0].Value.AsFloat32(), 1e-6)
}

func TestSGDMomentum(t *testing.T) {
	s := NewSGD(0.1, 0.9)
	params := singleParam(t, []float32{0})
	require.NoError(t, s.Build(params))

	g := raw(t, []float32{1}, tensor.Shape{1})
	// v1 = -0.1, w = -0.1; v2 = 0.9*(-0.1) - 0.1 = -0.19, w = -0.29.
	require.NoError(t, s.Step(params, []*tensor.Raw{g}))
	require.NoError(t, s.Step(params, []*tensor.Raw{g}))
	assert.InDelta(t, -0.29, float64(params[0].Value.AsFloat32()[0]), 1e-6)
}

func TestSGDStepValidation(t *testing.T) {
	s := NewSGD(0.1, 0)
	params := singleParam(t, []float32{1})

	err := s.Step(params, nil)
	require.Error(t, err)
	assert.Equal(t, graph.KindCardinality, graph.KindOf(err))

	err = s.Step(params, []*tensor.Raw{raw(t, []float32{1}, tensor.Shape{1})})
	require.Error(t, err)
	assert.Equal(t, graph.KindPrecondition, graph.KindOf(err))
}

func TestSGDStateRoundTrip(t *testing.T) {
	s := NewSGD(0.1, 0.9)
	params := singleParam(t, []float32{0, 0})
	require.NoError(t, s.Build(params))
	require.NoError(t, s.Step(params, []*tensor.Raw{raw(t, []float32{1, 2}, tensor.Shape{2})}))

	state := s.Weights()
	require.Len(t, state, 1)

	s2 := NewSGD(0.1, 0.9)
	require.NoError(t, s2.Build(params))
	require.NoError(t, s2.SetWeights(state))
	assert.True(t, state[0].Equal(s2.Weights()[0]))

	err := s2.SetWeights(nil)
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))
}

func TestAdamDefaults(t *testing.T) {
	a := NewAdam(0, 0, 0, 0)
	cfg := a.Config()
	assert.Equal(t, 0.001, cfg["lr"])
	assert.Equal(t, 0.9, cfg["beta_1"])
	assert.Equal(t, 0.999, cfg["beta_2"])
	assert.Equal(t, 1e-8, cfg["epsilon"])
}

func TestAdamFirstStep(t *testing.T) {
	a := NewAdam(0.001, 0.9, 0.999, 1e-8)
	params := singleParam(t, []float32{1})
	require.NoError(t, a.Build(params))

	// With bias correction the first update is close to -lr * sign(g).
	require.NoError(t, a.Step(params, []*tensor.Raw{raw(t, []float32{10}, tensor.Shape{1})}))
	assert.InDelta(t, 1.0-0.001, float64(params[0].Value.AsFloat32()[0]), 1e-6)
}

func TestAdamStateRoundTrip(t *testing.T) {
	a := NewAdam(0.001, 0.9, 0.999, 1e-8)
	params := singleParam(t, []float32{1, 2})
	require.NoError(t, a.Build(params))
	g := raw(t, []float32{0.5, -0.5}, tensor.Shape{2})
	require.NoError(t, a.Step(params, []*tensor.Raw{g}))
	require.NoError(t, a.Step(params, []*tensor.Raw{g}))

	state := a.Weights()
	require.Len(t, state, 3)
	assert.Equal(t, []float32{2}, state[0].AsFloat32())

	a2 := NewAdam(0.001, 0.9, 0.999, 1e-8)
	require.NoError(t, a2.Build(params))
	require.NoError(t, a2.SetWeights(state))
	for i, s := range a2.Weights() {
		assert.True(t, state[i].Equal(s), "state tensor %d", i)
	}
}

func TestMeanSquaredError(t *testing.T) {
	loss, grad, err := MeanSquaredError{}.Forward(
		raw(t, []float32{0, 0}, tensor.Shape{1, 2}),
		raw(t, []float32{1, 3}, tensor.Shape{1, 2}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, loss, 1e-6)
	assert.InDeltaSlice(t, []float32{1, 3}, grad.AsFloat32(), 1e-6)

	_, _, err = MeanSquaredError{}.Forward(
		raw(t, []float32{0}, tensor.Shape{1, 1}),
		raw(t, []float32{1, 3}, tensor.Shape{1, 2}),
	)
	require.Error(t, err)
	assert.Equal(t, graph.KindShape, graph.KindOf(err))
}

func TestMeanAbsoluteError(t *testing.T) {
	loss, grad, err := MeanAbsoluteError{}.Forward(
		raw(t, []float32{1, 1}, tensor.Shape{1, 2}),
		raw(t, []float32{3, 0}, tensor.Shape{1, 2}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, loss, 1e-6)
	assert.InDeltaSlice(t, []float32{0.5, -0.5}, grad.AsFloat32(), 1e-6)
}

func TestBinaryCrossentropy(t *testing.T) {
	loss, grad, err := BinaryCrossentropy{}.Forward(
		raw(t, []float32{1, 0}, tensor.Shape{1, 2}),
		raw(t, []float32{0.9, 0.1}, tensor.Shape{1, 2}),
	)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.9), loss, 1e-5)
	// Gradient pushes predictions toward the targets.
	assert.Less(t, grad.AsFloat32()[0], float32(0))
	assert.Greater(t, grad.AsFloat32()[1], float32(0))

	// Extreme predictions are clipped instead of producing infinities.
	loss, _, err = BinaryCrossentropy{}.Forward(
		raw(t, []float32{1}, tensor.Shape{1, 1}),
		raw(t, []float32{0}, tensor.Shape{1, 1}),
	)
	require.NoError(t, err)
	assert.False(t, math.IsInf(loss, 0))
}

func TestCategoricalCrossentropy(t *testing.T) {
	loss, grad, err := CategoricalCrossentropy{}.Forward(
		raw(t, []float32{0, 1, 0, 1, 0, 0}, tensor.Shape{2, 3}),
		raw(t, []float32{0.25, 0.5, 0.25, 0.5, 0.25, 0.25}, tensor.Shape{2, 3}),
	)
	require.NoError(t, err)
	assert.InDelta(t, -(math.Log(0.5)+math.Log(0.5))/2, loss, 1e-5)
	// Only the true-class slots carry gradient.
	g := grad.AsFloat32()
	assert.Less(t, g[1], float32(0))
	assert.Equal(t, float32(0), g[0])
}

func TestAccuracy(t *testing.T) {
	// Argmax comparison on multi-column outputs.
	acc, err := Accuracy{}.Compute(
		raw(t, []float32{0, 1, 1, 0}, tensor.Shape{2, 2}),
		raw(t, []float32{0.2, 0.8, 0.3, 0.7}, tensor.Shape{2, 2}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-9)

	// Threshold comparison on single-column outputs.
	acc, err = Accuracy{}.Compute(
		raw(t, []float32{1, 0, 1}, tensor.Shape{3, 1}),
		raw(t, []float32{0.9, 0.2, 0.4}, tensor.Shape{3, 1}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, acc, 1e-9)
}

func TestMAEMetric(t *testing.T) {
	v, err := MAEMetric{}.Compute(
		raw(t, []float32{1, 2}, tensor.Shape{1, 2}),
		raw(t, []float32{2, 0}, tensor.Shape{1, 2}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1e-9)
}

func TestOptimizerRegistry(t *testing.T) {
	o, err := graph.DeserializeOptimizer("SGD", map[string]any{"lr": 0.5, "momentum": 0.1}, nil)
	require.NoError(t, err)
	sgd, ok := o.(*SGD)
	require.True(t, ok)
	assert.Equal(t, 0.5, sgd.Config()["lr"])

	o, err = graph.DeserializeOptimizer("SGD", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.01, o.Config()["lr"])

	o, err = graph.DeserializeOptimizer("Adam", map[string]any{"lr": 0.002}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.002, o.Config()["lr"])

	for _, name := range []string{
		"mean_squared_error", "mean_absolute_error",
		"binary_crossentropy", "categorical_crossentropy",
	} {
		l, err := graph.LossByName(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, l.Name())
	}
	for _, name := range []string{"accuracy", "mae"} {
		m, err := graph.MetricByName(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.Name())
	}
}
