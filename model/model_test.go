// Copyright 2026 Lamina ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/layers"
	"github.com/lamina-ml/lamina/model"
	"github.com/lamina-ml/lamina/optim"
	"github.com/lamina-ml/lamina/tensor"
)

func batch(t *testing.T, values []float32, shape tensor.Shape) *tensor.Raw {
	t.Helper()
	r, err := tensor.FromFloat32(values, shape)
	require.NoError(t, err)
	return r
}

func TestSequentialTrainSaveLoad(t *testing.T) {
	d, err := layers.Dense(1, layers.WithInputShape(tensor.Shape{1}))
	require.NoError(t, err)
	m, err := model.NewSequential(d)
	require.NoError(t, err)
	require.NoError(t, m.Compile(optim.SGD(0.05, 0), optim.MSE(), nil))

	x := batch(t, []float32{-1, -0.5, 0, 0.5, 1, 1.5, 2, 2.5}, tensor.Shape{8, 1})
	y := batch(t, []float32{-3, -2, -1, 0, 1, 2, 3, 4}, tensor.Shape{8, 1})
	hist, err := m.Fit(x, y, &model.FitOptions{BatchSize: 4, Epochs: 50, Shuffle: true})
	require.NoError(t, err)
	require.Len(t, hist.Metrics["loss"], 50)
	assert.Less(t, hist.Metrics["loss"][49], hist.Metrics["loss"][0])

	path := filepath.Join(t.TempDir(), "linear.lamina")
	require.NoError(t, model.Save(m, path, nil))

	restored, err := model.Load(path, nil)
	require.NoError(t, err)
	rs, ok := restored.(*model.Sequential)
	require.True(t, ok)
	assert.True(t, rs.Compiled())

	want, err := m.Predict(x, 0)
	require.NoError(t, err)
	got, err := rs.Predict(x, 0)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestFunctionalGraphJSONRoundTrip(t *testing.T) {
	in, err := model.Input(tensor.Shape{-1, 2}, tensor.Float32, "features")
	require.NoError(t, err)
	d, err := layers.Dense(2, layers.WithName("proj"))
	require.NoError(t, err)
	hidden, err := model.Call(d, []*model.Tensor{in}, nil)
	require.NoError(t, err)
	act, err := layers.Activation("tanh")
	require.NoError(t, err)
	out, err := model.Call(act, hidden, nil)
	require.NoError(t, err)
	m, err := model.New([]*model.Tensor{in}, out, "tiny")
	require.NoError(t, err)

	doc, err := model.ToJSON(m)
	require.NoError(t, err)

	restored, err := model.FromJSON(doc, nil)
	require.NoError(t, err)
	rm, ok := restored.(*model.Model)
	require.True(t, ok)
	assert.Equal(t, "tiny", rm.Name())
	_, err = rm.GetLayer("proj")
	assert.NoError(t, err)
}

func TestCloneReinitializesWeights(t *testing.T) {
	d, err := layers.Dense(1, layers.WithInputShape(tensor.Shape{2}))
	require.NoError(t, err)
	m, err := model.NewSequential(d)
	require.NoError(t, err)

	x := batch(t, []float32{1, 1}, tensor.Shape{1, 2})
	_, err = m.Predict(x, 0)
	require.NoError(t, err)
	kernel := batch(t, []float32{3, 4}, tensor.Shape{2, 1})
	bias := batch(t, []float32{1}, tensor.Shape{1})
	require.NoError(t, d.SetWeights([]*tensor.Raw{kernel, bias}))

	clone, err := model.Clone(m, nil)
	require.NoError(t, err)
	cs, ok := clone.(*model.Sequential)
	require.True(t, ok)

	orig, err := m.Predict(x, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{8}, orig.AsFloat32())

	got, err := cs.Predict(x, 0)
	require.NoError(t, err)
	assert.NotEqual(t, orig.AsFloat32(), got.AsFloat32())

	cloned, err := cs.GetLayer(d.Name())
	require.NoError(t, err)
	assert.NotSame(t, d, cloned)
}
