package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamina-ml/lamina/internal/tensor"
)

// maskSourceLayer is an identity layer that mints a mask from its input,
// the way timestep-masking layers do.
type maskSourceLayer struct {
	Base
}

func newMaskSourceLayer(name string) *maskSourceLayer {
	l := &maskSourceLayer{Base: NewBase(name, "mask_source", tensor.Float32)}
	l.SetSupportsMasking(true)
	return l
}

func (l *maskSourceLayer) ClassName() string { return "MaskSourceLayer" }

func (l *maskSourceLayer) ComputeMask(inputs []*Tensor, masks []*Tensor) []*Tensor {
	if len(inputs) == 0 {
		return nil
	}
	return []*Tensor{NewMask(inputs[0])}
}

func (l *maskSourceLayer) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return []tensor.Shape{inputShapes[0].Clone()}, nil
}

func (l *maskSourceLayer) Forward(inputs []*tensor.Raw, args CallArgs) ([]*tensor.Raw, error) {
	return inputs, nil
}

func (l *maskSourceLayer) Config() map[string]any {
	return map[string]any{"name": l.Name()}
}

func init() {
	RegisterLayer("MaskSourceLayer", func(cfg map[string]any) (Layer, error) {
		name, _ := ConfigString(cfg, "name")
		return newMaskSourceLayer(name), nil
	})
}

func TestCallAttachesMask(t *testing.T) {
	in, err := Input(tensor.Shape{-1, 3}, tensor.Float32, "mask_in")
	require.NoError(t, err)

	outs, err := Call(newMaskSourceLayer("mask_src"), []*Tensor{in}, nil)
	require.NoError(t, err)
	require.Len(t, outs, 1)

	mask, ok := MaskOf(outs[0])
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{-1}, mask.Shape())
	assert.Equal(t, tensor.Bool, mask.DType())

	_, ok = MaskOf(in)
	assert.False(t, ok)
}

func TestMaskPassThrough(t *testing.T) {
	in, err := Input(tensor.Shape{-1, 2}, tensor.Float32, "pass_in")
	require.NoError(t, err)
	masked, err := Call(newMaskSourceLayer("pass_src"), []*Tensor{in}, nil)
	require.NoError(t, err)
	srcMask, ok := MaskOf(masked[0])
	require.True(t, ok)

	carrier := newScaleLayer(2, nil, "pass_carrier")
	carrier.SetSupportsMasking(true)
	carried, err := Call(carrier, masked, nil)
	require.NoError(t, err)
	got, ok := MaskOf(carried[0])
	require.True(t, ok)
	assert.Same(t, srcMask, got)

	// A layer without masking support drops the mask.
	dropped, err := Call(newScaleLayer(3, nil, "pass_drop"), carried, nil)
	require.NoError(t, err)
	_, ok = MaskOf(dropped[0])
	assert.False(t, ok)
}

func TestCloneFunctionalPropagatesMasks(t *testing.T) {
	in, err := Input(tensor.Shape{-1, 4}, tensor.Float32, "clone_mask_in")
	require.NoError(t, err)
	outs, err := Call(newMaskSourceLayer("clone_mask_src"), []*Tensor{in}, nil)
	require.NoError(t, err)
	m, err := NewModel([]*Tensor{in}, outs, "clone_masked")
	require.NoError(t, err)

	srcMask, ok := MaskOf(m.Outputs()[0])
	require.True(t, ok)

	clone, err := CloneFunctional(m, nil)
	require.NoError(t, err)

	mask, ok := MaskOf(clone.Outputs()[0])
	require.True(t, ok)
	assert.NotSame(t, srcMask, mask)
	assert.Equal(t, tensor.Shape{-1}, mask.Shape())
}
