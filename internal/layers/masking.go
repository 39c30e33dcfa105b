package layers

import (
	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Masking marks timesteps whose features all equal the mask value, enabling
// mask pass-through in downstream layers. The forward computation is the
// identity.
type Masking struct {
	graph.Base
	maskValue float64
}

// NewMasking creates a masking layer.
func NewMasking(maskValue float64, opts ...Option) (*Masking, error) {
	o := applyOptions(opts)
	m := &Masking{Base: o.newBase("masking"), maskValue: maskValue}
	m.SetSupportsMasking(true)
	return m, nil
}

// ClassName implements graph.Layer.
func (m *Masking) ClassName() string { return "Masking" }

// MaskValue returns the sentinel value.
func (m *Masking) MaskValue() float64 { return m.maskValue }

// ComputeMask mints a mask marking timesteps whose features differ from the
// mask value. An incoming mask is superseded; the layer is a mask source.
func (m *Masking) ComputeMask(inputs []*graph.Tensor, masks []*graph.Tensor) []*graph.Tensor {
	if len(inputs) == 0 {
		return nil
	}
	return []*graph.Tensor{graph.NewMask(inputs[0])}
}

// OutputShapes is the identity.
func (m *Masking) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return inputShapes, nil
}

// Forward is the identity.
func (m *Masking) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	return inputs, nil
}

// Backward is the identity.
func (m *Masking) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	return outputGrads, nil, nil
}

// Config implements graph.Layer.
func (m *Masking) Config() map[string]any {
	return baseConfig(m.Name(), m.BatchInputShape(), m.DType(), map[string]any{
		"mask_value": m.maskValue,
	})
}

func maskingFromConfig(cfg map[string]any) (graph.Layer, error) {
	maskValue, _ := graph.ConfigFloat(cfg, "mask_value")
	return NewMasking(maskValue, optionsFromConfig(cfg)...)
}
