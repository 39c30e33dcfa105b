package layers

import (
	"math/rand"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Dropout randomly zeroes elements during training and rescales the rest by
// 1/(1-rate). Outside training it is the identity. Training mode is
// requested through the "training" call argument.
type Dropout struct {
	graph.Base
	rate float64

	// lastMask is the keep mask of the most recent training forward pass,
	// consumed by Backward.
	lastMask []float32
}

// NewDropout creates a dropout layer with the given drop rate in [0, 1).
func NewDropout(rate float64, opts ...Option) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, graph.Errorf(graph.KindValidation, "layers.NewDropout",
			"rate must be in [0, 1), got %g", rate)
	}
	o := applyOptions(opts)
	d := &Dropout{Base: o.newBase("dropout"), rate: rate}
	d.SetSupportsMasking(true)
	return d, nil
}

// ClassName implements graph.Layer.
func (d *Dropout) ClassName() string { return "Dropout" }

// Rate returns the configured drop rate.
func (d *Dropout) Rate() float64 { return d.rate }

// OutputShapes is the identity.
func (d *Dropout) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return inputShapes, nil
}

// Forward drops elements when the "training" argument is true.
func (d *Dropout) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	x := inputs[0]
	training, _ := args["training"].(bool)
	if !training || d.rate == 0 {
		d.lastMask = nil
		return []*tensor.Raw{x}, nil
	}
	out := x.Clone()
	v := out.AsFloat32()
	scale := float32(1.0 / (1.0 - d.rate))
	d.lastMask = make([]float32, len(v))
	for i := range v {
		if rand.Float64() < d.rate {
			v[i] = 0
		} else {
			v[i] *= scale
			d.lastMask[i] = scale
		}
	}
	return []*tensor.Raw{out}, nil
}

// Backward routes gradients through the surviving elements of the last
// training pass.
func (d *Dropout) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	g := outputGrads[0]
	if d.lastMask == nil {
		return []*tensor.Raw{g}, nil, nil
	}
	dx := g.Clone()
	v := dx.AsFloat32()
	if len(v) != len(d.lastMask) {
		return nil, nil, graph.Errorf(graph.KindShape, "Dropout.Backward",
			"gradient size %d does not match forward mask size %d", len(v), len(d.lastMask))
	}
	for i := range v {
		v[i] *= d.lastMask[i]
	}
	return []*tensor.Raw{dx}, nil, nil
}

// Config implements graph.Layer.
func (d *Dropout) Config() map[string]any {
	return baseConfig(d.Name(), d.BatchInputShape(), d.DType(), map[string]any{
		"rate": d.rate,
	})
}

func dropoutFromConfig(cfg map[string]any) (graph.Layer, error) {
	rate, ok := graph.ConfigFloat(cfg, "rate")
	if !ok {
		return nil, graph.Errorf(graph.KindConfig, "layers.dropoutFromConfig",
			"dropout config needs a rate entry")
	}
	return NewDropout(rate, optionsFromConfig(cfg)...)
}
