package layers

import (
	"math"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Activation applies a named elementwise nonlinearity.
//
// Supported functions: linear, relu, sigmoid, tanh, softmax. Softmax is
// applied per row over the last axis.
type Activation struct {
	graph.Base
	fn string
}

// NewActivation creates an activation layer.
func NewActivation(fn string, opts ...Option) (*Activation, error) {
	switch fn {
	case "linear", "relu", "sigmoid", "tanh", "softmax":
	default:
		return nil, graph.Errorf(graph.KindValidation, "layers.NewActivation",
			"unknown activation %q", fn)
	}
	o := applyOptions(opts)
	a := &Activation{Base: o.newBase("activation"), fn: fn}
	a.SetSupportsMasking(true)
	return a, nil
}

// ClassName implements graph.Layer.
func (a *Activation) ClassName() string { return "Activation" }

// Function returns the activation's name.
func (a *Activation) Function() string { return a.fn }

// OutputShapes is the identity.
func (a *Activation) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	return inputShapes, nil
}

// Forward applies the nonlinearity.
func (a *Activation) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	x := inputs[0]
	out := x.Clone()
	v := out.AsFloat32()
	switch a.fn {
	case "linear":
	case "relu":
		for i, e := range v {
			if e < 0 {
				v[i] = 0
			} else {
				v[i] = e
			}
		}
	case "sigmoid":
		for i, e := range v {
			v[i] = float32(1.0 / (1.0 + math.Exp(-float64(e))))
		}
	case "tanh":
		for i, e := range v {
			v[i] = float32(math.Tanh(float64(e)))
		}
	case "softmax":
		rows, cols := rowsCols(x.Shape())
		for r := 0; r < rows; r++ {
			row := v[r*cols : (r+1)*cols]
			max := row[0]
			for _, e := range row {
				if e > max {
					max = e
				}
			}
			var sum float64
			for i, e := range row {
				ex := math.Exp(float64(e - max))
				row[i] = float32(ex)
				sum += ex
			}
			for i := range row {
				row[i] = float32(float64(row[i]) / sum)
			}
		}
	}
	return []*tensor.Raw{out}, nil
}

// Backward applies the local derivative to the incoming gradient.
func (a *Activation) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	x, g := inputs[0], outputGrads[0]
	dx := g.Clone()
	dv := dx.AsFloat32()
	xv := x.AsFloat32()
	switch a.fn {
	case "linear":
	case "relu":
		for i := range dv {
			if xv[i] <= 0 {
				dv[i] = 0
			}
		}
	case "sigmoid":
		for i := range dv {
			s := 1.0 / (1.0 + math.Exp(-float64(xv[i])))
			dv[i] *= float32(s * (1.0 - s))
		}
	case "tanh":
		for i := range dv {
			t := math.Tanh(float64(xv[i]))
			dv[i] *= float32(1.0 - t*t)
		}
	case "softmax":
		// dx_i = s_i * (g_i - sum_j g_j * s_j) per row.
		outs, err := a.Forward(inputs, args)
		if err != nil {
			return nil, nil, err
		}
		s := outs[0].AsFloat32()
		gv := g.AsFloat32()
		rows, cols := rowsCols(x.Shape())
		for r := 0; r < rows; r++ {
			var dot float64
			for c := 0; c < cols; c++ {
				dot += float64(gv[r*cols+c]) * float64(s[r*cols+c])
			}
			for c := 0; c < cols; c++ {
				i := r*cols + c
				dv[i] = s[i] * (gv[i] - float32(dot))
			}
		}
	}
	return []*tensor.Raw{dx}, nil, nil
}

// Config implements graph.Layer.
func (a *Activation) Config() map[string]any {
	return baseConfig(a.Name(), a.BatchInputShape(), a.DType(), map[string]any{
		"activation": a.fn,
	})
}

func activationFromConfig(cfg map[string]any) (graph.Layer, error) {
	fn, ok := graph.ConfigString(cfg, "activation")
	if !ok {
		return nil, graph.Errorf(graph.KindConfig, "layers.activationFromConfig",
			"activation config needs an activation entry")
	}
	return NewActivation(fn, optionsFromConfig(cfg)...)
}

func rowsCols(shape tensor.Shape) (int, int) {
	cols := shape[len(shape)-1]
	rows := 1
	for _, d := range shape[:len(shape)-1] {
		rows *= d
	}
	return rows, cols
}
