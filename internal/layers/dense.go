package layers

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lamina-ml/lamina/internal/graph"
	"github.com/lamina-ml/lamina/internal/tensor"
)

// Dense is a fully connected layer: y = x @ W + b.
//
// The kernel has shape [in_features, units] and is initialized with
// Xavier/Glorot uniform values; the bias has shape [units] and starts at
// zero. Both are created lazily on first call, once the input feature count
// is known.
type Dense struct {
	graph.Base

	units   int
	useBias bool

	kernel *graph.Weight
	bias   *graph.Weight
}

// NewDense creates a dense layer with the given output width.
func NewDense(units int, opts ...Option) (*Dense, error) {
	if units <= 0 {
		return nil, graph.Errorf(graph.KindValidation, "layers.NewDense",
			"units must be positive, got %d", units)
	}
	o := applyOptions(opts)
	return &Dense{Base: o.newBase("dense"), units: units, useBias: true}, nil
}

// ClassName implements graph.Layer.
func (d *Dense) ClassName() string { return "Dense" }

// Units returns the output feature count.
func (d *Dense) Units() int { return d.units }

// Build allocates and initializes the kernel and bias.
func (d *Dense) Build(inputShapes []tensor.Shape) error {
	const op = "Dense.Build"
	if len(inputShapes) != 1 {
		return graph.Errorf(graph.KindCardinality, op,
			"dense layer %q takes one input, got %d", d.Name(), len(inputShapes))
	}
	in := inputShapes[0]
	if len(in) != 2 {
		return graph.Errorf(graph.KindShape, op,
			"dense layer %q expects 2D input [batch, features], got %s", d.Name(), in)
	}
	features := in[len(in)-1]
	if features <= 0 {
		return graph.Errorf(graph.KindShape, op,
			"dense layer %q needs a defined feature axis, got %s", d.Name(), in)
	}

	kernel, err := xavierUniform(features, d.units)
	if err != nil {
		return err
	}
	d.kernel = &graph.Weight{Name: d.Name() + "/kernel", Value: kernel, Trainable: true}

	if d.useBias {
		bias, err := tensor.NewRaw(tensor.Shape{d.units}, tensor.Float32)
		if err != nil {
			return err
		}
		d.bias = &graph.Weight{Name: d.Name() + "/bias", Value: bias, Trainable: true}
	}
	return nil
}

// OutputShapes replaces the feature axis with the layer width.
func (d *Dense) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	if len(inputShapes) != 1 {
		return nil, graph.Errorf(graph.KindCardinality, "Dense.OutputShapes",
			"dense layer %q takes one input, got %d", d.Name(), len(inputShapes))
	}
	out := inputShapes[0].Clone()
	out[len(out)-1] = d.units
	return []tensor.Shape{out}, nil
}

// Forward computes x @ W + b.
func (d *Dense) Forward(inputs []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, error) {
	x := inputs[0]
	xm, err := matOf(x)
	if err != nil {
		return nil, err
	}
	km, err := matOf(d.kernel.Value)
	if err != nil {
		return nil, err
	}
	batch := x.Shape()[0]
	var y mat.Dense
	y.Mul(xm, km)
	if d.useBias {
		b := d.bias.Value.AsFloat32()
		for r := 0; r < batch; r++ {
			for c := 0; c < d.units; c++ {
				y.Set(r, c, y.At(r, c)+float64(b[c]))
			}
		}
	}
	out, err := rawOf(&y)
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{out}, nil
}

// Backward computes the input and weight gradients:
// dX = dY @ Wᵀ, dW = Xᵀ @ dY, db = column sums of dY.
func (d *Dense) Backward(inputs, outputGrads []*tensor.Raw, args graph.CallArgs) ([]*tensor.Raw, []*tensor.Raw, error) {
	x, g := inputs[0], outputGrads[0]
	xm, err := matOf(x)
	if err != nil {
		return nil, nil, err
	}
	gm, err := matOf(g)
	if err != nil {
		return nil, nil, err
	}
	km, err := matOf(d.kernel.Value)
	if err != nil {
		return nil, nil, err
	}

	var dx, dw mat.Dense
	dx.Mul(gm, km.T())
	dw.Mul(xm.T(), gm)

	dxRaw, err := rawOf(&dx)
	if err != nil {
		return nil, nil, err
	}
	dwRaw, err := rawOf(&dw)
	if err != nil {
		return nil, nil, err
	}
	weightGrads := []*tensor.Raw{dwRaw}
	if d.useBias {
		db, err := tensor.NewRaw(tensor.Shape{d.units}, tensor.Float32)
		if err != nil {
			return nil, nil, err
		}
		dbv := db.AsFloat32()
		rows, _ := gm.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < d.units; c++ {
				dbv[c] += float32(gm.At(r, c))
			}
		}
		weightGrads = append(weightGrads, db)
	}
	return []*tensor.Raw{dxRaw}, weightGrads, nil
}

// Weights returns [kernel, bias] once built.
func (d *Dense) Weights() []*graph.Weight {
	if d.kernel == nil {
		return nil
	}
	if d.bias != nil {
		return []*graph.Weight{d.kernel, d.bias}
	}
	return []*graph.Weight{d.kernel}
}

// SetWeights replaces the kernel and bias values.
func (d *Dense) SetWeights(values []*tensor.Raw) error {
	const op = "Dense.SetWeights"
	want := d.Weights()
	if len(values) != len(want) {
		return graph.Errorf(graph.KindShape, op,
			"layer %q expects %d weight arrays, got %d", d.Name(), len(want), len(values))
	}
	for i, w := range want {
		if !w.Value.Shape().Equal(values[i].Shape()) {
			return graph.Errorf(graph.KindShape, op,
				"layer %q weight %q has shape %s, got %s",
				d.Name(), w.Name, w.Value.Shape(), values[i].Shape())
		}
		copy(w.Value.Data(), values[i].Data())
	}
	return nil
}

// Config implements graph.Layer.
func (d *Dense) Config() map[string]any {
	return baseConfig(d.Name(), d.BatchInputShape(), d.DType(), map[string]any{
		"units":    d.units,
		"use_bias": d.useBias,
	})
}

func denseFromConfig(cfg map[string]any) (graph.Layer, error) {
	units, ok := graph.ConfigInt(cfg, "units")
	if !ok {
		return nil, graph.Errorf(graph.KindConfig, "layers.denseFromConfig",
			"dense config needs a units entry")
	}
	d, err := NewDense(units, optionsFromConfig(cfg)...)
	if err != nil {
		return nil, err
	}
	if useBias, ok := graph.ConfigBool(cfg, "use_bias"); ok {
		d.useBias = useBias
	}
	return d, nil
}

// xavierUniform draws weights from U(-b, b) with b = sqrt(6/(fanIn+fanOut)).
func xavierUniform(fanIn, fanOut int) (*tensor.Raw, error) {
	w, err := tensor.NewRaw(tensor.Shape{fanIn, fanOut}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	u := distuv.Uniform{Min: -bound, Max: bound}
	data := w.AsFloat32()
	for i := range data {
		data[i] = float32(u.Rand())
	}
	return w, nil
}

// matOf views a 2D (or 1D, treated as a row) float32 tensor as a gonum
// matrix.
func matOf(r *tensor.Raw) (*mat.Dense, error) {
	shape := r.Shape()
	rows, cols := 1, shape[0]
	if len(shape) == 2 {
		rows, cols = shape[0], shape[1]
	} else if len(shape) != 1 {
		return nil, graph.Errorf(graph.KindShape, "layers.matOf",
			"expected a 1D or 2D tensor, got %s", shape)
	}
	src := r.AsFloat32()
	data := make([]float64, len(src))
	for i, v := range src {
		data[i] = float64(v)
	}
	return mat.NewDense(rows, cols, data), nil
}

// rawOf copies a gonum matrix into a float32 tensor.
func rawOf(m *mat.Dense) (*tensor.Raw, error) {
	rows, cols := m.Dims()
	out, err := tensor.NewRaw(tensor.Shape{rows, cols}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	data := out.AsFloat32()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data[r*cols+c] = float32(m.At(r, c))
		}
	}
	return out, nil
}
